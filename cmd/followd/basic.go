package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/followd/pkg/events"
	"github.com/charlie0129/followd/pkg/version"
)

func getVersion() (clientVersion, daemonVersion string, err error) {
	daemonVersion, err = apiClient.GetVersion()
	return version.Version, daemonVersion, err
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "count",
		Short:   "Print the last fetched follower count",
		GroupID: gBasic,
		Long: `Print the last fetched follower count.

Prints -1 if no fetch has succeeded yet.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := apiClient.GetCount()
			if err != nil {
				return fmt.Errorf("failed to get follower count: %w", err)
			}
			cmd.Println(n)
			return nil
		},
	}
}

func NewIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "interval [duration]",
		Short:   "Get or set the fetch interval",
		GroupID: gBasic,
		Long: `Get or set the fetch interval.

Without an argument the current interval is printed. The argument is a Go
duration such as 90s or 5m. The new interval is compared against the time of
the last fetch, so it takes effect without waiting for a full old interval.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				d, err := apiClient.GetInterval()
				if err != nil {
					return fmt.Errorf("failed to get fetch interval: %w", err)
				}
				cmd.Println(d)
				return nil
			}

			d, err := parseDurationArg(args, "interval")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetInterval(d)
			if err != nil {
				return fmt.Errorf("failed to set fetch interval: %w", err)
			}
			logResponse(ret)

			logrus.Infof("successfully set fetch interval to %s", d)
			return nil
		},
	}
}

func NewAccountCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "account [username]",
		Short:   "Change the account being followed",
		GroupID: gBasic,
		Long: `Change the account being followed without re-provisioning Wi-Fi.

The new account is stored and fetched on the next tick.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ret, err := apiClient.SetAccount(args[0])
			if err != nil {
				return fmt.Errorf("failed to set account: %w", err)
			}
			logResponse(ret)
			return nil
		},
	}
}

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Stream follower count updates and phase changes",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			err := apiClient.Watch(ctx, func(ev events.Event) bool {
				printEvent(cmd, ev)
				return true
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func printEvent(cmd *cobra.Command, ev events.Event) {
	ts := time.Now().Format(time.Kitchen)
	switch ev.Name {
	case events.FollowerCount:
		p, err := events.DecodeAs[events.FollowerCountEvent](ev)
		if err != nil {
			logrus.Warnf("bad %s event: %v", ev.Name, err)
			return
		}
		cmd.Printf("%s  %s  %s\n", ts, p.Account, bold("%d followers", p.Count))
	case events.PhaseChange:
		p, err := events.DecodeAs[events.PhaseChangeEvent](ev)
		if err != nil {
			logrus.Warnf("bad %s event: %v", ev.Name, err)
			return
		}
		cmd.Printf("%s  phase %s -> %s\n", ts, p.From, color.CyanString(p.To))
	default:
		logrus.Debugf("ignoring event %s", ev.Name)
	}
}
