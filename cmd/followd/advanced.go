package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/followd/pkg/client"
)

func NewErrorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "error",
		Short:   "Show or clear the last recorded error",
		GroupID: gAdvanced,
		Long: `Show or clear the last recorded error.

Only the most recent failure is kept. A successful connection or fetch clears
it on its own.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the last recorded error",
			RunE: func(cmd *cobra.Command, _ []string) error {
				info, err := apiClient.GetLastError()
				if err != nil {
					return fmt.Errorf("failed to get last error: %w", err)
				}
				cmd.Println(errorText(info.Message))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Reset the last recorded error to None",
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.ClearLastError()
				if err != nil {
					return fmt.Errorf("failed to clear last error: %w", err)
				}
				logResponse(ret)
				logrus.Info("successfully cleared last error")
				return nil
			},
		},
	)

	return cmd
}

func NewPortalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portal",
		Short:   "Control the configuration portal",
		GroupID: gAdvanced,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "Bring the configuration portal back up",
		Long: `Bring the configuration portal back up.

After a failed connection with newly submitted credentials the device stays
offline with the portal stopped. This starts the access point, DNS
redirection and configuration page again so new credentials can be entered.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.RestartPortal()
			if errors.Is(err, client.ErrConflict) {
				return fmt.Errorf("refusing to start the portal: %w", err)
			}
			if err != nil {
				return fmt.Errorf("failed to restart portal: %w", err)
			}
			logResponse(ret)
			return nil
		},
	})

	return cmd
}
