package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/followd/pkg/config"
	"github.com/charlie0129/followd/pkg/types"
)

type statusData struct {
	status *types.DaemonStatus
	config *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		status: st,
		config: conf,
	}, nil
}

type statusJSON struct {
	Status        *types.DaemonStatus   `json:"status"`
	Configuration *config.RawFileConfig `json:"configuration"`
}

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of followd",
		Long:    `Get connection state, follower count, last error and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statusJSON{Status: data.status, Configuration: data.config})
			}

			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	st := data.status
	conf := config.NewFileFromConfig(data.config, "")

	cmd.Println(bold("Connection:"))
	cmd.Printf("  Wi-Fi: %s\n", bool2Text(st.WiFiStatus == types.WiFiConnected))
	cmd.Printf("  Phase: %s\n", phaseText(st.Phase))
	if st.LocalIP != "" {
		cmd.Printf("  Local IP: %s\n", bold("%s", st.LocalIP))
	}
	if st.Phase == types.PhaseAPMode {
		apName := conf.APSSID()
		cmd.Printf("    Join the %s network to enter Wi-Fi credentials.\n", bold("%s", apName))
	}
	if st.Phase == types.PhaseIdle && st.WiFiStatus != types.WiFiConnected {
		cmd.Println("    Offline with the portal stopped. Run \"followd portal restart\" to enter new credentials.")
	}

	cmd.Println()

	cmd.Println(bold("Followers:"))
	if st.Account == "" {
		cmd.Printf("  Account: %s\n", color.YellowString("not set"))
	} else {
		cmd.Printf("  Account: %s\n", bold("%s", st.Account))
	}
	if st.FollowerCount == types.UnsetCount {
		cmd.Printf("  Count: %s\n", color.YellowString("not fetched yet"))
	} else {
		cmd.Printf("  Count: %s\n", bold("%d", st.FollowerCount))
	}
	cmd.Printf("  Interval: %s\n", bold("%s", st.Interval))
	if st.LastPoll != "" {
		cmd.Printf("  Last attempt: %s\n", st.LastPoll)
	}
	cmd.Printf("  Last error: %s\n", errorText(st.LastError))

	cmd.Println()

	cmd.Println(bold("Configuration:"))
	cmd.Printf("  Endpoint: %s\n", bold("%s:%d", conf.FetchHost(), conf.FetchPort()))
	cmd.Printf("  Verify TLS certificates: %s\n", bool2Text(!conf.InsecureTLS()))
	cmd.Printf("  Interface: %s\n", conf.Interface())
	cmd.Printf("  Restart portal after a failed connection: %s\n", bool2Text(conf.RestartPortalOnFailure()))
	cmd.Printf("  Credential store: %s\n", conf.CredentialStore())
	if broker := conf.MQTTBroker(); broker != "" {
		cmd.Printf("  MQTT: %s (%s)\n", broker, conf.MQTTTopic())
	}
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
}

func phaseText(p types.Phase) string {
	switch p {
	case types.PhaseConnected:
		return color.New(color.Bold, color.FgGreen).Sprint(p)
	case types.PhaseConnecting:
		return color.New(color.Bold, color.FgYellow).Sprint(p)
	case types.PhaseAPMode:
		return color.New(color.Bold, color.FgCyan).Sprint(p)
	default:
		return bold("%s", p)
	}
}

func errorText(msg string) string {
	if msg == "" || msg == types.ErrorNone.String() {
		return color.GreenString("None")
	}
	return color.New(color.Bold, color.FgRed).Sprint(msg)
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
