package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultServer = "http://localhost:8080"

// newRootCmd builds the command tree. Settings resolve from flags, then
// DEALCTL_* environment variables, then defaults.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetDefault("server", defaultServer)
	v.SetDefault("timeout", 10*time.Second)
	v.SetEnvPrefix("DEALCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "dealctl",
		Short: "Command line client for the dealroom negotiation service",
		Long: `dealctl talks to a running dealroom server. It registers agents,
starts and cancels negotiations, and streams session events as they happen.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("server", defaultServer, "dealroom server base URL")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "HTTP request timeout")
	_ = v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	client := func() *Client {
		return NewClient(v.GetString("server"), v.GetDuration("timeout"))
	}

	root.AddCommand(
		newAgentsCmd(client),
		newNegotiateCmd(client),
		newWatchCmd(client),
	)
	return root
}
