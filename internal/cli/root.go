// Package cli implements the PortalBox command-line surface
// (SPEC_FULL.md §4.9): the cobra-based `portalbox start|config|reset|version`
// subcommands that wire config, credentials, the dashboard, the tunnel
// daemon, the editor supervisor, and the update prober into one running
// agent process. It is grounded in the teacher's main.go dispatch to
// "server"/"client" subcommands, generalized from flag.FlagSet to
// spf13/cobra (present in the retrieved corpus via Websoft9-AppOS).
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the running build version, mirroring the original agent's
// VERSION constant (original_source/version.rs). It is overridden at link
// time via -ldflags "-X .../internal/cli.Version=...".
var Version = "0.0.0-dev"

// configFile is the --config flag shared by every subcommand; an empty
// value falls back to config.Path's default of ~/.portalbox/config.toml.
var configFile string

// NewRootCommand builds the portalbox root command and all of its
// subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "portalbox",
		Short: "Expose local services through the PortalBox tunnel",
		Long: "PortalBox is a local agent that exposes machine-local services\n" +
			"(a dashboard, an editor server, SSH) through a remote reverse-proxy\n" +
			"server so they are reachable from the public internet under a\n" +
			"user-specific subdomain.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", configFile, "path to config.toml (defaults to ~/.portalbox/config.toml)")

	root.AddCommand(newStartCommand())
	root.AddCommand(newConfigCommand())
	root.AddCommand(newResetCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the running agent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}
