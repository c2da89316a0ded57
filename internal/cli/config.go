package cli

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/portalbox-app/portalbox/internal/config"
)

// newConfigCommand prints the effective configuration (defaults overlaid
// with config.toml and PORTALBOX_* environment overrides), matching the
// original CLI's `portalbox config` introspection command
// (original_source/main.rs Commands::Config).
func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			path, err := config.Path(configFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			data, err := toml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("config: encoding: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", path)
			out.Write(data)
			return nil
		},
	}
}
