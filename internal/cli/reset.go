package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/portalbox-app/portalbox/internal/config"
	"github.com/portalbox-app/portalbox/internal/credentials"
)

// newResetCommand removes the saved credential, signing the agent out of
// its current registration (original_source/main.rs Commands::Reset, backed
// by CredManager::delete).
func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Sign out and remove saved credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			if err := credentials.Delete(cfg.CredentialsFilePath()); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}
