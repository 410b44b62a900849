package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shopkit/cartsync"
)

// NewConfigCommand creates the config command, which loads the YAML config,
// applies defaults, validates it and prints the effective result.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cartsync.DefaultConfig()
			if rootOpts.ConfigPath != "" {
				loaded, err := cartsync.LoadConfig(rootOpts.ConfigPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			rendered, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("rendering config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(rendered)
			return err
		},
	}
}
