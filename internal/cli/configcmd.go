package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"aira/internal/config"
)

func newConfigCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration (API key masked)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				if cfg.APIKey != "" {
					cfg.APIKey = maskKey(cfg.APIKey)
				}
				data, err := yaml.Marshal(&cfg)
				if err != nil {
					return fmt.Errorf("marshal config: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n", config.ConfigPath())
				_, err = out.Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write a config file with the defaults filled in",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.Save(config.Default()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", config.ConfigPath())
				return nil
			},
		},
	)
	return cmd
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
