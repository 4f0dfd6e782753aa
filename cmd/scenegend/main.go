// Command scenegend runs the scenegen daemon in the foreground. It is the
// entry point for service managers; `scenegen daemon run` is equivalent.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scenegen/internal/config"
	"scenegen/internal/daemonrun"
)

func main() {
	var (
		configPath string
		opts       daemonrun.Options
	)
	cmd := &cobra.Command{
		Use:           "scenegend",
		Short:         "Run the scenegen daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Development logging")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "scenegend:", err)
		os.Exit(1)
	}
}
