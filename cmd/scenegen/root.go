package main

import "github.com/spf13/cobra"

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "scenegen",
		Short:         "Generate continuous multi-shot video scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&ctx.socket, "socket", "", "Path to the scenegen daemon socket")
	flags.StringVarP(&ctx.configFile, "config", "c", "", "Configuration file path")

	root.AddCommand(
		newDaemonCommand(ctx),
		newSceneCommand(ctx),
		newJobCommand(ctx),
		newConfigCommand(ctx),
		newPreflightCommand(ctx),
		newTestNotifyCommand(ctx),
	)
	return root
}
