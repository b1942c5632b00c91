package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"ferry/internal/config"
	"ferry/internal/debug"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	debug.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		global globalFlags
		local  launchFlags
	)

	rootCmd := &cobra.Command{
		Use:           "ferry",
		Short:         "Start Ferry, updating it first when a new build is available",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupEnvironment(global, local, changedFunc(cmd))
			if err != nil {
				return err
			}
			return runApp(cmd.Context(), env, appOptionsFromConfig(), cmd.OutOrStdout())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&global.debug, "debug", false, "Write a debug log (or set FERRY_DEBUG=true)")
	flags.StringVar(&global.settingsFile, "settings", "", "Settings file merged over the user settings")
	flags.StringVar(&global.buildInfo, "build-info", "", "Path to build_info.json (defaults to the executable directory)")
	flags.StringVar(&global.userData, "user-data", "", "User data directory")

	rootCmd.Flags().BoolVar(&local.startMinimized, "start-minimized", false, "Keep the window hidden on launch")
	rootCmd.Flags().BoolVar(&local.headless, "headless", false, "Resolve updates without drawing the splash screen")

	rootCmd.AddCommand(newOverlayHostCommand(&global))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newOverlayHostCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "overlay-host",
		Short: "Prepare updater state for the overlay process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupEnvironment(*global, launchFlags{}, changedFunc(cmd))
			if err != nil {
				return err
			}
			return runOverlayHost(cmd.Context(), env, config.GetString(config.KeyNewUpdateEndpoint), cmd.OutOrStdout())
		},
	}
}

// changedFunc reports whether a flag was set on the command line.
func changedFunc(cmd *cobra.Command) func(string) bool {
	return func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
}

