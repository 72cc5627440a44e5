// Package cli assembles pdk's cobra command tree and wires the engine's
// packages (config, pipeline loading, variables, logging, artifacts,
// orchestration, filtering, validation, and watch) behind the flag surface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd(ctx context.Context, version string) (*cobra.Command, *Options) {
	cmd := &cobra.Command{
		Use:           "pdk",
		Short:         "A local CI/CD pipeline development kit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts := registerFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		applyEnvDefaults(opts)
		return runRoot(ctx, opts, version)
	}

	cmd.AddCommand(newVersionCmd(version))
	return cmd, opts
}

// applyEnvDefaults fills in --config and --file from PDK_CONFIG/PDK_FILE
// when the flag was not passed, one layer above pdkconfig.Load. Variable/
// secret environment overrides (PDK_VAR_*, PDK_SECRET_*) are handled later
// and separately, by the resolver itself.
func applyEnvDefaults(opts *Options) {
	v := viper.New()
	v.SetEnvPrefix("PDK")
	v.AutomaticEnv()

	if opts.ConfigPath == "" {
		if cfg := v.GetString("config"); cfg != "" {
			opts.ConfigPath = cfg
		}
	}
	if opts.File == "" {
		if file := v.GetString("file"); file != "" {
			opts.File = file
		}
	}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the pdk version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

// Execute parses argv, runs the selected command, and returns the process
// exit code (0 success, 1 failure; 130 for interrupt is handled by main
// after Execute returns, once the signal goroutine has observed ctx's
// cancellation).
func Execute(ctx context.Context, version string) int {
	cmd, _ := newRootCmd(ctx, version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitFailure
	}
	return ExitSuccess
}
