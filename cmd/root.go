// Package cmd implements the command-line interface for so-ingestor.
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/so-ingestor/cmd/refresh"
	"github.com/jonesrussell/north-cloud/so-ingestor/cmd/reset"
	"github.com/jonesrussell/north-cloud/so-ingestor/cmd/run"
	"github.com/jonesrussell/north-cloud/so-ingestor/cmd/schedule"
	"github.com/jonesrussell/north-cloud/so-ingestor/cmd/stats"
)

var (
	// Version is set at build time with -ldflags "-X .../cmd.Version=v1.2.3".
	Version = "dev"

	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands
	Debug bool

	// rootCmd represents the root command for the so-ingestor CLI.
	rootCmd = &cobra.Command{
		Use:   "so-ingestor",
		Short: "Ingest Stack Overflow questions into a local store",
		Long: `so-ingestor fetches recent Stack Overflow questions from listing pages or the
Stack Exchange REST API, reconciles them into a store, maintains an author
aggregate and hands the changed set to analysis.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command until it returns or SIGINT/SIGTERM arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "so-ingestor version %s\n", version())
		},
	})

	rootCmd.AddCommand(run.Command())
	rootCmd.AddCommand(refresh.Command())
	rootCmd.AddCommand(schedule.Command())
	rootCmd.AddCommand(reset.Command())
	rootCmd.AddCommand(stats.Command())
}

// version prefers the linker-set value, then the module version from build info.
func version() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
