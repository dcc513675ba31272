// Package cmd implements the fastdispatch command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/searchktools/fast-dispatch/config"
	"github.com/searchktools/fast-dispatch/logging"
)

var (
	configFile string
	loader     = config.NewLoader()

	// Version is the release version, set by main.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// Date is the build date.
	Date = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fastdispatch",
	Short: "Minimal HTTP dispatch server",
	Long: `fastdispatch accepts HTTP/1.x connections, resolves each request against
a route table, runs its middleware chain and handler on a fixed worker pool,
and answers with exactly one response per connection.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version, commit, date string) {
	Version = version
	Commit = commit
	Date = date

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Default().Error().Err(err).Msg("command failed")
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	bindFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, routesCmd, versionCmd)
}

// loadConfig reads the configuration after flags have been parsed
func loadConfig() (*config.Config, error) {
	cfg, err := loader.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// bindFlag binds a flag to a configuration key; an explicitly set flag wins
// over the environment and the config file
func bindFlag(key string, flag *pflag.Flag) {
	if err := loader.Viper().BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag.Name, err))
	}
}
