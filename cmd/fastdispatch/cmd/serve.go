package cmd

import (
	"github.com/spf13/cobra"

	"github.com/searchktools/fast-dispatch/app"
	"github.com/searchktools/fast-dispatch/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start accepting connections. SIGINT or SIGTERM stops accepting, answers
every connection already queued and then exits.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("addr", "", "listen address (host:port)")
	flags.Int("workers", 0, "fixed worker count (default: number of CPUs)")
	flags.Int("max-conns", 0, "maximum concurrent connections (0 = unlimited)")
	flags.String("parser", "", "request parser: text or fasthttp")
	flags.Bool("reuse-port", false, "set SO_REUSEPORT on the listener")
	flags.String("public-dir", "", "directory served under /files/")

	bindFlag("addr", flags.Lookup("addr"))
	bindFlag("workers", flags.Lookup("workers"))
	bindFlag("max_conns", flags.Lookup("max-conns"))
	bindFlag("parser", flags.Lookup("parser"))
	bindFlag("reuse_port", flags.Lookup("reuse-port"))
	bindFlag("public_dir", flags.Lookup("public-dir"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewFromConfig(cfg.LoggingConfig())
	logging.SetDefault(logger)

	a := app.New(cfg, app.WithLogger(&logger))
	if err := registerRoutes(a.Engine(), cfg, &logger); err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("parser", cfg.Parser).
		Str("public_dir", cfg.PublicDir).
		Msg("starting fastdispatch")

	return a.Run(cmd.Context())
}
