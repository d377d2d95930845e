package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/genbridge/internal/app"
	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/Iron-Ham/genbridge/internal/server"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge",
	Long: `Run the HTTP bridge.

POST /generate (also mounted at /api/llm/generate) accepts
{"prompt": "...", "provider": "..."} and returns {"response": "..."} or
{"error": "...", "details": "..."}. GET /healthz reports slot usage and
GET /metrics exposes Prometheus metrics when enabled.

Pool settings (pool.max_concurrent, pool.max_queue) are reloaded when the
config file changes. Other settings require a restart.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	warnWriteTimeout(a.Logger, cfg)

	opts := []server.Option{
		server.WithLogger(a.Logger),
		server.WithRetryAfter(cfg.Pool.QueueTimeout),
	}
	if h := a.MetricsHandler(); h != nil {
		opts = append(opts, server.WithMetricsHandler(cfg.Metrics.Path, h))
	}
	srv := server.New(cfg.Server, a.Bridge, opts...)

	// The server's base context is not tied to ctx: a signal drains
	// in-flight generations instead of killing their workers.
	if err := srv.Start(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "genbridge listening on %s\n", srv.BaseURL())

	if viper.ConfigFileUsed() != "" {
		watchConfig(viper.GetViper(), a, a.Logger)
	}

	<-ctx.Done()
	a.Logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String(), "in_flight", a.Bridge.InFlight())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// watchConfig reapplies pool settings whenever the config file changes.
// Invalid edits are logged and ignored.
func watchConfig(v *viper.Viper, a *app.App, logger *logging.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		reloadConfig(v, a, logger, e)
	})
	v.WatchConfig()
}

func reloadConfig(v *viper.Viper, a *app.App, logger *logging.Logger, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		logger.Warn("ignoring config change", "file", e.Name, "error", err)
		return
	}
	a.Apply(cfg)
	logger.Info("config reloaded",
		"file", e.Name,
		"max_concurrent", cfg.Pool.MaxConcurrent,
		"max_queue", cfg.Pool.MaxQueue,
	)
}

func warnWriteTimeout(logger *logging.Logger, cfg *config.Config) {
	wt := cfg.Server.WriteTimeout
	worst := cfg.MaxProviderTimeout() + cfg.Pool.QueueTimeout
	if wt > 0 && wt <= worst {
		logger.Warn("server.write_timeout does not cover queue wait plus the longest provider timeout",
			"write_timeout", wt.String(),
			"worst_case", worst.String(),
		)
	}
}
