// Command mastermindcached runs the mastermind cache engine as a
// standalone daemon: load config, build a Cache, start its refresh loop,
// serve Prometheus metrics, block until a signal arrives.
//
// Grounded on wibus-wee-mcpv/cmd/mcpd/main.go: a cobra root command with a
// persistent logger, a "serve" subcommand doing the real work, and a
// signal-aware context cancelled on SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mastermindcache"
	"mastermindcache/internal/config"
)

type serveOptions struct {
	configPath string
	logger     *zap.Logger
}

func main() {
	opts := serveOptions{
		configPath: "mastermindcached.yaml",
		logger:     zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "mastermindcached",
		Short: "Client-side cache daemon for mastermind storage topology",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			opts.logger = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to the daemon's YAML config file")
	root.AddCommand(newServeCmd(&opts))

	if err := root.Execute(); err != nil {
		opts.logger.Fatal("command failed", zap.Error(err))
	}
}

func newServeCmd(opts *serveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cache engine and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	registerer := prometheus.NewRegistry()
	cache, err := mastermind.New(cfg.Options, opts.logger, registerer)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			opts.logger.Warn("closing cache store failed", zap.Error(err))
		}
	}()

	if err := cache.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := cache.Stop(); err != nil {
			opts.logger.Warn("stopping refresh worker failed", zap.Error(err))
		}
	}()

	if cfg.MetricsListenAddress != "" {
		go serveMetrics(ctx, cfg.MetricsListenAddress, registerer, opts.logger)
	}

	opts.logger.Info("mastermindcached started", zap.String("remotes", cfg.Options.Remotes))
	<-ctx.Done()
	opts.logger.Info("mastermindcached shutting down")
	return nil
}

func serveMetrics(ctx context.Context, addr string, registerer *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
