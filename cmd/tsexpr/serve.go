package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	badgerstore "github.com/hydrosight/tsexpr/internal/adapters/badger"
	httpAdapter "github.com/hydrosight/tsexpr/internal/adapters/http"
	redisstore "github.com/hydrosight/tsexpr/internal/adapters/redis"
	"github.com/hydrosight/tsexpr/internal/config"
	"github.com/hydrosight/tsexpr/internal/logging"
	"github.com/hydrosight/tsexpr/pkg/eval"
	"github.com/hydrosight/tsexpr/pkg/observability"
	"github.com/hydrosight/tsexpr/pkg/ports"
	"github.com/hydrosight/tsexpr/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the time-series expression server",
	Long: `Starts the binary-protocol server and the HTTP admin endpoint.
Unresolved references are resolved from the configured series store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		logger := logging.New(logLevel(cfg.Log.Level))

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		resolver := buildResolver(cfg, store, logger)

		reg := prometheus.NewRegistry()
		metrics := observability.NewMetrics(reg)

		srv := server.New(cfg.Server.ListenAddr,
			server.WithMaxConnections(cfg.Server.MaxConnections),
			server.WithResolver(resolver),
			server.WithLogger(logger),
			server.WithMetrics(metrics),
		)
		if err := srv.Start(); err != nil {
			return err
		}

		admin := &http.Server{
			Addr:    cfg.Admin.ListenAddr,
			Handler: httpAdapter.NewHandler(srv, reg),
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			logger.Info("admin endpoint started", "addr", cfg.Admin.ListenAddr)
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			select {
			case sig := <-shutdown:
				logger.Info("shutting down", "signal", sig.String())
			case <-ctx.Done():
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.StopTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warn("server stop", "err", err)
			}
			return admin.Shutdown(stopCtx)
		})
		return g.Wait()
	},
}

func openStore(cfg *config.Config) (ports.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return redisstore.New(
			cfg.Store.Redis.Addr,
			cfg.Store.Redis.Password,
			cfg.Store.Redis.DB,
			redisstore.WithPrefix(cfg.Store.Redis.Prefix),
		), nil
	case "badger":
		return badgerstore.Open(cfg.Store.Badger.Path)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildResolver(cfg *config.Config, store ports.Store, logger *slog.Logger) ports.Resolver {
	if cfg.Server.TestFill {
		logger.Warn("TEST-FILL RESOLVER ENABLED: unresolved references get synthetic data; never use in production")
		return eval.TestFillResolver()
	}
	if store == nil {
		// No resolver at all: requests carrying unresolved references fail.
		return nil
	}
	return eval.NewStoreResolver(store)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
