package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	rendezvous "github.com/rendezvous-io/rendezvous"
	httpAdapter "github.com/rendezvous-io/rendezvous/internal/adapters/http"
	"github.com/rendezvous-io/rendezvous/internal/config"
	"github.com/rendezvous-io/rendezvous/internal/logging"
	"github.com/rendezvous-io/rendezvous/pkg/adapters/authn"
	redisAdapter "github.com/rendezvous-io/rendezvous/pkg/adapters/redis"
	"github.com/rendezvous-io/rendezvous/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the registry API server",
	Long:  `Starts the registry in server mode, exposing the session and connection API over HTTP and Prometheus metrics on a separate listener.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		logger := logging.New(slog.LevelInfo)
		if cfg.LogJSON {
			logger = logging.NewJSON(slog.LevelInfo)
		}

		client := redisAdapter.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
		)
		defer client.Close()

		promReg := prometheus.NewRegistry()
		coord := rendezvous.New(client,
			rendezvous.WithLogger(logger),
			rendezvous.WithEventSink(observability.Fanout(
				observability.NewLogSink(logger),
				observability.NewMetrics(promReg),
			)),
			rendezvous.WithConnectionTTL(cfg.ConnectionTTL.Std()),
			rendezvous.WithSessionTTL(cfg.SessionTTL.Std()),
		)

		resolver := authn.NewJWTResolver([]byte(cfg.Auth.Secret))
		handler := httpAdapter.NewHandler(coord, resolver, httpAdapter.WithLogger(logger))

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: handler,
		}
		metricsSrv := &http.Server{
			Addr:    cfg.MetricsListen,
			Handler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		}

		// Channel to listen for errors coming from the listeners.
		serverErrors := make(chan error, 2)

		go func() {
			logger.Info("starting rendezvous server", "addr", srv.Addr, "redis", cfg.Redis.Addr)
			serverErrors <- srv.ListenAndServe()
		}()
		go func() {
			logger.Info("starting metrics server", "addr", metricsSrv.Addr)
			serverErrors <- metricsSrv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			logger.Error("server error", "err", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("error killing server", "err", err)
				}
			}
			_ = metricsSrv.Shutdown(ctx)
			logger.Info("rendezvous server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
