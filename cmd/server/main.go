// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/cache"
	"github.com/jason-s-yu/codebreak/internal/config"
	"github.com/jason-s-yu/codebreak/internal/dispatcher"
	"github.com/jason-s-yu/codebreak/internal/handlers"
	"github.com/jason-s-yu/codebreak/internal/registry"
	"github.com/jason-s-yu/codebreak/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port     int
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "codebreak-server",
		Short: "Real-time multiplayer code-breaking game server",
		Long: `codebreak-server hosts game rooms over WebSocket.

Configuration comes from the environment (a .env file is loaded when present);
flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				level, err := logrus.ParseLevel(logLevel)
				if err != nil {
					return err
				}
				cfg.LogLevel = level
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Listen port (env: PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (env: LOG_LEVEL)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logger()

	issuer, err := auth.NewIssuer(cfg.SessionTokenTTL)
	if err != nil {
		return err
	}
	reg := registry.New(logger)

	opts := room.Options{
		RematchCountdown: cfg.RematchCountdown,
		Logger:           logger,
	}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		pub := cache.NewPublisher(rdb, cfg.Queue, logger)
		defer pub.Close()
		opts.Recorder = pub
		logger.WithField("queue", cfg.Queue).Info("publishing game actions to Redis")
	} else {
		logger.Info("REDIS_ADDR not set, game action history is disabled")
	}

	dir := room.NewDirectory(reg, issuer, opts)
	defer dir.Close()
	go dir.RunReaper(ctx, cfg.RoomIdleTTL, reapInterval(cfg.RoomIdleTTL))

	api := &handlers.Server{
		Directory:      dir,
		Dispatcher:     dispatcher.New(dir, reg, logger),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Shutdown does not wait for hijacked WebSocket connections
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	return nil
}

// reapInterval checks for idle rooms a few times per TTL, at most once a minute.
func reapInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Minute
	}
	interval := ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

