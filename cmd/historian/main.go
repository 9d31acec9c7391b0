// cmd/historian/main.go drains the game action queue from Redis into PostgreSQL.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/codebreak/internal/cache"
	"github.com/jason-s-yu/codebreak/internal/config"
	"github.com/jason-s-yu/codebreak/internal/database"
	"github.com/jason-s-yu/codebreak/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:          "codebreak-historian",
		Short:        "Persist game action history from Redis into PostgreSQL",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Create the history tables if missing")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := cfg.Logger()
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if migrate {
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
	}

	svc := historian.New(rdb, database.NewActionStore(pool), historian.Options{
		Queue:      cfg.Queue,
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlushDelay,
		Inactivity: cfg.GameInactivity,
	}, logger)
	svc.Run(ctx)
	return nil
}
