package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/database"
	"github.com/iliyamo/slotswap/internal/metrics"
	"github.com/iliyamo/slotswap/internal/server"
	"github.com/iliyamo/slotswap/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "8080", "HTTP port to listen on")
	serveCmd.Flags().Bool("migrate", false, "Apply the schema before serving")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	_ = v.BindPFlag("app_port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("serve_migrate", serveCmd.Flags().Lookup("migrate"))
	_ = v.BindPFlag("shutdown_timeout", serveCmd.Flags().Lookup("shutdown-timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting slotswap",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("db_driver", cfg.DB.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if v.GetBool("serve_migrate") {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("schema applied")
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.RabbitMQURL != "" {
		notifier = service.NewAMQPNotifier(cfg.RabbitMQURL)
	} else {
		log.Info("RABBITMQ_URL not set; swap events are not published")
	}

	m := metrics.New(metrics.Namespace, map[string]string{"version": version, "commit": commit})
	e := server.New(cfg, server.Deps{
		DB:       db,
		Redis:    rdb,
		Notifier: notifier,
		Metrics:  m,
		Log:      log,
	})
	return server.Run(ctx, e, ":"+cfg.Port, cfg, log)
}
