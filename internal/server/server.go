// Package server assembles the echo instance: global middleware, the
// operational endpoints and the /v1 API.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/handler"
	"github.com/iliyamo/slotswap/internal/metrics"
	"github.com/iliyamo/slotswap/internal/middleware"
	"github.com/iliyamo/slotswap/internal/repository"
	"github.com/iliyamo/slotswap/internal/router"
	"github.com/iliyamo/slotswap/internal/service"
)

// Deps are the long-lived resources the server is built from.  Redis and
// Notifier may be nil.
type Deps struct {
	DB       *sqlx.DB
	Redis    *redis.Client
	Notifier service.Notifier
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// New builds the HTTP handler tree.
func New(cfg config.Config, d Deps) *echo.Echo {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New(metrics.Namespace, nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.Metrics(m))
	e.Use(echomw.BodyLimit("1M"))

	store := repository.NewSQLStore(d.DB)
	slots := service.NewSlotService(store, m, log)
	swaps := service.NewSwapService(store, d.Notifier, m, log)

	router.RegisterRoutes(e, d.DB, m)
	router.RegisterAPI(e, cfg, router.API{
		Auth:  handler.NewAuthHandler(cfg, repository.NewUserRepo(d.DB), repository.NewTokenRepo(d.DB), log),
		Slots: handler.NewSlotHandler(slots),
		Swaps: handler.NewSwapHandler(swaps),
	}, d.Redis, log)
	return e
}

// Run serves e on addr until ctx is cancelled, then shuts down gracefully
// within cfg.ShutdownTimeout.
func Run(ctx context.Context, e *echo.Echo, addr string, cfg config.Config, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}
