package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/handler"
	"github.com/iliyamo/slotswap/internal/middleware"
)

// API groups the handlers served under /v1.
type API struct {
	Auth  *handler.AuthHandler
	Slots *handler.SlotHandler
	Swaps *handler.SwapHandler
}

// RegisterAPI mounts the authenticated /v1 group.  Rate limiting runs after
// authentication so buckets can be keyed by user.  rdb may be nil, which
// disables both rate limiting and caching.
func RegisterAPI(e *echo.Echo, cfg config.Config, api API, rdb *redis.Client, log *zap.Logger) {
	RegisterAuth(e, api.Auth, cfg.JWTSecret)

	g := e.Group("/v1",
		middleware.JWTAuth(cfg.JWTSecret),
		middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
	)
	RegisterSlots(g, api.Slots, middleware.NewRedisCache(cfg.Cache, rdb))
	RegisterSwaps(g, api.Swaps)
}
