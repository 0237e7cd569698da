package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/handler"
)

// RegisterSwaps registers the swap negotiation endpoints on an
// authenticated group.
func RegisterSwaps(g *echo.Group, h *handler.SwapHandler) {
	g.POST("/swap-requests", h.Propose)
	g.GET("/swap-requests/incoming", h.Incoming)
	g.GET("/swap-requests/outgoing", h.Outgoing)
	g.GET("/swap-requests/:id", h.Get)
	g.POST("/swap-requests/:id/response", h.Respond)
}
