package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/handler"
)

// RegisterSlots registers the slot endpoints on a group that already
// carries JWT authentication.  The swappable listing is wrapped in the
// response cache; cache keys include the caller.
func RegisterSlots(g *echo.Group, h *handler.SlotHandler, cache echo.MiddlewareFunc) {
	g.POST("/slots", h.CreateSlot)
	g.GET("/slots", h.ListMySlots)
	g.PATCH("/slots/:id/status", h.UpdateStatus)
	g.DELETE("/slots/:id", h.DeleteSlot)

	if cache != nil {
		g.GET("/swappable-slots", h.ListSwappable, cache)
	} else {
		g.GET("/swappable-slots", h.ListSwappable)
	}
}
