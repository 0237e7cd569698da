package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/middleware"
	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/service"
)

// SlotHandler serves the caller's own slots and the swappable listing.
type SlotHandler struct {
	Slots *service.SlotService
}

func NewSlotHandler(s *service.SlotService) *SlotHandler { return &SlotHandler{Slots: s} }

type createSlotReq struct {
	Title     string     `json:"title"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Status    string     `json:"status"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// CreateSlot handles POST /v1/slots.
func (h *SlotHandler) CreateSlot(c echo.Context) error {
	var req createSlotReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Title == "" || req.StartTime == nil || req.EndTime == nil {
		return badRequest(c, "title, start_time and end_time are required")
	}
	sl, err := h.Slots.CreateSlot(c.Request().Context(), middleware.UserID(c), service.NewSlot{
		Title:     req.Title,
		StartTime: *req.StartTime,
		EndTime:   *req.EndTime,
		Status:    model.SlotStatus(req.Status),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, sl)
}

// ListMySlots handles GET /v1/slots.
func (h *SlotHandler) ListMySlots(c echo.Context) error {
	slots, err := h.Slots.ListMySlots(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}

// UpdateStatus handles PATCH /v1/slots/:id/status.
func (h *SlotHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusReq
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return badRequest(c, "status is required")
	}
	sl, err := h.Slots.UpdateSlotStatus(c.Request().Context(), middleware.UserID(c), c.Param("id"), model.SlotStatus(req.Status))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sl)
}

// DeleteSlot handles DELETE /v1/slots/:id.
func (h *SlotHandler) DeleteSlot(c echo.Context) error {
	if err := h.Slots.DeleteSlot(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListSwappable handles GET /v1/swappable-slots: every Offered slot owned
// by someone else.
func (h *SlotHandler) ListSwappable(c echo.Context) error {
	slots, err := h.Slots.ListOfferedSlots(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}
