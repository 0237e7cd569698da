package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/middleware"
	"github.com/iliyamo/slotswap/internal/service"
)

// SwapHandler exposes the swap negotiation engine.
type SwapHandler struct {
	Swaps *service.SwapService
}

func NewSwapHandler(s *service.SwapService) *SwapHandler { return &SwapHandler{Swaps: s} }

type proposeReq struct {
	MySlotID    string `json:"my_slot_id"`
	TheirSlotID string `json:"their_slot_id"`
}

type respondReq struct {
	Accept *bool `json:"accept"`
}

// Propose handles POST /v1/swap-requests.
func (h *SwapHandler) Propose(c echo.Context) error {
	var req proposeReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	mine, theirs := strings.TrimSpace(req.MySlotID), strings.TrimSpace(req.TheirSlotID)
	if mine == "" || theirs == "" {
		return badRequest(c, "my_slot_id and their_slot_id are required")
	}
	sr, err := h.Swaps.ProposeSwap(c.Request().Context(), middleware.UserID(c), mine, theirs)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, sr)
}

// Respond handles POST /v1/swap-requests/:id/response.
func (h *SwapHandler) Respond(c echo.Context) error {
	var req respondReq
	if err := c.Bind(&req); err != nil || req.Accept == nil {
		return badRequest(c, "accept must be a boolean")
	}
	sr, err := h.Swaps.RespondToSwap(c.Request().Context(), middleware.UserID(c), c.Param("id"), *req.Accept)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sr)
}

// Get handles GET /v1/swap-requests/:id.
func (h *SwapHandler) Get(c echo.Context) error {
	sr, err := h.Swaps.GetSwapRequest(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sr)
}

// Incoming handles GET /v1/swap-requests/incoming.
func (h *SwapHandler) Incoming(c echo.Context) error {
	reqs, err := h.Swaps.ListIncoming(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": reqs})
}

// Outgoing handles GET /v1/swap-requests/outgoing.
func (h *SwapHandler) Outgoing(c echo.Context) error {
	reqs, err := h.Swaps.ListOutgoing(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": reqs})
}
