package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/service"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindNone:
		return http.StatusOK
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindInvalidState:
		return http.StatusBadRequest
	case service.KindSlotNotOfferable, service.KindAlreadyResolved, service.KindTransactionConflict:
		return http.StatusConflict
	case service.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error", "kind"} with the matching status.  Internal
// errors are logged by the service and reported without detail.
func fail(c echo.Context, err error) error {
	kind := service.KindOf(err)
	msg := err.Error()
	if kind == service.KindInternal {
		msg = "internal server error"
	}
	body := echo.Map{"error": msg, "kind": kind.String()}
	if kind.Retryable() {
		body["retryable"] = true
	}
	return c.JSON(statusFor(kind), body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "kind": "bad_request"})
}
