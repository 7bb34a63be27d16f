package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/obscuraswap/solver/internal/order"
	"github.com/obscuraswap/solver/internal/registry"
	"github.com/obscuraswap/solver/internal/router"
)

// statusFor maps the engine's sentinel errors onto HTTP responses so
// handlers can return wrapped domain errors and keep the mapping in one
// place. Unmapped errors fall through to a 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, registry.ErrNotRegistered):
		return http.StatusNotFound, "wallet not registered"
	case errors.Is(err, router.ErrNoRoute):
		return http.StatusNotFound, "no route for pair"
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusForbidden, "not authorized"
	case errors.Is(err, order.ErrDuplicateOrder):
		return http.StatusConflict, "order already exists"
	case errors.Is(err, order.ErrNotInExpectedState):
		return http.StatusConflict, "order not in expected state"
	case errors.Is(err, order.ErrAlreadyClaimed):
		return http.StatusConflict, "output already claimed"
	case errors.Is(err, order.ErrInvalidPayloadLength),
		errors.Is(err, order.ErrInvalidInputAmount),
		errors.Is(err, order.ErrOrderTypeNotAllowed),
		errors.Is(err, order.ErrUnknownVariant):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, router.ErrQuoteTimeout):
		return http.StatusGatewayTimeout, "quote timed out"
	}
	return 0, ""
}

// ErrorHandler returns the central HTTP error handler. Echo's own errors
// (route misses, 401 from KeyAuth) pass through with their code, engine
// sentinels resolve via statusFor, and everything else is a generic 500
// with details only in dev mode.
func ErrorHandler(devMode bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		if code, msg := statusFor(err); code != 0 {
			resp := ErrorResponse{Error: msg, Code: code}
			if devMode {
				resp.Details = err.Error()
			}
			_ = c.JSON(code, resp)
			return
		}

		resp := ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		}
		if devMode {
			resp.Details = err.Error()
		}
		_ = c.JSON(http.StatusInternalServerError, resp)
	}
}
