package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/core/service"
)

// classify maps a service error to an HTTP status and a client-safe message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, service.ErrAdminSession):
		return http.StatusForbidden, "admins cannot place orders"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusGone, "session closed"
	case errors.Is(err, domain.ErrUnknownDish):
		return http.StatusNotFound, "unknown dish"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, domain.ErrDishExists):
		return http.StatusConflict, "dish already exists"
	case errors.Is(err, domain.ErrOutOfStock):
		return http.StatusConflict, "out of stock"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusConflict, "order is not ready"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}
