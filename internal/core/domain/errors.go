package domain

import "errors"

var (
	ErrOutOfStock         = errors.New("out of stock")
	ErrUnknownDish        = errors.New("unknown dish")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotReady           = errors.New("order is not ready for pickup")
	ErrDishExists         = errors.New("dish already exists")
)
