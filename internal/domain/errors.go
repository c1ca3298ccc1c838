package domain

import "errors"

// Expected declines and faults share one taxonomy so the transport edge can
// map them without string matching. Wrap with %w to add context.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrState               = errors.New("invalid state")
	ErrFxUnavailable       = errors.New("fx rate unavailable")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrSecurity            = errors.New("security error")

	// Server-side faults. Never user errors.
	ErrFeeScheduleMissing = errors.New("fee schedule row missing")

	ErrPinAlreadySet = errors.New("pin already set")
	ErrPinNotSet     = errors.New("pin not set")
	ErrIncorrectPin  = errors.New("incorrect pin")
)
