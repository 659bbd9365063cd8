package service

import "errors"

// Error kinds surfaced to transports. Services wrap them with detail via
// fmt.Errorf("%w: ..."), so callers test with errors.Is.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)
