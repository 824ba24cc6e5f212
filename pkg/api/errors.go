package api

import "errors"

// Error taxonomy shared by all components. Component errors wrap one of these
// so callers can test either the specific or the general condition
var (
	ErrNotFound     = errors.New("not found")
	ErrCapacity     = errors.New("capacity exceeded")
	ErrTimeout      = errors.New("timed out")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
)
