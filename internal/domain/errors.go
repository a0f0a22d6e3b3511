package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidInput    = errors.New("invalid input")
	ErrStaleJob        = errors.New("job changed concurrently")
	ErrProviderFailure = errors.New("provider failure")
)
