package memory

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("memory: not found")

	// ErrInvalidTick indicates a tick request failed structural validation
	// before any write happened.
	ErrInvalidTick = errors.New("memory: invalid tick request")
)
