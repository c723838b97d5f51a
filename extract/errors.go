package extract

import "errors"

var (
	// ErrCompleterRequired indicates that no completion service was provided.
	ErrCompleterRequired = errors.New("completer is required")

	// ErrCacheRequired indicates that no cache repository was provided.
	ErrCacheRequired = errors.New("cache repository is required")

	// ErrInvalidMaxAttempts indicates an invalid retry configuration.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
