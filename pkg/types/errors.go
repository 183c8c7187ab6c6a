package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidPointID    = errors.New("invalid point ID")
	ErrInvalidChunkIndex = errors.New("chunk index out of range")
	ErrInvalidRank       = errors.New("rank must be >= 1")
	ErrMissingPath       = errors.New("path is required")
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrEmptyVector       = errors.New("vector cannot be empty")
)
