package types

import "errors"

// Domain specific errors shared across the sync layer.
var (
	ErrNotFound     = errors.New("requested item not found")
	ErrBadRequest   = errors.New("bad request")
	ErrEmptyCityID  = errors.New("city id must not be empty")
	ErrBadCategory  = errors.New("category name must not contain the ';' delimiter")
	ErrBadRating    = errors.New("rating must be between 0 and 5")
	ErrRemoteFailed = errors.New("remote store request failed")
)
