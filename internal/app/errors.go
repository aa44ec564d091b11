package app

import "errors"

var (
	// ErrDownloadNotFound is returned for an unknown download ID
	ErrDownloadNotFound = errors.New("download not found")

	// ErrInvalidState is returned when an operation does not apply to the
	// download's current status
	ErrInvalidState = errors.New("invalid download state")

	// ErrInvalidRequest is returned for a request that fails validation
	ErrInvalidRequest = errors.New("invalid request")
)
