package repository

import "errors"

var (
	// ErrRecordNotFound indicates the capture record was not found
	ErrRecordNotFound = errors.New("capture record not found")

	// ErrInvalidRecord indicates a record is missing required fields
	ErrInvalidRecord = errors.New("invalid capture record")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
