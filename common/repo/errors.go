package repo

import "errors"

var (
	// ErrRecordNotFound means the host answered and the record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrHostUnreachable means the repository host could not be reached or failed server-side
	ErrHostUnreachable = errors.New("repository host unreachable")

	// ErrInvalidResponse means the host answered with a payload that is not a record
	ErrInvalidResponse = errors.New("invalid response from repository host")
)
