package gateway

import (
	"errors"
	"fmt"

	"github.com/aloksahay/fairbnb-sub000/merkle"
)

// ErrNotFound is returned when no payload with the requested root exists on
// the storage network.
var ErrNotFound = errors.New("not found")

type (
	// A ValidationError rejects an upload before it is staged or hashed.
	// Nothing touches the network when validation fails.
	ValidationError struct {
		Reason string
	}

	// A HashingError reports that a payload could not be content-addressed.
	// Hashing failures are never retried.
	HashingError struct {
		Err error
	}

	// An UploadError reports a deposit that failed after every attempt. It
	// carries the error from the final attempt.
	UploadError struct {
		Attempts int
		Err      error
	}

	// A DownloadError reports a retrieval that failed after every attempt.
	DownloadError struct {
		Attempts int
		Err      error
	}

	// An IntegrityError reports retrieved bytes whose root does not match
	// the requested root. It is terminal: a mismatch is corruption, not a
	// transient network failure.
	IntegrityError struct {
		Expected merkle.Root
		Actual   merkle.Root
	}
)

// Error implements error.
func (e *ValidationError) Error() string {
	return "upload rejected: " + e.Reason
}

// Error implements error.
func (e *HashingError) Error() string {
	return fmt.Sprintf("failed to hash payload: %v", e.Err)
}

// Unwrap returns the underlying hashing failure.
func (e *HashingError) Unwrap() error { return e.Err }

// Error implements error.
func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the error from the final attempt.
func (e *UploadError) Unwrap() error { return e.Err }

// Error implements error.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the error from the final attempt.
func (e *DownloadError) Unwrap() error { return e.Err }

// Error implements error.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("retrieved payload does not match root: expected %s, got %s", e.Expected, e.Actual)
}
