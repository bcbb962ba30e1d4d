package types

import (
	"errors"
	"fmt"
)

// TransientNetworkError marks a registry or notification failure that may
// succeed on retry.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// DataError marks a package whose descriptors are missing or unusable.
type DataError struct {
	Slug   string
	Reason SkipReason
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("package %s: %s: %v", e.Slug, e.Reason, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// PartialWriteError is returned when a package's manifest set could not be
// patched as a whole. Files are left as they were before the attempt.
type PartialWriteError struct {
	Slug string
	Err  error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("package %s: manifest patch aborted: %v", e.Slug, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// FatalRepositoryError aborts a run: the working copy could not be prepared
// or the accumulated commits could not be pushed.
type FatalRepositoryError struct {
	Op  string
	Err error
}

func (e *FatalRepositoryError) Error() string {
	return fmt.Sprintf("repository %s failed: %v", e.Op, e.Err)
}

func (e *FatalRepositoryError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientNetworkError.
func IsTransient(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}

// IsFatal reports whether err carries a FatalRepositoryError.
func IsFatal(err error) bool {
	var f *FatalRepositoryError
	return errors.As(err, &f)
}
