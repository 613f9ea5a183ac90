// Package apperr defines the error taxonomy shared by every engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a failed owner, deck, or card lookup.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks a structurally invalid bundle.
	ErrValidation = errors.New("validation failed")
	// ErrDependency marks a required sibling file missing on disk.
	ErrDependency = errors.New("dependency missing")
	// ErrAssetReferenced marks an asset delete rejected because other
	// cards still reference it. Soft: callers log and continue.
	ErrAssetReferenced = errors.New("asset still referenced")
)

// RemoteError is any non-2xx reply from the remote API.
type RemoteError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("remote: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}
