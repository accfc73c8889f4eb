// Package storage defines the contract between the persistence service and
// the places serialized entity documents live.
package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/rpattn/entitystore/internal/domain"
)

// ErrInvalidKey is wrapped by StorageError when a category or id cannot be
// used as a storage key
var ErrInvalidKey = errors.New("invalid storage key")

// Backend stores opaque document bytes addressed by (category, id)
type Backend interface {
	// Write atomically replaces the content stored under (category, id)
	Write(ctx context.Context, category, id string, content []byte) error
	// Read returns the content stored under (category, id), ok is false when absent
	Read(ctx context.Context, category, id string) ([]byte, bool, error)
	// Archive snapshots the current content into history. Absent content is a no-op.
	Archive(ctx context.Context, category, id string) error
	// Keys lists the ids of a category in ascending order
	Keys(ctx context.Context, category string) ([]string, error)
}

// HistoryReader is implemented by backends that retain archived snapshots.
// An empty id selects the whole category, an empty category selects everything.
type HistoryReader interface {
	History(ctx context.Context, category, id string) iter.Seq2[domain.HistoryEntry, error]
}

// StorageError reports a failed backend operation
type StorageError struct {
	Op       string
	Category string
	ID       string
	Err      error
}

func (e *StorageError) Error() string {
	switch {
	case e.ID != "":
		return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.Category, e.ID, e.Err)
	case e.Category != "":
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Category, e.Err)
	default:
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewError wraps err as a StorageError, returning nil for a nil err
func NewError(op, category, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Category: category, ID: id, Err: err}
}

// ValidateKey rejects categories and ids that would escape their namespace
// or name a hidden entry
func ValidateKey(op, category, id string) error {
	if err := validatePart("category", category); err != nil {
		return &StorageError{Op: op, Category: category, ID: id, Err: err}
	}
	if err := validatePart("id", id); err != nil {
		return &StorageError{Op: op, Category: category, ID: id, Err: err}
	}
	return nil
}

// ValidateCategory rejects a category that would escape its namespace
func ValidateCategory(op, category string) error {
	if err := validatePart("category", category); err != nil {
		return &StorageError{Op: op, Category: category, Err: err}
	}
	return nil
}

func validatePart(kind, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%w: empty %s", ErrInvalidKey, kind)
	case value == "." || value == "..":
		return fmt.Errorf("%w: %s %q is a dot segment", ErrInvalidKey, kind, value)
	case strings.ContainsAny(value, "/\\\x00"):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidKey, kind, value)
	case strings.HasPrefix(value, "."):
		return fmt.Errorf("%w: %s %q is hidden", ErrInvalidKey, kind, value)
	}
	return nil
}
