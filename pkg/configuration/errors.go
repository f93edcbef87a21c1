package configuration

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDescriptor wraps descriptor schema and decoding failures.
	ErrInvalidDescriptor = errors.New("invalid configuration descriptor")
	// ErrInvalidName is returned for names that cannot be stored as a file.
	ErrInvalidName = errors.New("invalid configuration name")
	// ErrNotFound is returned by operations that need an existing configuration.
	ErrNotFound = errors.New("configuration not found")
	// ErrExists is returned when a rename target is taken.
	ErrExists = errors.New("configuration already exists")
)

// LoadError reports a descriptor that could not be loaded. The configuration
// is left out of the catalog.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load configuration %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write. The previous file content is
// untouched.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
