package session

import (
	"errors"
	"fmt"

	"github.com/dobrovols/vkconfig/internal/config"
	"github.com/dobrovols/vkconfig/pkg/configuration"
	"github.com/dobrovols/vkconfig/pkg/configurator"
	"github.com/dobrovols/vkconfig/pkg/override"
)

// ExitError is a failure with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

// Exit codes of the CLI contract. A launched application's own exit code is
// passed through unchanged.
const (
	ExitValidation  = 70
	ExitActivation  = 71
	ExitPersistence = 72
)

// NewExitError constructs an ExitError wrapper.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func (e *ExitError) String() string {
	return fmt.Sprintf("code=%d err=%v", e.Code, e.Err)
}

// Classify attaches an exit code to err. Errors that already carry one and
// unknown errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	var activationErr *override.ActivationError
	var persistErr *configuration.PersistenceError
	var loadErr *configuration.LoadError
	switch {
	case errors.As(err, &activationErr):
		return NewExitError(ExitActivation, err)
	case errors.As(err, &persistErr), errors.As(err, &loadErr):
		return NewExitError(ExitPersistence, err)
	case errors.Is(err, configuration.ErrNotFound),
		errors.Is(err, configuration.ErrExists),
		errors.Is(err, configuration.ErrInvalidName),
		errors.Is(err, configuration.ErrInvalidDescriptor),
		errors.Is(err, configurator.ErrNestedPush),
		errors.Is(err, configurator.ErrNothingPushed),
		errors.Is(err, configurator.ErrApplicationExists),
		errors.Is(err, configurator.ErrApplicationNotFound),
		errors.Is(err, configurator.ErrExecutableRequired),
		errors.Is(err, config.ErrInvalidApplicationList),
		errors.Is(err, config.ErrPreferencesLocation):
		return NewExitError(ExitValidation, err)
	}
	return err
}
