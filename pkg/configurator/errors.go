package configurator

import (
	"errors"
	"fmt"
)

var (
	// ErrNestedPush is matched by the error of a second PushConfiguration.
	ErrNestedPush = errors.New("a configuration is already pushed")
	// ErrNothingPushed is returned by PopConfiguration without a prior push.
	ErrNothingPushed = errors.New("no configuration pushed")
	// ErrApplicationExists is returned when adding an executable twice.
	ErrApplicationExists = errors.New("application already listed")
	// ErrApplicationNotFound is returned for executables missing from the list.
	ErrApplicationNotFound = errors.New("application not listed")
	// ErrExecutableRequired is returned for applications without an executable.
	ErrExecutableRequired = errors.New("application executable is required")
)

// NestedPushError reports a push while another configuration is pushed. The
// pushed configuration stays active.
type NestedPushError struct {
	Pushed string
}

func (e *NestedPushError) Error() string {
	return fmt.Sprintf("push configuration: %q is already pushed", e.Pushed)
}

func (e *NestedPushError) Is(target error) bool { return target == ErrNestedPush }
