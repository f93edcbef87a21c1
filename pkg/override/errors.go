package override

import (
	"errors"
	"fmt"
)

// ErrUnsafeSetting is returned for a setting that cannot be written to the
// line-based settings file, e.g. a value spanning several lines.
var ErrUnsafeSetting = errors.New("setting cannot be written to the layer settings file")

// ActivationError reports the artifact an activation or deactivation step
// failed on. A failed Activate leaves the host as it was before the call.
type ActivationError struct {
	Op   string
	Path string
	Err  error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("%s override: %s: %v", e.Op, e.Path, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }
