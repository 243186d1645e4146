package provision

import (
	"gitlab.com/tozd/go/errors"
)

// Failure kinds for a provisioning run. Every failure wraps exactly one of
// these so main can map it to an exit code.
var (
	// ErrConfiguration covers bad or unknown command-line input.
	ErrConfiguration = errors.Base("configuration error")

	// ErrDependency means a required external binary is not on PATH.
	ErrDependency = errors.Base("dependency error")

	// ErrConflict means an instance with the requested name already exists.
	ErrConflict = errors.Base("conflict error")

	// ErrTemplate means the static cloud-init template could not be located.
	ErrTemplate = errors.Base("template error")

	// ErrResolution means the instance reported no address after provisioning.
	ErrResolution = errors.Base("resolution error")
)

// ExitCode maps a run error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfiguration):
		return 2
	case errors.Is(err, ErrDependency):
		return 3
	case errors.Is(err, ErrConflict):
		return 4
	case errors.Is(err, ErrTemplate):
		return 5
	case errors.Is(err, ErrResolution):
		return 6
	default:
		return 1
	}
}
