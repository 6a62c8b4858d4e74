package artifact

import (
	"errors"
	"fmt"
)

// ErrNotFound means the CI run exists but has no artifact with the configured
// logical name.
var ErrNotFound = errors.New("artifact not found")

// ErrCorrupt marks an extraction failure in either archive layer. Always
// fatal to the deployment.
var ErrCorrupt = errors.New("corrupt artifact")

// FetchError wraps a remote API or network failure, keeping the provider's
// message attached. There is no silent fallback for these.
type FetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote fetch failed during %s (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote fetch failed during %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
