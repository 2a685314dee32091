package render

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrDuplicateMount is returned when two targets of a batch share a mount.
	ErrDuplicateMount = errors.New("duplicate mount target")
	// ErrEmptyMount is returned for a target without a mount id.
	ErrEmptyMount = errors.New("empty mount target")
)

// RenderError is the failure of one target. It never aborts a batch.
type RenderError struct {
	Mount string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Mount, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the underlying failure.
func (e *RenderError) Cause() error { return e.Err }

func asRenderError(mount string, err error) *RenderError {
	var re *RenderError
	if errors.As(err, &re) && re.Mount == mount {
		return re
	}
	return &RenderError{Mount: mount, Err: err}
}
