package edit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPartialWrite matches a *PartialError.
var ErrPartialWrite = errors.New("partial write")

// PartialError reports a multi-write edit that failed after some writes
// had already been stored.
type PartialError struct {
	// Written lists the ids written before the failure, in order.
	Written []string
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial write (stored %s): %v", strings.Join(e.Written, ", "), e.Err)
}

func (e *PartialError) Unwrap() []error {
	return []error{ErrPartialWrite, e.Err}
}

// partial wraps err in a PartialError when anything was written.
func partial(written []string, err error) error {
	if len(written) == 0 {
		return err
	}
	return &PartialError{Written: written, Err: err}
}
