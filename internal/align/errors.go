package align

import (
	"errors"
	"fmt"
)

var (
	ErrAlignmentFailed  = errors.New("alignment failed")
	ErrAlignmentTimeout = errors.New("alignment timed out")
	ErrNoAlignableText  = errors.New("no alignable text")
)

// AlignmentError marks a failure in the alignment path, as opposed to a
// pagination or validation error. Stored turns are never modified when one
// is returned.
type AlignmentError struct {
	Op    string // "stage", "submit", "poll", "fetch"
	JobID string
	Err   error
}

func (e *AlignmentError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("alignment %s (job %s): %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("alignment %s: %v", e.Op, e.Err)
}

func (e *AlignmentError) Unwrap() error { return e.Err }
