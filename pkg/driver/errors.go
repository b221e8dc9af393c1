package driver

import "errors"

// Failure codes carried on chain_failed and task_error events.
const (
	CodeReasoningFailed       = "reasoning_failed"
	CodeMaxIterationsExceeded = "max_iterations_exceeded"
	CodeCancelled             = "cancelled"
)

// Error is a terminal execution failure with a machine-readable code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// CodeOf extracts the failure code, defaulting to reasoning_failed for
// errors raised outside the loop.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeReasoningFailed
}

// IsMaxIterations reports whether the execution ran out of iterations.
func IsMaxIterations(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == CodeMaxIterationsExceeded
}
