package estimation

import (
	"errors"
	"fmt"
)

// CodeEstimationFailed is the single error kind the estimation service's
// failures are mapped to.
const CodeEstimationFailed = "AI_ESTIMATION_FAILED"

var (
	// ErrEstimationFailed matches every *Error via errors.Is.
	ErrEstimationFailed = errors.New("nutrition estimation failed")

	// ErrUnusableInput means the service understood the request but could not
	// interpret the input (e.g. an image with no food in it). It is not a
	// failure: the caller should discard the pending entry.
	ErrUnusableInput = errors.New("estimation input could not be interpreted")
)

// Error is a failed call to the estimation service.
type Error struct {
	Code       string
	StatusCode int
	Message    string
	err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Code, e.StatusCode, e.Message)
	case e.err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Is(target error) bool {
	return target == ErrEstimationFailed
}

func newError(statusCode int, message string, cause error) error {
	return &Error{
		Code:       CodeEstimationFailed,
		StatusCode: statusCode,
		Message:    message,
		err:        cause,
	}
}
