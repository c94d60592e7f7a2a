package errors

import (
	stderrors "errors"
)

// NonRetryableError marks a failure that must complete its queue item instead of
// scheduling another attempt.
type NonRetryableError struct {
	cause error
}

// NonRetryable wraps err so the queue scheduler drops the item after logging.
// A nil err returns nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	if IsNonRetryable(err) {
		return err
	}
	return &NonRetryableError{cause: err}
}

func (e *NonRetryableError) Error() string {
	return "non-retryable: " + e.cause.Error()
}

func (e *NonRetryableError) Unwrap() error { return e.cause }

// IsNonRetryable reports whether err or anything it wraps is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var nr *NonRetryableError
	return stderrors.As(err, &nr)
}

// NonRetryableErrors collects every non-retryable error in errs, unwrapping joins.
func NonRetryableErrors(errs ...error) []error {
	var out []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			out = append(out, NonRetryableErrors(joined.Unwrap()...)...)
			continue
		}
		if IsNonRetryable(err) {
			out = append(out, err)
		}
	}
	return out
}
