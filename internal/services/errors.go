package services

import "errors"

// UserError carries a message that is safe to return to the caller as the
// {error} result. Anything else is an internal failure.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userErr(msg string, err error) error {
	return &UserError{Message: msg, Err: err}
}

// AsUserError returns the user-facing message of err, if it has one.
func AsUserError(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Message, true
	}
	return "", false
}

var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrNotFound    = errors.New("preview not found")
	ErrNotReady    = errors.New("preview not completed")
	ErrUnknownStep = errors.New("unknown debug operation")
	ErrPollTimeout = errors.New("preview polling timed out")
)
