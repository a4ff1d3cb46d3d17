package utils

import (
	"errors"
	"fmt"
)

// Error codes, grouped by the step that failed.
const (
	CodeValidation = 400
	CodeAuth       = 401
	CodeNotFound   = 404
	CodeUpstream   = 502
	CodeInternal   = 500
)

type CustomError struct {
	Code    int
	Message string
	Err     error
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Code: %d, Message: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

func (e *CustomError) Unwrap() error { return e.Err }

func New(code int, message string) error {
	return &CustomError{
		Code:    code,
		Message: message,
	}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(code int, message string, err error) error {
	if err == nil {
		return nil
	}
	return &CustomError{Code: code, Message: message, Err: err}
}

// UserMessage renders err for a person: the message and cause of a
// CustomError without the code prefix, otherwise err.Error().
func UserMessage(err error) string {
	var ce *CustomError
	if !errors.As(err, &ce) {
		return err.Error()
	}
	if ce.Err != nil {
		return ce.Message + ": " + ce.Err.Error()
	}
	return ce.Message
}
