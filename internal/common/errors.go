// Package common holds the error vocabulary, logging helpers and retry loop
// shared by every finmail package.
package common

import (
	"errors"
	"fmt"
)

// Lookups.
var ErrNotFound = errors.New("not found")

// Mail source failures.
var (
	ErrMailboxAuth   = errors.New("mailbox authentication failed")
	ErrMailboxSearch = errors.New("mailbox search failed")
)

// ErrUnavailable is returned when an operation needs a component that was not
// configured. ErrPermissionDenied covers a component that refused the request.
var (
	ErrUnavailable      = errors.New("capability unavailable")
	ErrPermissionDenied = errors.New("permission denied")
)

// Settings.
var (
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError pairs an underlying failure with text fit for the terminal.
type UserError struct {
	Err         error
	UserMessage string
}

func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.UserMessage
	}
	return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
}

func (e *UserError) Unwrap() error { return e.Err }

// UserMessage returns the friendliest text available for err: the message of
// the outermost UserError in its chain, or err.Error() otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return err.Error()
}
