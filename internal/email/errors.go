package email

import (
	"errors"
	"fmt"
)

// ErrVanished is returned when a UID no longer resolves to a message
var ErrVanished = errors.New("message no longer exists")

// AuthError indicates the server rejected the mailbox credentials.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError indicates a single message could not be retrieved.
type FetchError struct {
	UID uint32
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch message %d: %v", e.UID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError describes a header or body that could only be decoded partially.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsFetchError reports whether err (or any error in its chain) is a FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}
