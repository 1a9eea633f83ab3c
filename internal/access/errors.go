package access

import "errors"

var (
	// ErrMissingUserID is returned by user operations that need an id.
	ErrMissingUserID = errors.New("user id is required")
	// ErrPasswordRequired is returned when a password change lacks either
	// password.
	ErrPasswordRequired = errors.New("old and new password are required")
	// ErrMalformedResponse is returned when a successful reply lacks the
	// expected fields.
	ErrMalformedResponse = errors.New("malformed response")
)
