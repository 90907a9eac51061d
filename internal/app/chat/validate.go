package chat

import (
	"strings"
	"unicode/utf8"

	"stompchat/internal/pkg/errs"
)

// MaxContentBytes is the maximum allowed size (in bytes) for text message content.
const MaxContentBytes = 5000

// Credentials identify the user a Session connects as.
type Credentials struct {
	// Handle is the unique user handle.
	Handle string

	// FullName is the display name announced with presence.
	FullName string

	// Token is the bearer access token. It may be empty when the broker does not require one.
	Token string
}

// Validate checks the minimal shape required before any network call.
func (c Credentials) Validate() *errs.CustomError {
	if strings.TrimSpace(c.Handle) == "" {
		return errs.NewError(errs.ErrInvalidHandle)
	}
	if strings.TrimSpace(c.FullName) == "" {
		return errs.NewError(errs.ErrInvalidFullName)
	}
	return nil
}

// ValidateContent checks outgoing message content.
func ValidateContent(content string) *errs.CustomError {
	if strings.TrimSpace(content) == "" {
		return errs.NewError(errs.ErrEmptyMessage)
	}

	if len(content) > MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong, MaxContentBytes)
	}

	if !utf8.ValidString(content) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}
