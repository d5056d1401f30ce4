package alertstore

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed failure from the Alert Store API. Conflict responses
// carry the current owner so the caller can surface who holds the claim
// and offer an explicit force-claim instead of silently reassigning.
type Error struct {
	StatusCode   int    `json:"-"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	CurrentOwner string `json:"current_owner,omitempty"`
}

func (e *Error) Error() string {
	if e.CurrentOwner != "" {
		return fmt.Sprintf("alertstore: %s: %s (current owner %s)", e.Code, e.Message, e.CurrentOwner)
	}
	return fmt.Sprintf("alertstore: %s: %s", e.Code, e.Message)
}

// IsConflict reports whether err is a claim-conflict response.
func IsConflict(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.StatusCode == http.StatusConflict
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err is a missing-alert response.
func IsNotFound(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// IsValidation reports whether err is a rejected-payload response.
func IsValidation(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnprocessableEntity
}
