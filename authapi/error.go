package authapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-success reply from the auth API.
type Error struct {
	Status  int
	Message string

	RequiresMFASetup      bool
	RequiresMFACompletion bool
	RequiresMFA           bool
	RequiresPasswordReset bool
	MFAMethod             string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth api: status %d", e.Status)
	}
	return fmt.Sprintf("auth api: status %d: %s", e.Status, e.Message)
}

// MFARequired reports whether the reply asks for any MFA step.
func (e *Error) MFARequired() bool {
	return e.RequiresMFASetup || e.RequiresMFACompletion || e.RequiresMFA
}

// IsUnauthorized reports whether err is a 401 from the auth API.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
