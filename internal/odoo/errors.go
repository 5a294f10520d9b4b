package odoo

import (
	"errors"
	"fmt"
)

// TransportError is an HTTP-level failure reaching the ERP.
type TransportError struct {
	Endpoint   string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("odoo transport %s: unexpected status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("odoo transport %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthenticationError means the ERP rejected the credentials handshake.
type AuthenticationError struct {
	Database string
	Username string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("odoo authentication rejected for %s on %s", e.Username, e.Database)
}

func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}
