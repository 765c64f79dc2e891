package schoolapi

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCredentials signals a login rejected by the backend;
	// user-correctable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAuthenticationFailed signals a failed refresh after a 401; terminal
	// for the current request chain.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// NetworkError is a transport-level failure: the backend produced no response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// RequestError is any other non-success HTTP outcome. Detail carries the
// server-provided message when available, else the status text.
type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Detail)
}

func IsNetworkError(err error) bool {
	_, ok := errors.Cause(err).(*NetworkError)
	return ok
}

func IsRequestError(err error) bool {
	_, ok := errors.Cause(err).(*RequestError)
	return ok
}
