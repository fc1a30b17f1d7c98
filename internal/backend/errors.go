package backend

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by Client unwraps to exactly one of
// these, or is a *BusinessRuleError.
var (
	ErrNetwork     = errors.New("backend: network error")
	ErrTimeout     = errors.New("backend: request timeout")
	ErrNotFound    = errors.New("backend: not found")
	ErrRateLimited = errors.New("backend: rate limited")
	ErrServer      = errors.New("backend: server error")
	ErrRequest     = errors.New("backend: request failed")
)

// User-readable messages for failures without a usable response body.
const (
	msgTimeout     = "Request timeout - please try again"
	msgNetwork     = "Network error - please check your connection"
	msgNotFound    = "Stock symbol not found"
	msgRateLimited = "Rate limit exceeded - please wait a moment"
	msgServer      = "Server error - please try again later"
)

// HTTPError is a transport or status failure at the API boundary.
type HTTPError struct {
	Status  int    // 0 when no response was received
	Message string // user-readable
	Kind    error  // one of the Err* sentinels
	Cause   error  // underlying transport error, if any
}

func (e *HTTPError) Error() string { return e.Message }

// Unwrap exposes both the kind and the transport cause to errors.Is/As.
func (e *HTTPError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// BusinessRuleError is a rejection reported by the backend itself (for
// example insufficient funds at execution time). Reason is the backend's
// message, verbatim.
type BusinessRuleError struct {
	Status int
	Reason string
}

func (e *BusinessRuleError) Error() string { return e.Reason }

// IsBusinessRule reports whether err is a backend-reported rejection.
func IsBusinessRule(err error) bool {
	var br *BusinessRuleError
	return errors.As(err, &br)
}

func statusError(status int, bodyErr string) error {
	switch {
	case status == 404:
		return &HTTPError{Status: status, Message: orDefault(bodyErr, msgNotFound), Kind: ErrNotFound}
	case status == 429:
		return &HTTPError{Status: status, Message: msgRateLimited, Kind: ErrRateLimited}
	case status >= 500:
		return &HTTPError{Status: status, Message: orDefault(bodyErr, msgServer), Kind: ErrServer}
	case bodyErr != "" && (status == 400 || status == 409 || status == 422):
		return &BusinessRuleError{Status: status, Reason: bodyErr}
	default:
		return &HTTPError{
			Status:  status,
			Message: orDefault(bodyErr, fmt.Sprintf("Request failed with status %d", status)),
			Kind:    ErrRequest,
		}
	}
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
