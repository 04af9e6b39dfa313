// qbclient/errors.go
package qbclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/eGGnogSC/qbsync/internal/auth"
)

// ErrorKind classifies a failed vendor call
type ErrorKind int

const (
	// KindFault is a structured QuickBooks Fault response
	KindFault ErrorKind = iota
	// KindTransport covers network failures and unparseable responses
	KindTransport
	// KindAuth means no usable access token could be obtained
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindFault:
		return "fault"
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// staleObjectCode is the Fault code QuickBooks returns when a SyncToken is out of date
const staleObjectCode = "5010"

// ErrConcurrencyConflict matches a rejected update whose SyncToken was stale
var ErrConcurrencyConflict = errors.New("quickbooks: stale sync token")

// Error is returned by every failed call
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	Detail     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindFault && e.Code != "":
		return fmt.Sprintf("QuickBooks API error (%s): %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("QuickBooks %s error: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("QuickBooks %s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrConcurrencyConflict) match stale SyncToken faults
func (e *Error) Is(target error) bool {
	return target == ErrConcurrencyConflict && e.Kind == KindFault && e.Code == staleObjectCode
}

// ErrorCode returns the vendor code carried by err, if any
func ErrorCode(err error) string {
	var qbErr *Error
	if errors.As(err, &qbErr) {
		return qbErr.Code
	}
	return ""
}

// HTTPStatus maps a sync failure to the status an API handler should return
func HTTPStatus(err error) int {
	var qbErr *Error
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.As(err, &qbErr):
		if qbErr.Kind == KindAuth {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
