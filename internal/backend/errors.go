package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/iyunix/go-designdesk/internal/middleware"
)

// Kind classifies a backend failure for display and remediation.
type Kind string

const (
	KindNotConfigured      Kind = "NOT_CONFIGURED"
	KindNetworkUnavailable Kind = "NETWORK_UNAVAILABLE"
	KindAuthRequired       Kind = "AUTH_REQUIRED"
	KindOwnershipViolation Kind = "OWNERSHIP_VIOLATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindUnknown            Kind = "UNKNOWN"
)

// Error is the single structured error produced at the backend boundary.
type Error struct {
	Kind      Kind
	Operation string
	Status    int    // HTTP status, 0 when no response was received
	Code      string // backend error code, if any
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Operation != "" {
		return fmt.Sprintf("%s: %s: %s", e.Operation, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors of the same kind, so errors.Is(err, ErrNotConfigured) works
// for any NotConfigured error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Operation == "" && t.Status == 0 && t.Kind == e.Kind
}

// ErrNotConfigured is returned by every operation of an unconfigured client.
var ErrNotConfigured = &Error{Kind: KindNotConfigured, Message: "backend URL or API key is not set"}

// KindOf returns the kind carried by err, KindUnknown for foreign errors and
// the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

func notConfigured(op string) *Error {
	return &Error{Kind: KindNotConfigured, Operation: op, Message: ErrNotConfigured.Message}
}

// transportError classifies a failure that happened before any response arrived.
func transportError(op string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUnknown, Operation: op, Message: "request cancelled", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
		return &Error{Kind: KindNetworkUnavailable, Operation: op, Message: "backend unreachable", Cause: err}
	}
	return &Error{Kind: KindNetworkUnavailable, Operation: op, Message: err.Error(), Cause: err}
}

// responseError builds an Error from a non-2xx response body.
func responseError(op string, status int, body []byte) *Error {
	var eb middleware.ErrorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{
		Kind:      classify(status, eb.Code),
		Operation: op,
		Status:    status,
		Code:      eb.Code,
		Message:   msg,
	}
}

func classify(status int, code string) Kind {
	switch code {
	case middleware.CodeOwnershipViolation, middleware.CodeForbidden:
		return KindOwnershipViolation
	case middleware.CodeAuthRequired:
		return KindAuthRequired
	case middleware.CodeNotFound:
		return KindNotFound
	}
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthRequired
	case status == http.StatusForbidden:
		return KindOwnershipViolation
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return KindNetworkUnavailable
	default:
		return KindUnknown
	}
}
