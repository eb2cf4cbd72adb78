package chatsync

import (
	"errors"

	"github.com/iyunix/go-designdesk/internal/backend"
)

// ErrorKind is the failure classification a view renders from.
type ErrorKind = backend.Kind

const (
	NotConfigured      = backend.KindNotConfigured
	NetworkUnavailable = backend.KindNetworkUnavailable
	AuthRequired       = backend.KindAuthRequired
	OwnershipViolation = backend.KindOwnershipViolation
	NotFound           = backend.KindNotFound
	Unknown            = backend.KindUnknown
)

var (
	// ErrSuperseded is returned by a load or open that a newer one replaced.
	// The store was left untouched.
	ErrSuperseded = errors.New("chatsync: superseded by a newer load")
	// ErrNoConversation is returned by Send when no conversation is open.
	ErrNoConversation = errors.New("chatsync: no conversation open")
)

// KindOf classifies err. Nil yields the empty kind.
func KindOf(err error) ErrorKind {
	return backend.KindOf(err)
}

// Describe returns the user-facing text for a kind.
func Describe(kind ErrorKind) string {
	switch kind {
	case "":
		return ""
	case NotConfigured:
		return "Chat is not configured. Set the backend URL and API key."
	case NetworkUnavailable:
		return "Cannot reach the server. Check your connection and retry."
	case AuthRequired:
		return "You are not signed in, or your session expired."
	case OwnershipViolation:
		return "Your profile is not set up yet. Complete your profile, then send again."
	case NotFound:
		return "This conversation or message no longer exists."
	default:
		return "Something went wrong. Please retry."
	}
}

func notConfigured(op string) error {
	return &backend.Error{Kind: NotConfigured, Operation: op, Message: backend.ErrNotConfigured.Message}
}
