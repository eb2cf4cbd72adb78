// File: internal/middleware/constants.go
package middleware

import "context"

// Context keys for middleware communication
type contextKey string

const (
	AccountIDKey contextKey = "account_id"
)

// Error codes shared with clients in JSON error bodies.
const (
	CodeAuthRequired       = "auth_required"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeOwnershipViolation = "ownership_violation"
	CodeInvalidRequest     = "invalid_request"
	CodeConflict           = "conflict"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

// AccountID returns the authenticated account, if any.
func AccountID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AccountIDKey).(string)
	return id, ok && id != ""
}

// WithAccountID stores the authenticated account on ctx.
func WithAccountID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AccountIDKey, id)
}
