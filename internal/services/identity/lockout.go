package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/iyunix/go-designdesk/internal/domain"
)

const (
	// MaxFailedAttempts is the number of consecutive wrong passwords that lock an account.
	MaxFailedAttempts = 5
	// LockoutDuration is how long an account stays locked.
	LockoutDuration = 15 * time.Minute
)

// LockedError is returned by IssueToken while an account is locked.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// RetryAfter is the remaining lock time relative to now, never negative.
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// recordFailedAttempt bumps the counter and locks the account once it
// reaches MaxFailedAttempts.
func (s *Service) recordFailedAttempt(ctx context.Context, acct *domain.Account) {
	now := s.now()
	acct.FailedLoginAttempts++
	acct.LastFailedLoginAt = &now
	if acct.FailedLoginAttempts >= MaxFailedAttempts {
		until := now.Add(LockoutDuration)
		acct.LockedUntil = &until
		s.logger.Warn("account locked after repeated failures",
			"account_id", acct.ID,
			"attempts", acct.FailedLoginAttempts,
			"locked_until", until)
	}
	if err := s.accounts.UpdateLoginState(ctx, acct); err != nil {
		s.logger.Error("failed to record login failure", "account_id", acct.ID, "error", err)
	}
}

// clearFailedAttempts resets the counter after a good sign-in. Accounts
// with a clean record are not written.
func (s *Service) clearFailedAttempts(ctx context.Context, acct *domain.Account) {
	if acct.FailedLoginAttempts == 0 && acct.LockedUntil == nil {
		return
	}
	acct.FailedLoginAttempts = 0
	acct.LastFailedLoginAt = nil
	acct.LockedUntil = nil
	if err := s.accounts.UpdateLoginState(ctx, acct); err != nil {
		s.logger.Error("failed to clear login failures", "account_id", acct.ID, "error", err)
	}
}
