// File: internal/services/identity/service.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iyunix/go-designdesk/internal/auth"
	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/repository/account"
	"github.com/iyunix/go-designdesk/internal/repository/user"
)

// ProfileInput is the caller-editable part of a profile.
type ProfileInput struct {
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role"`
	AvatarURL   string      `json:"avatar_url"`
}

// Service handles sign-up, token issue, and public profiles.
type Service struct {
	accounts  account.AccountRepository
	profiles  user.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    logger.Logger
	now       func() time.Time
}

func NewService(accounts account.AccountRepository, profiles user.UserRepository, secretKey string, tokenTTL time.Duration, log logger.Logger) *Service {
	return &Service{
		accounts:  accounts,
		profiles:  profiles,
		jwtSecret: []byte(secretKey),
		tokenTTL:  tokenTTL,
		logger:    log,
		now:       time.Now,
	}
}

// Signup creates an account. It deliberately does not create a profile row;
// clients do that with UpsertProfile.
func (s *Service) Signup(ctx context.Context, email, password string) (*domain.Account, error) {
	acct := &domain.Account{Email: email}
	if err := acct.HashPassword(password); err != nil {
		return nil, err
	}
	created, err := s.accounts.Create(ctx, acct)
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

// IssueToken verifies credentials and returns a signed token.
func (s *Service) IssueToken(ctx context.Context, email, password string) (string, *domain.Account, error) {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("token request for unknown email")
		return "", nil, ErrInvalidCredentials
	}
	if acct.IsLocked(s.now()) {
		s.logger.Warn("token request for locked account", "account_id", acct.ID)
		return "", nil, &LockedError{Until: *acct.LockedUntil}
	}
	if err := acct.ValidatePassword(password); err != nil {
		s.logger.Warn("token request with wrong password", "account_id", acct.ID)
		s.recordFailedAttempt(ctx, acct)
		return "", nil, ErrInvalidCredentials
	}
	s.clearFailedAttempts(ctx, acct)
	token, err := auth.GenerateJWT(acct.ID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("could not generate token: %w", err)
	}
	return token, acct, nil
}

// ValidateToken returns the account ID carried by token.
func (s *Service) ValidateToken(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	id, err := auth.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// UpsertProfile creates or updates the profile row of accountID.
func (s *Service) UpsertProfile(ctx context.Context, accountID string, in ProfileInput) (*domain.Profile, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	role := in.Role
	if role == "" {
		role = domain.RoleClient
	}
	email := in.Email
	if email == "" {
		email = acct.Email
	}
	profile := &domain.Profile{
		ID:          accountID,
		DisplayName: in.DisplayName,
		Email:       email,
		Role:        role,
		AvatarURL:   in.AvatarURL,
	}
	if err := profile.IsValid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return s.profiles.Upsert(ctx, profile)
}

// GetProfile returns the public profile for id.
func (s *Service) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}
