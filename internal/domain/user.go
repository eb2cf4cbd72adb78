// File: internal/domain/user.go
package domain

import (
	"errors"
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role is the marketplace role of a profile.
type Role string

const (
	RoleClient   Role = "client"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDesigner, RoleAdmin:
		return true
	}
	return false
}

// Profile is the public profile row for an account. Its ID equals the
// Account ID; an account may exist without a profile.
type Profile struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	DisplayName string    `json:"display_name" gorm:"not null"`
	Email       string    `json:"email"`
	Role        Role      `json:"role" gorm:"not null;default:client;size:20"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName keeps the profile table named like the hosted schema.
func (Profile) TableName() string { return "users" }

func (p *Profile) IsValid() error {
	if len(p.DisplayName) < 2 {
		return errors.New("display name must be at least 2 characters")
	}
	if !p.Role.Valid() {
		return errors.New("unknown role")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return errors.New("invalid email address")
		}
	}
	return nil
}

// Account is an authentication identity.
type Account struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Brute force protection
	FailedLoginAttempts int        `json:"-" gorm:"not null;default:0"`
	LastFailedLoginAt   *time.Time `json:"-"`
	LockedUntil         *time.Time `json:"-"`
}

// IsLocked reports whether sign-in is blocked at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// HashPassword securely hashes the account password.
func (a *Account) HashPassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hashed)
	return nil
}

// ValidatePassword compares a plain-text password with the stored hash.
func (a *Account) ValidatePassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
}
