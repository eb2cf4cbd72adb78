package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

type gormAccountRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

func NewGormAccountRepository(db *gorm.DB, log logger.Logger) AccountRepository {
	return &gormAccountRepository{db: db, logger: log}
}

func (r *gormAccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	account.Email = normalizeEmail(account.Email)
	if account.Email == "" {
		return nil, errors.New("email is required")
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		// sqlite builds without error translation still report the constraint by name
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, ErrEmailTaken
		}
		r.logger.Error("database error during account creation", "error", err)
		return nil, errors.New("database error creating account")
	}
	r.logger.Info("account created", "account_id", account.ID)
	return account, nil
}

func (r *gormAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&account).Error
	return r.handleFindError(err, &account)
}

func (r *gormAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	return r.handleFindError(err, &account)
}

// UpdateLoginState persists the failed-attempt counters and lock of account.
func (r *gormAccountRepository) UpdateLoginState(ctx context.Context, account *domain.Account) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"failed_login_attempts": account.FailedLoginAttempts,
			"last_failed_login_at":  account.LastFailedLoginAt,
			"locked_until":          account.LockedUntil,
		})
	if result.Error != nil {
		r.logger.Error("database error updating login state", "account_id", account.ID, "error", result.Error)
		return errors.New("database error updating account")
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *gormAccountRepository) handleFindError(err error, account *domain.Account) (*domain.Account, error) {
	if err == nil {
		return account, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	r.logger.Error("database query error", "error", err)
	return nil, errors.New("database query failed")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
