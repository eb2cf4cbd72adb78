// File: internal/repository/user/gorm_user_repository.go
package user

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
)

var ErrUserNotFound = errors.New("user not found")

type gormUserRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

func NewGormUserRepository(db *gorm.DB, log logger.Logger) UserRepository {
	return &gormUserRepository{db: db, logger: log}
}

// Upsert creates the profile or replaces its mutable columns.
func (r *gormUserRepository) Upsert(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	if profile.ID == "" {
		return nil, errors.New("invalid user ID")
	}
	if err := profile.IsValid(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "role", "avatar_url", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		r.logger.Error("database error during profile upsert", "user_id", profile.ID, "error", err)
		return nil, errors.New("database error saving profile")
	}

	r.logger.Info("profile saved", "user_id", profile.ID)
	return r.FindByID(ctx, profile.ID)
}

func (r *gormUserRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	if id == "" {
		return nil, errors.New("invalid user ID")
	}
	var profile domain.Profile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	return r.handleFindError(err, &profile)
}

func (r *gormUserRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []domain.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		r.logger.Error("database error loading profiles", "count", len(ids), "error", err)
		return nil, errors.New("database query failed")
	}
	return profiles, nil
}

func (r *gormUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Profile{}).Where("id = ?", id).Count(&count).Error; err != nil {
		r.logger.Error("database error checking profile existence", "user_id", id, "error", err)
		return false, errors.New("database error checking profile existence")
	}
	return count > 0, nil
}

func (r *gormUserRepository) FindAll(ctx context.Context) ([]domain.Profile, error) {
	var profiles []domain.Profile
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&profiles).Error; err != nil {
		r.logger.Error("database error listing profiles", "error", err)
		return nil, errors.New("database query failed")
	}
	return profiles, nil
}

// handleFindError maps driver errors without leaking query details.
func (r *gormUserRepository) handleFindError(err error, profile *domain.Profile) (*domain.Profile, error) {
	if err == nil {
		return profile, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	r.logger.Error("database query error", "error", err)
	return nil, errors.New("database query failed")
}
