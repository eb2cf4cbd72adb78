package user

import (
	"context"

	"github.com/iyunix/go-designdesk/internal/domain"
)

// UserRepository handles public profile rows.
type UserRepository interface {
	Upsert(ctx context.Context, profile *domain.Profile) (*domain.Profile, error)
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.Profile, error)
	Exists(ctx context.Context, id string) (bool, error)
	FindAll(ctx context.Context) ([]domain.Profile, error)
}
