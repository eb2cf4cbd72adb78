package account

import (
	"context"

	"github.com/iyunix/go-designdesk/internal/domain"
)

// AccountRepository handles authentication identities.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	UpdateLoginState(ctx context.Context, account *domain.Account) error
}
