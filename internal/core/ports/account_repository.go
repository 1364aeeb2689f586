package ports

import (
	"context"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// AccountRepository defines persistence for accounts and their sessions.
//
// Session mutations must be single-document atomic operations so that
// concurrent logins and logouts on one account never lose each other's writes.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	// FindBySessionToken matches on both the id and a live session token.
	FindBySessionToken(ctx context.Context, id, token string) (*domain.Account, error)
	Update(ctx context.Context, id string, changes domain.AccountChanges) (*domain.Account, error)
	Delete(ctx context.Context, id string) error

	AddSession(ctx context.Context, id, token string) error
	RemoveSession(ctx context.Context, id, token string) error
	ClearSessions(ctx context.Context, id string) error

	SetAvatar(ctx context.Context, id string, png []byte) error
	ClearAvatar(ctx context.Context, id string) error
	FindAvatar(ctx context.Context, id string) ([]byte, error)
}
