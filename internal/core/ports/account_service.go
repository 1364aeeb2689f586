package ports

import (
	"context"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// SignupInput carries the fields accepted when creating an account.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Age      int
}

// UpdateFields is a decoded JSON object of requested changes. Keys outside the
// allow-list of the target entity reject the whole update.
type UpdateFields map[string]any

// AccountService is the account and session lifecycle use-case boundary.
type AccountService interface {
	Create(ctx context.Context, in SignupInput) (*domain.Account, error)
	Signup(ctx context.Context, in SignupInput) (*domain.Account, string, error)
	FindByCredentials(ctx context.Context, email, password string) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (*domain.Account, string, error)
	FindBySessionToken(ctx context.Context, accountID, token string) (*domain.Account, error)
	Logout(ctx context.Context, account *domain.Account, token string) error
	LogoutAll(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account, fields UpdateFields) (*domain.Account, error)
	Delete(ctx context.Context, account *domain.Account) error
	SetAvatar(ctx context.Context, account *domain.Account, image []byte) error
	ClearAvatar(ctx context.Context, account *domain.Account) error
	Avatar(ctx context.Context, accountID string) ([]byte, error)
}
