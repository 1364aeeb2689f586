package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

var accountUpdateAllowList = []string{"name", "email", "password", "age"}

var _ ports.AccountService = (*AccountService)(nil)

// AccountService implements account creation, credentials, sessions, profile
// updates, avatars and the cascading delete.
type AccountService struct {
	accounts ports.AccountRepository
	tasks    ports.TaskPurger
	tx       ports.Transactor
	hasher   ports.PasswordHasher
	tokens   ports.TokenService
	notifier ports.Notifier
	avatars  ports.AvatarProcessor
	rules    *fieldRules
	log      zerolog.Logger
	now      func() time.Time
}

// AccountDeps groups AccountService collaborators.
type AccountDeps struct {
	Accounts ports.AccountRepository
	Tasks    ports.TaskPurger
	Tx       ports.Transactor
	Hasher   ports.PasswordHasher
	Tokens   ports.TokenService
	Notifier ports.Notifier
	Avatars  ports.AvatarProcessor
}

func NewAccountService(deps AccountDeps, log zerolog.Logger) *AccountService {
	return &AccountService{
		accounts: deps.Accounts,
		tasks:    deps.Tasks,
		tx:       deps.Tx,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		avatars:  deps.Avatars,
		rules:    newFieldRules(),
		log:      log,
		now:      time.Now,
	}
}

// Create validates and stores a new account, then schedules the welcome
// notification. Notification problems never fail the call.
func (s *AccountService) Create(ctx context.Context, in ports.SignupInput) (*domain.Account, error) {
	name, err := s.rules.name(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := s.rules.email(in.Email)
	if err != nil {
		return nil, err
	}
	password, err := s.rules.password(in.Password)
	if err != nil {
		return nil, err
	}
	age, err := s.rules.age(in.Age)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("create account: hash password: %w", err)
	}

	now := s.now().UTC()
	created, err := s.accounts.Create(ctx, &domain.Account{
		Name:         name,
		Email:        email,
		Age:          age,
		PasswordHash: hash,
		Sessions:     []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.notifier.Notify(ctx, domain.NotifyWelcome, created.Email, created.Name)
	s.log.Info().Str("account_id", created.ID).Msg("account created")

	return created, nil
}

// Signup creates the account and opens its first session.
func (s *AccountService) Signup(ctx context.Context, in ports.SignupInput) (*domain.Account, string, error) {
	account, err := s.Create(ctx, in)
	if err != nil {
		return nil, "", err
	}
	token, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, "", err
	}
	return account, token, nil
}

// FindByCredentials returns domain.ErrAuthFailure whether the email is unknown
// or the password does not match.
func (s *AccountService) FindByCredentials(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrAuthFailure
		}
		return nil, fmt.Errorf("find by credentials: %w", err)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, domain.ErrAuthFailure
	}
	return account, nil
}

// Login opens an additional session; existing sessions stay valid.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Account, string, error) {
	account, err := s.FindByCredentials(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	token, err := s.issueSession(ctx, account)
	if err != nil {
		return nil, "", err
	}
	s.log.Info().Str("account_id", account.ID).Int("sessions", len(account.Sessions)).Msg("login")
	return account, token, nil
}

func (s *AccountService) issueSession(ctx context.Context, account *domain.Account) (string, error) {
	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	if err := s.accounts.AddSession(ctx, account.ID, token); err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	account.Sessions = append(account.Sessions, token)
	return token, nil
}

// FindBySessionToken resolves an account only while token is one of its live
// sessions.
func (s *AccountService) FindBySessionToken(ctx context.Context, accountID, token string) (*domain.Account, error) {
	account, err := s.accounts.FindBySessionToken(ctx, accountID, token)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find by session: %w", err)
	}
	return account, nil
}

// Logout revokes exactly one session. Revoking an absent token is a no-op.
func (s *AccountService) Logout(ctx context.Context, account *domain.Account, token string) error {
	if err := s.accounts.RemoveSession(ctx, account.ID, token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	kept := account.Sessions[:0]
	for _, t := range account.Sessions {
		if t != token {
			kept = append(kept, t)
		}
	}
	account.Sessions = kept
	return nil
}

// LogoutAll revokes every session of the account.
func (s *AccountService) LogoutAll(ctx context.Context, account *domain.Account) error {
	if err := s.accounts.ClearSessions(ctx, account.ID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	account.Sessions = []string{}
	return nil
}

// Update applies an allow-listed profile change. Every key and value is
// validated, in allow-list order, before anything is written; the password
// is hashed only when it is part of the change.
func (s *AccountService) Update(ctx context.Context, account *domain.Account, fields ports.UpdateFields) (*domain.Account, error) {
	if err := checkAllowed(fields, accountUpdateAllowList...); err != nil {
		return nil, err
	}

	var changes domain.AccountChanges
	var password string
	for _, key := range accountUpdateAllowList {
		if _, ok := fields[key]; !ok {
			continue
		}
		switch key {
		case "name":
			raw, err := stringField(fields, key)
			if err != nil {
				return nil, err
			}
			name, err := s.rules.name(raw)
			if err != nil {
				return nil, err
			}
			changes.Name = &name
		case "email":
			raw, err := stringField(fields, key)
			if err != nil {
				return nil, err
			}
			email, err := s.rules.email(raw)
			if err != nil {
				return nil, err
			}
			changes.Email = &email
		case "age":
			raw, err := intField(fields, key)
			if err != nil {
				return nil, err
			}
			age, err := s.rules.age(raw)
			if err != nil {
				return nil, err
			}
			changes.Age = &age
		case "password":
			raw, err := stringField(fields, key)
			if err != nil {
				return nil, err
			}
			if password, err = s.rules.password(raw); err != nil {
				return nil, err
			}
		}
	}

	if password != "" {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("update account: hash password: %w", err)
		}
		changes.PasswordHash = &hash
	}

	if changes.Empty() {
		return account, nil
	}

	updated, err := s.accounts.Update(ctx, account.ID, changes)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return updated, nil
}

// Delete removes all of the account's tasks and then the account, as one
// unit. Without store transactions the purged tasks are restored when the
// account itself could not be removed, and tasks created while the cascade
// ran are swept once the account is gone.
func (s *AccountService) Delete(ctx context.Context, account *domain.Account) error {
	var purged []*domain.Task

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		removed, err := s.tasks.DeleteAllByOwner(ctx, account.ID)
		purged = removed
		if err != nil {
			return fmt.Errorf("delete account tasks: %w", err)
		}
		if err := s.accounts.Delete(ctx, account.ID); err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				// A missing record here is a store fault, not a client error.
				return fmt.Errorf("delete account record: %s vanished mid-delete", account.ID)
			}
			return fmt.Errorf("delete account record: %w", err)
		}
		return nil
	})
	if err != nil {
		if !s.tx.Atomic() && len(purged) > 0 {
			s.restoreTasks(ctx, account.ID, purged)
		}
		return fmt.Errorf("delete account: %w", err)
	}

	if !s.tx.Atomic() {
		s.sweepTasks(ctx, account.ID)
	}

	s.log.Info().Str("account_id", account.ID).Int("tasks", len(purged)).Msg("account deleted")
	return nil
}

func (s *AccountService) sweepTasks(ctx context.Context, accountID string) {
	late, err := s.tasks.DeleteAllByOwner(context.WithoutCancel(ctx), accountID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("failed to sweep tasks of deleted account")
		return
	}
	if len(late) > 0 {
		s.log.Warn().Str("account_id", accountID).Int("tasks", len(late)).Msg("swept tasks created during account deletion")
	}
}

func (s *AccountService) restoreTasks(ctx context.Context, accountID string, tasks []*domain.Task) {
	if err := s.tasks.Restore(context.WithoutCancel(ctx), tasks); err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Int("tasks", len(tasks)).
			Msg("failed to restore tasks after aborted account deletion")
		return
	}
	s.log.Warn().Str("account_id", accountID).Int("tasks", len(tasks)).
		Msg("account deletion aborted, tasks restored")
}

// SetAvatar normalises the uploaded image and stores it on the account.
func (s *AccountService) SetAvatar(ctx context.Context, account *domain.Account, image []byte) error {
	png, err := s.avatars.Normalize(image)
	if err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	if err := s.accounts.SetAvatar(ctx, account.ID, png); err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	account.Avatar = png
	return nil
}

// ClearAvatar removes the avatar and schedules the farewell notification.
func (s *AccountService) ClearAvatar(ctx context.Context, account *domain.Account) error {
	if err := s.accounts.ClearAvatar(ctx, account.ID); err != nil {
		return fmt.Errorf("clear avatar: %w", err)
	}
	account.Avatar = nil

	s.notifier.Notify(ctx, domain.NotifyFarewell, account.Email, account.Name)
	return nil
}

// Avatar returns the stored PNG for any account id.
func (s *AccountService) Avatar(ctx context.Context, accountID string) ([]byte, error) {
	png, err := s.accounts.FindAvatar(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrAvatarNotFound
		}
		return nil, fmt.Errorf("find avatar: %w", err)
	}
	if len(png) == 0 {
		return nil, domain.ErrAvatarNotFound
	}
	return png, nil
}
