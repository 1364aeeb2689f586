package ports

import (
	"context"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// CreateTaskInput carries client-supplied task fields. The owner is never
// part of it.
type CreateTaskInput struct {
	Description string
	Completed   bool
}

// ListTasksInput holds the raw query-string values of the list endpoint.
// Parsing leniency (non-numeric limit, unknown sort field) lives in the service.
type ListTasksInput struct {
	Completed string
	SortBy    string
	Limit     string
	Skip      string
}

// TaskPurger removes every task of an owner. It is only used by the account
// deletion cascade.
type TaskPurger interface {
	// DeleteAllByOwner returns the tasks it set out to remove, also on error,
	// so a caller without store transactions can put them back. Only those
	// tasks are removed.
	DeleteAllByOwner(ctx context.Context, ownerID string) ([]*domain.Task, error)
	Restore(ctx context.Context, tasks []*domain.Task) error
}

// TaskService is the task use-case boundary; every call is owner-scoped.
type TaskService interface {
	TaskPurger
	Create(ctx context.Context, ownerID string, in CreateTaskInput) (*domain.Task, error)
	List(ctx context.Context, ownerID string, in ListTasksInput) ([]*domain.Task, error)
	Get(ctx context.Context, id, ownerID string) (*domain.Task, error)
	Update(ctx context.Context, id, ownerID string, fields UpdateFields) (*domain.Task, error)
	Delete(ctx context.Context, id, ownerID string) (*domain.Task, error)
}
