package ports

import (
	"context"

	"github.com/taskmanager/task-api/internal/core/domain"
)

// ListTasksFilter carries the query for listing one owner's tasks.
// OwnerID is always set by the service layer from the authenticated principal.
type ListTasksFilter struct {
	OwnerID   string
	Completed *bool  // nil = no completed predicate
	SortBy    string // bson-agnostic field name; empty = natural order
	SortDesc  bool
	Limit     int // 0 = no limit
	Skip      int // 0 = no skip
}

// TaskRepository defines persistence operations for tasks. Every lookup is
// scoped by owner.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	List(ctx context.Context, filter ListTasksFilter) ([]*domain.Task, error)
	FindByID(ctx context.Context, id, ownerID string) (*domain.Task, error)
	Update(ctx context.Context, id, ownerID string, changes domain.TaskChanges) (*domain.Task, error)
	Delete(ctx context.Context, id, ownerID string) (*domain.Task, error)
	// DeleteByIDs removes the listed tasks of ownerID and nothing else.
	DeleteByIDs(ctx context.Context, ownerID string, ids []string) (int64, error)
	// Restore re-inserts previously deleted tasks with their original ids.
	Restore(ctx context.Context, tasks []*domain.Task) error
}
