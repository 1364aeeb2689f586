package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

var taskUpdateAllowList = []string{"description", "completed"}

// sortableTaskFields lists the JSON field names a client may sort on.
var sortableTaskFields = map[string]struct{}{
	"createdAt":   {},
	"updatedAt":   {},
	"description": {},
	"completed":   {},
}

var _ ports.TaskService = (*TaskService)(nil)

type TaskService struct {
	repo  ports.TaskRepository
	rules *fieldRules
	log   zerolog.Logger
	now   func() time.Time
}

func NewTaskService(repo ports.TaskRepository, log zerolog.Logger) *TaskService {
	return &TaskService{repo: repo, rules: newFieldRules(), log: log, now: time.Now}
}

// Create stores a task for ownerID. The owner always comes from the caller's
// identity, never from client input.
func (s *TaskService) Create(ctx context.Context, ownerID string, in ports.CreateTaskInput) (*domain.Task, error) {
	desc, err := s.rules.description(in.Description)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	task, err := s.repo.Create(ctx, &domain.Task{
		Description: desc,
		Completed:   in.Completed,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// List returns the owner's tasks filtered, sorted and paginated according to
// the raw query values in.
func (s *TaskService) List(ctx context.Context, ownerID string, in ports.ListTasksInput) ([]*domain.Task, error) {
	tasks, err := s.repo.List(ctx, parseListInput(ownerID, in))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// parseListInput is lenient: anything it cannot interpret is dropped rather
// than rejected.
func parseListInput(ownerID string, in ports.ListTasksInput) ports.ListTasksFilter {
	f := ports.ListTasksFilter{OwnerID: ownerID}

	if in.Completed != "" {
		completed := in.Completed == "true"
		f.Completed = &completed
	}

	if in.SortBy != "" {
		field, dir, _ := strings.Cut(in.SortBy, ":")
		if _, ok := sortableTaskFields[field]; ok {
			f.SortBy = field
			f.SortDesc = dir == "desc"
		}
	}

	if n, err := strconv.Atoi(in.Limit); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(in.Skip); err == nil && n > 0 {
		f.Skip = n
	}
	return f
}

func (s *TaskService) Get(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	task, err := s.repo.FindByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Update applies an allow-listed change to one of the owner's tasks. Unknown
// keys, including any attempt to move the task to another owner, reject the
// whole update.
func (s *TaskService) Update(ctx context.Context, id, ownerID string, fields ports.UpdateFields) (*domain.Task, error) {
	if err := checkAllowed(fields, taskUpdateAllowList...); err != nil {
		return nil, err
	}

	var changes domain.TaskChanges
	if _, ok := fields["description"]; ok {
		raw, err := stringField(fields, "description")
		if err != nil {
			return nil, err
		}
		desc, err := s.rules.description(raw)
		if err != nil {
			return nil, err
		}
		changes.Description = &desc
	}
	if _, ok := fields["completed"]; ok {
		completed, err := boolField(fields, "completed")
		if err != nil {
			return nil, err
		}
		changes.Completed = &completed
	}

	if changes.Empty() {
		return s.Get(ctx, id, ownerID)
	}

	task, err := s.repo.Update(ctx, id, ownerID, changes)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	task, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}
	return task, nil
}

// DeleteAllByOwner removes every task of ownerID and returns what it removed.
// The delete is limited to the listed ids, so the returned slice is exactly
// what a Restore has to put back.
func (s *TaskService) DeleteAllByOwner(ctx context.Context, ownerID string) ([]*domain.Task, error) {
	tasks, err := s.repo.List(ctx, ports.ListTasksFilter{OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("snapshot owner tasks: %w", err)
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	n, err := s.repo.DeleteByIDs(ctx, ownerID, ids)
	if err != nil {
		return tasks, fmt.Errorf("delete owner tasks: %w", err)
	}

	s.log.Debug().Str("account_id", ownerID).Int64("deleted", n).Msg("owner tasks deleted")
	return tasks, nil
}

// Restore puts back tasks removed by an aborted cascade.
func (s *TaskService) Restore(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := s.repo.Restore(ctx, tasks); err != nil {
		return fmt.Errorf("restore tasks: %w", err)
	}
	return nil
}
