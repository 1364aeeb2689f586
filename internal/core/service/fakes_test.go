package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

// --- accounts ---

type memAccounts struct {
	mu        sync.Mutex
	seq       int
	byID      map[string]*domain.Account
	deleteErr error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*domain.Account{}}
}

func cloneAccount(a *domain.Account) *domain.Account {
	cp := *a
	cp.Sessions = append([]string{}, a.Sessions...)
	cp.Avatar = append([]byte(nil), a.Avatar...)
	return &cp
}

func (r *memAccounts) Create(_ context.Context, a *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == a.Email {
			return nil, domain.NewValidationError("email", "is already registered")
		}
	}
	r.seq++
	stored := cloneAccount(a)
	stored.ID = fmt.Sprintf("acc-%d", r.seq)
	r.byID[stored.ID] = stored
	return cloneAccount(stored), nil
}

func (r *memAccounts) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *memAccounts) FindBySessionToken(_ context.Context, id, token string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || !a.HasSession(token) {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *memAccounts) Update(_ context.Context, id string, c domain.AccountChanges) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if c.Name != nil {
		a.Name = *c.Name
	}
	if c.Email != nil {
		a.Email = *c.Email
	}
	if c.Age != nil {
		a.Age = *c.Age
	}
	if c.PasswordHash != nil {
		a.PasswordHash = *c.PasswordHash
	}
	return cloneAccount(a), nil
}

func (r *memAccounts) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.byID[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memAccounts) mutate(id string, fn func(a *domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	fn(a)
	return nil
}

func (r *memAccounts) AddSession(_ context.Context, id, token string) error {
	return r.mutate(id, func(a *domain.Account) { a.Sessions = append(a.Sessions, token) })
}

func (r *memAccounts) RemoveSession(_ context.Context, id, token string) error {
	return r.mutate(id, func(a *domain.Account) {
		kept := []string{}
		for _, t := range a.Sessions {
			if t != token {
				kept = append(kept, t)
			}
		}
		a.Sessions = kept
	})
}

func (r *memAccounts) ClearSessions(_ context.Context, id string) error {
	return r.mutate(id, func(a *domain.Account) { a.Sessions = []string{} })
}

func (r *memAccounts) SetAvatar(_ context.Context, id string, png []byte) error {
	return r.mutate(id, func(a *domain.Account) { a.Avatar = png })
}

func (r *memAccounts) ClearAvatar(_ context.Context, id string) error {
	return r.mutate(id, func(a *domain.Account) { a.Avatar = nil })
}

func (r *memAccounts) FindAvatar(_ context.Context, id string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a.Avatar, nil
}

func (r *memAccounts) get(id string) (*domain.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return cloneAccount(a), true
}

// --- tasks ---

type memTasks struct {
	mu        sync.Mutex
	seq       int
	byID      map[string]*domain.Task
	deleteErr error
	// beforeDelete runs once, outside the lock, ahead of the next DeleteByIDs.
	beforeDelete func()
}

func newMemTasks() *memTasks {
	return &memTasks{byID: map[string]*domain.Task{}}
}

func cloneTask(t *domain.Task) *domain.Task {
	cp := *t
	return &cp
}

func (r *memTasks) Create(_ context.Context, t *domain.Task) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	stored := cloneTask(t)
	stored.ID = fmt.Sprintf("task-%d", r.seq)
	// Distinct creation times keep natural order deterministic.
	stored.CreatedAt = stored.CreatedAt.Add(time.Duration(r.seq) * time.Millisecond)
	r.byID[stored.ID] = stored
	return cloneTask(stored), nil
}

func (r *memTasks) List(_ context.Context, f ports.ListTasksFilter) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, t := range r.byID {
		if t.OwnerID != f.OwnerID {
			continue
		}
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		out = append(out, cloneTask(t))
	}

	sort.Slice(out, func(i, j int) bool {
		less := out[i].CreatedAt.Before(out[j].CreatedAt)
		if f.SortBy == "description" {
			less = out[i].Description < out[j].Description
		}
		if f.SortDesc {
			return !less
		}
		return less
	})

	if f.Skip > 0 {
		if f.Skip >= len(out) {
			return []*domain.Task{}, nil
		}
		out = out[f.Skip:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memTasks) FindByID(_ context.Context, id, ownerID string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.OwnerID != ownerID {
		return nil, domain.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (r *memTasks) Update(_ context.Context, id, ownerID string, c domain.TaskChanges) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.OwnerID != ownerID {
		return nil, domain.ErrTaskNotFound
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Completed != nil {
		t.Completed = *c.Completed
	}
	return cloneTask(t), nil
}

func (r *memTasks) Delete(_ context.Context, id, ownerID string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.OwnerID != ownerID {
		return nil, domain.ErrTaskNotFound
	}
	delete(r.byID, id)
	return t, nil
}

func (r *memTasks) DeleteByIDs(_ context.Context, ownerID string, ids []string) (int64, error) {
	if hook := r.beforeDelete; hook != nil {
		r.beforeDelete = nil
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	var n int64
	for _, id := range ids {
		if t, ok := r.byID[id]; ok && t.OwnerID == ownerID {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *memTasks) Restore(_ context.Context, tasks []*domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		r.byID[t.ID] = cloneTask(t)
	}
	return nil
}

func (r *memTasks) countOwned(ownerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.byID {
		if t.OwnerID == ownerID {
			n++
		}
	}
	return n
}

// --- transactions ---

// snapshotTx emulates a store transaction by snapshotting both in-memory
// stores and rolling them back when the unit of work fails.
type snapshotTx struct {
	accounts *memAccounts
	tasks    *memTasks
}

func (t *snapshotTx) Atomic() bool { return true }

func (t *snapshotTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.accounts.mu.Lock()
	accSnap := map[string]*domain.Account{}
	for id, a := range t.accounts.byID {
		accSnap[id] = cloneAccount(a)
	}
	t.accounts.mu.Unlock()

	t.tasks.mu.Lock()
	taskSnap := map[string]*domain.Task{}
	for id, task := range t.tasks.byID {
		taskSnap[id] = cloneTask(task)
	}
	t.tasks.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.accounts.mu.Lock()
		t.accounts.byID = accSnap
		t.accounts.mu.Unlock()
		t.tasks.mu.Lock()
		t.tasks.byID = taskSnap
		t.tasks.mu.Unlock()
		return err
	}
	return nil
}

type directTx struct{}

func (directTx) Atomic() bool { return false }

func (directTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- collaborators ---

// countingHasher is a reversible stand-in for bcrypt that records calls.
type countingHasher struct {
	mu     sync.Mutex
	hashed []string
}

func (h *countingHasher) Hash(plain string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashed = append(h.hashed, plain)
	return "hashed:" + plain, nil
}

func (h *countingHasher) Verify(plain, hash string) bool {
	return hash == "hashed:"+plain
}

func (h *countingHasher) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hashed)
}

type sentNotification struct {
	kind  domain.NotificationKind
	email string
	name  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, kind domain.NotificationKind, email, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, email: email, name: name})
}

type stubAvatars struct {
	err error
}

func (s stubAvatars) Normalize(raw []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("png:"), raw...), nil
}

// --- harness ---

type harness struct {
	accounts *memAccounts
	tasks    *memTasks
	hasher   *countingHasher
	notifier *recordingNotifier
	tokens   *TokenService
	taskSvc  *TaskService
	svc      *AccountService
}

func newHarness(atomic bool) *harness {
	return newHarnessWithAvatars(atomic, stubAvatars{})
}

func newHarnessWithAvatars(atomic bool, avatars ports.AvatarProcessor) *harness {
	h := &harness{
		accounts: newMemAccounts(),
		tasks:    newMemTasks(),
		hasher:   &countingHasher{},
		notifier: &recordingNotifier{},
	}
	tokens, err := NewTokenService("test-secret", 0)
	if err != nil {
		panic(err)
	}
	h.tokens = tokens

	var tx ports.Transactor = directTx{}
	if atomic {
		tx = &snapshotTx{accounts: h.accounts, tasks: h.tasks}
	}

	h.taskSvc = NewTaskService(h.tasks, testLogger())
	h.svc = NewAccountService(AccountDeps{
		Accounts: h.accounts,
		Tasks:    h.taskSvc,
		Tx:       tx,
		Hasher:   h.hasher,
		Tokens:   tokens,
		Notifier: h.notifier,
		Avatars:  avatars,
	}, testLogger())
	return h
}

var errStoreDown = errors.New("store unavailable")

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
