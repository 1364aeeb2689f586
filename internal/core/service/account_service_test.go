package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

func validSignup() ports.SignupInput {
	return ports.SignupInput{Name: "A", Email: "a@x.com", Password: "secret123"}
}

func signup(t *testing.T, h *harness, in ports.SignupInput) (*domain.Account, string) {
	t.Helper()
	acc, token, err := h.svc.Signup(context.Background(), in)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return acc, token
}

func TestAccountService_Signup_Success(t *testing.T) {
	h := newHarness(true)

	acc, token := signup(t, h, ports.SignupInput{Name: "  A ", Email: " A@X.com ", Password: " secret123 ", Age: 30})

	if acc.Email != "a@x.com" {
		t.Fatalf("expected normalised email, got %q", acc.Email)
	}
	if acc.Name != "A" {
		t.Fatalf("expected trimmed name, got %q", acc.Name)
	}
	if token == "" {
		t.Fatalf("expected a token")
	}
	if acc.PasswordHash == "secret123" || !h.hasher.Verify("secret123", acc.PasswordHash) {
		t.Fatalf("password must be stored hashed, got %q", acc.PasswordHash)
	}

	stored, _ := h.accounts.get(acc.ID)
	if !stored.HasSession(token) {
		t.Fatalf("session not persisted")
	}
	if len(h.notifier.sent) != 1 || h.notifier.sent[0].kind != domain.NotifyWelcome || h.notifier.sent[0].email != "a@x.com" {
		t.Fatalf("expected one welcome notification, got %+v", h.notifier.sent)
	}
}

func TestAccountService_Signup_ProjectionHidesSecrets(t *testing.T) {
	h := newHarness(true)
	acc, _ := signup(t, h, validSignup())
	acc.Avatar = []byte{1, 2, 3}

	raw, err := json.Marshal(acc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, leaked := range []string{"password", "hashed:", "sessions", "tokens", "avatar"} {
		if strings.Contains(strings.ToLower(string(raw)), strings.ToLower(leaked)) {
			t.Fatalf("projection leaks %q: %s", leaked, raw)
		}
	}
}

func TestAccountService_Signup_Validation(t *testing.T) {
	cases := map[string]struct {
		in    ports.SignupInput
		field string
	}{
		"missing name":       {ports.SignupInput{Email: "a@x.com", Password: "secret123"}, "name"},
		"bad email":          {ports.SignupInput{Name: "A", Email: "nope", Password: "secret123"}, "email"},
		"short password":     {ports.SignupInput{Name: "A", Email: "a@x.com", Password: "abc"}, "password"},
		"literal password":   {ports.SignupInput{Name: "A", Email: "a@x.com", Password: "password"}, "password"},
		"padded literal":     {ports.SignupInput{Name: "A", Email: "a@x.com", Password: "  password  "}, "password"},
		"negative age":       {ports.SignupInput{Name: "A", Email: "a@x.com", Password: "secret123", Age: -1}, "age"},
		"whitespace-only pw": {ports.SignupInput{Name: "A", Email: "a@x.com", Password: "         "}, "password"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(true)
			_, _, err := h.svc.Signup(context.Background(), tc.in)

			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, ve.Field)
			}
			if h.hasher.calls() != 0 {
				t.Fatalf("hasher must not be reached on invalid input")
			}
			if len(h.accounts.byID) != 0 {
				t.Fatalf("nothing may be stored on invalid input")
			}
			if len(h.notifier.sent) != 0 {
				t.Fatalf("no notification on invalid input")
			}
		})
	}
}

func TestAccountService_Signup_DuplicateEmail(t *testing.T) {
	h := newHarness(true)
	signup(t, h, validSignup())

	in := validSignup()
	in.Email = "A@x.com"
	_, _, err := h.svc.Signup(context.Background(), in)

	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
}

func TestAccountService_Login_UniformFailure(t *testing.T) {
	h := newHarness(true)
	signup(t, h, validSignup())

	_, _, unknown := h.svc.Login(context.Background(), "who@x.com", "secret123")
	_, _, wrong := h.svc.Login(context.Background(), "a@x.com", "wrong-pass")

	if !errors.Is(unknown, domain.ErrAuthFailure) || !errors.Is(wrong, domain.ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure for both, got %v / %v", unknown, wrong)
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("failures must be indistinguishable: %q vs %q", unknown, wrong)
	}
}

func TestAccountService_Login_AddsDistinctSessions(t *testing.T) {
	h := newHarness(true)
	acc, first := signup(t, h, validSignup())

	_, second, err := h.svc.Login(context.Background(), " A@X.COM ", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, third, err := h.svc.Login(context.Background(), "a@x.com", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if first == second || second == third || first == third {
		t.Fatalf("tokens must be distinct")
	}
	stored, _ := h.accounts.get(acc.ID)
	if len(stored.Sessions) != 3 {
		t.Fatalf("expected 3 live sessions, got %d", len(stored.Sessions))
	}
}

func TestAccountService_Logout_RevokesOnlyThatSession(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	signup(t, h, validSignup())

	acc, t1, _ := h.svc.Login(ctx, "a@x.com", "secret123")
	_, t2, _ := h.svc.Login(ctx, "a@x.com", "secret123")

	current, err := h.svc.FindBySessionToken(ctx, acc.ID, t1)
	if err != nil {
		t.Fatalf("t1 should be live: %v", err)
	}
	if err := h.svc.Logout(ctx, current, t1); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := h.svc.FindBySessionToken(ctx, acc.ID, t1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("t1 must be revoked, got %v", err)
	}
	if _, err := h.svc.FindBySessionToken(ctx, acc.ID, t2); err != nil {
		t.Fatalf("t2 must stay valid: %v", err)
	}
	if current.HasSession(t1) {
		t.Fatalf("in-memory account still lists revoked token")
	}

	// Second logout of the same token is a no-op.
	if err := h.svc.Logout(ctx, current, t1); err != nil {
		t.Fatalf("repeat logout: %v", err)
	}
}

func TestAccountService_LogoutAll(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	acc, t1 := signup(t, h, validSignup())
	_, t2, _ := h.svc.Login(ctx, "a@x.com", "secret123")

	if err := h.svc.LogoutAll(ctx, acc); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, tok := range []string{t1, t2} {
		if _, err := h.svc.FindBySessionToken(ctx, acc.ID, tok); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("token must be revoked, got %v", err)
		}
	}
	// The signature is still valid; only the session list revokes it.
	if id, err := h.tokens.Verify(t1); err != nil || id != acc.ID {
		t.Fatalf("token signature should still verify: %q %v", id, err)
	}
}

func TestAccountService_ConcurrentLoginsKeepAllSessions(t *testing.T) {
	h := newHarness(true)
	acc, _ := signup(t, h, validSignup())

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := h.svc.Login(context.Background(), "a@x.com", "secret123"); err != nil {
				t.Errorf("login: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, _ := h.accounts.get(acc.ID)
	if len(stored.Sessions) != n+1 {
		t.Fatalf("expected %d sessions, got %d", n+1, len(stored.Sessions))
	}
}

func TestAccountService_Update_RejectsUnknownKeys(t *testing.T) {
	h := newHarness(true)
	acc, token := signup(t, h, validSignup())

	for _, fields := range []ports.UpdateFields{
		{"sessions": []any{}},
		{"name": "B", "_id": "acc-999"},
		{"name": "B", "tokens": []any{}},
	} {
		_, err := h.svc.Update(context.Background(), acc, fields)
		if !errors.Is(err, domain.ErrInvalidUpdates) {
			t.Fatalf("expected ErrInvalidUpdates for %v, got %v", fields, err)
		}
	}

	stored, _ := h.accounts.get(acc.ID)
	if stored.Name != "A" || !stored.HasSession(token) {
		t.Fatalf("account must be unchanged, got %+v", stored)
	}
}

func TestAccountService_Update_HashesOnlyWhenPasswordChanges(t *testing.T) {
	h := newHarness(true)
	acc, _ := signup(t, h, validSignup())
	before := h.hasher.calls()

	updated, err := h.svc.Update(context.Background(), acc, ports.UpdateFields{"name": "B", "age": float64(41)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "B" || updated.Age != 41 {
		t.Fatalf("unexpected account %+v", updated)
	}
	if h.hasher.calls() != before {
		t.Fatalf("password must not be re-hashed on unrelated updates")
	}
	if updated.PasswordHash != acc.PasswordHash {
		t.Fatalf("stored hash changed without a password update")
	}

	updated, err = h.svc.Update(context.Background(), updated, ports.UpdateFields{"password": "another-secret"})
	if err != nil {
		t.Fatalf("update password: %v", err)
	}
	if h.hasher.calls() != before+1 {
		t.Fatalf("expected exactly one hash call")
	}
	if !h.hasher.Verify("another-secret", updated.PasswordHash) {
		t.Fatalf("new password not applied")
	}
}

func TestAccountService_Update_ValidatesValues(t *testing.T) {
	h := newHarness(true)
	acc, _ := signup(t, h, validSignup())

	cases := []ports.UpdateFields{
		{"email": "not-an-email"},
		{"password": "password"},
		{"age": float64(-3)},
		{"age": 1.5},
		{"name": 42},
		{"name": "B", "password": "short"},
	}
	for _, fields := range cases {
		_, err := h.svc.Update(context.Background(), acc, fields)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected validation error for %v, got %v", fields, err)
		}
	}

	stored, _ := h.accounts.get(acc.ID)
	if stored.Name != "A" {
		t.Fatalf("rejected update must not partially apply, got name %q", stored.Name)
	}
}

func TestAccountService_Update_ReportsFieldsInAllowListOrder(t *testing.T) {
	h := newHarness(true)
	acc, _ := signup(t, h, validSignup())

	fields := ports.UpdateFields{"email": "bad", "age": float64(-1), "name": " "}
	for i := 0; i < 50; i++ {
		_, err := h.svc.Update(context.Background(), acc, fields)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if ve.Field != "name" {
			t.Fatalf("expected name to be reported first, got %q on call %d", ve.Field, i)
		}
	}

	delete(fields, "name")
	_, err := h.svc.Update(context.Background(), acc, fields)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email to be reported next, got %v", err)
	}
}

func TestAccountService_Update_EmptyIsNoop(t *testing.T) {
	h := newHarness(true)
	acc, _ := signup(t, h, validSignup())

	got, err := h.svc.Update(context.Background(), acc, ports.UpdateFields{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != acc {
		t.Fatalf("expected the same account back")
	}
}

func seedTasks(t *testing.T, h *harness, ownerID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := h.taskSvc.Create(context.Background(), ownerID, ports.CreateTaskInput{Description: "task"}); err != nil {
			t.Fatalf("seed task: %v", err)
		}
	}
}

func TestAccountService_Delete_CascadesTasks(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		h := newHarness(atomic)
		acc, _ := signup(t, h, validSignup())
		other, _ := signup(t, h, ports.SignupInput{Name: "B", Email: "b@x.com", Password: "secret123"})
		seedTasks(t, h, acc.ID, 3)
		seedTasks(t, h, other.ID, 2)

		if err := h.svc.Delete(context.Background(), acc); err != nil {
			t.Fatalf("delete (atomic=%v): %v", atomic, err)
		}
		if _, ok := h.accounts.get(acc.ID); ok {
			t.Fatalf("account still present (atomic=%v)", atomic)
		}
		if n := h.tasks.countOwned(acc.ID); n != 0 {
			t.Fatalf("expected 0 tasks left, got %d (atomic=%v)", n, atomic)
		}
		if n := h.tasks.countOwned(other.ID); n != 2 {
			t.Fatalf("other owner's tasks touched: %d (atomic=%v)", n, atomic)
		}
	}
}

func TestAccountService_Delete_TaskFailureKeepsAccount(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		h := newHarness(atomic)
		acc, _ := signup(t, h, validSignup())
		seedTasks(t, h, acc.ID, 3)
		h.tasks.deleteErr = errStoreDown

		err := h.svc.Delete(context.Background(), acc)
		if !errors.Is(err, errStoreDown) {
			t.Fatalf("expected store error, got %v (atomic=%v)", err, atomic)
		}
		if _, ok := h.accounts.get(acc.ID); !ok {
			t.Fatalf("account must survive failed cascade (atomic=%v)", atomic)
		}
		if n := h.tasks.countOwned(acc.ID); n != 3 {
			t.Fatalf("expected 3 tasks, got %d (atomic=%v)", n, atomic)
		}
	}
}

func TestAccountService_Delete_AccountFailureRestoresTasks(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		h := newHarness(atomic)
		acc, _ := signup(t, h, validSignup())
		seedTasks(t, h, acc.ID, 4)
		h.accounts.deleteErr = errStoreDown

		if err := h.svc.Delete(context.Background(), acc); !errors.Is(err, errStoreDown) {
			t.Fatalf("expected store error, got %v (atomic=%v)", err, atomic)
		}
		if _, ok := h.accounts.get(acc.ID); !ok {
			t.Fatalf("account must survive (atomic=%v)", atomic)
		}
		if n := h.tasks.countOwned(acc.ID); n != 4 {
			t.Fatalf("expected all 4 tasks back, got %d (atomic=%v)", n, atomic)
		}
	}
}

func TestAccountService_Delete_MissingRecordIsStoreFault(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		h := newHarness(atomic)
		acc, _ := signup(t, h, validSignup())
		seedTasks(t, h, acc.ID, 2)
		h.accounts.deleteErr = domain.ErrAccountNotFound

		err := h.svc.Delete(context.Background(), acc)
		if err == nil || errors.Is(err, domain.ErrAccountNotFound) {
			t.Fatalf("expected a plain store error, got %v (atomic=%v)", err, atomic)
		}
		if n := h.tasks.countOwned(acc.ID); n != 2 {
			t.Fatalf("expected tasks back, got %d (atomic=%v)", n, atomic)
		}
	}
}

func TestAccountService_Delete_AbortKeepsTasksCreatedMidCascade(t *testing.T) {
	h := newHarness(false)
	acc, _ := signup(t, h, validSignup())
	seedTasks(t, h, acc.ID, 3)
	h.tasks.beforeDelete = func() { seedTasks(t, h, acc.ID, 1) }
	h.accounts.deleteErr = errStoreDown

	if err := h.svc.Delete(context.Background(), acc); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if n := h.tasks.countOwned(acc.ID); n != 4 {
		t.Fatalf("expected the 3 restored tasks plus the late one, got %d", n)
	}
}

func TestAccountService_Delete_SweepsTasksCreatedMidCascade(t *testing.T) {
	h := newHarness(false)
	acc, _ := signup(t, h, validSignup())
	seedTasks(t, h, acc.ID, 3)
	h.tasks.beforeDelete = func() { seedTasks(t, h, acc.ID, 1) }

	if err := h.svc.Delete(context.Background(), acc); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := h.tasks.countOwned(acc.ID); n != 0 {
		t.Fatalf("expected no tasks left for the deleted account, got %d", n)
	}
}

func TestAccountService_Avatar(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	acc, _ := signup(t, h, validSignup())

	if _, err := h.svc.Avatar(ctx, acc.ID); !errors.Is(err, domain.ErrAvatarNotFound) {
		t.Fatalf("expected ErrAvatarNotFound before upload, got %v", err)
	}

	if err := h.svc.SetAvatar(ctx, acc, []byte("img")); err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	png, err := h.svc.Avatar(ctx, acc.ID)
	if err != nil || string(png) != "png:img" {
		t.Fatalf("unexpected avatar %q, %v", png, err)
	}

	if err := h.svc.ClearAvatar(ctx, acc); err != nil {
		t.Fatalf("clear avatar: %v", err)
	}
	if _, err := h.svc.Avatar(ctx, acc.ID); !errors.Is(err, domain.ErrAvatarNotFound) {
		t.Fatalf("expected ErrAvatarNotFound after clear, got %v", err)
	}

	last := h.notifier.sent[len(h.notifier.sent)-1]
	if last.kind != domain.NotifyFarewell || last.email != "a@x.com" {
		t.Fatalf("expected farewell notification, got %+v", last)
	}

	if _, err := h.svc.Avatar(ctx, "missing"); !errors.Is(err, domain.ErrAvatarNotFound) {
		t.Fatalf("unknown account must be not found, got %v", err)
	}
}

func TestAccountService_SetAvatar_TransformError(t *testing.T) {
	h := newHarnessWithAvatars(true, stubAvatars{err: domain.ErrUnsupportedFormat})
	acc, _ := signup(t, h, validSignup())

	err := h.svc.SetAvatar(context.Background(), acc, []byte("%PDF"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if stored, _ := h.accounts.get(acc.ID); len(stored.Avatar) != 0 {
		t.Fatalf("avatar must not be stored on transform failure")
	}
}
