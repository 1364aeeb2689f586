package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"

	"github.com/taskmanager/task-api/internal/api/middleware"
	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

type stubAccountService struct {
	ports.AccountService

	signupFn    func(ctx context.Context, in ports.SignupInput) (*domain.Account, string, error)
	loginFn     func(ctx context.Context, email, password string) (*domain.Account, string, error)
	logoutFn    func(ctx context.Context, account *domain.Account, token string) error
	updateFn    func(ctx context.Context, account *domain.Account, fields ports.UpdateFields) (*domain.Account, error)
	setAvatarFn func(ctx context.Context, account *domain.Account, image []byte) error
	avatarFn    func(ctx context.Context, accountID string) ([]byte, error)
}

func (s *stubAccountService) Signup(ctx context.Context, in ports.SignupInput) (*domain.Account, string, error) {
	return s.signupFn(ctx, in)
}

func (s *stubAccountService) Login(ctx context.Context, email, password string) (*domain.Account, string, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAccountService) Logout(ctx context.Context, account *domain.Account, token string) error {
	return s.logoutFn(ctx, account, token)
}

func (s *stubAccountService) Update(ctx context.Context, account *domain.Account, fields ports.UpdateFields) (*domain.Account, error) {
	return s.updateFn(ctx, account, fields)
}

func (s *stubAccountService) SetAvatar(ctx context.Context, account *domain.Account, image []byte) error {
	return s.setAvatarFn(ctx, account, image)
}

func (s *stubAccountService) Avatar(ctx context.Context, accountID string) ([]byte, error) {
	return s.avatarFn(ctx, accountID)
}

type stubTaskService struct {
	ports.TaskService

	createFn func(ctx context.Context, ownerID string, in ports.CreateTaskInput) (*domain.Task, error)
	listFn   func(ctx context.Context, ownerID string, in ports.ListTasksInput) ([]*domain.Task, error)
	updateFn func(ctx context.Context, id, ownerID string, fields ports.UpdateFields) (*domain.Task, error)
}

func (s *stubTaskService) Create(ctx context.Context, ownerID string, in ports.CreateTaskInput) (*domain.Task, error) {
	return s.createFn(ctx, ownerID, in)
}

func (s *stubTaskService) List(ctx context.Context, ownerID string, in ports.ListTasksInput) ([]*domain.Task, error) {
	return s.listFn(ctx, ownerID, in)
}

func (s *stubTaskService) Update(ctx context.Context, id, ownerID string, fields ports.UpdateFields) (*domain.Task, error) {
	return s.updateFn(ctx, id, ownerID, fields)
}

// newContext builds an echo context as it would look after the Auth
// middleware accepted the request. A nil account skips authentication.
func newContext(method, target string, body io.Reader, contentType string, account *domain.Account) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if account != nil {
		c.Set(middleware.ContextKeyAccount, account)
		c.Set(middleware.ContextKeyToken, "tok-1")
	}
	return c, rec
}

func httpStatus(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}
