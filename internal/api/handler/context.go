package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmanager/task-api/internal/api/middleware"
	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

// currentSession returns the account and token placed on the context by the
// Auth middleware. A missing value means the route was mounted without the
// guard, which is treated as unauthenticated.
func currentSession(c echo.Context) (*domain.Account, string, error) {
	account, ok := c.Get(middleware.ContextKeyAccount).(*domain.Account)
	if !ok || account == nil {
		return nil, "", echo.NewHTTPError(http.StatusUnauthorized, "Please authenticate.")
	}
	token, _ := c.Get(middleware.ContextKeyToken).(string)
	return account, token, nil
}

// bindUpdates decodes the request body as a free-form JSON object. Only the
// body is read, so path parameters never end up as update keys.
func bindUpdates(c echo.Context) (ports.UpdateFields, error) {
	fields := ports.UpdateFields{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &fields); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return fields, nil
}
