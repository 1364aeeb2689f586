package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskmanager/task-api/internal/api/metrics"
	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

// AvatarField is the multipart field carrying an avatar upload.
const AvatarField = "avatar"

var avatarExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// AccountHandler handles HTTP requests for accounts, sessions and avatars.
type AccountHandler struct {
	service        ports.AccountService
	maxAvatarBytes int64
}

func NewAccountHandler(service ports.AccountService, maxAvatarBytes int64) *AccountHandler {
	return &AccountHandler{service: service, maxAvatarBytes: maxAvatarBytes}
}

// Signup creates an account and opens its first session.
//
// @Summary      Sign up
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Account details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Router       /users [post]
func (h *AccountHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	account, token, err := h.service.Signup(c.Request().Context(), toSignupInput(req))
	if err != nil {
		return err
	}
	metrics.AccountsCreatedTotal.Inc()

	return c.JSON(http.StatusCreated, authResponse{User: toAccountResponse(account), Token: token})
}

// Login opens a new session for valid credentials.
//
// @Summary      Log in
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Router       /users/login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return err
	}

	account, token, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, authResponse{User: toAccountResponse(account), Token: token})
}

// Logout revokes the session used for this request.
//
// @Summary      Log out the current session
// @Tags         users
// @Security     BearerAuth
// @Success      200
// @Failure      401  {object}  errorResponse
// @Router       /users/logout [post]
func (h *AccountHandler) Logout(c echo.Context) error {
	account, token, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.service.Logout(c.Request().Context(), account, token); err != nil {
		return err
	}
	metrics.SessionsRevokedTotal.WithLabelValues("single").Inc()
	return c.NoContent(http.StatusOK)
}

// LogoutAll revokes every session of the caller.
//
// @Summary      Log out all sessions
// @Tags         users
// @Security     BearerAuth
// @Success      200
// @Failure      401  {object}  errorResponse
// @Router       /users/logoutAll [post]
func (h *AccountHandler) LogoutAll(c echo.Context) error {
	account, _, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.service.LogoutAll(c.Request().Context(), account); err != nil {
		return err
	}
	metrics.SessionsRevokedTotal.WithLabelValues("all").Inc()
	return c.NoContent(http.StatusOK)
}

// Me returns the caller's profile.
//
// @Summary      Get own profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  accountResponse
// @Failure      401  {object}  errorResponse
// @Router       /users/me [get]
func (h *AccountHandler) Me(c echo.Context) error {
	account, _, err := currentSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// UpdateMe applies an allow-listed profile change.
//
// @Summary      Update own profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      object  true  "Any of name, email, password, age"
// @Success      200   {object}  accountResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /users/me [patch]
func (h *AccountHandler) UpdateMe(c echo.Context) error {
	account, _, err := currentSession(c)
	if err != nil {
		return err
	}
	fields, err := bindUpdates(c)
	if err != nil {
		return err
	}

	updated, err := h.service.Update(c.Request().Context(), account, fields)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(updated))
}

// DeleteMe removes the caller's account together with all of its tasks.
//
// @Summary      Delete own account
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  accountResponse
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users/me [delete]
func (h *AccountHandler) DeleteMe(c echo.Context) error {
	account, _, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), account); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResponse(account))
}

// UploadAvatar stores a new avatar for the caller.
//
// @Summary      Upload avatar
// @Tags         users
// @Accept       multipart/form-data
// @Security     BearerAuth
// @Param        avatar  formData  file  true  "JPG, JPEG or PNG image up to 1MB"
// @Success      200
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /users/me/avatar [post]
func (h *AccountHandler) UploadAvatar(c echo.Context) error {
	account, _, err := currentSession(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile(AvatarField)
	if err != nil {
		return domain.NewValidationError(AvatarField, "is required")
	}
	if _, ok := avatarExtensions[strings.ToLower(filepath.Ext(fh.Filename))]; !ok {
		return domain.ErrUnsupportedFormat
	}
	if h.maxAvatarBytes > 0 && fh.Size > h.maxAvatarBytes {
		return domain.NewValidationError(AvatarField, "file too large")
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	start := time.Now()
	err = h.service.SetAvatar(c.Request().Context(), account, raw)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AvatarProcessingDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// DeleteAvatar removes the caller's avatar.
//
// @Summary      Delete avatar
// @Tags         users
// @Security     BearerAuth
// @Success      200
// @Failure      401  {object}  errorResponse
// @Router       /users/me/avatar [delete]
func (h *AccountHandler) DeleteAvatar(c echo.Context) error {
	account, _, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.service.ClearAvatar(c.Request().Context(), account); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// Avatar serves any account's avatar as PNG. No authentication is required.
//
// @Summary      Get avatar
// @Tags         users
// @Produce      png
// @Param        id   path  string  true  "Account id"
// @Success      200  {file}    binary
// @Failure      404  {object}  errorResponse
// @Router       /users/{id}/avatar [get]
func (h *AccountHandler) Avatar(c echo.Context) error {
	png, err := h.service.Avatar(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
