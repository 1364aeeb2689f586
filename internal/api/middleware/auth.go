package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/taskmanager/task-api/internal/api/metrics"
	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

// Context keys set by Auth for downstream handlers.
const (
	ContextKeyAccount = "account"
	ContextKeyToken   = "token"
)

const rejectMessage = "Please authenticate."

// SessionFinder resolves an account from a live session token.
type SessionFinder interface {
	FindBySessionToken(ctx context.Context, accountID, token string) (*domain.Account, error)
}

// Auth verifies the bearer token and checks it is still one of the account's
// sessions. Every rejection is the same 401 so callers cannot tell a forged
// token from a revoked one.
func Auth(tokens ports.TokenService, sessions SessionFinder, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return reject("missing_token")
			}

			accountID, err := tokens.Verify(token)
			if err != nil {
				return reject("invalid_token")
			}

			account, err := sessions.FindBySessionToken(c.Request().Context(), accountID, token)
			if err != nil {
				if errors.Is(err, domain.ErrSessionNotFound) {
					return reject("session_revoked")
				}
				log.Error().Err(err).Str("account_id", accountID).Msg("session lookup failed")
				return reject("lookup_failed")
			}

			c.Set(ContextKeyAccount, account)
			c.Set(ContextKeyToken, token)

			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func reject(reason string) error {
	metrics.AuthRejectionsTotal.WithLabelValues(reason).Inc()
	return echo.NewHTTPError(http.StatusUnauthorized, rejectMessage)
}
