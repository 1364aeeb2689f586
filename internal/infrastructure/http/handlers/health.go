package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler handles GET /health, the liveness probe.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// OutboxLen reports the number of mail messages not yet picked up.
type OutboxLen interface {
	Len(ctx context.Context) (int64, error)
}

// HealthDependenciesHandler handles GET /health/ready, the readiness probe.
type HealthDependenciesHandler struct {
	checks map[string]Check
	outbox OutboxLen
}

// NewHealthDependenciesHandler checks MongoDB and Redis and reports the mail
// outbox backlog.
func NewHealthDependenciesHandler(db *mongo.Database, rdb *redis.Client, outbox OutboxLen) *HealthDependenciesHandler {
	return NewReadinessHandler(map[string]Check{
		"mongodb": func(ctx context.Context) error {
			return db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
		},
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}, outbox)
}

// NewReadinessHandler builds a readiness probe from arbitrary checks. outbox
// may be nil.
func NewReadinessHandler(checks map[string]Check, outbox OutboxLen) *HealthDependenciesHandler {
	return &HealthDependenciesHandler{checks: checks, outbox: outbox}
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status        string                      `json:"status"`
	Dependencies  map[string]dependencyStatus `json:"dependencies"`
	OutboxBacklog *int64                      `json:"outbox_backlog,omitempty"`
}

func (h *HealthDependenciesHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]dependencyStatus, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			deps[name] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			healthy = false
			continue
		}
		deps[name] = dependencyStatus{Status: "ok"}
	}

	resp := readinessResponse{Status: "ok", Dependencies: deps}
	if h.outbox != nil {
		if n, err := h.outbox.Len(ctx); err == nil {
			resp.OutboxBacklog = &n
		}
	}

	httpStatus := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, resp)
}
