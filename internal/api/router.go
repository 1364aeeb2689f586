package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/taskmanager/task-api/internal/api/handler"
	"github.com/taskmanager/task-api/internal/api/middleware"
	"github.com/taskmanager/task-api/internal/core/ports"
	"github.com/taskmanager/task-api/internal/infrastructure/http/handlers"
)

// RouterDeps carries everything NewRouter wires into routes.
type RouterDeps struct {
	Accounts       ports.AccountService
	Tasks          ports.TaskService
	Tokens         ports.TokenService
	Readiness      *handlers.HealthDependenciesHandler
	MaxAvatarBytes int64
	Log            zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps RouterDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddleware("taskapi"))

	accountHandler := handler.NewAccountHandler(deps.Accounts, deps.MaxAvatarBytes)
	taskHandler := handler.NewTaskHandler(deps.Tasks)
	auth := middleware.Auth(deps.Tokens, deps.Accounts, deps.Log)

	// --- Public routes ---
	e.POST("/users", accountHandler.Signup)
	e.POST("/users/login", accountHandler.Login)
	e.GET("/users/:id/avatar", accountHandler.Avatar)

	// --- Authenticated routes ---
	users := e.Group("/users", auth)
	users.POST("/logout", accountHandler.Logout)
	users.POST("/logoutAll", accountHandler.LogoutAll)
	users.GET("/me", accountHandler.Me)
	users.PATCH("/me", accountHandler.UpdateMe)
	users.DELETE("/me", accountHandler.DeleteMe)
	users.POST("/me/avatar", accountHandler.UploadAvatar)
	users.DELETE("/me/avatar", accountHandler.DeleteAvatar)

	tasks := e.Group("/tasks", auth)
	tasks.POST("", taskHandler.Create)
	tasks.GET("", taskHandler.List)
	tasks.GET("/:id", taskHandler.Get)
	tasks.PATCH("/:id", taskHandler.Update)
	tasks.DELETE("/:id", taskHandler.Delete)

	// --- Operational routes (no auth required) ---
	e.GET("/health", handlers.NewHealthHandler().Liveness)
	if deps.Readiness != nil {
		e.GET("/health/ready", deps.Readiness.Readiness)
	}
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger emits one structured line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
