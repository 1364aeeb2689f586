// @title                       Task Manager API
// @version                     1.0
// @description                 Multi-tenant task tracking with token sessions.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/taskmanager/task-api/docs"
	"github.com/taskmanager/task-api/internal/api"
	"github.com/taskmanager/task-api/internal/core/service"
	mongodb "github.com/taskmanager/task-api/internal/infrastructure/db/mongo"
	redisdb "github.com/taskmanager/task-api/internal/infrastructure/db/redis"
	"github.com/taskmanager/task-api/internal/infrastructure/http/handlers"
	"github.com/taskmanager/task-api/internal/infrastructure/imaging"
	"github.com/taskmanager/task-api/internal/infrastructure/queue"
	"github.com/taskmanager/task-api/internal/pkg/config"
	"github.com/taskmanager/task-api/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "task-api",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = rdb.Close() }()

	accountRepo := mongodb.NewAccountRepository(db)
	taskRepo := mongodb.NewTaskRepository(db)
	if err := accountRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("account indexes")
	}
	if err := taskRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("task indexes")
	}

	tokens, err := service.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}

	outbox := redisdb.NewOutbox(rdb, cfg.Notify.OutboxKey, cfg.Notify.From)
	dispatcher := queue.NewDispatcher(cfg.Notify.Workers, cfg.Notify.Buffer, outbox, log)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcher.Start(workerCtx)

	taskService := service.NewTaskService(taskRepo, log)
	accountService := service.NewAccountService(service.AccountDeps{
		Accounts: accountRepo,
		Tasks:    taskService,
		Tx:       mongodb.NewTransactor(client, cfg.Mongo.Transactions),
		Hasher:   service.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:   tokens,
		Notifier: dispatcher,
		Avatars:  imaging.NewNormalizer(),
	}, log)

	e := api.NewRouter(api.RouterDeps{
		Accounts:       accountService,
		Tasks:          taskService,
		Tokens:         tokens,
		Readiness:      handlers.NewHealthDependenciesHandler(db, rdb, outbox),
		MaxAvatarBytes: cfg.Avatar.MaxBytes,
		Log:            log,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	stopWorkers()
	dispatcher.Wait()
}
