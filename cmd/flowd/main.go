package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	_ "github.com/lib/pq"

	"github.com/nexflow/flowd/internal/access"
	"github.com/nexflow/flowd/internal/api"
	"github.com/nexflow/flowd/internal/config"
	"github.com/nexflow/flowd/internal/db"
	"github.com/nexflow/flowd/internal/dispatch"
	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/handlers"
	"github.com/nexflow/flowd/internal/repository"
	"github.com/nexflow/flowd/internal/suggest"
	"github.com/nexflow/flowd/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("flowd v0.1.0")
	fmt.Println("Usage: flowd serve")
}

func serve() {
	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	workflowsMem := repository.NewMemoryWorkflowRepository()
	versionsMem := repository.NewMemoryVersionRepository()
	executionsMem := repository.NewMemoryExecutionRepository()
	logsMem := repository.NewMemoryExecutionLogRepository()
	permsMem := repository.NewMemoryPermissionRepository()

	var workflows repository.WorkflowRepository = workflowsMem
	var versions repository.VersionRepository = versionsMem
	var executions repository.ExecutionRepository = executionsMem
	var logs repository.ExecutionLogRepository = logsMem
	var perms repository.PermissionRepository = permsMem

	if cfg.Database.URL != "" {
		database, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database error", "err", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			slog.Error("migration error", "err", err)
			os.Exit(1)
		}
		workflows = repository.NewPersistentWorkflowRepository(workflowsMem, database)
		versions = repository.NewPersistentVersionRepository(versionsMem, database)
		executions = repository.NewPersistentExecutionRepository(executionsMem, database)
		logs = repository.NewPersistentExecutionLogRepository(logsMem, database)
		perms = repository.NewPersistentPermissionRepository(permsMem, database)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("no database configured, state is in-memory only")
	}

	accessSvc := access.NewService(perms, workflows)
	manager := version.NewManager(workflows, versions, accessSvc)

	var chat suggest.ChatClient
	if cfg.Suggest.URL != "" {
		chat = suggest.NewOpenAIClient(cfg.Suggest.URL, cfg.Suggest.APIKey, cfg.Suggest.Model)
	}
	registry := engine.NewRegistry()
	handlers.RegisterDefaults(registry, chat)

	eng := engine.New(registry, executions, logs, cfg.Engine.NodeTimeout)
	limiter := dispatch.NewLimiter(dispatch.Limits{
		GlobalMax:       cfg.Dispatcher.GlobalMax,
		PerOrganization: cfg.Dispatcher.PerOrganization,
	})
	dispatcher := dispatch.New(workflows, versions, executions, eng, limiter)
	defer dispatcher.Close()

	scheduler := dispatch.NewScheduler(dispatcher)
	scheduler.Start()
	defer scheduler.Stop()

	srv := api.NewServer(manager, accessSvc, dispatcher, workflows, versions, executions, logs, perms)
	srv.SetScheduler(scheduler)
	if cfg.Auth.JWTSecret != "" {
		srv.SetJWTSecret(cfg.Auth.JWTSecret)
	} else {
		slog.Warn("no JWT secret configured, trusting identity headers")
	}
	if chat != nil {
		srv.SetSuggester(&suggest.LLMProvider{Client: chat})
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting flowd server", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
