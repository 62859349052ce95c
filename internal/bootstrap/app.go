package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"insights-backend/internal/eventlog"
	"insights-backend/internal/jobs"
	"insights-backend/internal/llm"
	"insights-backend/internal/llm/openai"
	"insights-backend/internal/queue"
	"insights-backend/internal/sessions"
	"insights-backend/internal/shared/config"
	"insights-backend/internal/shared/server"
	"insights-backend/internal/shared/storage/db"
	"insights-backend/internal/stream"
	"insights-backend/internal/subjects"
)

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Queue  queue.Client

	SubjectsRepo subjects.Repo
	SessionsRepo sessions.Repo
	JobsRepo     jobs.Repo
	EventLog     eventlog.Log

	SubjectsService *subjects.Service
	JobsService     *jobs.Service
	StreamService   *stream.Service
	Orchestrator    *jobs.Orchestrator

	SubjectsHandler *subjects.Handler
	SessionsHandler *sessions.Handler
	JobsHandler     *jobs.Handler
	StreamHandler   *stream.Handler
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Queue:  queueClient,
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		JobsHandler:     app.JobsHandler,
		StreamHandler:   app.StreamHandler,
		SubjectHandler:  app.SubjectsHandler,
		SessionsHandler: app.SessionsHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("IB_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	if app.DB != nil {
		app.SubjectsRepo = &subjects.PGRepo{DB: app.DB}
		app.SessionsRepo = &sessions.PGRepo{DB: app.DB}
		app.JobsRepo = &jobs.PGRepo{DB: app.DB}
		app.EventLog = &eventlog.PGLog{DB: app.DB}
	} else {
		app.SubjectsRepo = subjects.NewMemoryRepo()
		app.SessionsRepo = sessions.NewMemoryRepo()
		app.JobsRepo = jobs.NewMemoryRepo()
		app.EventLog = eventlog.NewMemoryLog()
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		openaiClient, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), app.Config.LLMModel)
		if err != nil {
			return err
		}
		llmClient = openaiClient
	}

	app.Orchestrator = &jobs.Orchestrator{
		Jobs:          app.JobsRepo,
		Sessions:      app.SessionsRepo,
		Log:           app.EventLog,
		LLM:           llmClient,
		Stage1Workers: app.Config.Stage1Workers,
	}

	app.SubjectsService = subjects.NewService(app.SubjectsRepo)
	app.JobsService = &jobs.Service{
		Repo:            app.JobsRepo,
		Subjects:        app.SubjectsRepo,
		Queue:           app.Queue,
		Provider:        app.Config.LLMProvider,
		Model:           app.Config.LLMModel,
		AnalysisVersion: app.Config.AnalysisVersion,
	}
	if app.Queue == nil {
		// Dev fallback: run jobs inline instead of through SQS. The
		// memory event log only works here because the API process is
		// also the producer.
		app.JobsService.Runner = app.Orchestrator
	}
	app.StreamService = &stream.Service{
		Log:          app.EventLog,
		Subjects:     app.SubjectsRepo,
		PollInterval: app.Config.StreamPollInterval,
	}

	app.SubjectsHandler = subjects.NewHandler(app.SubjectsService)
	app.SessionsHandler = sessions.NewHandler(app.SessionsRepo, app.SubjectsRepo)
	app.JobsHandler = jobs.NewHandler(app.JobsService)
	app.StreamHandler = stream.NewHandler(app.StreamService)
	return nil
}
