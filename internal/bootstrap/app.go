package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/dispatch"
	"interview-backend/internal/interviews"
	"interview-backend/internal/llm"
	openai "interview-backend/internal/llm/openai"
	"interview-backend/internal/messaging"
	"interview-backend/internal/pipeline"
	"interview-backend/internal/queue"
	"interview-backend/internal/recovery"
	"interview-backend/internal/services/health"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/server"
	"interview-backend/internal/shared/storage/db"
	"interview-backend/internal/shared/storage/object"
	localstore "interview-backend/internal/shared/storage/object/local"
	s3store "interview-backend/internal/shared/storage/object/s3"
	"interview-backend/internal/shared/telemetry"
)

// App holds shared dependencies for every entry point.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Repo       interviews.Repo
	Store      object.Store
	Messaging  messaging.Provider
	Pipeline   *pipeline.Processor
	Queue      queue.Client
	Rabbit     *queue.RabbitMQClient
	Dispatcher *dispatch.Dispatcher
	Engine     *recovery.Engine
	Trigger    *recovery.Trigger
	Handler    *recovery.Handler
	Health     *health.Service
}

// Build prepares shared dependencies and the HTTP router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	telemetry.SetLevel(cfg.LogLevel)

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.Repo = interviews.NewPGRepo(sqlDB)
		app.Health = health.NewService(map[string]health.Pinger{"db": sqlDB})
	} else {
		app.Repo = interviews.NewMemoryRepo()
		app.Health = health.NewService(nil)
	}

	if app.Store, err = buildStore(ctx, cfg); err != nil {
		return nil, err
	}
	if app.Messaging, err = messaging.New(messaging.Config{
		Provider:              cfg.MessagingProvider,
		WhatsAppToken:         cfg.WhatsAppToken,
		WhatsAppPhoneNumberID: cfg.WhatsAppPhoneNumberID,
		WhatsAppAPIVersion:    cfg.WhatsAppAPIVersion,
		TelegramBotToken:      cfg.TelegramBotToken,
		LocalMediaDir:         cfg.LocalMediaDir,
	}); err != nil {
		return nil, err
	}

	transcriber, analyzer, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	app.Pipeline = &pipeline.Processor{
		Repo:        app.Repo,
		Media:       app.Messaging,
		Notifier:    app.Messaging,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Store:       app.Store,
		ChunkSize:   cfg.ChunkSizeBytes,
	}

	if err := buildQueue(ctx, app); err != nil {
		return nil, err
	}
	app.Dispatcher = &dispatch.Dispatcher{Timeout: cfg.DispatchTimeout}
	if app.Queue != nil {
		app.Dispatcher.Submitter = dispatch.QueueSubmitter{Client: app.Queue}
	} else {
		app.Dispatcher.Submitter = dispatch.InlineSubmitter{Processor: app.Pipeline}
	}

	app.Engine, err = recovery.NewEngine(app.Repo, app.Messaging, app.Dispatcher, recovery.Config{
		OrphanTimeout:    cfg.Recovery.OrphanTimeout,
		MaxRetryAttempts: cfg.Recovery.MaxRetryAttempts,
		RetryDelay:       cfg.Recovery.RetryDelay,
		CleanupFloorDays: cfg.Recovery.CleanupFloorDays,
		ScanLimit:        cfg.Recovery.ScanLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("recovery policy: %w", err)
	}
	app.Trigger = &recovery.Trigger{Runner: app.Engine}
	app.Handler = recovery.NewHandler(app.Engine, app.Trigger)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Health:   app.Health,
		Recovery: app.Handler,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"repo":         repoKind(sqlDB),
		"object_store": cfg.ObjectStoreType,
		"queue":        cfg.QueueBackend,
		"messaging":    app.Messaging.Name(),
	})
	return app, nil
}

// Close waits for in-flight background work and releases connections.
func (a *App) Close() error {
	if a.Trigger != nil {
		a.Trigger.Wait()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	var errs []error
	if a.Rabbit != nil {
		errs = append(errs, a.Rabbit.Close())
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	opts := db.OptionsFromEnv(db.Defaults(db.RuntimeProfile()))
	if db.IsLambdaRuntime() {
		sqlDB, err = db.Shared(ctx, cfg.DatabaseURL, opts)
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		return nil, err
	}

	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLLM(cfg config.Config) (llm.Transcriber, llm.Analyzer, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		telemetry.Warn("bootstrap.llm.placeholder", map[string]any{"reason": "OPENAI_API_KEY empty"})
		return llm.PlaceholderClient{}, llm.PlaceholderClient{}, nil
	}
	client, err := openai.NewClient(openai.Options{
		APIKey:          cfg.OpenAIAPIKey,
		ChatModel:       cfg.LLMModel,
		TranscribeModel: cfg.TranscribeModel,
		Timeout:         cfg.LLMTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	retrying := llm.Retrying{Transcriber: client, Analyzer: client}
	return retrying, retrying, nil
}

func buildQueue(ctx context.Context, app *App) error {
	cfg := app.Config
	switch cfg.QueueBackend {
	case "sqs":
		client, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
		if err != nil {
			return err
		}
		app.Queue = client
	case "rabbitmq":
		client, err := queue.NewRabbitMQClient(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			return err
		}
		app.Queue = client
		app.Rabbit = client
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}

func repoKind(sqlDB *sql.DB) string {
	if sqlDB == nil {
		return "memory"
	}
	return "postgres"
}
