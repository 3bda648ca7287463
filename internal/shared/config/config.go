package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration.
type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL string
	AdminToken  string

	QueueBackend      string
	AWSRegion         string
	SQSQueueURL       string
	RabbitMQURL       string
	RabbitMQQueue     string
	WorkerConcurrency int
	DispatchTimeout   time.Duration

	Recovery         RecoveryPolicy
	RecoveryInterval time.Duration

	MessagingProvider     string
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppAPIVersion    string
	TelegramBotToken      string
	LocalMediaDir         string

	OpenAIAPIKey    string
	LLMModel        string
	TranscribeModel string
	LLMTimeout      time.Duration
	ChunkSizeBytes  int

	ObjectStoreType string
	LocalStoreDir   string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
}

// RecoveryPolicy mirrors the recovery engine settings.
type RecoveryPolicy struct {
	OrphanTimeout    time.Duration
	MaxRetryAttempts int
	RetryDelay       time.Duration
	CleanupFloorDays int
	ScanLimit        int
}

// fileConfig is the optional TOML file layout. Durations are Go duration strings.
type fileConfig struct {
	Recovery struct {
		OrphanTimeout    string `toml:"orphan_timeout"`
		MaxRetryAttempts int    `toml:"max_retry_attempts"`
		RetryDelay       string `toml:"retry_delay"`
		CleanupFloorDays int    `toml:"cleanup_floor_days"`
		ScanLimit        int    `toml:"scan_limit"`
		Interval         string `toml:"interval"`
	} `toml:"recovery"`
	Queue struct {
		Backend     string `toml:"backend"`
		Concurrency int    `toml:"concurrency"`
	} `toml:"queue"`
	Messaging struct {
		Provider string `toml:"provider"`
	} `toml:"messaging"`
}

func defaults() Config {
	return Config{
		Env:               "dev",
		Port:              "8080",
		LogLevel:          "info",
		QueueBackend:      "inline",
		RabbitMQQueue:     "interviews",
		WorkerConcurrency: 4,
		DispatchTimeout:   30 * time.Second,
		Recovery: RecoveryPolicy{
			OrphanTimeout:    60 * time.Minute,
			MaxRetryAttempts: 3,
			RetryDelay:       5 * time.Minute,
			CleanupFloorDays: 7,
			ScanLimit:        500,
		},
		MessagingProvider:  "log",
		WhatsAppAPIVersion: "v21.0",
		LLMModel:           "gpt-4o-mini",
		TranscribeModel:    "whisper-1",
		LLMTimeout:         120 * time.Second,
		ChunkSizeBytes:     20 << 20,
		ObjectStoreType:    "local",
		LocalStoreDir:      "./data",
	}
}

// Load reads configuration from, in increasing precedence: built-in defaults,
// the TOML file named by CONFIG_FILE, and environment variables. Local .env
// files are loaded first without overriding variables already set.
func Load() (Config, error) {
	for _, path := range []string{".env", "cmd/.env"} {
		_ = godotenv.Load(path)
	}

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	r := fc.Recovery
	if err := setDuration(&cfg.Recovery.OrphanTimeout, "recovery.orphan_timeout", r.OrphanTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.Recovery.RetryDelay, "recovery.retry_delay", r.RetryDelay); err != nil {
		return err
	}
	if err := setDuration(&cfg.RecoveryInterval, "recovery.interval", r.Interval); err != nil {
		return err
	}
	setInt(&cfg.Recovery.MaxRetryAttempts, r.MaxRetryAttempts)
	setInt(&cfg.Recovery.CleanupFloorDays, r.CleanupFloorDays)
	setInt(&cfg.Recovery.ScanLimit, r.ScanLimit)
	setInt(&cfg.WorkerConcurrency, fc.Queue.Concurrency)
	if fc.Queue.Backend != "" {
		cfg.QueueBackend = fc.Queue.Backend
	}
	if fc.Messaging.Provider != "" {
		cfg.MessagingProvider = fc.Messaging.Provider
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Env = normalizeEnv(getEnv("ENV", cfg.Env))
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.AdminToken = getEnv("ADMIN_TOKEN", cfg.AdminToken)

	cfg.QueueBackend = normalizeQueueBackend(getEnv("QUEUE_BACKEND", cfg.QueueBackend))
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.SQSQueueURL = getEnv("SQS_QUEUE_URL", cfg.SQSQueueURL)
	cfg.RabbitMQURL = getEnv("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.RabbitMQQueue = getEnv("RABBITMQ_QUEUE", cfg.RabbitMQQueue)

	cfg.MessagingProvider = strings.ToLower(getEnv("MESSAGING_PROVIDER", cfg.MessagingProvider))
	cfg.WhatsAppToken = getEnv("WHATSAPP_TOKEN", cfg.WhatsAppToken)
	cfg.WhatsAppPhoneNumberID = getEnv("WHATSAPP_PHONE_NUMBER_ID", cfg.WhatsAppPhoneNumberID)
	cfg.WhatsAppAPIVersion = getEnv("WHATSAPP_API_VERSION", cfg.WhatsAppAPIVersion)
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.LocalMediaDir = getEnv("LOCAL_MEDIA_DIR", cfg.LocalMediaDir)

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.LLMModel = getEnv("LLM_MODEL", cfg.LLMModel)
	cfg.TranscribeModel = getEnv("TRANSCRIBE_MODEL", cfg.TranscribeModel)

	cfg.ObjectStoreType = normalizeStoreType(getEnv("OBJECT_STORE", cfg.ObjectStoreType))
	cfg.LocalStoreDir = getEnv("LOCAL_STORE_DIR", cfg.LocalStoreDir)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.SSEKMSKeyID = getEnv("SSE_KMS_KEY_ID", cfg.SSEKMSKeyID)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ORPHAN_TIMEOUT", &cfg.Recovery.OrphanTimeout},
		{"RETRY_DELAY", &cfg.Recovery.RetryDelay},
		{"RECOVERY_INTERVAL", &cfg.RecoveryInterval},
		{"DISPATCH_TIMEOUT", &cfg.DispatchTimeout},
		{"LLM_TIMEOUT", &cfg.LLMTimeout},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key, os.Getenv(d.key)); err != nil {
			return err
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_RETRY_ATTEMPTS", &cfg.Recovery.MaxRetryAttempts},
		{"CLEANUP_FLOOR_DAYS", &cfg.Recovery.CleanupFloorDays},
		{"RECOVERY_SCAN_LIMIT", &cfg.Recovery.ScanLimit},
		{"WORKER_CONCURRENCY", &cfg.WorkerConcurrency},
		{"CHUNK_SIZE_BYTES", &cfg.ChunkSizeBytes},
	}
	for _, n := range ints {
		raw := strings.TrimSpace(os.Getenv(n.key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", n.key, raw)
		}
		*n.dst = v
	}
	return nil
}

// Validate rejects configurations that cannot run in the selected environment.
func (c Config) Validate() error {
	var errs []error
	if c.Env == "production" {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if c.AdminToken == "" {
			errs = append(errs, errors.New("ADMIN_TOKEN is required in production"))
		}
	}
	switch c.QueueBackend {
	case "sqs":
		if c.SQSQueueURL == "" {
			errs = append(errs, errors.New("SQS_QUEUE_URL is required when QUEUE_BACKEND=sqs"))
		}
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required when QUEUE_BACKEND=rabbitmq"))
		}
	}
	if c.ObjectStoreType == "s3" && c.S3Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required when OBJECT_STORE=s3"))
	}
	if c.RecoveryInterval < 0 {
		errs = append(errs, errors.New("RECOVERY_INTERVAL must not be negative"))
	}
	if c.ChunkSizeBytes <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func setDuration(dst *time.Duration, name, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	*dst = d
	return nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeQueueBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "rabbitmq", "amqp":
		return "rabbitmq"
	default:
		return "inline"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
