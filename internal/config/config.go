package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"correction-workflow/internal/domain"
)

const (
	defaultHTTPPort        = "8080"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "approval-notifications"
	defaultMinioEndpoint   = "localhost:9000"
	defaultMinioBucket     = "outbound-mail"
	defaultMailFrom        = "approvals@localhost"
	defaultAppEnv          = "development"
	defaultLogLevel        = "info"
)

type Config struct {
	HTTPPort          string
	PostgresDSN       string
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string
	NotifyIDPrefix    string
	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioBucket       string
	MinioUseSSL       bool
	MailFrom          string
	AppBaseURL        string

	ApproveAction string
	RejectAction  string
	RevisionState string
	ClosedState   string

	RequestTimeoutSec int
	BulkMaxDocuments  int
	AppEnv            string
	LogLevel          string
	RoleMappingFile   string
}

// Load reads the environment, after applying a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		HTTPPort:          getenv("HTTP_PORT", defaultHTTPPort),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		TemporalAddress:   getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace: getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue: getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		NotifyIDPrefix:    getenv("NOTIFY_WORKFLOW_PREFIX", "stage-notify-"),
		MinioEndpoint:     getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:       getenv("MINIO_BUCKET", defaultMinioBucket),
		MinioUseSSL:       getenvBool("MINIO_USE_SSL", false),
		MailFrom:          getenv("MAIL_FROM", defaultMailFrom),
		AppBaseURL:        os.Getenv("APP_BASE_URL"),

		ApproveAction: getenv("APPROVE_ACTION", domain.DefaultApproveAction),
		RejectAction:  getenv("REJECT_ACTION", domain.DefaultRejectAction),
		RevisionState: getenv("REVISION_STATE", domain.DefaultRevisionState),
		ClosedState:   getenv("CLOSED_STATE", domain.DefaultClosedState),

		RequestTimeoutSec: getenvInt("REQUEST_TIMEOUT_SEC", 10),
		BulkMaxDocuments:  getenvInt("BULK_MAX_DOCUMENTS", 100),
		AppEnv:            getenv("APP_ENV", defaultAppEnv),
		LogLevel:          getenv("LOG_LEVEL", defaultLogLevel),
		RoleMappingFile:   os.Getenv("ROLE_MAPPING_FILE"),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.ApproveAction == cfg.RejectAction {
		return Config{}, fmt.Errorf("APPROVE_ACTION and REJECT_ACTION must differ, both are %q", cfg.RejectAction)
	}
	if cfg.RequestTimeoutSec <= 0 {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT_SEC must be positive, got %d", cfg.RequestTimeoutSec)
	}
	if cfg.BulkMaxDocuments <= 0 {
		return Config{}, fmt.Errorf("BULK_MAX_DOCUMENTS must be positive, got %d", cfg.BulkMaxDocuments)
	}

	return cfg, nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
