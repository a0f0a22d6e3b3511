package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	JobStorePostgres = "postgres"
	JobStoreMemory   = "memory"

	StorageDriverFS    = "fs"
	StorageDriverMinio = "minio"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	DBAutoMigrate    bool
	JobStore         string
	JWTSecret        string
	CORSOrigins      []string
	RateLimitPerMin  int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	StorageDriver  string
	StoragePath    string
	StorageBaseURL string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIOrg        string
	OpenAIImageModel string
	OpenAIChatModel  string
	ImageTimeout     time.Duration

	RedisURL       string
	GuardTTL       time.Duration
	StallTimeout   time.Duration
	SweepInterval  time.Duration
	GeoIPDBPath    string
	MaxUploadBytes int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	driver := strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFS))
	// minio derives public URLs from its endpoint unless told otherwise
	baseURL := ""
	if driver == StorageDriverFS {
		baseURL = "http://localhost:" + port + "/static"
	}
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBAutoMigrate:    getEnvBool("DB_AUTO_MIGRATE", false),
		JobStore:         strings.ToLower(getEnv("JOB_STORE", JobStorePostgres)),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		CORSOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		StorageDriver:  driver,
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", baseURL),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "cutoutly"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		OpenAIChatModel:  getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		ImageTimeout:     time.Second * time.Duration(getEnvInt("IMAGE_TIMEOUT_SECONDS", 150)),

		RedisURL:       os.Getenv("REDIS_URL"),
		GuardTTL:       time.Second * time.Duration(getEnvInt("GUARD_TTL_SECONDS", 300)),
		StallTimeout:   time.Minute * time.Duration(getEnvInt("STALL_TIMEOUT_MINUTES", 30)),
		SweepInterval:  time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 60)),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		MaxUploadBytes: getEnvInt("MAX_UPLOAD_BYTES", 10<<20),
	}

	switch cfg.JobStore {
	case JobStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case JobStoreMemory:
	default:
		return nil, fmt.Errorf("JOB_STORE must be %q or %q", JobStorePostgres, JobStoreMemory)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.StorageDriver {
	case StorageDriverFS:
	case StorageDriverMinio:
		if cfg.MinioEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required for the minio storage driver")
		}
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverFS, StorageDriverMinio)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
