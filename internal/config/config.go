package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLambda = "lambda"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Translate     TranslateConfig
	History       HistoryConfig
	ObjectStore   ObjectStoreConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// AIConfig selects and configures the text generation backend.
type AIConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	LambdaFunction string
	Region         string
}

// TranslateConfig bounds a single translation: input size, per-attempt budget,
// retry count and backoff, and the deadline for the whole attempt sequence.
type TranslateConfig struct {
	MaxInputChars  int
	AttemptTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	OverallTimeout time.Duration
}

type HistoryConfig struct {
	Enabled         bool
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ArchiveConfig struct {
	Schedule  string
	BatchSize int
	CreatedBy string
}

type ObservabilityConfig struct {
	LogLevel      slog.Level
	LogJSON       bool
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LoadFromEnv reads the process environment. When SQLTR_CONFIG_FILE names a
// file, its keys fill in whatever the environment leaves unset.
func LoadFromEnv(serviceName string) (Config, error) {
	lookup := LookupFunc(os.LookupEnv)
	if path, ok := os.LookupEnv("SQLTR_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		fileLookup, err := FileLookup(strings.TrimSpace(path))
		if err != nil {
			return Config{}, err
		}
		lookup = ChainLookup(lookup, fileLookup)
	}
	return Load(serviceName, lookup)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLTR_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLTR_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "SQLTR_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SQLTR_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SQLTR_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SQLTR_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SQLTR_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyInt64(lookup, "SQLTR_HTTP_MAX_BODY_BYTES", &cfg.HTTP.MaxBodyBytes) },
		func() error { return applyDuration(lookup, "SQLTR_HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout) },

		func() error { return applyString(lookup, "SQLTR_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "SQLTR_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "SQLTR_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "SQLTR_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "SQLTR_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyInt(lookup, "SQLTR_AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyString(lookup, "SQLTR_AI_LAMBDA_FUNCTION", &cfg.AI.LambdaFunction) },
		func() error { return applyString(lookup, "SQLTR_AI_REGION", &cfg.AI.Region) },

		func() error { return applyInt(lookup, "SQLTR_TRANSLATE_MAX_INPUT_CHARS", &cfg.Translate.MaxInputChars) },
		func() error { return applyDuration(lookup, "SQLTR_TRANSLATE_ATTEMPT_TIMEOUT", &cfg.Translate.AttemptTimeout) },
		func() error { return applyInt(lookup, "SQLTR_TRANSLATE_MAX_RETRIES", &cfg.Translate.MaxRetries) },
		func() error { return applyDuration(lookup, "SQLTR_TRANSLATE_INITIAL_BACKOFF", &cfg.Translate.InitialBackoff) },
		func() error { return applyDuration(lookup, "SQLTR_TRANSLATE_MAX_BACKOFF", &cfg.Translate.MaxBackoff) },
		func() error { return applyDuration(lookup, "SQLTR_TRANSLATE_OVERALL_TIMEOUT", &cfg.Translate.OverallTimeout) },

		func() error { return applyBool(lookup, "SQLTR_HISTORY_ENABLED", &cfg.History.Enabled) },
		func() error { return applyString(lookup, "SQLTR_HISTORY_DSN", &cfg.History.DSN) },
		func() error { return applyInt(lookup, "SQLTR_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns) },
		func() error { return applyInt(lookup, "SQLTR_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "SQLTR_HISTORY_CONN_MAX_IDLE_TIME", &cfg.History.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "SQLTR_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime)
		},

		func() error { return applyBool(lookup, "SQLTR_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "SQLTR_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "SQLTR_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "SQLTR_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "SQLTR_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "SQLTR_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "SQLTR_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "SQLTR_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "SQLTR_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},

		func() error { return applyString(lookup, "SQLTR_ARCHIVE_SCHEDULE", &cfg.Archive.Schedule) },
		func() error { return applyInt(lookup, "SQLTR_ARCHIVE_BATCH_SIZE", &cfg.Archive.BatchSize) },
		func() error { return applyString(lookup, "SQLTR_ARCHIVE_CREATED_BY", &cfg.Archive.CreatedBy) },

		func() error { return applyBool(lookup, "SQLTR_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SQLTR_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyString(lookup, "SQLTR_LOG_FILE", &cfg.Observability.LogFile) },
		func() error { return applyInt(lookup, "SQLTR_LOG_MAX_SIZE_MB", &cfg.Observability.LogMaxSizeMB) },
		func() error { return applyInt(lookup, "SQLTR_LOG_MAX_BACKUPS", &cfg.Observability.LogMaxBackups) },
		func() error { return applyInt(lookup, "SQLTR_LOG_MAX_AGE_DAYS", &cfg.Observability.LogMaxAgeDays) },

		func() error { return applyBool(lookup, "SQLTR_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "SQLTR_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.AI.Provider {
	case "", ProviderOpenAI, ProviderGemini, ProviderLambda:
	default:
		return fmt.Errorf("invalid SQLTR_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.Translate.MaxInputChars <= 0 {
		return fmt.Errorf("invalid SQLTR_TRANSLATE_MAX_INPUT_CHARS: must be > 0")
	}
	if cfg.Translate.AttemptTimeout <= 0 {
		return fmt.Errorf("invalid SQLTR_TRANSLATE_ATTEMPT_TIMEOUT: must be > 0")
	}
	if cfg.Translate.MaxRetries < 0 {
		return fmt.Errorf("invalid SQLTR_TRANSLATE_MAX_RETRIES: must be >= 0")
	}
	if cfg.Translate.OverallTimeout < cfg.Translate.AttemptTimeout {
		return fmt.Errorf("invalid SQLTR_TRANSLATE_OVERALL_TIMEOUT: must be >= attempt timeout")
	}
	// A write deadline at or below the overall deadline drops the 504 body.
	if cfg.HTTP.WriteTimeout > 0 && cfg.HTTP.WriteTimeout <= cfg.Translate.OverallTimeout {
		return fmt.Errorf("invalid SQLTR_HTTP_WRITE_TIMEOUT: must be > translate overall timeout (%s)", cfg.Translate.OverallTimeout)
	}
	if cfg.Archive.BatchSize <= 0 {
		return fmt.Errorf("invalid SQLTR_ARCHIVE_BATCH_SIZE: must be > 0")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqltranslator-api"},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			Temperature: 0.1,
			Region:      "us-east-1",
		},
		Translate: TranslateConfig{
			MaxInputChars:  4000,
			AttemptTimeout: 15 * time.Second,
			MaxRetries:     2,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			OverallTimeout: 40 * time.Second,
		},
		History: HistoryConfig{
			Enabled:         false,
			DSN:             "sqlite://sqltranslator.db",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqltranslator",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Archive: ArchiveConfig{
			Schedule:  "@every 5m",
			BatchSize: 1000,
			CreatedBy: "sqltranslator-archiver",
		},
		Observability: ObservabilityConfig{
			LogLevel:      slog.LevelDebug,
			LogJSON:       true,
			LogMaxSizeMB:  10,
			LogMaxBackups: 5,
			LogMaxAgeDays: 28,
		},
		Auth: AuthConfig{
			Required: false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
