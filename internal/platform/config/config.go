package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validation errors.
var (
	ErrSameSpecialColumns = errors.New("index and label columns must differ")
	ErrS3BucketRequired   = errors.New("BLOB_S3_BUCKET is required for the s3 blob driver")
	ErrInvalidYear        = errors.New("DATASET_YEAR must be positive")
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`

	// Source data
	DataDir                string   `env:"DATA_DIR" envDefault:"data/processed"`
	SourceKey              string   `env:"SOURCE_KEY" envDefault:"crimes_gendarmerie_2021.json"`
	BoundariesKey          string   `env:"BOUNDARIES_KEY" envDefault:"departements.geojson"`
	BoundariesJoinProperty string   `env:"BOUNDARIES_JOIN_PROPERTY" envDefault:"code"`
	DatasetYear            int      `env:"DATASET_YEAR" envDefault:"2021"`
	SourceIndexColumn      string   `env:"SOURCE_INDEX_COLUMN" envDefault:"Année 2021 - compagnies de gendarmerie"`
	SourceLabelColumn      string   `env:"SOURCE_LABEL_COLUMN" envDefault:"Départements"`
	SourceIgnoredColumns   []string `env:"SOURCE_IGNORED_COLUMNS" envDefault:"__id" envSeparator:","`
	ExportPrefix           string   `env:"EXPORT_PREFIX" envDefault:"exports/"`

	// DatasetReloadInterval re-reads the source table periodically. Zero disables it.
	DatasetReloadInterval time.Duration `env:"DATASET_RELOAD_INTERVAL" envDefault:"0s"`

	// Blob storage
	BlobDriver            string `env:"BLOB_DRIVER" envDefault:"fs"`
	BlobS3Bucket          string `env:"BLOB_S3_BUCKET"`
	BlobS3Region          string `env:"BLOB_S3_REGION" envDefault:"us-east-1"`
	BlobS3Endpoint        string `env:"BLOB_S3_ENDPOINT"`
	BlobS3PathStyle       bool   `env:"BLOB_S3_PATH_STYLE" envDefault:"false"`
	BlobS3AccessKeyID     string `env:"BLOB_S3_ACCESS_KEY_ID"`
	BlobS3SecretAccessKey string `env:"BLOB_S3_SECRET_ACCESS_KEY"`

	// Assistant
	PrimaryModel          string        `env:"PRIMARY_MODEL" envDefault:"gpt-4o-mini"`
	SecondaryModel        string        `env:"SECONDARY_MODEL" envDefault:"gpt-4.1-mini"`
	LLMAPIKey             string        `env:"LLM_API_KEY"`
	LLMBaseURL            string        `env:"LLM_BASE_URL"`
	AnthropicAPIKey       string        `env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey          string        `env:"GOOGLE_API_KEY"`
	LLMRateLimitRPS       float64       `env:"LLM_RATE_LIMIT_RPS" envDefault:"1"`
	LLMCircuitThreshold   int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"3"`
	LLMCircuitResetAfter  time.Duration `env:"LLM_CIRCUIT_RESET_AFTER" envDefault:"1m"`
	LLMTimeout            time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMMaxTokens          int           `env:"LLM_MAX_TOKENS" envDefault:"1024"`
	AssistantContextLines int           `env:"ASSISTANT_CONTEXT_LINES" envDefault:"120"`

	// Dashboard
	SessionSecret    string        `env:"SESSION_SECRET"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	SessionMax       int           `env:"SESSION_MAX" envDefault:"500"`
	SessionSweep     time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`

	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites them.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	TopTypesN        int           `env:"TOP_TYPES_N" envDefault:"20"`
	TopSubdivisionsN int           `env:"TOP_SUBDIVISIONS_N" envDefault:"15"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyProviderAliases(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that cannot be expressed as env tags.
func (c *Config) Validate() error {
	if c.SourceIndexColumn == c.SourceLabelColumn {
		return ErrSameSpecialColumns
	}

	if c.DatasetYear <= 0 {
		return ErrInvalidYear
	}

	if c.BlobDriver == "s3" && c.BlobS3Bucket == "" {
		return ErrS3BucketRequired
	}

	return nil
}

// applyProviderAliases accepts the vendor variable names used by the SDKs
// when the LLM_* ones are absent.
func applyProviderAliases(cfg *Config) {
	if !hasEnv("LLM_API_KEY") {
		setStringFromEnv("OPENAI_API_KEY", &cfg.LLMAPIKey)
	}

	if !hasEnv("LLM_BASE_URL") {
		setStringFromEnv("OPENAI_BASE_URL", &cfg.LLMBaseURL)
	}

	if !hasEnv("GOOGLE_API_KEY") {
		setStringFromEnv("GEMINI_API_KEY", &cfg.GoogleAPIKey)
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	*target = val
}
