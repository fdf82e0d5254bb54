package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const DefaultPortalURL = "https://ekrs.ms.gov.pl/rdf/pd/search_df"

type Config struct {
	DatabaseURL           string
	InputQueueURL         string
	RedisHost             string
	RedisPort             string
	AWSRegion             string
	AWSEndpointURL        string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	PortalURL             string
	PortalTimeout         time.Duration
	PortalRequestInterval time.Duration
	NumWorkers            int
	JobLivenessTTL        time.Duration
	JobQueuedTTL          time.Duration
	BatchSize             int
	DocumentsBucket       string
	DynamoDBTable         string
	OpenSearchURL         string
	LogLevel              string
}

// Load reads the configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		InputQueueURL:      getEnv("INPUT_QUEUE_URL", ""),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		AWSRegion:          getEnv("AWS_REGION", "eu-central-1"),
		AWSEndpointURL:     getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		PortalURL:          getEnv("PORTAL_URL", DefaultPortalURL),
		DocumentsBucket:    getEnv("DOCUMENTS_BUCKET", ""),
		DynamoDBTable:      getEnv("DYNAMODB_TABLE", ""),
		OpenSearchURL:      getEnv("OPENSEARCH_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.PortalTimeout, err = getDuration("PORTAL_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.PortalRequestInterval, err = getDuration("PORTAL_REQUEST_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.JobLivenessTTL, err = getDuration("JOB_LIVENESS_TTL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JobQueuedTTL, err = getDuration("JOB_QUEUED_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.NumWorkers, err = getInt("NUM_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getInt("DB_BATCH_SIZE", 100); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("NUM_WORKERS must be positive, got %d", cfg.NumWorkers)
	}
	if cfg.JobLivenessTTL <= 0 {
		return nil, fmt.Errorf("JOB_LIVENESS_TTL must be positive, got %s", cfg.JobLivenessTTL)
	}

	return cfg, nil
}

// RequireQueue is checked by the commands that talk to the broker.
func (c *Config) RequireQueue() error {
	if c.InputQueueURL == "" {
		return fmt.Errorf("INPUT_QUEUE_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
