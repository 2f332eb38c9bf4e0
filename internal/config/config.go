package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Archive access.
	BaseURL         string
	S3Region        string
	S3Endpoint      string
	FetchTimeout    time.Duration
	FetchMaxRetries int
	RegistryPath    string
	DecodeTempDir   string

	// Job store.
	StoreDriver        string
	StoreDSN           string
	StoreTTL           time.Duration
	StorePruneInterval time.Duration

	// Kafka request worker. Disabled unless KAFKA_ENABLED is true.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaRequestTopic  string
	KafkaPayloadTopic  string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "0", true)
	if err != nil {
		return nil, err
	}
	storeTTL, err := parseDuration("STORE_TTL", "24h", true)
	if err != nil {
		return nil, err
	}
	pruneInterval, err := parseDuration("STORE_PRUNE_INTERVAL", "15m", false)
	if err != nil {
		return nil, err
	}

	fetchRetries, err := parseNonNegativeInt("FETCH_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BaseURL:         sharedcfg.EnvOrDefault("CCKP_BASE_URL", "s3://wbg-cckp/data"),
		S3Region:        sharedcfg.EnvOrDefault("CCKP_S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("CCKP_S3_ENDPOINT"),
		FetchTimeout:    fetchTimeout,
		FetchMaxRetries: fetchRetries,
		RegistryPath:    os.Getenv("REGISTRY_PATH"),
		DecodeTempDir:   os.Getenv("DECODE_TEMP_DIR"),

		StoreDriver:        sharedcfg.EnvOrDefault("STORE_DRIVER", "memory"),
		StoreDSN:           os.Getenv("STORE_DSN"),
		StoreTTL:           storeTTL,
		StorePruneInterval: pruneInterval,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRequestTopic:  sharedcfg.EnvOrDefault("KAFKA_REQUEST_TOPIC", "climate-retrieval-requests"),
		KafkaPayloadTopic:  sharedcfg.EnvOrDefault("KAFKA_PAYLOAD_TOPIC", "climate-indicator-payloads"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "climate-indicator-service"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	switch cfg.StoreDriver {
	case "memory":
	case "sqlite3", "postgres":
		if cfg.StoreDSN == "" {
			return nil, fmt.Errorf("STORE_DSN is required for STORE_DRIVER=%s", cfg.StoreDriver)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaRequestTopic == "" {
			return nil, errors.New("KAFKA_REQUEST_TOPIC is required")
		}
		if cfg.KafkaPayloadTopic == "" {
			return nil, errors.New("KAFKA_PAYLOAD_TOPIC is required")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// parseDuration reads a positive duration. With allowZero, "0" disables the
// setting.
func parseDuration(key, fallback string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
