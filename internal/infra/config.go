package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StaticKey binds a configured API key to a token identity.
type StaticKey struct {
	Key      string
	TokenID  int64
	Username string
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	DBMaxConns    int
	StorageDriver string
	JWTSecret     string
	APIKeys       []StaticKey
	PublicBaseURL string

	BackendBaseURL      string
	BackendAPIKey       string
	BackendTimeout      time.Duration
	BackendPollInterval time.Duration
	DispatchMaxInFlight int
	MaxUploadBytes      int64

	BlobDriver  string
	StoragePath string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	RedisAddr    string
	KafkaBrokers string
	KafkaTopic   string

	GeoIPDBPath  string
	OTLPEndpoint string

	FeedScoreWeightLikes float64
	FeedScoreWeightViews float64
	SeedFakePosts        int

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// UsesPostgres reports whether repositories should be backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.StorageDriver == "postgres"
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		StorageDriver: strings.ToLower(os.Getenv("STORAGE_DRIVER")),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),

		BackendBaseURL:      os.Getenv("BACKEND_BASE_URL"),
		BackendAPIKey:       os.Getenv("BACKEND_API_KEY"),
		BackendTimeout:      time.Second * time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 600)),
		BackendPollInterval: time.Millisecond * time.Duration(getEnvInt("BACKEND_POLL_INTERVAL_MS", 1000)),
		DispatchMaxInFlight: getEnvInt("DISPATCH_MAX_INFLIGHT", 16),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_MB", 32)) << 20,

		BlobDriver:  getEnv("BLOB_DRIVER", "fs"),
		StoragePath: getEnv("STORAGE_PATH", "./data/blobs"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    getEnv("S3_BUCKET", "characters"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "gateway.events"),

		GeoIPDBPath:  os.Getenv("GEOIP_DB_PATH"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		FeedScoreWeightLikes: getEnvFloat("FEED_SCORE_WEIGHT_LIKES", 3600),
		FeedScoreWeightViews: getEnvFloat("FEED_SCORE_WEIGHT_VIEWS", 60),
		SeedFakePosts:        getEnvInt("SEED_FAKE_POSTS", 0),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 660)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	if cfg.StorageDriver == "" {
		cfg.StorageDriver = "memory"
		if cfg.DatabaseURL != "" {
			cfg.StorageDriver = "postgres"
		}
	}
	switch cfg.StorageDriver {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER %q is not supported", cfg.StorageDriver)
	}

	switch cfg.BlobDriver {
	case "fs":
	case "s3":
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT is required when BLOB_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("BLOB_DRIVER %q is not supported", cfg.BlobDriver)
	}

	keys, err := parseStaticKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.APIKeys = keys

	if cfg.JWTSecret == "" && len(cfg.APIKeys) == 0 && cfg.StorageDriver == "memory" {
		return nil, fmt.Errorf("JWT_SECRET or API_KEYS is required")
	}

	if cfg.DispatchMaxInFlight <= 0 {
		return nil, fmt.Errorf("DISPATCH_MAX_INFLIGHT must be positive")
	}
	// Synchronous submissions hold the response open for the whole backend call.
	if cfg.HTTPWriteTimeout <= cfg.BackendTimeout {
		cfg.HTTPWriteTimeout = cfg.BackendTimeout + time.Minute
	}

	return cfg, nil
}

// parseStaticKeys reads "key:token_id:username" triples separated by commas.
func parseStaticKeys(raw string) ([]StaticKey, error) {
	var out []StaticKey
	for _, item := range splitList(raw) {
		parts := strings.Split(item, ":")
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("API_KEYS entry %q must be key:token_id:username", item)
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("API_KEYS entry %q has an invalid token id", item)
		}
		out = append(out, StaticKey{Key: parts[0], TokenID: id, Username: parts[2]})
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
