package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Config aggregates runtime configuration for the GoUpload API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	MinIO    MinIOConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	Upload   UploadConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret string
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// UploadConfig governs the resumable upload subsystem.
type UploadConfig struct {
	// MaxFileSize caps the declared total size of a session.
	MaxFileSize int64
	// MaxOwnerActiveBytes caps the combined declared size of one owner's
	// live sessions. Zero disables the quota.
	MaxOwnerActiveBytes int64
	// MinChunkSize and MaxChunkSize bound both adaptive and caller-requested chunk sizes.
	MinChunkSize int64
	MaxChunkSize int64
	// MaxChunkRetries is how many failed attempts a single chunk tolerates
	// before the session is failed.
	MaxChunkRetries int
	// RetryBackoffBase and RetryBackoffCap parameterize the exponential
	// backoff hint returned with retryable chunk failures.
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
	// MaxSessionConcurrency caps in-flight chunk submissions per session.
	MaxSessionConcurrency int
	// SessionTTL is the absolute lifetime of a session. With SlidingTTL set,
	// expiry is re-based on last activity instead of creation.
	SessionTTL time.Duration
	SlidingTTL bool
	// FailedGrace is how long a failed session keeps its chunks for diagnosis
	// before the sweeper purges it.
	FailedGrace   time.Duration
	SweepInterval time.Duration
	// ProgressWindow is the rolling throughput sample capacity.
	ProgressWindow int
	// AllowedMIMETypes is a list of exact types or "type/" prefixes. Empty allows all.
	AllowedMIMETypes  []string
	MaxFilenameLength int
	// ChunkStore selects temporary chunk storage: "fs" or "minio".
	ChunkStore string
	ChunkDir   string
	TempBucket string
	// Backend selects durable object storage: "minio" or "http".
	Backend         string
	BackendEndpoint string
	BackendToken    string
	// DownloadURLTTL caps presigned download URL lifetime (MinIO backend only).
	DownloadURLTTL time.Duration
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("GOUPLOAD_API_HOST", "0.0.0.0"),
			Port:         getInt("GOUPLOAD_API_PORT", 8080),
			ReadTimeout:  getDuration("GOUPLOAD_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("GOUPLOAD_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("GOUPLOAD_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "goupload_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "goupload"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "goupload"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "goupload"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
		},
		Auth: AuthConfig{
			AccessTokenSecret: getString("GOUPLOAD_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("GOUPLOAD_METRICS_PATH", "/metrics"),
		},
		Upload: loadUploadConfig(),
	}

	if cfg.Upload.MinChunkSize <= 0 || cfg.Upload.MaxChunkSize < cfg.Upload.MinChunkSize {
		return Config{}, fmt.Errorf("chunk size bounds misconfigured: min=%d max=%d",
			cfg.Upload.MinChunkSize, cfg.Upload.MaxChunkSize)
	}

	return cfg, nil
}

func loadUploadConfig() UploadConfig {
	return UploadConfig{
		MaxFileSize:           getSize("GOUPLOAD_MAX_FILE_SIZE", 4*units.GiB),
		MaxOwnerActiveBytes:   getSize("GOUPLOAD_OWNER_ACTIVE_QUOTA", 0),
		MinChunkSize:          getSize("GOUPLOAD_MIN_CHUNK_SIZE", 1*units.MiB),
		MaxChunkSize:          getSize("GOUPLOAD_MAX_CHUNK_SIZE", 32*units.MiB),
		MaxChunkRetries:       getInt("GOUPLOAD_CHUNK_RETRY_LIMIT", 5),
		RetryBackoffBase:      getDuration("GOUPLOAD_RETRY_BACKOFF_BASE", 500*time.Millisecond),
		RetryBackoffCap:       getDuration("GOUPLOAD_RETRY_BACKOFF_CAP", 30*time.Second),
		MaxSessionConcurrency: getInt("GOUPLOAD_SESSION_CONCURRENCY", 4),
		SessionTTL:            getDuration("GOUPLOAD_SESSION_TTL", 24*time.Hour),
		SlidingTTL:            getBool("GOUPLOAD_SLIDING_TTL", false),
		FailedGrace:           getDuration("GOUPLOAD_FAILED_GRACE", time.Hour),
		SweepInterval:         getDuration("GOUPLOAD_SWEEP_INTERVAL", 5*time.Minute),
		ProgressWindow:        getInt("GOUPLOAD_PROGRESS_WINDOW", 8),
		AllowedMIMETypes:      getList("GOUPLOAD_ALLOWED_MIME_TYPES", nil),
		MaxFilenameLength:     getInt("GOUPLOAD_MAX_FILENAME_LENGTH", 255),
		ChunkStore:            strings.ToLower(getString("GOUPLOAD_CHUNK_STORE", "fs")),
		ChunkDir:              getString("GOUPLOAD_CHUNK_DIR", "/var/lib/goupload/chunks"),
		TempBucket:            getString("GOUPLOAD_TEMP_BUCKET", "goupload-chunks"),
		Backend:               strings.ToLower(getString("GOUPLOAD_STORAGE_BACKEND", "minio")),
		BackendEndpoint:       getString("GOUPLOAD_BACKEND_ENDPOINT", ""),
		BackendToken:          getString("GOUPLOAD_BACKEND_TOKEN", ""),
		DownloadURLTTL:        getDuration("GOUPLOAD_DOWNLOAD_URL_TTL", 15*time.Minute),
	}
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getSize parses human byte sizes such as "16MB" or "1GiB" (binary units).
func getSize(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := units.RAMInBytes(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	if val, ok := os.LookupEnv(key); ok {
		parts := strings.Split(val, ",")
		var out []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
