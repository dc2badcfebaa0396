package configuration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"postgres"`     // postgres or local
	MediaBackend   string `env:"MEDIA_STORE_BACKEND" envDefault:"cloudinary"` // cloudinary or minio

	Database   DatabaseConfig
	LocalStore LocalStoreConfig
	MinIO      MinIOConfig
	Cloudinary CloudinaryConfig
	Upload     UploadConfig
	Server     ServerConfig
	Auth       AuthConfig
	Tracing    TracingConfig

	NATSURL   string `env:"NATS_URL"`
	CLAMAVURL string `env:"CLAMAV_URL"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"petmarket"`
	Password string `env:"DB_PASSWORD" envDefault:"petmarket"`
	DBName   string `env:"DB_NAME" envDefault:"petmarket"`
	SSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
}

type LocalStoreConfig struct {
	MetadataFile string `env:"LOCAL_METADATA_FILE" envDefault:"media_files.json"`
}

type MinIOConfig struct {
	Endpoint   string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey  string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey  string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	BucketName string `env:"MINIO_BUCKET" envDefault:"media"`
	UseSSL     bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	PublicURL  string `env:"MINIO_PUBLIC_URL"`

	Timeout       time.Duration `env:"MINIO_TIMEOUT" envDefault:"30s"`
	PresignExpiry time.Duration `env:"MINIO_PRESIGN_EXPIRY" envDefault:"15m"`
}

// CloudinaryConfig carries the signing credentials. Missing key or secret is not an error
// at load time; signed calls fail when they are made.
type CloudinaryConfig struct {
	CloudName    string        `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey       string        `env:"CLOUDINARY_API_KEY"`
	APISecret    string        `env:"CLOUDINARY_API_SECRET"`
	UploadPreset string        `env:"CLOUDINARY_UPLOAD_PRESET"`
	APIBaseURL   string        `env:"CLOUDINARY_API_BASE_URL" envDefault:"https://api.cloudinary.com/v1_1"`
	DeliveryURL  string        `env:"CLOUDINARY_DELIVERY_URL" envDefault:"https://res.cloudinary.com"`
	Timeout      time.Duration `env:"CLOUDINARY_TIMEOUT" envDefault:"30s"`
}

type UploadConfig struct {
	TempDir      string        `env:"UPLOAD_TEMP_DIR"`
	MaxFileBytes int64         `env:"UPLOAD_MAX_FILE_BYTES" envDefault:"52428800"`
	MaxFiles     int           `env:"UPLOAD_MAX_FILES" envDefault:"5"`
	MaxAttempts  int           `env:"UPLOAD_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay   time.Duration `env:"UPLOAD_RETRY_DELAY" envDefault:"1s"`
	RootFolder   string        `env:"MEDIA_ROOT_FOLDER" envDefault:"petmarket"`
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

type AuthConfig struct {
	IssuerURL     string `env:"AUTH_ISSUER_URL" envDefault:"http://localhost:8081/realms/petmarket"`
	ClientID      string `env:"AUTH_CLIENT_ID"`
	AuthorizedApp string `env:"AUTH_AUTHORIZED_PARTY" envDefault:"frontend"`
}

type TracingConfig struct {
	Enabled     bool   `env:"DD_TRACE_ENABLED" envDefault:"false"`
	ServiceName string `env:"DD_SERVICE" envDefault:"petmarket-media"`
}

// Load reads .env files when present, then the process environment.
func Load() (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.Upload.TempDir == "" {
		cfg.Upload.TempDir = filepath.Join(os.TempDir(), "petmarket-uploads")
	}
	if cfg.Upload.MaxFileBytes <= 0 {
		cfg.Upload.MaxFileBytes = 50 << 20
	}
	if cfg.Upload.MaxFiles <= 0 {
		cfg.Upload.MaxFiles = 5
	}
	if cfg.Upload.MaxAttempts <= 0 {
		cfg.Upload.MaxAttempts = 3
	}
	cfg.Cloudinary.APIKey = strings.TrimSpace(cfg.Cloudinary.APIKey)
	cfg.Cloudinary.APISecret = strings.TrimSpace(cfg.Cloudinary.APISecret)

	switch cfg.StorageBackend {
	case "postgres", "local":
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	switch cfg.MediaBackend {
	case "cloudinary", "minio":
	default:
		return nil, fmt.Errorf("unknown MEDIA_STORE_BACKEND %q", cfg.MediaBackend)
	}
	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func (c *ServerConfig) Addr() string {
	return ":" + c.Port
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
