package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"badgecerts/badgecerts-backend/internal/tokens"
	"badgecerts/badgecerts-backend/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Storage      storage.Config     `json:"storage"`
	Certificates CertificatesConfig `json:"certificates"`
	Security     SecurityConfig     `json:"security"`
	Logging      LoggingConfig      `json:"logging"`
	Reconciler   ReconcilerConfig   `json:"reconciler"`
	Host         HostConfig         `json:"host"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver         string        `json:"driver"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	SQLitePath     string        `json:"sqlite_path"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

// CertificatesConfig holds rendering defaults
type CertificatesConfig struct {
	DateLayout         string               `json:"date_layout"`
	Timezone           string               `json:"timezone"`
	PerPage            int                  `json:"per_page"`
	MaxBackgroundBytes int64                `json:"max_background_bytes"`
	Creator            string               `json:"creator"`
	Preview            tokens.PreviewValues `json:"preview"`
}

// Location resolves the configured timezone, falling back to UTC
func (c CertificatesConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// ReconcilerConfig schedules the orphaned background cleanup
type ReconcilerConfig struct {
	Enabled     bool          `json:"enabled"`
	Schedule    string        `json:"schedule"`
	GracePeriod time.Duration `json:"grace_period"`
}

// HostConfig names the custom profile fields of the host application
type HostConfig struct {
	BirthDateField   string `json:"birth_date_field"`
	InstitutionField string `json:"institution_field"`
	BulkCourseField  string `json:"bulk_course_field"`
}

// LoadConfig loads configuration from file and environment variables.
// A .env file in the working directory is read first when present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	// Default config
	config := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "badgecerts",
			SSLMode:        "disable",
			SQLitePath:     "badgecerts.db",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    time.Hour,
			AutoMigrate:    true,
		},
		Storage: storage.Config{
			Driver: "local",
			Local:  storage.LocalConfig{Dir: "data/blobs"},
			S3:     storage.S3Options{Region: "us-east-1", Prefix: "badgecerts"},
		},
		Certificates: CertificatesConfig{
			DateLayout:         "02.01.2006",
			Timezone:           "UTC",
			PerPage:            50,
			MaxBackgroundBytes: 262144,
			Creator:            "badgecerts",
			Preview:            tokens.DefaultPreviewValues(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Reconciler: ReconcilerConfig{
			Enabled:     true,
			Schedule:    "0 0 3 * * *",
			GracePeriod: time.Hour,
		},
		Host: HostConfig{
			BirthDateField:   "birthdate",
			InstitutionField: "institution",
			BulkCourseField:  "bulkGenCerts",
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func overrideWithEnv(config *Config) {
	envString("SERVER_HOST", &config.Server.Host)
	envInt("SERVER_PORT", &config.Server.Port)

	envString("DATABASE_DRIVER", &config.Database.Driver)
	envString("DATABASE_HOST", &config.Database.Host)
	envInt("DATABASE_PORT", &config.Database.Port)
	envString("DATABASE_USER", &config.Database.User)
	envString("DATABASE_PASSWORD", &config.Database.Password)
	envString("DATABASE_DBNAME", &config.Database.DBName)
	envString("DATABASE_SSLMODE", &config.Database.SSLMode)
	envString("DATABASE_SQLITE_PATH", &config.Database.SQLitePath)
	envBool("DATABASE_AUTO_MIGRATE", &config.Database.AutoMigrate)

	envString("STORAGE_DRIVER", &config.Storage.Driver)
	envString("STORAGE_LOCAL_DIR", &config.Storage.Local.Dir)
	envString("S3_ENDPOINT", &config.Storage.S3.Endpoint)
	envString("S3_REGION", &config.Storage.S3.Region)
	envString("S3_ACCESS_KEY", &config.Storage.S3.AccessKey)
	envString("S3_SECRET_KEY", &config.Storage.S3.SecretKey)
	envString("S3_BUCKET", &config.Storage.S3.Bucket)
	envString("S3_PREFIX", &config.Storage.S3.Prefix)
	envBool("S3_USE_PATH_STYLE", &config.Storage.S3.UsePathStyle)

	envString("CERTIFICATES_DATE_LAYOUT", &config.Certificates.DateLayout)
	envString("CERTIFICATES_TIMEZONE", &config.Certificates.Timezone)
	envInt("CERTIFICATES_PER_PAGE", &config.Certificates.PerPage)

	envString("JWT_SECRET", &config.Security.JWTSecret)
	envString("LOG_LEVEL", &config.Logging.Level)

	envBool("RECONCILER_ENABLED", &config.Reconciler.Enabled)
	envString("RECONCILER_SCHEDULE", &config.Reconciler.Schedule)

	envString("HOST_BIRTH_DATE_FIELD", &config.Host.BirthDateField)
	envString("HOST_INSTITUTION_FIELD", &config.Host.InstitutionField)
	envString("HOST_BULK_COURSE_FIELD", &config.Host.BulkCourseField)
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
