// Package database opens the gorm connection and migrates the schema.
package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"badgecerts/badgecerts-backend/internal/certificates"
	"badgecerts/badgecerts-backend/internal/config"
	"badgecerts/badgecerts-backend/internal/hostdata"
)

// New creates a new database connection based on configuration
func New(cfg config.DatabaseConfig, debug bool, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.SQLitePath
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.GetDatabaseURL())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormLogger := logger.Default.LogMode(logger.Warn)
	if debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		log.Info("Configured SQLite with WAL mode and single connection", zap.String("path", cfg.SQLitePath))
		return db, nil
	}

	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	maxOpen := cfg.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 25
	}
	lifetime := cfg.MaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(lifetime)

	log.Info("Configured PostgreSQL connection pool",
		zap.Int("max_idle_conns", maxIdle),
		zap.Int("max_open_conns", maxOpen),
		zap.Duration("conn_max_lifetime", lifetime),
	)
	return db, nil
}

// Migrate creates the certificate tables. With withHost it also creates the
// host tables and seeds the profile fields, for standalone runs.
func Migrate(db *gorm.DB, withHost bool, fields hostdata.ProfileFields, log *zap.Logger) error {
	log.Info("Running database migrations", zap.Bool("host_tables", withHost))

	models := []interface{}{
		&certificates.Template{},
		&certificates.IssueLog{},
	}
	if withHost {
		models = append(models, &certificates.Badge{}, &certificates.IssuedBadge{})
		models = append(models, hostdata.Models()...)
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if withHost {
		if err := seedProfileFields(db, fields); err != nil {
			return fmt.Errorf("failed to seed profile fields: %w", err)
		}
	}
	return nil
}

func seedProfileFields(db *gorm.DB, fields hostdata.ProfileFields) error {
	for _, name := range []string{fields.BirthDate, fields.Institution, fields.BulkCourse} {
		if name == "" {
			continue
		}
		field := hostdata.ProfileField{ShortName: name}
		if err := db.Where("shortname = ?", name).FirstOrCreate(&field).Error; err != nil {
			return err
		}
	}
	return nil
}
