package db

import (
	"fmt"
	"log/slog"

	"watchparty/internal/config"
	"watchparty/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm opens the configured database. Schema migration is a separate step (Migrate).
func NewGorm(cfg *config.Config) (*GormDB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = postgres.Open(cfg.DatabaseURL())
	}

	level := logger.Warn
	if cfg.LogLevel == "debug" {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		// a single writer avoids SQLITE_BUSY under concurrent appends
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	slog.Info("database connected", "driver", cfg.DBDriver)

	return &GormDB{db}, nil
}

// Migrate creates or updates every table the service needs.
func (db *GormDB) Migrate() error {
	return Migrate(db.DB)
}

// Migrate runs auto-migration on any gorm handle. Tests call it on in-memory sqlite.
func Migrate(db *gorm.DB) error {
	isPostgres := db.Dialector.Name() == "postgres"

	if isPostgres {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to enable pgvector extension: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&models.Session{},
		&models.Participant{},
		&models.ChatMessage{},
		&models.VideoProcessingStatus{},
		&models.TranscriptSegment{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if isPostgres {
		// GORM has no vector index support
		err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_transcript_segments_embedding
			ON transcript_segments USING ivfflat (embedding vector_cosine_ops)
		`).Error
		if err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
	}

	slog.Info("database migrated")
	return nil
}

// Ping checks connectivity, used by the health endpoint.
func (db *GormDB) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
