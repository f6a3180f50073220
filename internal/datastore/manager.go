// Package datastore opens and migrates the relational store backing the
// observation pipeline. SQLite and MySQL are supported through GORM.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
)

// Manager defines the interface for database lifecycle operations.
type Manager interface {
	// Initialize creates or migrates the schema.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location (file path for SQLite, host:port/db for MySQL).
	Path() string
	// Close closes the database connection.
	Close() error
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
}

// Config holds database configuration for the SQLite manager.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// Logger receives GORM logs; nil uses the global datastore logger.
	Logger logger.Logger
	// SlowQueryThreshold logs slower queries at WARN; 0 disables.
	SlowQueryThreshold time.Duration
}

// SQLiteManager handles the SQLite database.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (creating if needed) the SQLite database at cfg.Path.
func NewSQLiteManager(cfg Config) (*SQLiteManager, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(fmt.Errorf("failed to create database directory: %w", err)).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	// Build DSN with recommended SQLite pragmas
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg.Logger, cfg.SlowQueryThreshold))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open sqlite database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Build()
	}

	return &SQLiteManager{db: db, dbPath: cfg.Path}, nil
}

// gormConfig returns the GORM settings shared by both backends.
// TranslateError maps driver unique violations to gorm.ErrDuplicatedKey.
func gormConfig(log logger.Logger, slow time.Duration) *gorm.Config {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(log, slow),
		TranslateError: true,
	}
}

// Initialize runs GORM auto-migrations for all entities.
func (m *SQLiteManager) Initialize() error {
	if err := m.db.AutoMigrate(entities.All()...); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}
	return nil
}

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path.
func (m *SQLiteManager) Path() string {
	return m.dbPath
}

// Close closes the database connection.
func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// IsMySQL returns false for SQLite manager.
func (m *SQLiteManager) IsMySQL() bool {
	return false
}

// Open creates and initializes the manager selected by settings.
func Open(settings *conf.Settings, log logger.Logger) (Manager, error) {
	var (
		mgr Manager
		err error
	)

	switch settings.Database.Type {
	case "mysql":
		mgr, err = NewMySQLManager(&MySQLConfig{
			Host:               settings.Database.MySQL.Host,
			Port:               settings.Database.MySQL.Port,
			Username:           settings.Database.MySQL.Username,
			Password:           settings.Database.MySQL.Password,
			Database:           settings.Database.MySQL.Database,
			Logger:             log,
			SlowQueryThreshold: settings.Database.SlowQueryThreshold,
		})
	default:
		mgr, err = NewSQLiteManager(Config{
			Path:               settings.Database.SQLite.Path,
			Logger:             log,
			SlowQueryThreshold: settings.Database.SlowQueryThreshold,
		})
	}
	if err != nil {
		return nil, err
	}

	if err := mgr.Initialize(); err != nil {
		_ = mgr.Close()
		return nil, err
	}

	return mgr, nil
}
