package datastore

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
)

// MySQLConfig holds MySQL-specific configuration.
type MySQLConfig struct {
	Host               string
	Port               string
	Username           string
	Password           string
	Database           string
	Logger             logger.Logger
	SlowQueryThreshold time.Duration
}

// MySQLManager handles the MySQL database.
type MySQLManager struct {
	db       *gorm.DB
	location string // host:port/database for display
}

// NewMySQLManager opens a connection pool to the configured MySQL server.
func NewMySQLManager(cfg *MySQLConfig) (*MySQLManager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	return newMySQLManagerFromDSN(dsn, fmt.Sprintf("%s:%s/%s", cfg.Host, cfg.Port, cfg.Database), cfg.Logger, cfg.SlowQueryThreshold)
}

func newMySQLManagerFromDSN(dsn, location string, log logger.Logger, slow time.Duration) (*MySQLManager, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig(log, slow))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open MySQL database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{db: db, location: location}, nil
}

// Initialize runs GORM auto-migrations and makes the scientific name
// comparison case-sensitive, which the default utf8mb4 collation is not.
func (m *MySQLManager) Initialize() error {
	if err := m.db.AutoMigrate(entities.All()...); err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	alter := "ALTER TABLE species MODIFY scientific_name VARCHAR(200) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL"
	if err := m.db.Exec(alter).Error; err != nil {
		return errors.New(fmt.Errorf("failed to set scientific name collation: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	return nil
}

// DB returns the underlying GORM database.
func (m *MySQLManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database location (host:port/database).
func (m *MySQLManager) Path() string {
	return m.location
}

// Close closes the database connection.
func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// IsMySQL returns true for MySQL manager.
func (m *MySQLManager) IsMySQL() bool {
	return true
}
