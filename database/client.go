package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	configpkg "github.com/oscarbot/gateway-service/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DatabaseType represents the type of database to use
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// Config holds database connection configuration
type Config struct {
	// Database type (sqlite or postgres)
	Type DatabaseType

	// SQLite configuration
	DatabasePath string

	// PostgreSQL configuration
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings (applies to both database types)
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewDatabaseConfig creates a database configuration from environment
// variables. Priority:
//  1. DB_TYPE=postgres → PostgreSQL (DB_HOST, DB_PASSWORD, etc.)
//  2. DB_TYPE=sqlite or DB_PATH set → file-based SQLite (default ./data/gateway.db)
//  3. No database configuration → in-memory SQLite (:memory:)
func NewDatabaseConfig() *Config {
	dbTypeStr := strings.ToLower(configpkg.GetEnvOrDefault("DB_TYPE", ""))

	dbTypeSet := os.Getenv("DB_TYPE") != ""
	dbPathSet := os.Getenv("DB_PATH") != ""

	// DB_HOST only matters for PostgreSQL and does not count as SQLite
	// configuration.
	hasSQLiteConfig := dbPathSet || (dbTypeSet && dbTypeStr != "postgres" && dbTypeStr != "postgresql")

	var dbType DatabaseType
	switch dbTypeStr {
	case "postgres", "postgresql":
		dbType = DatabaseTypePostgres
	case "sqlite", "":
		dbType = DatabaseTypeSQLite
	default:
		slog.Warn("Unknown DB_TYPE, defaulting to sqlite", "db_type", dbTypeStr)
		dbType = DatabaseTypeSQLite
	}

	config := &Config{Type: dbType}

	if dbType == DatabaseTypeSQLite {
		// Serialize SQLite access through a single connection to avoid
		// "database is locked" errors on concurrent log inserts.
		config.MaxOpenConns = parseIntOrDefault("DB_MAX_OPEN_CONNS", 1)
		config.MaxIdleConns = parseIntOrDefault("DB_MAX_IDLE_CONNS", 1)

		if !hasSQLiteConfig {
			config.DatabasePath = ":memory:"
			slog.Info("No database configuration found, using in-memory SQLite")
		} else {
			config.DatabasePath = configpkg.GetEnvOrDefault("DB_PATH", "./data/gateway.db")
		}

		if config.DatabasePath != ":memory:" {
			dbDir := filepath.Dir(config.DatabasePath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				slog.Warn("Failed to create database directory", "path", dbDir, "error", err)
			}
		}
	} else {
		config.Host = configpkg.GetEnvOrDefault("DB_HOST", "localhost")
		config.Port = configpkg.GetEnvOrDefault("DB_PORT", "5432")
		config.Username = configpkg.GetEnvOrDefault("DB_USERNAME", "postgres")
		config.Password = configpkg.GetEnvOrDefault("DB_PASSWORD", "")
		config.Database = configpkg.GetEnvOrDefault("DB_NAME", "gateway_db")
		config.SSLMode = configpkg.GetEnvOrDefault("DB_SSLMODE", "disable")

		config.MaxOpenConns = parseIntOrDefault("DB_MAX_OPEN_CONNS", 25)
		config.MaxIdleConns = parseIntOrDefault("DB_MAX_IDLE_CONNS", 5)
	}

	config.ConnMaxLifetime = parseDurationOrDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	config.ConnMaxIdleTime = parseDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 15*time.Minute)

	return config
}

// ConnectGormDB establishes a GORM connection to the database (SQLite or PostgreSQL)
func ConnectGormDB(config *Config) (*gorm.DB, error) {
	var gormDB *gorm.DB
	var err error

	if config.Type == DatabaseTypeSQLite {
		slog.Info("Opening SQLite database", "path", config.DatabasePath)
		gormDB, err = gorm.Open(sqlite.Open(config.DatabasePath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database connection: %w", err)
		}
	} else {
		// Encode credentials through net/url so special characters in
		// passwords survive the DSN.
		dsnURL := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(config.Username, config.Password),
			Host:   fmt.Sprintf("%s:%s", config.Host, config.Port),
			Path:   config.Database,
		}
		q := dsnURL.Query()
		q.Set("sslmode", config.SSLMode)
		dsnURL.RawQuery = q.Encode()

		slog.Info("Opening PostgreSQL database",
			"host", config.Host,
			"port", config.Port,
			"database", config.Database)

		gormDB, err = gorm.Open(postgres.Open(dsnURL.String()), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database connection: %w", err)
		}
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection established", "type", string(config.Type))
	return gormDB, nil
}

// parseIntOrDefault parses an integer from environment variable or returns default
func parseIntOrDefault(key string, defaultValue int) int {
	if value := configpkg.GetEnvOrDefault(key, ""); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseDurationOrDefault parses a duration ("1h", "30m", "15s") from an
// environment variable or returns the default.
func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := configpkg.GetEnvOrDefault(key, ""); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid duration format, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
