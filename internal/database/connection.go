// Package database provides the sqlx-backed question and author store.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
	// DefaultBusyTimeoutMillis is how long SQLite waits on a locked database.
	DefaultBusyTimeoutMillis = 10000
)

// Driver names accepted in Config.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// Config selects and configures the store backend.
type Config struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// Validate checks the driver name.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

// NewPostgresConnection creates a new PostgreSQL database connection.
func NewPostgresConnection(cfg PostgresConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// NewSQLiteConnection opens an SQLite database at path. Use ":memory:" in tests.
// The pool is pinned to one connection: one writer per run, and every
// ":memory:" connection would otherwise be a separate database.
func NewSQLiteConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", DefaultBusyTimeoutMillis),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, execErr := db.Exec(p); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", p, execErr)
		}
	}

	return db, nil
}

// Connect opens the configured SQL backend and ensures the schema exists.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case DriverPostgres:
		db, err = NewPostgresConnection(cfg.Postgres)
	case DriverSQLite:
		db, err = NewSQLiteConnection(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("driver %q is not an SQL backend", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := NewStore(db)
	if schemaErr := s.EnsureSchema(ctx); schemaErr != nil {
		_ = db.Close()
		return nil, schemaErr
	}
	return s, nil
}
