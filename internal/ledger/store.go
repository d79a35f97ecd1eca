package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Config holds the postgres connection settings for the ledger store.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the config as a postgres connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// Store is the transactional ledger over tasks, submissions, results,
// workers and withdrawals. All multi-entity writes go through Atomically
// so they commit or roll back as a unit.
type Store struct {
	db     *gorm.DB
	logger logging.Logger
}

// NewStore wraps an already opened gorm handle. The handle must have been
// opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
func NewStore(db *gorm.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Open connects to postgres and configures the connection pool.
func Open(config Config, logger logging.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := config.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxLifetime := config.ConnMaxLifetime
	if maxLifetime <= 0 {
		maxLifetime = defaultConnMaxLifetime
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)

	logger.Infof("Connected to postgres database %s", config.DBName)
	return NewStore(db, logger), nil
}

// Migrate creates or updates the ledger schema.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&Task{},
		&Option{},
		&Submission{},
		&Result{},
		&OptionResult{},
		&Worker{},
		&Withdrawal{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}

// Atomically runs fn inside a database transaction. The Store passed to fn
// is bound to the transaction; any error from fn rolls everything back.
func (s *Store) Atomically(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger})
	})
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
