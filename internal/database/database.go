package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rtmcdo/schedulecoaches-web/internal/config"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxConnectAttempts = 4

// Connect opens the shared database and returns the handle. The handle
// is owned by the caller and passed to services explicitly; there is no
// package-level connection.
//
// Dial failures of a network/timeout nature are retried with increasing
// backoff, capped at 20s. Retry happens only here, at connection
// establishment; individual queries are never retried.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var lastErr error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err == nil {
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get sql.DB: %w", err)
			}

			sqlDB.SetMaxOpenConns(50)
			sqlDB.SetMaxIdleConns(25)
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
			sqlDB.SetConnMaxIdleTime(5 * time.Minute)

			slog.Info("database connected", "attempt", attempt)
			return db, nil
		}

		lastErr = err
		if attempt == maxConnectAttempts || !isRetryableConnectError(err) {
			break
		}

		backoff := time.Duration(attempt) * 5 * time.Second
		if backoff > 20*time.Second {
			backoff = 20 * time.Second
		}
		slog.Warn("database connection failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		time.Sleep(backoff)
	}

	return nil, fmt.Errorf("failed to connect to database: %w", lastErr)
}

func isRetryableConnectError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "failed to connect") ||
		strings.Contains(msg, "no such host")
}

// Migrate runs AutoMigrate for this service's tables. The Users table
// already exists in production (shared with pbcoach); AutoMigrate only
// adds columns this service introduced.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.WebhookEvent{},
		&models.SystemLog{},
	)
}

func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
