package logging_test

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rtmcdo/schedulecoaches-web/internal/logging"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newLogDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.SystemLog{}))
	return db
}

func TestPGHandlerPromotesKnownAttrs(t *testing.T) {
	db := newLogDB(t)
	handler := logging.NewPGHandler(db)
	log := slog.New(handler)

	log.Error("account resolution failed",
		"request_id", "req-123",
		"user_id", "user-456",
		"action", "auth-me",
		"error", "boom",
		"provider", "entra",
	)
	handler.Stop()

	var entry models.SystemLog
	require.Eventually(t, func() bool {
		return db.First(&entry).Error == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "account resolution failed", entry.Message)
	assert.Equal(t, "req-123", entry.RequestID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "user-456", *entry.UserID)
	assert.Equal(t, "auth-me", entry.Action)
	assert.Equal(t, "boom", entry.Error)

	// Unknown attrs land in the JSON extra column.
	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Extra, &extra))
	assert.Equal(t, "entra", extra["provider"])
}

func TestPGHandlerSkipsBelowError(t *testing.T) {
	db := newLogDB(t)
	handler := logging.NewPGHandler(db)
	log := slog.New(handler)

	log.Info("just chatter", "request_id", "req-1")
	log.Warn("still chatter", "request_id", "req-2")
	handler.Stop()

	time.Sleep(50 * time.Millisecond)
	var count int64
	db.Model(&models.SystemLog{}).Count(&count)
	assert.Equal(t, int64(0), count)
}
