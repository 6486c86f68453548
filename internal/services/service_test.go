package services_test

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/rtmcdo/schedulecoaches-web/internal/config"
	"github.com/rtmcdo/schedulecoaches-web/internal/identity"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps every statement on the same in-memory store.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.WebhookEvent{}))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		AdminGroupID: "admin-group-id",
		AdminEmails:  []string{"Admin@Example.com"},
	}
}

func entraClaims(id, email string) *identity.Claims {
	return &identity.Claims{
		Provider:   identity.ProviderEntra,
		ProviderID: id,
		Email:      email,
		FirstName:  "Pat",
		LastName:   "Coach",
	}
}
