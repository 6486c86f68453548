package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rtmcdo/schedulecoaches-web/internal/config"
	"github.com/rtmcdo/schedulecoaches-web/internal/identity"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrLookupFailed         = errors.New("account lookup failed")
	ErrCreateRaceUnresolved = errors.New("account creation race unresolved")
)

// AccountService maps verified identity claims onto the single shared
// Users row for that person, creating and linking as needed.
type AccountService struct {
	db           *gorm.DB
	adminGroupID string
	adminEmails  []string
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	emails := make([]string, 0, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		emails = append(emails, strings.ToLower(e))
	}
	return &AccountService{
		db:           db,
		adminGroupID: cfg.AdminGroupID,
		adminEmails:  emails,
	}
}

// Resolve finds or creates the user for the given claims and keeps
// provider linkage, admin role and profile names current. New coaches
// start unpaid; new admins start active.
func (s *AccountService) Resolve(ctx context.Context, claims *identity.Claims) (*models.User, error) {
	user, err := s.findByProviderID(ctx, claims.Provider, claims.ProviderID)
	if err != nil {
		return nil, err
	}

	if user == nil && claims.Email != "" {
		user, err = s.findByEmail(ctx, claims.Email)
		if err != nil {
			return nil, err
		}
		if user != nil {
			slog.Info("linking provider to existing account", "provider", claims.Provider, "user_id", user.ID)
		}
	}

	isAdmin := s.isAdmin(claims)

	if user == nil {
		user, err = s.createGuarded(ctx, claims, isAdmin)
		if err != nil {
			return nil, err
		}
	}

	if err := s.linkProvider(ctx, user, claims); err != nil {
		return nil, err
	}

	if err := s.reconcileAdmin(ctx, user, isAdmin); err != nil {
		return nil, err
	}

	if err := s.backfillNames(ctx, user, claims); err != nil {
		return nil, err
	}

	return user, nil
}

// Lookup is the read-only variant used by status and billing endpoints.
// It never creates or mutates a row.
func (s *AccountService) Lookup(ctx context.Context, claims *identity.Claims) (*models.User, error) {
	user, err := s.findByProviderID(ctx, claims.Provider, claims.ProviderID)
	if err != nil {
		return nil, err
	}
	if user == nil && claims.Email != "" {
		user, err = s.findByEmail(ctx, claims.Email)
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) findByProviderID(ctx context.Context, provider identity.Provider, providerID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where(provider.Column()+" = ? OR azure_ad_id = ?", providerID, providerID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &user, nil
}

func (s *AccountService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &user, nil
}

// createGuarded inserts the new row only if no row already matches the
// provider id or the email, closing the race where two concurrent
// first-logins for the same person would create two rows. On a lost
// race the winner's row is loaded instead; that row must exist.
func (s *AccountService) createGuarded(ctx context.Context, claims *identity.Claims, isAdmin bool) (*models.User, error) {
	newID := uuid.New()
	role := models.RoleCoach
	status := models.SubscriptionUnpaid
	if isAdmin {
		role = models.RoleAdmin
		status = models.SubscriptionActive
	}

	var entraID, googleID, microsoftID, appleID, azureAdID *string
	switch claims.Provider {
	case identity.ProviderGoogle:
		googleID = &claims.ProviderID
	case identity.ProviderMicrosoft:
		microsoftID = &claims.ProviderID
	case identity.ProviderApple:
		appleID = &claims.ProviderID
	default:
		entraID = &claims.ProviderID
	}
	if claims.Provider.UsesDirectoryID() {
		azureAdID = &claims.ProviderID
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Exec(`
		INSERT INTO users (
			id, azure_ad_id, entra_account_id, google_account_id,
			microsoft_account_id, apple_account_id, email, first_name,
			last_name, role, subscription_status, is_active, created_at, updated_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM users
			WHERE `+claims.Provider.Column()+` = ?
				OR (? <> '' AND LOWER(email) = LOWER(?))
		)`,
		newID, azureAdID, entraID, googleID, microsoftID, appleID,
		claims.Email, claims.FirstName, claims.LastName, role, status, true, now, now,
		claims.ProviderID, claims.Email, claims.Email,
	)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create user: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Another request won the race; its row must be visible now.
		user, err := s.findByProviderID(ctx, claims.Provider, claims.ProviderID)
		if err != nil {
			return nil, err
		}
		if user == nil && claims.Email != "" {
			user, err = s.findByEmail(ctx, claims.Email)
			if err != nil {
				return nil, err
			}
		}
		if user == nil {
			return nil, ErrCreateRaceUnresolved
		}
		slog.Info("user created concurrently, using existing row", "user_id", user.ID)
		return user, nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", newID).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	slog.Info("created new user", "user_id", user.ID, "role", role)
	return &user, nil
}

// linkProvider populates the current provider's column for future
// lookups without clearing any other provider's column. The legacy
// azure_ad_id column is written only for Entra and Microsoft logins,
// and only when currently empty.
func (s *AccountService) linkProvider(ctx context.Context, user *models.User, claims *identity.Claims) error {
	col := claims.Provider.Column()

	var err error
	if claims.Provider.UsesDirectoryID() {
		err = s.db.WithContext(ctx).Exec(`
			UPDATE users
			SET `+col+` = ?,
				azure_ad_id = CASE WHEN azure_ad_id IS NULL OR azure_ad_id = '' THEN ? ELSE azure_ad_id END
			WHERE id = ?`,
			claims.ProviderID, claims.ProviderID, user.ID,
		).Error
	} else {
		err = s.db.WithContext(ctx).Exec(
			`UPDATE users SET `+col+` = ? WHERE id = ?`,
			claims.ProviderID, user.ID,
		).Error
	}
	if err != nil {
		return fmt.Errorf("failed to link provider account: %w", err)
	}

	switch claims.Provider {
	case identity.ProviderGoogle:
		user.GoogleAccountID = &claims.ProviderID
	case identity.ProviderMicrosoft:
		user.MicrosoftAccountID = &claims.ProviderID
	case identity.ProviderApple:
		user.AppleAccountID = &claims.ProviderID
	default:
		user.EntraAccountID = &claims.ProviderID
	}
	if claims.Provider.UsesDirectoryID() && (user.AzureAdID == nil || *user.AzureAdID == "") {
		user.AzureAdID = &claims.ProviderID
	}
	return nil
}

// reconcileAdmin recomputes admin standing from the claims on every
// call; group membership can change outside this system, so the stored
// role is never trusted. Demotion never grants access: a missing
// billing status becomes unpaid, not active.
func (s *AccountService) reconcileAdmin(ctx context.Context, user *models.User, isAdmin bool) error {
	if isAdmin && user.Role != models.RoleAdmin {
		err := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("role", models.RoleAdmin).Error
		if err != nil {
			return fmt.Errorf("failed to promote user to admin: %w", err)
		}
		slog.Info("promoted user to admin", "user_id", user.ID)
		user.Role = models.RoleAdmin
		return nil
	}

	if !isAdmin && user.Role == models.RoleAdmin {
		err := s.db.WithContext(ctx).Exec(`
			UPDATE users
			SET role = ?,
				subscription_status = CASE WHEN subscription_status IS NULL OR subscription_status = '' THEN ? ELSE subscription_status END
			WHERE id = ?`,
			models.RoleCoach, models.SubscriptionUnpaid, user.ID,
		).Error
		if err != nil {
			return fmt.Errorf("failed to demote user from admin: %w", err)
		}
		slog.Info("demoted user from admin", "user_id", user.ID)
		user.Role = models.RoleCoach
		if user.SubscriptionStatus == "" {
			user.SubscriptionStatus = models.SubscriptionUnpaid
		}
	}
	return nil
}

// backfillNames fills empty stored name fields from the claims. A
// stored non-empty value is never overwritten; the statement shape is
// fixed and the COALESCE guards make the write idempotent.
func (s *AccountService) backfillNames(ctx context.Context, user *models.User, claims *identity.Claims) error {
	needsFirst := user.FirstName == "" && claims.FirstName != ""
	needsLast := user.LastName == "" && claims.LastName != ""
	if !needsFirst && !needsLast {
		return nil
	}

	err := s.db.WithContext(ctx).Exec(`
		UPDATE users
		SET first_name = COALESCE(NULLIF(first_name, ''), ?),
			last_name = COALESCE(NULLIF(last_name, ''), ?)
		WHERE id = ?`,
		claims.FirstName, claims.LastName, user.ID,
	).Error
	if err != nil {
		return fmt.Errorf("failed to backfill user names: %w", err)
	}

	if needsFirst {
		user.FirstName = claims.FirstName
	}
	if needsLast {
		user.LastName = claims.LastName
	}
	return nil
}

func (s *AccountService) isAdmin(claims *identity.Claims) bool {
	if s.adminGroupID != "" {
		for _, g := range claims.Groups {
			if g == s.adminGroupID {
				return true
			}
		}
	}
	email := strings.ToLower(claims.Email)
	for _, a := range s.adminEmails {
		if a == email {
			return true
		}
	}
	return false
}
