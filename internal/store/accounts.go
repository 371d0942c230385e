package store

import (
	"errors"
	"fmt"
	"time"

	"skydeck/internal/models"

	"gorm.io/gorm"
)

// AccountStore persists CloudAccount rows. The token refresh
// coordinator is the only writer of token fields after creation.
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// ListByUser returns all linked accounts for a user, in stable
// provider order so aggregate output shape is deterministic.
func (s *AccountStore) ListByUser(userID string) ([]models.CloudAccount, error) {
	var accounts []models.CloudAccount
	err := s.db.Where("user_id = ?", userID).Order("provider").Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cloud accounts: %w", err)
	}
	return accounts, nil
}

// Get returns the account for one (user, provider) pair.
func (s *AccountStore) Get(userID, provider string) (*models.CloudAccount, error) {
	var account models.CloudAccount
	err := s.db.First(&account, "user_id = ? AND provider = ?", userID, provider).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cloud account: %w", err)
	}
	return &account, nil
}

// Upsert creates or replaces the credential for (userID, provider).
// A missing refresh token on re-authorization keeps the stored one.
func (s *AccountStore) Upsert(userID, provider, accessToken, refreshToken, email string, expiresAt *time.Time) (*models.CloudAccount, error) {
	var account models.CloudAccount
	err := s.db.First(&account, "user_id = ? AND provider = ?", userID, provider).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.CloudAccount{
			UserID:       userID,
			Provider:     provider,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
			Email:        email,
		}
		if err := s.db.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("failed to create cloud account: %w", err)
		}
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cloud account: %w", err)
	}

	account.AccessToken = accessToken
	if refreshToken != "" {
		account.RefreshToken = refreshToken
	}
	account.ExpiresAt = expiresAt
	account.Email = email
	if err := s.db.Save(&account).Error; err != nil {
		return nil, fmt.Errorf("failed to update cloud account: %w", err)
	}
	return &account, nil
}

// UpdateTokens persists rotated credentials. The write is skipped when
// the stored expiry is already later than the incoming one, so a slow
// concurrent refresh can never downgrade a fresher token.
func (s *AccountStore) UpdateTokens(userID, provider, accessToken, refreshToken string, expiresAt *time.Time) error {
	var account models.CloudAccount
	err := s.db.First(&account, "user_id = ? AND provider = ?", userID, provider).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load cloud account for token update: %w", err)
	}

	if expiresAt != nil && account.ExpiresAt != nil && account.ExpiresAt.After(*expiresAt) {
		return nil
	}

	account.AccessToken = accessToken
	if refreshToken != "" {
		account.RefreshToken = refreshToken
	}
	account.ExpiresAt = expiresAt
	if err := s.db.Save(&account).Error; err != nil {
		return fmt.Errorf("failed to persist rotated tokens: %w", err)
	}
	return nil
}

// Delete removes the linkage for one (user, provider) pair.
func (s *AccountStore) Delete(userID, provider string) error {
	result := s.db.Where("user_id = ? AND provider = ?", userID, provider).Delete(&models.CloudAccount{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete cloud account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
