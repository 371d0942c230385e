// Package store provides the narrow persistence interface over the
// relational database: users, cloud accounts and the metadata overlay.
package store

import (
	"errors"
	"fmt"

	"skydeck/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// UserStore persists User rows.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// FindByID returns a user with its cloud accounts preloaded.
func (s *UserStore) FindByID(id string) (*models.User, error) {
	var user models.User
	err := s.db.Preload("CloudAccounts").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// LookupOrCreate finds a user by email or creates one. Used by the
// OAuth callback flow where email is the cross-provider identity.
func (s *UserStore) LookupOrCreate(email, name string) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, "email = ?", email).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	user = models.User{
		ID:    uuid.New().String(),
		Email: email,
		Name:  name,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}
