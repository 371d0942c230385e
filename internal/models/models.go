package models

import (
	"time"

	"gorm.io/datatypes"
)

// User is the identity anchor. Created on first successful OAuth
// callback (lookup-or-create by email), never deleted.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CloudAccounts []CloudAccount `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// CloudAccount links one user to one provider. At most one row per
// (UserID, Provider); token fields are rotated in place on refresh.
type CloudAccount struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       string     `gorm:"not null;size:36;uniqueIndex:idx_user_provider" json:"user_id"`
	Provider     string     `gorm:"not null;size:32;uniqueIndex:idx_user_provider" json:"provider"`
	AccessToken  string     `gorm:"not null;size:4096" json:"-"`
	RefreshToken string     `gorm:"size:4096" json:"-"`
	ExpiresAt    *time.Time `json:"expires_at"` // nil means unknown, treat as expired
	Email        string     `gorm:"size:255" json:"email"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// FileMetadata is the local annotation overlay for one provider file.
// The row is keyed by (UserID, FileID, CloudType) and is never
// validated against the provider at write time.
type FileMetadata struct {
	ID          uint                                  `gorm:"primaryKey" json:"id"`
	UserID      string                                `gorm:"not null;size:36;uniqueIndex:idx_user_file_cloud" json:"user_id"`
	FileID      string                                `gorm:"not null;size:512;uniqueIndex:idx_user_file_cloud" json:"file_id"`
	CloudType   string                                `gorm:"not null;size:32;uniqueIndex:idx_user_file_cloud" json:"cloud_type"`
	Tags        datatypes.JSONType[[]string]          `json:"tags"`
	TagColors   datatypes.JSONType[map[string]string] `json:"tag_colors"`
	CustomName  string                                `gorm:"size:255" json:"custom_name,omitempty"`
	Description string                                `gorm:"size:2048" json:"description,omitempty"`
	Starred     bool                                  `gorm:"not null;default:false;index" json:"starred"`
	Color       string                                `gorm:"size:32" json:"color,omitempty"`
	CreatedAt   time.Time                             `json:"created_at"`
	UpdatedAt   time.Time                             `json:"updated_at"`
}
