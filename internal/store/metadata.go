package store

import (
	"errors"
	"fmt"

	"skydeck/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MetadataPatch carries merge-patch fields for an overlay upsert.
// Only non-nil fields are applied; everything else is left untouched.
type MetadataPatch struct {
	Tags        *[]string          `json:"tags,omitempty"`
	TagColors   *map[string]string `json:"tagColors,omitempty"`
	CustomName  *string            `json:"customName,omitempty"`
	Description *string            `json:"description,omitempty"`
	Starred     *bool              `json:"starred,omitempty"`
	Color       *string            `json:"color,omitempty"`
}

// MetadataFilter narrows an overlay search.
type MetadataFilter struct {
	Tag       string
	CloudType string
	Starred   bool
}

// MetadataStore persists FileMetadata overlay rows keyed by
// (userID, fileID, cloudType).
type MetadataStore struct {
	db *gorm.DB
}

func NewMetadataStore(db *gorm.DB) *MetadataStore {
	return &MetadataStore{db: db}
}

// Get returns the overlay row for one file, or ErrNotFound.
func (s *MetadataStore) Get(userID, fileID, cloudType string) (*models.FileMetadata, error) {
	var meta models.FileMetadata
	err := s.db.First(&meta, "user_id = ? AND file_id = ? AND cloud_type = ?", userID, fileID, cloudType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}
	return &meta, nil
}

// Upsert applies a merge patch, creating the row on first annotation.
// Two upserts with the same key always land on a single row.
func (s *MetadataStore) Upsert(userID, fileID, cloudType string, patch MetadataPatch) (*models.FileMetadata, error) {
	var meta models.FileMetadata
	err := s.db.First(&meta, "user_id = ? AND file_id = ? AND cloud_type = ?", userID, fileID, cloudType).Error

	created := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		meta = models.FileMetadata{
			UserID:    userID,
			FileID:    fileID,
			CloudType: cloudType,
		}
		created = true
	} else if err != nil {
		return nil, fmt.Errorf("failed to upsert file metadata: %w", err)
	}

	if patch.Tags != nil {
		meta.Tags = datatypes.NewJSONType(*patch.Tags)
	}
	if patch.TagColors != nil {
		meta.TagColors = datatypes.NewJSONType(*patch.TagColors)
	}
	if patch.CustomName != nil {
		meta.CustomName = *patch.CustomName
	}
	if patch.Description != nil {
		meta.Description = *patch.Description
	}
	if patch.Starred != nil {
		meta.Starred = *patch.Starred
	}
	if patch.Color != nil {
		meta.Color = *patch.Color
	}

	if created {
		if err := s.db.Create(&meta).Error; err != nil {
			return nil, fmt.Errorf("failed to create file metadata: %w", err)
		}
		return &meta, nil
	}
	if err := s.db.Save(&meta).Error; err != nil {
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}
	return &meta, nil
}

// Delete removes one overlay row, ErrNotFound when absent.
func (s *MetadataStore) Delete(userID, fileID, cloudType string) error {
	result := s.db.Where("user_id = ? AND file_id = ? AND cloud_type = ?", userID, fileID, cloudType).
		Delete(&models.FileMetadata{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete file metadata: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStarred returns every starred overlay row for a user.
func (s *MetadataStore) ListStarred(userID string) ([]models.FileMetadata, error) {
	var rows []models.FileMetadata
	err := s.db.Where("user_id = ? AND starred = ?", userID, true).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list starred metadata: %w", err)
	}
	return rows, nil
}

// ListByUser returns all overlay rows for a user, newest update first.
func (s *MetadataStore) ListByUser(userID string) ([]models.FileMetadata, error) {
	var rows []models.FileMetadata
	err := s.db.Where("user_id = ?", userID).Order("updated_at desc").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	return rows, nil
}

// Search filters overlay rows by tag, cloud type and starred flag.
// The tag filter matches against the serialized tag column; exact
// membership is re-checked by the caller after deserialization.
func (s *MetadataStore) Search(userID string, filter MetadataFilter) ([]models.FileMetadata, error) {
	query := s.db.Where("user_id = ?", userID)
	if filter.CloudType != "" {
		query = query.Where("cloud_type = ?", filter.CloudType)
	}
	if filter.Starred {
		query = query.Where("starred = ?", true)
	}
	if filter.Tag != "" {
		query = query.Where("tags LIKE ?", "%"+filter.Tag+"%")
	}

	var rows []models.FileMetadata
	if err := query.Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search metadata: %w", err)
	}
	return rows, nil
}

// Counts aggregates overlay usage for the stats endpoint.
type Counts struct {
	TotalFiles           int64
	StarredFiles         int64
	FilesWithTags        int64
	FilesWithDescription int64
}

// CountStats computes per-user overlay usage counters.
func (s *MetadataStore) CountStats(userID string) (*Counts, error) {
	var counts Counts
	base := s.db.Model(&models.FileMetadata{}).Where("user_id = ?", userID)

	if err := base.Session(&gorm.Session{}).Count(&counts.TotalFiles).Error; err != nil {
		return nil, fmt.Errorf("failed to count metadata rows: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("starred = ?", true).Count(&counts.StarredFiles).Error; err != nil {
		return nil, fmt.Errorf("failed to count starred rows: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("tags IS NOT NULL AND tags != '' AND tags != '[]' AND tags != 'null'").Count(&counts.FilesWithTags).Error; err != nil {
		return nil, fmt.Errorf("failed to count tagged rows: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("description != ''").Count(&counts.FilesWithDescription).Error; err != nil {
		return nil, fmt.Errorf("failed to count described rows: %w", err)
	}
	return &counts, nil
}
