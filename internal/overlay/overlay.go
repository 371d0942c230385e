// Package overlay manages user annotations (tags, stars, custom names)
// layered over provider files without touching the providers.
package overlay

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"skydeck/internal/aggregator"
	"skydeck/internal/cloud"
	"skydeck/internal/models"
	"skydeck/internal/store"
)

// Service joins the metadata store with live provider lookups for the
// views that need both, like the starred listing.
type Service struct {
	metadata *store.MetadataStore
	accounts *store.AccountStore
	factory  aggregator.ConnectorFactory
}

func NewService(metadata *store.MetadataStore, accounts *store.AccountStore, factory aggregator.ConnectorFactory) *Service {
	return &Service{metadata: metadata, accounts: accounts, factory: factory}
}

func (s *Service) Get(userID, fileID, cloudType string) (*models.FileMetadata, error) {
	return s.metadata.Get(userID, fileID, cloudType)
}

func (s *Service) Upsert(userID, fileID, cloudType string, patch store.MetadataPatch) (*models.FileMetadata, error) {
	return s.metadata.Upsert(userID, fileID, cloudType, patch)
}

func (s *Service) Delete(userID, fileID, cloudType string) error {
	return s.metadata.Delete(userID, fileID, cloudType)
}

// UpdateTags replaces the tag list and colors for one file.
func (s *Service) UpdateTags(userID, fileID, cloudType string, tags []string, colors map[string]string) (*models.FileMetadata, error) {
	patch := store.MetadataPatch{Tags: &tags}
	if colors != nil {
		patch.TagColors = &colors
	}
	return s.metadata.Upsert(userID, fileID, cloudType, patch)
}

// Search filters overlay rows, re-checking exact tag membership after
// the store's coarse serialized-column match.
func (s *Service) Search(userID string, filter store.MetadataFilter) ([]models.FileMetadata, error) {
	rows, err := s.metadata.Search(userID, filter)
	if err != nil {
		return nil, err
	}
	if filter.Tag == "" {
		return rows, nil
	}
	matched := []models.FileMetadata{}
	for _, row := range rows {
		for _, tag := range row.Tags.Data() {
			if tag == filter.Tag {
				matched = append(matched, row)
				break
			}
		}
	}
	return matched, nil
}

// TagCount pairs a tag with how many files carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// PopularTags returns the user's most used tags, most frequent first.
// Ties break alphabetically so the order is stable.
func (s *Service) PopularTags(userID string, limit int) ([]TagCount, error) {
	rows, err := s.metadata.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, row := range rows {
		for _, tag := range row.Tags.Data() {
			counts[tag]++
		}
	}

	popular := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		popular = append(popular, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(popular, func(i, j int) bool {
		if popular[i].Count != popular[j].Count {
			return popular[i].Count > popular[j].Count
		}
		return popular[i].Tag < popular[j].Tag
	})

	if limit > 0 && len(popular) > limit {
		popular = popular[:limit]
	}
	return popular, nil
}

// Stats summarizes how much of the user's library carries annotations.
// TaggingRate is a percentage rounded to one decimal.
type Stats struct {
	TotalFiles           int64   `json:"totalFiles"`
	StarredFiles         int64   `json:"starredFiles"`
	FilesWithTags        int64   `json:"filesWithTags"`
	FilesWithDescription int64   `json:"filesWithDescription"`
	TaggingRate          float64 `json:"taggingRate"`
}

func (s *Service) Stats(userID string) (*Stats, error) {
	counts, err := s.metadata.CountStats(userID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		TotalFiles:           counts.TotalFiles,
		StarredFiles:         counts.StarredFiles,
		FilesWithTags:        counts.FilesWithTags,
		FilesWithDescription: counts.FilesWithDescription,
	}
	if counts.TotalFiles > 0 {
		rate := float64(counts.FilesWithTags) / float64(counts.TotalFiles) * 100
		stats.TaggingRate = math.Round(rate*10) / 10
	}
	return stats, nil
}

// StarredFile is one starred entry resolved against its provider,
// carrying both live file data and the overlay row.
type StarredFile struct {
	cloud.NormalizedFile
	Metadata *models.FileMetadata `json:"metadata"`
}

// ListStarred resolves every starred overlay row through its
// provider's connector. Rows whose provider lookup fails (deleted
// file, disconnected account) are skipped with a warning rather than
// failing the whole listing.
func (s *Service) ListStarred(ctx context.Context, userID string) ([]StarredFile, error) {
	rows, err := s.metadata.ListStarred(userID)
	if err != nil {
		return nil, err
	}

	connectors := map[string]cloud.Connector{}
	starred := []StarredFile{}
	for i := range rows {
		row := &rows[i]
		conn, ok := connectors[row.CloudType]
		if !ok {
			account, err := s.accounts.Get(userID, row.CloudType)
			if err != nil {
				slog.Warn("starred file references a disconnected provider",
					"userID", userID, "provider", row.CloudType)
				connectors[row.CloudType] = nil
				continue
			}
			conn, err = s.factory.ForAccount(ctx, account)
			if err != nil {
				slog.Warn("failed to build connector for starred lookup",
					"userID", userID, "provider", row.CloudType, "error", err)
				connectors[row.CloudType] = nil
				continue
			}
			connectors[row.CloudType] = conn
		}
		if conn == nil {
			continue
		}

		file, err := conn.GetFileMetadata(ctx, row.FileID)
		if err != nil {
			slog.Warn("failed to resolve starred file",
				"userID", userID, "provider", row.CloudType, "fileID", row.FileID, "error", err)
			continue
		}
		starred = append(starred, StarredFile{NormalizedFile: *file, Metadata: row})
	}
	return starred, nil
}
