// Package googledrive implements the cloud.Connector contract over the
// Google Drive v3 API.
package googledrive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"skydeck/internal/cloud"
	"skydeck/internal/config"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

const listFields = "nextPageToken, files(id, name, mimeType, size, modifiedTime, createdTime, iconLink, webViewLink, parents)"
const fileFields = "id, name, mimeType, size, modifiedTime, createdTime, iconLink, webViewLink, parents"

// Connector wraps a per-user Drive service built from an OAuth2 token
// source. Construction is stateless: tokens are the only input.
type Connector struct {
	service *drive.Service
}

// New creates a Drive connector from a token source. The token source
// is expected to refresh itself; rotations it performs are observed by
// the caller, not here.
func New(ctx context.Context, ts oauth2.TokenSource) (*Connector, error) {
	service, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &Connector{service: service}, nil
}

// NewWithService creates a connector around an existing Drive service,
// used by tests to point at a fake endpoint.
func NewWithService(service *drive.Service) *Connector {
	return &Connector{service: service}
}

func (c *Connector) Provider() cloud.Provider {
	return cloud.ProviderGoogleDrive
}

// ListFiles lists the immediate children of a folder, folders before
// files then alphabetical, excluding trashed items.
func (c *Connector) ListFiles(ctx context.Context, folderRef string) (*cloud.FileList, error) {
	if folderRef == "" {
		folderRef = "root"
	}
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderRef))

	result, err := c.service.Files.List().
		Q(query).
		PageSize(config.ListPageSize).
		Fields(googleapi.Field(listFields)).
		OrderBy("folder,name").
		Context(ctx).
		Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("listFiles", err)
	}

	files := make([]cloud.NormalizedFile, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, normalize(f))
	}
	return &cloud.FileList{Files: files, NextPageToken: result.NextPageToken}, nil
}

// Search runs a name-contains query ordered by most recently modified.
func (c *Connector) Search(ctx context.Context, query string) (*cloud.FileList, error) {
	searchQuery := fmt.Sprintf("name contains '%s' and trashed = false", escapeQuery(query))

	result, err := c.service.Files.List().
		Q(searchQuery).
		PageSize(config.SearchPageSize).
		Fields(googleapi.Field(listFields)).
		OrderBy("modifiedTime desc").
		Context(ctx).
		Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("search", err)
	}

	files := make([]cloud.NormalizedFile, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, normalize(f))
	}
	return &cloud.FileList{Files: files, NextPageToken: result.NextPageToken}, nil
}

// DownloadFile streams raw file content. The caller must close Body.
func (c *Connector) DownloadFile(ctx context.Context, fileRef string) (*cloud.Download, error) {
	resp, err := c.service.Files.Get(fileRef).Context(ctx).Download()
	if err != nil {
		return nil, cloud.WrapGoogleError("downloadFile", err)
	}
	return &cloud.Download{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// UploadFile creates a file under destRef ("root" when empty).
func (c *Connector) UploadFile(ctx context.Context, content io.Reader, name, mimeType, destRef string) (*cloud.NormalizedFile, error) {
	if destRef == "" {
		destRef = "root"
	}
	meta := &drive.File{
		Name:    name,
		Parents: []string{destRef},
	}

	created, err := c.service.Files.Create(meta).
		Media(content, googleapi.ContentType(mimeType)).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("uploadFile", err)
	}

	file := normalize(created)
	return &file, nil
}

// GetFileMetadata fetches a single item by node id.
func (c *Connector) GetFileMetadata(ctx context.Context, fileRef string) (*cloud.NormalizedFile, error) {
	f, err := c.service.Files.Get(fileRef).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("getFileMetadata", err)
	}

	file := normalize(f)
	return &file, nil
}

// MoveFile relinks the parent edge. When oldParentRef is empty the
// current parent is resolved first, costing one extra round trip.
func (c *Connector) MoveFile(ctx context.Context, fileRef, newParentRef, oldParentRef string) (*cloud.NormalizedFile, error) {
	if oldParentRef == "" {
		current, err := c.service.Files.Get(fileRef).Fields("parents").Context(ctx).Do()
		if err != nil {
			return nil, cloud.WrapGoogleError("moveFile", err)
		}
		if len(current.Parents) > 0 {
			oldParentRef = current.Parents[0]
		}
	}

	moved, err := c.service.Files.Update(fileRef, &drive.File{}).
		AddParents(newParentRef).
		RemoveParents(oldParentRef).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("moveFile", err)
	}

	file := normalize(moved)
	return &file, nil
}

// CopyFile duplicates a file into destParentRef, optionally renamed.
func (c *Connector) CopyFile(ctx context.Context, fileRef, destParentRef, newName string) (*cloud.NormalizedFile, error) {
	meta := &drive.File{
		Parents: []string{destParentRef},
	}
	if newName != "" {
		meta.Name = newName
	}

	copied, err := c.service.Files.Copy(fileRef, meta).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("copyFile", err)
	}

	file := normalize(copied)
	return &file, nil
}

// GetPreview resolves preview URLs. Google-native documents open in
// their own viewer; binary content is routed through the backend
// preview proxy so the browser never needs provider credentials.
func (c *Connector) GetPreview(ctx context.Context, fileRef, userID string) (*cloud.Preview, error) {
	f, err := c.service.Files.Get(fileRef).
		Fields("id, name, mimeType, size, webViewLink, webContentLink, thumbnailLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("getPreview", err)
	}

	preview := &cloud.Preview{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		DownloadURL:  f.WebContentLink,
		ThumbnailURL: f.ThumbnailLink,
		Provider:     cloud.ProviderGoogleDrive,
	}

	if isGoogleDoc(f.MimeType) {
		preview.PreviewURL = f.WebViewLink
		return preview, nil
	}

	preview.PreviewURL = fmt.Sprintf("/files/preview-proxy/%s/%s?userId=%s", cloud.ProviderGoogleDrive, f.Id, userID)
	return preview, nil
}

// StorageQuota reports account-wide Drive usage.
func (c *Connector) StorageQuota(ctx context.Context) (*cloud.Quota, error) {
	about, err := c.service.About.Get().Fields("storageQuota").Context(ctx).Do()
	if err != nil {
		return nil, cloud.WrapGoogleError("storageQuota", err)
	}
	return &cloud.Quota{
		UsedBytes:  about.StorageQuota.Usage,
		TotalBytes: about.StorageQuota.Limit,
	}, nil
}

// escapeQuery makes a user value safe inside a single-quoted Drive
// query term. Backslashes go first so the quote escape survives.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func isGoogleDoc(mimeType string) bool {
	return mimeType != folderMimeType && strings.HasPrefix(mimeType, "application/vnd.google-apps")
}

func normalize(f *drive.File) cloud.NormalizedFile {
	fileType := cloud.TypeFile
	if f.MimeType == folderMimeType {
		fileType = cloud.TypeFolder
	}
	return cloud.NormalizedFile{
		ID:           f.Id,
		Name:         f.Name,
		Type:         fileType,
		Size:         f.Size,
		ModifiedTime: f.ModifiedTime,
		CreatedTime:  f.CreatedTime,
		Provider:     cloud.ProviderGoogleDrive,
		MimeType:     f.MimeType,
		Parents:      f.Parents,
		IconLink:     f.IconLink,
		WebViewLink:  f.WebViewLink,
	}
}
