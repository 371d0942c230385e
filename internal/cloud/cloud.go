// Package cloud defines the provider-agnostic file model and the
// connector contract every storage provider implements.
package cloud

import (
	"context"
	"io"
)

// Provider identifies an external cloud storage service.
type Provider string

const (
	ProviderGoogleDrive Provider = "google_drive"
	ProviderDropbox     Provider = "dropbox"
)

// IsValidProvider checks whether a provider string is supported.
func IsValidProvider(p string) bool {
	switch Provider(p) {
	case ProviderGoogleDrive, ProviderDropbox:
		return true
	default:
		return false
	}
}

// FileType distinguishes folders from regular files.
type FileType string

const (
	TypeFile   FileType = "file"
	TypeFolder FileType = "folder"
)

// NormalizedFile is the unification contract every connector produces.
// ID is provider-native (a Drive node id or a Dropbox content id) and
// is only meaningful paired with Provider; ids must never be compared
// across providers.
type NormalizedFile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         FileType `json:"type"`
	Size         int64    `json:"size"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
	CreatedTime  string   `json:"createdTime,omitempty"`
	Provider     Provider `json:"provider"`

	// Provider-specific passthrough fields that consumers may ignore.
	MimeType    string   `json:"mimeType,omitempty"`
	Path        string   `json:"path,omitempty"`
	Parents     []string `json:"parents,omitempty"`
	IconLink    string   `json:"iconLink,omitempty"`
	WebViewLink string   `json:"webViewLink,omitempty"`
}

// FileList is one page of listing or search results. NextPageToken is
// empty on the last page.
type FileList struct {
	Files         []NormalizedFile
	NextPageToken string
}

// Download is a streaming handle over raw file content. The caller
// owns Body and must close it.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Preview carries the resolved preview and download URLs for a file.
type Preview struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	PreviewURL   string   `json:"previewUrl"`
	DownloadURL  string   `json:"downloadUrl,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Provider     Provider `json:"provider"`
}

// Quota reports provider-side storage usage in bytes.
type Quota struct {
	UsedBytes  int64 `json:"usedBytes"`
	TotalBytes int64 `json:"totalBytes"`
}

// Connector translates normalized operations into one provider's wire
// protocol. Folder and file references are provider-meaningful: Drive
// uses node ids ("root" for the root), Dropbox uses paths or stable
// "id:" content-id references (empty string for the root).
type Connector interface {
	Provider() Provider

	// ListFiles lists the immediate children of a folder, one page.
	ListFiles(ctx context.Context, folderRef string) (*FileList, error)

	// Search finds files matching the query within the provider.
	Search(ctx context.Context, query string) (*FileList, error)

	// DownloadFile fetches raw content as a stream.
	DownloadFile(ctx context.Context, fileRef string) (*Download, error)

	// UploadFile writes content under destRef without overwriting.
	UploadFile(ctx context.Context, content io.Reader, name, mimeType, destRef string) (*NormalizedFile, error)

	// GetFileMetadata fetches a single item.
	GetFileMetadata(ctx context.Context, fileRef string) (*NormalizedFile, error)

	// MoveFile relinks the parent edge. If oldParentRef is empty the
	// connector resolves the current parent first. Providers without
	// parent-graph semantics return ErrUnsupportedOperation.
	MoveFile(ctx context.Context, fileRef, newParentRef, oldParentRef string) (*NormalizedFile, error)

	// CopyFile duplicates a file into destParentRef, optionally under
	// a new name. Same support constraint as MoveFile.
	CopyFile(ctx context.Context, fileRef, destParentRef, newName string) (*NormalizedFile, error)

	// GetPreview resolves preview URLs for a file.
	GetPreview(ctx context.Context, fileRef, userID string) (*Preview, error)

	// StorageQuota reports account-wide usage.
	StorageQuota(ctx context.Context) (*Quota, error)
}
