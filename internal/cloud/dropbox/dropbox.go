// Package dropbox implements the cloud.Connector contract over the
// Dropbox HTTP API v2. File references may be paths or stable "id:"
// content-id references; both are accepted by every endpoint.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"skydeck/internal/cloud"
	"skydeck/internal/config"
)

const (
	defaultAPIBase     = "https://api.dropboxapi.com/2"
	defaultContentBase = "https://content.dropboxapi.com/2"
)

// Connector issues authenticated calls against the Dropbox API for a
// single account. Construction is stateless: the access token is the
// only input.
type Connector struct {
	accessToken string
	httpClient  *http.Client
	apiBase     string
	contentBase string
}

// New creates a Dropbox connector using the default HTTP client.
func New(accessToken string) *Connector {
	return &Connector{
		accessToken: accessToken,
		httpClient:  http.DefaultClient,
		apiBase:     defaultAPIBase,
		contentBase: defaultContentBase,
	}
}

// NewWithClient creates a connector with explicit client and base
// URLs, used by tests to point at a fake server.
func NewWithClient(accessToken string, client *http.Client, apiBase, contentBase string) *Connector {
	return &Connector{
		accessToken: accessToken,
		httpClient:  client,
		apiBase:     apiBase,
		contentBase: contentBase,
	}
}

func (c *Connector) Provider() cloud.Provider {
	return cloud.ProviderDropbox
}

type entry struct {
	Tag            string `json:".tag"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathLower      string `json:"path_lower"`
	Size           int64  `json:"size"`
	ServerModified string `json:"server_modified"`
	ClientModified string `json:"client_modified"`
}

type apiError struct {
	ErrorSummary string `json:"error_summary"`
}

// rpc posts a JSON request to an RPC-style endpoint and decodes the
// JSON response into out.
func (c *Connector) rpc(ctx context.Context, op, endpoint string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &cloud.ProviderError{Provider: cloud.ProviderDropbox, Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.wireError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// wireError turns a non-200 response into a ProviderError carrying the
// provider's error_summary when one is present.
func (c *Connector) wireError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	summary := string(raw)
	var parsed apiError
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.ErrorSummary != "" {
		summary = parsed.ErrorSummary
	}
	return cloud.NewDropboxError(op, resp.StatusCode, summary)
}

// ListFiles lists the immediate children of a folder in provider
// default order, capped at one page.
func (c *Connector) ListFiles(ctx context.Context, folderRef string) (*cloud.FileList, error) {
	var result struct {
		Entries []entry `json:"entries"`
		Cursor  string  `json:"cursor"`
		HasMore bool    `json:"has_more"`
	}
	payload := map[string]any{
		"path":  folderRef, // "" is the root namespace
		"limit": config.ListPageSize,
	}
	if err := c.rpc(ctx, "listFiles", "/files/list_folder", payload, &result); err != nil {
		return nil, err
	}

	files := make([]cloud.NormalizedFile, 0, len(result.Entries))
	for _, e := range result.Entries {
		files = append(files, normalize(e))
	}

	list := &cloud.FileList{Files: files}
	if result.HasMore {
		list.NextPageToken = result.Cursor
	}
	return list, nil
}

// Search runs a full-text search scoped to the account.
func (c *Connector) Search(ctx context.Context, query string) (*cloud.FileList, error) {
	var result struct {
		Matches []struct {
			Metadata struct {
				Metadata entry `json:"metadata"`
			} `json:"metadata"`
		} `json:"matches"`
	}
	payload := map[string]any{
		"query": query,
		"options": map[string]any{
			"max_results": config.SearchPageSize,
		},
	}
	if err := c.rpc(ctx, "search", "/files/search_v2", payload, &result); err != nil {
		return nil, err
	}

	files := make([]cloud.NormalizedFile, 0, len(result.Matches))
	for _, m := range result.Matches {
		files = append(files, normalize(m.Metadata.Metadata))
	}
	return &cloud.FileList{Files: files}, nil
}

// DownloadFile streams raw content. The caller must close Body.
func (c *Connector) DownloadFile(ctx context.Context, fileRef string) (*cloud.Download, error) {
	arg, err := json.Marshal(map[string]string{"path": fileRef})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal download arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+"/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &cloud.ProviderError{Provider: cloud.ProviderDropbox, Op: "downloadFile", Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.wireError("downloadFile", resp)
	}

	return &cloud.Download{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// UploadFile writes content under destRef in "add" mode with
// autorename, so existing files are never silently overwritten.
func (c *Connector) UploadFile(ctx context.Context, content io.Reader, name, mimeType, destRef string) (*cloud.NormalizedFile, error) {
	path := destRef
	if path == "" || path[len(path)-1] != '/' {
		path += "/"
	}
	path += name

	arg, err := json.Marshal(map[string]any{
		"path":       path,
		"mode":       "add",
		"autorename": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+"/files/upload", content)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &cloud.ProviderError{Provider: cloud.ProviderDropbox, Op: "uploadFile", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.wireError("uploadFile", resp)
	}

	var uploaded entry
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	uploaded.Tag = "file"

	file := normalize(uploaded)
	return &file, nil
}

// GetFileMetadata fetches a single item by path or "id:" reference.
func (c *Connector) GetFileMetadata(ctx context.Context, fileRef string) (*cloud.NormalizedFile, error) {
	var result entry
	payload := map[string]string{"path": fileRef}
	if err := c.rpc(ctx, "getFileMetadata", "/files/get_metadata", payload, &result); err != nil {
		return nil, err
	}

	file := normalize(result)
	return &file, nil
}

// MoveFile is not part of the Dropbox contract; the path-addressed
// namespace has no parent edge to relink.
func (c *Connector) MoveFile(ctx context.Context, fileRef, newParentRef, oldParentRef string) (*cloud.NormalizedFile, error) {
	return nil, &cloud.ProviderError{
		Provider: cloud.ProviderDropbox,
		Op:       "moveFile",
		Message:  "move is not supported for Dropbox",
		Err:      cloud.ErrUnsupportedOperation,
	}
}

// CopyFile is not part of the Dropbox contract, same as MoveFile.
func (c *Connector) CopyFile(ctx context.Context, fileRef, destParentRef, newName string) (*cloud.NormalizedFile, error) {
	return nil, &cloud.ProviderError{
		Provider: cloud.ProviderDropbox,
		Op:       "copyFile",
		Message:  "copy is not supported for Dropbox",
		Err:      cloud.ErrUnsupportedOperation,
	}
}

// GetPreview is not supported; Dropbox previews are not resolvable
// through this contract.
func (c *Connector) GetPreview(ctx context.Context, fileRef, userID string) (*cloud.Preview, error) {
	return nil, &cloud.ProviderError{
		Provider: cloud.ProviderDropbox,
		Op:       "getPreview",
		Message:  "preview is not supported for Dropbox",
		Err:      cloud.ErrUnsupportedOperation,
	}
}

// StorageQuota reports account-wide Dropbox usage.
func (c *Connector) StorageQuota(ctx context.Context) (*cloud.Quota, error) {
	var result struct {
		Used       int64 `json:"used"`
		Allocation struct {
			Allocated int64 `json:"allocated"`
		} `json:"allocation"`
	}
	if err := c.rpc(ctx, "storageQuota", "/users/get_space_usage", nil, &result); err != nil {
		return nil, err
	}
	return &cloud.Quota{
		UsedBytes:  result.Used,
		TotalBytes: result.Allocation.Allocated,
	}, nil
}

func normalize(e entry) cloud.NormalizedFile {
	fileType := cloud.TypeFile
	if e.Tag == "folder" {
		fileType = cloud.TypeFolder
	}

	modified := e.ServerModified
	if modified == "" {
		modified = e.ClientModified
	}

	return cloud.NormalizedFile{
		ID:           e.ID,
		Name:         e.Name,
		Type:         fileType,
		Size:         e.Size,
		ModifiedTime: modified,
		Provider:     cloud.ProviderDropbox,
		Path:         e.PathLower,
	}
}
