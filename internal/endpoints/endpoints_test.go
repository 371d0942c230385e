package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skydeck/internal/aggregator"
	"skydeck/internal/auth"
	"skydeck/internal/cloud"
	"skydeck/internal/models"
	"skydeck/internal/overlay"
	"skydeck/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubConnector struct {
	provider cloud.Provider
	files    []cloud.NormalizedFile
	err      error
}

func (s *stubConnector) Provider() cloud.Provider { return s.provider }

func (s *stubConnector) ListFiles(ctx context.Context, folderRef string) (*cloud.FileList, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &cloud.FileList{Files: s.files}, nil
}

func (s *stubConnector) Search(ctx context.Context, query string) (*cloud.FileList, error) {
	return s.ListFiles(ctx, "")
}

func (s *stubConnector) DownloadFile(ctx context.Context, fileRef string) (*cloud.Download, error) {
	return &cloud.Download{
		Body:        io.NopCloser(strings.NewReader("file-bytes")),
		ContentType: "text/plain",
		Size:        10,
	}, nil
}

func (s *stubConnector) UploadFile(ctx context.Context, content io.Reader, name, mimeType, destRef string) (*cloud.NormalizedFile, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConnector) GetFileMetadata(ctx context.Context, fileRef string) (*cloud.NormalizedFile, error) {
	if len(s.files) == 0 {
		return nil, cloud.ErrNotFound
	}
	return &s.files[0], nil
}

func (s *stubConnector) MoveFile(ctx context.Context, fileRef, newParentRef, oldParentRef string) (*cloud.NormalizedFile, error) {
	if s.provider == cloud.ProviderDropbox {
		return nil, &cloud.ProviderError{Provider: s.provider, Op: "moveFile", Err: cloud.ErrUnsupportedOperation}
	}
	moved := cloud.NormalizedFile{ID: fileRef, Parents: []string{newParentRef}, Provider: s.provider}
	return &moved, nil
}

func (s *stubConnector) CopyFile(ctx context.Context, fileRef, destParentRef, newName string) (*cloud.NormalizedFile, error) {
	if s.provider == cloud.ProviderDropbox {
		return nil, &cloud.ProviderError{Provider: s.provider, Op: "copyFile", Err: cloud.ErrUnsupportedOperation}
	}
	copied := cloud.NormalizedFile{ID: "copy-of-" + fileRef, Name: newName, Provider: s.provider}
	return &copied, nil
}

func (s *stubConnector) GetPreview(ctx context.Context, fileRef, userID string) (*cloud.Preview, error) {
	return nil, &cloud.ProviderError{Provider: s.provider, Op: "getPreview", Err: cloud.ErrUnsupportedOperation}
}

func (s *stubConnector) StorageQuota(ctx context.Context) (*cloud.Quota, error) {
	return &cloud.Quota{UsedBytes: 100, TotalBytes: 1000}, nil
}

type stubFactory struct {
	connectors map[string]cloud.Connector
}

func (f *stubFactory) ForAccount(ctx context.Context, account *models.CloudAccount) (cloud.Connector, error) {
	conn, ok := f.connectors[account.Provider]
	if !ok {
		return nil, errors.New("no connector for " + account.Provider)
	}
	return conn, nil
}

type testEnv struct {
	router   *gin.Engine
	users    *store.UserStore
	accounts *store.AccountStore
}

func setupEnv(t *testing.T, factory *stubFactory) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.CloudAccount{}, &models.FileMetadata{}))

	users := store.NewUserStore(db)
	accounts := store.NewAccountStore(db)
	metadata := store.NewMetadataStore(db)

	if factory == nil {
		factory = &stubFactory{}
	}

	cfg := &oauth2.Config{ClientID: "client"}
	refresher := auth.NewRefresher(accounts, cfg, cfg)
	overlaySvc := overlay.NewService(metadata, accounts, factory)

	router := gin.New()
	SetupRoutes(router, Deps{
		Auth: AuthDeps{
			Users:     users,
			Accounts:  accounts,
			Refresher: refresher,
			Google:    cfg,
			Dropbox:   cfg,
		},
		Files: FileDeps{
			Accounts:   accounts,
			Aggregator: aggregator.New(factory),
			Factory:    factory,
			Overlay:    overlaySvc,
			Cache:      nil,
		},
		Metadata: MetadataDeps{Overlay: overlaySvc},
		Accounts: accounts,
		// Refresher never fires in tests: stored expiries are in the future
		Refresher: refresher,
	})
	return &testEnv{router: router, users: users, accounts: accounts}
}

func (e *testEnv) linkAccount(t *testing.T, provider string) {
	t.Helper()
	expiry := time.Now().Add(time.Hour)
	_, err := e.accounts.Upsert("u1", provider, "access-token", "refresh-token", "a@b.c", &expiry)
	require.NoError(t, err)
}

func (e *testEnv) do(method, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func TestListFiles_EmptyState(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodGet, "/files/u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "Aucun service cloud connecté", payload["message"])
	assert.Empty(t, payload["files"])
}

func TestListFiles_MergesProviders(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive, files: []cloud.NormalizedFile{
			{ID: "d1", Name: "a.txt", Provider: cloud.ProviderGoogleDrive, Type: cloud.TypeFile},
		}},
		"dropbox": &stubConnector{provider: cloud.ProviderDropbox, files: []cloud.NormalizedFile{
			{ID: "id:x", Name: "b.txt", Provider: cloud.ProviderDropbox, Type: cloud.TypeFile},
		}},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "google_drive")
	env.linkAccount(t, "dropbox")

	w := env.do(http.MethodGet, "/files/u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	assert.Equal(t, float64(2), payload["count"])
	assert.Len(t, payload["providers"], 2)
}

func TestListFiles_OneProviderFailingKeepsOthers(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive, files: []cloud.NormalizedFile{
			{ID: "d1", Name: "a.txt", Provider: cloud.ProviderGoogleDrive, Type: cloud.TypeFile},
		}},
		"dropbox": &stubConnector{provider: cloud.ProviderDropbox, err: errors.New("boom")},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "google_drive")
	env.linkAccount(t, "dropbox")

	w := env.do(http.MethodGet, "/files/u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, float64(1), payload["count"])

	// The failed provider is visible in the per-provider summary
	providers := payload["providers"].([]any)
	var dropboxStatus map[string]any
	for _, p := range providers {
		entry := p.(map[string]any)
		if entry["provider"] == "dropbox" {
			dropboxStatus = entry
		}
	}
	require.NotNil(t, dropboxStatus)
	assert.Contains(t, dropboxStatus["error"], "boom")
}

func TestListFiles_FolderRefRequiresProviderScope(t *testing.T) {
	env := setupEnv(t, nil)
	env.linkAccount(t, "google_drive")

	w := env.do(http.MethodGet, "/files/u1?folderId=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_MissingQueryRejected(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodGet, "/files/u1/search", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	payload := decode(t, w)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, `Le paramètre de recherche "q" est requis`, payload["error"])
}

func TestMove_DropboxRejectedBeforeProviderCall(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"dropbox": &stubConnector{provider: cloud.ProviderDropbox},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "dropbox")

	body := `{"provider": "dropbox", "fileId": "id:x", "newParentId": "id:y"}`
	w := env.do(http.MethodPost, "/files/u1/move", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	payload := decode(t, w)
	assert.Equal(t, "Provider non supporté pour le déplacement", payload["error"])
}

func TestMove_MissingFieldsRejected(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodPost, "/files/u1/move", `{"provider": "google_drive"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "provider, fileId et newParentId sont requis", payload["error"])
}

func TestMove_GoogleDriveSucceeds(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "google_drive")

	body := `{"provider": "google_drive", "fileId": "f1", "newParentId": "folder-2"}`
	w := env.do(http.MethodPost, "/files/u1/move", body)
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	assert.Equal(t, true, payload["success"])
}

func TestCopy_DropboxRejected(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"dropbox": &stubConnector{provider: cloud.ProviderDropbox},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "dropbox")

	body := `{"provider": "dropbox", "fileId": "id:x", "newParentId": "id:y"}`
	w := env.do(http.MethodPost, "/files/u1/copy", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	payload := decode(t, w)
	assert.Equal(t, "Provider non supporté pour la copie", payload["error"])
}

func TestMove_UnlinkedProviderIs404(t *testing.T) {
	env := setupEnv(t, nil)

	body := `{"provider": "google_drive", "fileId": "f1", "newParentId": "p1"}`
	w := env.do(http.MethodPost, "/files/u1/move", body)
	require.Equal(t, http.StatusNotFound, w.Code)

	payload := decode(t, w)
	assert.Equal(t, "Service cloud non connecté", payload["error"])
}

func TestDownload_StreamsAttachment(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "google_drive")

	body := `{"provider": "google_drive", "fileId": "f1", "fileName": "report.pdf"}`
	w := env.do(http.MethodPost, "/files/u1/download", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="report.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "file-bytes", w.Body.String())
}

func TestPreviewProxy_RequiresUserID(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodGet, "/files/preview-proxy/google_drive/f1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "userId requis", payload["error"])
}

func TestPreviewProxy_StreamsWithCacheHeader(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "google_drive")

	w := env.do(http.MethodGet, "/files/preview-proxy/google_drive/f1?userId=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
}

func TestStorageStats_AggregatesQuota(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive},
		"dropbox":      &stubConnector{provider: cloud.ProviderDropbox},
	}}
	env := setupEnv(t, factory)
	env.linkAccount(t, "google_drive")
	env.linkAccount(t, "dropbox")

	w := env.do(http.MethodGet, "/files/u1/storage", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	stats := payload["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["connected"])
	assert.Equal(t, float64(200), stats["usedBytes"])
	assert.Equal(t, float64(2000), stats["totalBytes"])
}

func TestAuthStatus_ReportsConnectedServices(t *testing.T) {
	env := setupEnv(t, nil)

	user, err := env.users.LookupOrCreate("a@b.c", "Alice")
	require.NoError(t, err)
	expiry := time.Now().Add(time.Hour)
	_, err = env.accounts.Upsert(user.ID, "google_drive", "at", "rt", "a@b.c", &expiry)
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/auth/status/"+user.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	services := payload["connectedServices"].(map[string]any)
	assert.Equal(t, true, services["google_drive"])
	assert.Equal(t, false, services["dropbox"])
}

func TestAuthStatus_UnknownUserIs404(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodGet, "/auth/status/nobody", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "Utilisateur non trouvé", payload["error"])
}

func TestDisconnect_RemovesThenReports404(t *testing.T) {
	env := setupEnv(t, nil)
	env.linkAccount(t, "dropbox")

	w := env.do(http.MethodDelete, "/auth/disconnect/u1/dropbox", "")
	require.Equal(t, http.StatusOK, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "dropbox déconnecté avec succès", payload["message"])

	// Disconnecting again is a 404, not a silent success
	w = env.do(http.MethodDelete, "/auth/disconnect/u1/dropbox", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Reconnect recreates the row via upsert
	env.linkAccount(t, "dropbox")
	list, err := env.accounts.ListByUser("u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDisconnect_InvalidProviderRejected(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodDelete, "/auth/disconnect/u1/onedrive", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetadata_PutThenGetRoundTrip(t *testing.T) {
	env := setupEnv(t, nil)

	body := `{"cloudType": "google_drive", "tags": ["a", "b"], "starred": true}`
	w := env.do(http.MethodPut, "/metadata/u1/f1", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/metadata/u1/f1?cloudType=google_drive", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	meta := payload["metadata"].(map[string]any)
	assert.Equal(t, []any{"a", "b"}, meta["tags"])
	assert.Equal(t, true, meta["starred"])
}

func TestMetadata_GetAbsentReturnsNull(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodGet, "/metadata/u1/unknown?cloudType=dropbox", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	assert.Equal(t, true, payload["success"])
	assert.Nil(t, payload["metadata"])
}

func TestMetadata_CloudTypeRequired(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodGet, "/metadata/u1/f1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "cloudType est requis", payload["error"])
}

func TestMetadata_TagsMustBeArray(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodPut, "/metadata/u1/f1/tags", `{"cloudType": "dropbox"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "Les tags doivent être un tableau", payload["error"])
}

func TestMetadata_DeleteAbsentIs404(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodDelete, "/metadata/u1/f1?cloudType=dropbox", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetadata_PopularTags(t *testing.T) {
	env := setupEnv(t, nil)

	env.do(http.MethodPut, "/metadata/u1/f1/tags", `{"cloudType": "dropbox", "tags": ["work", "urgent"]}`)
	env.do(http.MethodPut, "/metadata/u1/f2/tags", `{"cloudType": "google_drive", "tags": ["work"]}`)

	w := env.do(http.MethodGet, "/metadata/u1/tags/popular?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	tags := payload["tags"].([]any)
	require.Len(t, tags, 1)
	top := tags[0].(map[string]any)
	assert.Equal(t, "work", top["tag"])
	assert.Equal(t, float64(2), top["count"])
}

func TestHealthAndNotFound(t *testing.T) {
	env := setupEnv(t, nil)

	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/definitely/not/here", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "Route non trouvée", payload["error"])
}
