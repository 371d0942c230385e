package aggregator

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"skydeck/internal/cloud"
	"skydeck/internal/metrics"
	"skydeck/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConnector struct {
	provider cloud.Provider
	files    []cloud.NormalizedFile
	err      error
	delay    time.Duration
}

func (s *stubConnector) Provider() cloud.Provider { return s.provider }

func (s *stubConnector) ListFiles(ctx context.Context, folderRef string) (*cloud.FileList, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &cloud.FileList{Files: s.files}, nil
}

func (s *stubConnector) Search(ctx context.Context, query string) (*cloud.FileList, error) {
	return s.ListFiles(ctx, "")
}

func (s *stubConnector) DownloadFile(ctx context.Context, fileRef string) (*cloud.Download, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConnector) UploadFile(ctx context.Context, content io.Reader, name, mimeType, destRef string) (*cloud.NormalizedFile, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConnector) GetFileMetadata(ctx context.Context, fileRef string) (*cloud.NormalizedFile, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConnector) MoveFile(ctx context.Context, fileRef, newParentRef, oldParentRef string) (*cloud.NormalizedFile, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConnector) CopyFile(ctx context.Context, fileRef, destParentRef, newName string) (*cloud.NormalizedFile, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConnector) GetPreview(ctx context.Context, fileRef, userID string) (*cloud.Preview, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConnector) StorageQuota(ctx context.Context) (*cloud.Quota, error) {
	return nil, errors.New("not implemented")
}

type stubFactory struct {
	connectors map[string]cloud.Connector
	err        error
}

func (f *stubFactory) ForAccount(ctx context.Context, account *models.CloudAccount) (cloud.Connector, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.connectors[account.Provider], nil
}

func driveFile(id string) cloud.NormalizedFile {
	return cloud.NormalizedFile{ID: id, Provider: cloud.ProviderGoogleDrive, Type: cloud.TypeFile}
}

func dropboxFile(id string) cloud.NormalizedFile {
	return cloud.NormalizedFile{ID: id, Provider: cloud.ProviderDropbox, Type: cloud.TypeFile}
}

func TestListFiles_MergesAllProviders(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive, files: []cloud.NormalizedFile{driveFile("d1"), driveFile("d2")}},
		"dropbox":      &stubConnector{provider: cloud.ProviderDropbox, files: []cloud.NormalizedFile{dropboxFile("id:x")}},
	}}
	agg := New(factory)

	accounts := []models.CloudAccount{
		{UserID: "u1", Provider: "dropbox"},
		{UserID: "u1", Provider: "google_drive"},
	}
	results := agg.ListFiles(context.Background(), accounts, "")
	require.Len(t, results, 2)

	// Result order follows account order, not completion order
	assert.Equal(t, cloud.ProviderDropbox, results[0].Provider)
	assert.Equal(t, cloud.ProviderGoogleDrive, results[1].Provider)

	files := Flatten(results)
	require.Len(t, files, 3)
	assert.Equal(t, "id:x", files[0].ID)
	assert.Equal(t, "d1", files[1].ID)
}

func TestListFiles_PartialFailureIsolation(t *testing.T) {
	boom := errors.New("dropbox exploded")
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive, files: []cloud.NormalizedFile{driveFile("d1")}},
		"dropbox":      &stubConnector{provider: cloud.ProviderDropbox, err: boom},
	}}
	agg := New(factory)

	accounts := []models.CloudAccount{
		{UserID: "u1", Provider: "google_drive"},
		{UserID: "u1", Provider: "dropbox"},
	}
	results := agg.ListFiles(context.Background(), accounts, "")
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)

	// The failing provider contributes nothing but hides nothing
	files := Flatten(results)
	require.Len(t, files, 1)
	assert.Equal(t, "d1", files[0].ID)

	failed := Errors(results)
	require.Len(t, failed, 1)
	assert.Contains(t, failed["dropbox"], "exploded")
}

func TestListFiles_SlowProviderTimesOut(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive, files: []cloud.NormalizedFile{driveFile("d1")}},
		"dropbox":      &stubConnector{provider: cloud.ProviderDropbox, files: []cloud.NormalizedFile{dropboxFile("id:x")}, delay: 2 * time.Second},
	}}
	agg := New(factory)
	agg.callTimeout = 25 * time.Millisecond

	accounts := []models.CloudAccount{
		{UserID: "u1", Provider: "google_drive"},
		{UserID: "u1", Provider: "dropbox"},
	}
	results := agg.ListFiles(context.Background(), accounts, "")
	require.Len(t, results, 2)

	// The hanging provider is cut off at the deadline, the fast one
	// still answers
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, context.DeadlineExceeded)

	files := Flatten(results)
	require.Len(t, files, 1)
	assert.Equal(t, "d1", files[0].ID)
}

func TestFanOut_CountsProviderCalls(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("google_drive", "list", "ok"))
	errBefore := testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("dropbox", "list", "error"))

	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive, files: []cloud.NormalizedFile{driveFile("d1")}},
		"dropbox":      &stubConnector{provider: cloud.ProviderDropbox, err: errors.New("down")},
	}}
	agg := New(factory)

	agg.ListFiles(context.Background(), []models.CloudAccount{
		{UserID: "u1", Provider: "google_drive"},
		{UserID: "u1", Provider: "dropbox"},
	}, "")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("google_drive", "list", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.ProviderCalls.WithLabelValues("dropbox", "list", "error")))
}

func TestListFiles_NoAccounts(t *testing.T) {
	agg := New(&stubFactory{})
	results := agg.ListFiles(context.Background(), nil, "")
	assert.Empty(t, results)
	assert.Empty(t, Flatten(results))
}

func TestListFiles_FactoryFailureRecordedPerProvider(t *testing.T) {
	factory := &stubFactory{err: errors.New("bad credentials")}
	agg := New(factory)

	results := agg.ListFiles(context.Background(), []models.CloudAccount{{UserID: "u1", Provider: "google_drive"}}, "")
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Empty(t, results[0].Files)
}

func TestSearch_FanOutSameAsList(t *testing.T) {
	factory := &stubFactory{connectors: map[string]cloud.Connector{
		"google_drive": &stubConnector{provider: cloud.ProviderGoogleDrive, files: []cloud.NormalizedFile{driveFile("d1")}},
	}}
	agg := New(factory)

	results := agg.Search(context.Background(), []models.CloudAccount{{UserID: "u1", Provider: "google_drive"}}, "report")
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Len(t, results[0].Files, 1)
}
