package endpoints

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"skydeck/internal/aggregator"
	"skydeck/internal/cache"
	"skydeck/internal/cloud"
	"skydeck/internal/models"
	"skydeck/internal/overlay"
	"skydeck/internal/store"

	"github.com/gin-gonic/gin"
)

// FileDeps bundles what the file handlers need.
type FileDeps struct {
	Accounts   *store.AccountStore
	Aggregator *aggregator.Aggregator
	Factory    aggregator.ConnectorFactory
	Overlay    *overlay.Service
	Cache      *cache.Cache
}

const storageStatsTTL = 5 * time.Minute

// providerSummary is the per-provider status attached to aggregate
// responses so a caller can tell which provider silently failed.
type providerSummary struct {
	Provider string `json:"provider"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

func summarize(results []aggregator.ProviderResult) []providerSummary {
	summaries := make([]providerSummary, len(results))
	for i, res := range results {
		summaries[i] = providerSummary{Provider: string(res.Provider), Count: len(res.Files)}
		if res.Err != nil {
			summaries[i].Error = res.Err.Error()
		}
	}
	return summaries
}

// filterByProvider keeps only the selected provider's account when the
// caller scopes the call, which is required whenever a folder
// reference is supplied since folder ids are provider-specific.
func filterByProvider(accounts []models.CloudAccount, provider string) []models.CloudAccount {
	if provider == "" {
		return accounts
	}
	filtered := []models.CloudAccount{}
	for _, account := range accounts {
		if account.Provider == provider {
			filtered = append(filtered, account)
		}
	}
	return filtered
}

// HandleListFiles lists files across every connected provider, or a
// single provider when the `provider` query is set.
func HandleListFiles(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		folderID := c.Query("folderId")
		provider := c.Query("provider")

		if provider != "" && !cloud.IsValidProvider(provider) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider invalide"})
			return
		}
		if folderID != "" && provider == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Le paramètre \"provider\" est requis avec folderId"})
			return
		}

		accounts, err := deps.Accounts.ListByUser(userID)
		if err != nil {
			slog.Error("failed to list cloud accounts", "userID", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la récupération des fichiers"})
			return
		}
		accounts = filterByProvider(accounts, provider)
		if len(accounts) == 0 {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"files":   []cloud.NormalizedFile{},
				"message": "Aucun service cloud connecté",
			})
			return
		}

		results := deps.Aggregator.ListFiles(c.Request.Context(), accounts, folderID)
		files := aggregator.Flatten(results)
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"files":     files,
			"count":     len(files),
			"providers": summarize(results),
		})
	}
}

// HandleSearchFiles searches every connected provider.
func HandleSearchFiles(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Le paramètre de recherche \"q\" est requis"})
			return
		}

		accounts, err := deps.Accounts.ListByUser(userID)
		if err != nil {
			slog.Error("failed to list cloud accounts", "userID", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la recherche"})
			return
		}
		if len(accounts) == 0 {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"files":   []cloud.NormalizedFile{},
				"message": "Aucun service cloud connecté",
			})
			return
		}

		results := deps.Aggregator.Search(c.Request.Context(), accounts, query)
		files := aggregator.Flatten(results)
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"files":     files,
			"count":     len(files),
			"query":     query,
			"providers": summarize(results),
		})
	}
}

// HandleStarredFiles returns the user's favorites resolved against
// their providers.
func HandleStarredFiles(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		starred, err := deps.Overlay.ListStarred(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to list starred files", "userID", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la récupération des favoris"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "files": starred, "count": len(starred)})
	}
}

// connectorFor resolves the connector for one (user, provider) pair,
// writing the 404 response itself when the provider is not linked.
func connectorFor(c *gin.Context, deps FileDeps, userID, provider string) (cloud.Connector, bool) {
	account, err := deps.Accounts.Get(userID, provider)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Service cloud non connecté"})
		return nil, false
	}
	conn, err := deps.Factory.ForAccount(c.Request.Context(), account)
	if err != nil {
		slog.Error("failed to build connector", "userID", userID, "provider", provider, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur serveur"})
		return nil, false
	}
	return conn, true
}

// HandleFileMetadata fetches a single file from its provider.
func HandleFileMetadata(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		provider := c.Param("provider")
		fileID := c.Param("fileId")

		if !cloud.IsValidProvider(provider) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider non supporté"})
			return
		}
		conn, ok := connectorFor(c, deps, userID, provider)
		if !ok {
			return
		}

		file, err := conn.GetFileMetadata(c.Request.Context(), fileID)
		if err != nil {
			if errors.Is(err, cloud.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Fichier non trouvé"})
				return
			}
			slog.Error("metadata fetch failed", "provider", provider, "fileID", fileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la récupération des métadonnées"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "file": file})
	}
}

// HandleFilePreview resolves preview URLs for a file.
func HandleFilePreview(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		provider := c.Param("provider")
		fileID := c.Param("fileId")

		if !cloud.IsValidProvider(provider) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider non supporté pour la prévisualisation"})
			return
		}
		conn, ok := connectorFor(c, deps, userID, provider)
		if !ok {
			return
		}

		preview, err := conn.GetPreview(c.Request.Context(), fileID, userID)
		if err != nil {
			if errors.Is(err, cloud.ErrUnsupportedOperation) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider non supporté pour la prévisualisation"})
				return
			}
			slog.Error("preview resolution failed", "provider", provider, "fileID", fileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la récupération de la prévisualisation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "preview": preview})
	}
}

// HandlePreviewProxy streams file content through the backend so the
// browser never sees provider credentials.
func HandlePreviewProxy(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		fileID := c.Param("fileId")
		userID := c.Query("userId")

		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "userId requis"})
			return
		}
		if !cloud.IsValidProvider(provider) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider non supporté"})
			return
		}
		conn, ok := connectorFor(c, deps, userID, provider)
		if !ok {
			return
		}

		download, err := conn.DownloadFile(c.Request.Context(), fileID)
		if err != nil {
			slog.Error("preview proxy fetch failed", "provider", provider, "fileID", fileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la récupération du fichier"})
			return
		}
		defer download.Body.Close()

		contentType := download.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Cache-Control", "public, max-age=3600")
		c.DataFromReader(http.StatusOK, download.Size, contentType, download.Body, nil)
	}
}

// MoveFileRequest is the body for POST /files/:userId/move.
type MoveFileRequest struct {
	Provider    string `json:"provider"`
	FileID      string `json:"fileId"`
	NewParentID string `json:"newParentId"`
	OldParentID string `json:"oldParentId"`
}

// HandleMoveFile relinks a file to a new parent folder.
func HandleMoveFile(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		var req MoveFileRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Provider == "" || req.FileID == "" || req.NewParentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "provider, fileId et newParentId sont requis"})
			return
		}
		conn, ok := connectorFor(c, deps, userID, req.Provider)
		if !ok {
			return
		}

		result, err := conn.MoveFile(c.Request.Context(), req.FileID, req.NewParentID, req.OldParentID)
		if err != nil {
			if errors.Is(err, cloud.ErrUnsupportedOperation) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider non supporté pour le déplacement"})
				return
			}
			slog.Error("move failed", "provider", req.Provider, "fileID", req.FileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors du déplacement du fichier"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

// CopyFileRequest is the body for POST /files/:userId/copy.
type CopyFileRequest struct {
	Provider    string `json:"provider"`
	FileID      string `json:"fileId"`
	NewParentID string `json:"newParentId"`
	NewName     string `json:"newName"`
}

// HandleCopyFile duplicates a file into another folder.
func HandleCopyFile(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		var req CopyFileRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Provider == "" || req.FileID == "" || req.NewParentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "provider, fileId et newParentId sont requis"})
			return
		}
		conn, ok := connectorFor(c, deps, userID, req.Provider)
		if !ok {
			return
		}

		result, err := conn.CopyFile(c.Request.Context(), req.FileID, req.NewParentID, req.NewName)
		if err != nil {
			if errors.Is(err, cloud.ErrUnsupportedOperation) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider non supporté pour la copie"})
				return
			}
			slog.Error("copy failed", "provider", req.Provider, "fileID", req.FileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la copie du fichier"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

// DownloadFileRequest is the body for POST /files/:userId/download.
type DownloadFileRequest struct {
	Provider string `json:"provider"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

// HandleDownloadFile streams raw file content as an attachment.
func HandleDownloadFile(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		var req DownloadFileRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Provider == "" || req.FileID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "provider et fileId sont requis"})
			return
		}
		if !cloud.IsValidProvider(req.Provider) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Provider non supporté"})
			return
		}
		conn, ok := connectorFor(c, deps, userID, req.Provider)
		if !ok {
			return
		}

		download, err := conn.DownloadFile(c.Request.Context(), req.FileID)
		if err != nil {
			slog.Error("download failed", "provider", req.Provider, "fileID", req.FileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors du téléchargement"})
			return
		}
		defer download.Body.Close()

		fileName := req.FileName
		if fileName == "" {
			fileName = "download"
		}
		extraHeaders := map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", fileName),
		}
		c.DataFromReader(http.StatusOK, download.Size, "application/octet-stream", download.Body, extraHeaders)
	}
}

// storageStats is the aggregate quota reported across providers.
type storageStats struct {
	Connected  int   `json:"connected"`
	UsedBytes  int64 `json:"usedBytes"`
	TotalBytes int64 `json:"totalBytes"`
}

// HandleStorageStats aggregates storage quota across every connected
// provider. Results are cached briefly since quota moves slowly and
// the endpoint is polled by dashboards.
func HandleStorageStats(deps FileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		ctx := c.Request.Context()
		cacheKey := "storage_stats:" + userID

		var cached storageStats
		if err := deps.Cache.Get(ctx, cacheKey, &cached); err == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "stats": cached})
			return
		}

		accounts, err := deps.Accounts.ListByUser(userID)
		if err != nil {
			slog.Error("failed to list cloud accounts", "userID", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur lors de la récupération du stockage"})
			return
		}

		stats := storageStats{Connected: len(accounts)}
		for i := range accounts {
			account := &accounts[i]
			conn, err := deps.Factory.ForAccount(ctx, account)
			if err != nil {
				slog.Warn("failed to build connector for quota", "provider", account.Provider, "error", err)
				continue
			}
			quota, err := conn.StorageQuota(ctx)
			if err != nil {
				slog.Warn("quota fetch failed", "provider", account.Provider, "error", err)
				continue
			}
			stats.UsedBytes += quota.UsedBytes
			stats.TotalBytes += quota.TotalBytes
		}

		deps.Cache.Set(ctx, cacheKey, stats, storageStatsTTL)
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	}
}
