package endpoints

import (
	"net/http"

	"skydeck/internal/auth"
	"skydeck/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps aggregates everything the route tree needs.
type Deps struct {
	Auth     AuthDeps
	Files    FileDeps
	Metadata MetadataDeps

	Accounts  *store.AccountStore
	Refresher *auth.Refresher
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, deps Deps) {
	r.Use(MetricsMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "SkyDeck API",
			"version": "1.0.0",
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "skydeck",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/google", HandleGoogleAuth(deps.Auth))
		authGroup.GET("/google/callback", HandleGoogleCallback(deps.Auth))
		authGroup.GET("/dropbox", HandleDropboxAuth(deps.Auth))
		authGroup.GET("/dropbox/callback", HandleDropboxCallback(deps.Auth))
		authGroup.GET("/status/:userId", HandleAuthStatus(deps.Auth))
		authGroup.GET("/user/info/:userId", HandleUserInfo(deps.Auth))
		authGroup.DELETE("/disconnect/:userId/:provider", HandleDisconnect(deps.Auth))
	}

	files := r.Group("/files")
	files.Use(TokenRefreshMiddleware(deps.Accounts, deps.Refresher))
	{
		files.GET("/preview-proxy/:provider/:fileId", HandlePreviewProxy(deps.Files))
		files.GET("/:userId", HandleListFiles(deps.Files))
		files.GET("/:userId/search", HandleSearchFiles(deps.Files))
		files.GET("/:userId/starred", HandleStarredFiles(deps.Files))
		files.GET("/:userId/storage", HandleStorageStats(deps.Files))
		files.GET("/:userId/metadata/:provider/:fileId", HandleFileMetadata(deps.Files))
		files.GET("/:userId/preview/:provider/:fileId", HandleFilePreview(deps.Files))
		files.POST("/:userId/move", HandleMoveFile(deps.Files))
		files.POST("/:userId/copy", HandleCopyFile(deps.Files))
		files.POST("/:userId/download", HandleDownloadFile(deps.Files))
	}

	metadata := r.Group("/metadata")
	{
		metadata.GET("/:userId/search", HandleSearchMetadata(deps.Metadata))
		metadata.GET("/:userId/tags/popular", HandlePopularTags(deps.Metadata))
		metadata.GET("/:userId/stats", HandleMetadataStats(deps.Metadata))
		metadata.GET("/:userId/:fileId", HandleGetMetadata(deps.Metadata))
		metadata.PUT("/:userId/:fileId", HandleUpdateMetadata(deps.Metadata))
		metadata.DELETE("/:userId/:fileId", HandleDeleteMetadata(deps.Metadata))
		metadata.PUT("/:userId/:fileId/tags", HandleUpdateTags(deps.Metadata))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Route non trouvée"})
	})
}
