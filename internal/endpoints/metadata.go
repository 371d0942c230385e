package endpoints

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"skydeck/internal/overlay"
	"skydeck/internal/store"

	"github.com/gin-gonic/gin"
)

// MetadataDeps bundles what the overlay handlers need.
type MetadataDeps struct {
	Overlay *overlay.Service
}

// HandleGetMetadata returns the overlay row for one file, null when
// the file carries no annotations yet.
func HandleGetMetadata(deps MetadataDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cloudType := c.Query("cloudType")
		if cloudType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "cloudType est requis"})
			return
		}

		meta, err := deps.Overlay.Get(c.Param("userId"), c.Param("fileId"), cloudType)
		if err == store.ErrNotFound {
			c.JSON(http.StatusOK, gin.H{"success": true, "metadata": nil})
			return
		}
		if err != nil {
			slog.Error("metadata lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur récupération métadonnées"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "metadata": meta})
	}
}

// UpdateMetadataRequest is the merge-patch body for PUT. Absent fields
// are left untouched.
type UpdateMetadataRequest struct {
	CloudType   string             `json:"cloudType"`
	Tags        *[]string          `json:"tags"`
	TagColors   *map[string]string `json:"tagColors"`
	CustomName  *string            `json:"customName"`
	Description *string            `json:"description"`
	Starred     *bool              `json:"starred"`
	Color       *string            `json:"color"`
}

// HandleUpdateMetadata upserts overlay fields for one file.
func HandleUpdateMetadata(deps MetadataDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateMetadataRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.CloudType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "cloudType est requis"})
			return
		}

		patch := store.MetadataPatch{
			Tags:        req.Tags,
			TagColors:   req.TagColors,
			CustomName:  req.CustomName,
			Description: req.Description,
			Starred:     req.Starred,
			Color:       req.Color,
		}
		meta, err := deps.Overlay.Upsert(c.Param("userId"), c.Param("fileId"), req.CloudType, patch)
		if err != nil {
			slog.Error("metadata upsert failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur mise à jour métadonnées"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "metadata": meta})
	}
}

// HandleDeleteMetadata removes all annotations from one file.
func HandleDeleteMetadata(deps MetadataDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cloudType := c.Query("cloudType")
		if cloudType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "cloudType est requis"})
			return
		}

		err := deps.Overlay.Delete(c.Param("userId"), c.Param("fileId"), cloudType)
		if err == store.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Métadonnées non trouvées"})
			return
		}
		if err != nil {
			slog.Error("metadata delete failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur suppression métadonnées"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Métadonnées supprimées"})
	}
}

// UpdateTagsRequest is the body for the tag-only update.
type UpdateTagsRequest struct {
	Tags      []string          `json:"tags"`
	TagColors map[string]string `json:"tagColors"`
	CloudType string            `json:"cloudType"`
}

// HandleUpdateTags replaces the tag list for one file.
func HandleUpdateTags(deps MetadataDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateTagsRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Tags == nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Les tags doivent être un tableau"})
			return
		}
		if req.CloudType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "cloudType est requis"})
			return
		}

		meta, err := deps.Overlay.UpdateTags(c.Param("userId"), c.Param("fileId"), req.CloudType, req.Tags, req.TagColors)
		if err != nil {
			slog.Error("tag update failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur mise à jour tags"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "metadata": meta})
	}
}

// HandleSearchMetadata filters overlay rows by tags, provider and
// starred flag.
func HandleSearchMetadata(deps MetadataDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := store.MetadataFilter{
			CloudType: c.Query("cloudType"),
			Starred:   c.Query("starred") == "true",
		}
		if tags := c.Query("tags"); tags != "" {
			filter.Tag = strings.TrimSpace(strings.Split(tags, ",")[0])
		}

		results, err := deps.Overlay.Search(c.Param("userId"), filter)
		if err != nil {
			slog.Error("metadata search failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur recherche métadonnées"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
	}
}

// HandlePopularTags returns the user's most used tags.
func HandlePopularTags(deps MetadataDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 10
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		tags, err := deps.Overlay.PopularTags(c.Param("userId"), limit)
		if err != nil {
			slog.Error("popular tags failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur récupération tags populaires"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "tags": tags})
	}
}

// HandleMetadataStats reports overlay usage counters.
func HandleMetadataStats(deps MetadataDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := deps.Overlay.Stats(c.Param("userId"))
		if err != nil {
			slog.Error("metadata stats failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Erreur récupération stats"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	}
}
