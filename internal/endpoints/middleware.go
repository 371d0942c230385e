package endpoints

import (
	"strconv"
	"time"

	"skydeck/internal/auth"
	"skydeck/internal/metrics"
	"skydeck/internal/store"

	"github.com/gin-gonic/gin"
)

// TokenRefreshMiddleware refreshes every implicated account's access
// token before the file handlers run, so connectors always start from
// valid credentials. Refresh failures are not fatal here; the
// downstream provider call fails on its own.
func TokenRefreshMiddleware(accounts *store.AccountStore, refresher *auth.Refresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		if userID == "" {
			userID = c.Query("userId")
		}
		if userID != "" {
			list, err := accounts.ListByUser(userID)
			if err == nil {
				for i := range list {
					refresher.EnsureFresh(c.Request.Context(), &list[i])
				}
			}
		}
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
