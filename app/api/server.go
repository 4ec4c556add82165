package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key, X-User-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	if apiAccessKey != "" {
		// Operator routes span every user and take no X-User-ID.
		operator := r.Group("/api")
		operator.Use(authMiddleware(apiAccessKey))
		{
			operator.POST("/scheduler/run", handler.RunScheduler)
		}

		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey), userMiddleware())
		{
			api.POST("/websites", handler.CreateWebsite)
			api.GET("/websites", handler.ListWebsites)
			api.GET("/websites/:id", handler.GetWebsite)
			api.PATCH("/websites/:id", handler.UpdateWebsite)
			api.DELETE("/websites/:id", handler.DeleteWebsite)
			api.POST("/websites/:id/check", handler.CheckWebsite)
			api.GET("/websites/:id/results", handler.ListResults)

			api.GET("/notifications", handler.ListNotifications)
			api.GET("/notifications/feed", handler.GetNotificationFeed)
			api.POST("/notifications/:id/read", handler.MarkNotificationRead)
			api.DELETE("/notifications/read", handler.ClearReadNotifications)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"health": "/health",
			"stats":  "/stats",
		}

		if apiAccessKey != "" {
			endpoints["websites"] = "/api/websites (requires X-API-Key and X-User-ID headers)"
			endpoints["check"] = "/api/websites/<id>/check (POST)"
			endpoints["results"] = "/api/websites/<id>/results"
			endpoints["notifications"] = "/api/notifications"
			endpoints["feed"] = "/api/notifications/feed"
			endpoints["scheduler"] = "/api/scheduler/run (POST, requires X-API-Key only)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Site Watch",
			"description": "Tracks websites, extracts listings and notifies about new ones",
			"endpoints":   endpoints,
			"api_status": gin.H{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
			"documentation": "https://github.com/lysyi3m/site-watch",
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiAccessKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			return
		}

		c.Next()
	}
}

// userMiddleware scopes every API call to the caller named in X-User-ID.
func userMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "User ID required",
				"message": "Provide the calling user in the X-User-ID header",
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}
