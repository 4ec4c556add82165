package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/site-watch/app/database"
	"github.com/lysyi3m/site-watch/app/feed"
	"github.com/lysyi3m/site-watch/app/site"
	"github.com/lysyi3m/site-watch/app/tasks"
)

const (
	defaultResultsLimit       = 20
	maxResultsLimit           = 100
	defaultNotificationsLimit = 50
	maxNotificationsLimit     = 200
)

func NewHandler(websiteRepo database.WebsiteRepository, resultRepo database.ResultRepository,
	notificationRepo database.NotificationRepository, scraper tasks.Scraper,
	scheduler tasks.SchedulerInterface, selectors *site.SelectorCache) *Handler {
	return &Handler{
		websiteRepo:      websiteRepo,
		resultRepo:       resultRepo,
		notificationRepo: notificationRepo,
		generator:        feed.NewGenerator(),
		scraper:          scraper,
		scheduler:        scheduler,
		selectors:        selectors,
	}
}

func (h *Handler) CreateWebsite(c *gin.Context) {
	userID := c.GetString(userIDKey)

	var req createWebsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	u, err := site.ValidateURL(req.URL)
	if err != nil {
		h.respondError(c, "create_website", err)
		return
	}

	category, err := site.ParseCategory(req.Category)
	if err != nil {
		h.respondError(c, "create_website", err)
		return
	}

	frequency := database.FrequencyDaily
	if req.CheckFrequency != "" {
		frequency = database.CheckFrequency(req.CheckFrequency)
		if !frequency.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid check frequency", "details": "expected hourly, daily or weekly"})
			return
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = u.Hostname()
	}

	website := &database.Website{
		UserID:         userID,
		URL:            u.String(),
		Name:           name,
		Category:       string(category),
		Industry:       strings.TrimSpace(req.Industry),
		Location:       strings.TrimSpace(req.Location),
		CheckFrequency: frequency,
		IsActive:       req.IsActive == nil || *req.IsActive,
	}

	if err := h.websiteRepo.CreateWebsite(c.Request.Context(), website); err != nil {
		h.respondError(c, "create_website", err)
		return
	}

	slog.Info("Website added", "website", website.ID, "user", userID, "url", website.URL, "category", website.Category)

	response := gin.H{"website": website, "scrape": nil}

	if website.IsActive {
		outcome, err := h.scraper.Scrape(c.Request.Context(), website.ID, userID)
		if err != nil {
			slog.Warn("Initial scrape failed", "website", website.ID, "error", err)
		} else {
			response["scrape"] = outcome
			if refreshed, err := h.websiteRepo.GetWebsite(c.Request.Context(), website.ID); err == nil {
				response["website"] = refreshed
			}
		}
	}

	c.JSON(http.StatusCreated, response)
}

func (h *Handler) ListWebsites(c *gin.Context) {
	websites, err := h.websiteRepo.ListWebsites(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, "list_websites", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"websites": websites,
		"total":    len(websites),
	})
}

func (h *Handler) GetWebsite(c *gin.Context) {
	website, ok := h.ownedWebsite(c)
	if !ok {
		return
	}

	response := gin.H{"website": website}
	if latest, err := h.resultRepo.GetLatestResult(c.Request.Context(), website.ID); err == nil && latest != nil {
		response["latest_result"] = latest
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) UpdateWebsite(c *gin.Context) {
	var req updateWebsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	update := database.WebsiteUpdate{IsActive: req.IsActive}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name must not be empty"})
			return
		}
		update.Name = &name
	}

	if req.CheckFrequency != nil {
		frequency := database.CheckFrequency(*req.CheckFrequency)
		if !frequency.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid check frequency", "details": "expected hourly, daily or weekly"})
			return
		}
		update.CheckFrequency = &frequency
	}

	website, err := h.websiteRepo.UpdateWebsite(c.Request.Context(), c.Param("id"), c.GetString(userIDKey), update)
	if err != nil {
		h.respondError(c, "update_website", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"website": website})
}

func (h *Handler) DeleteWebsite(c *gin.Context) {
	id := c.Param("id")
	if err := h.websiteRepo.DeleteWebsite(c.Request.Context(), id, c.GetString(userIDKey)); err != nil {
		h.respondError(c, "delete_website", err)
		return
	}

	slog.Info("Website deleted", "website", id, "user", c.GetString(userIDKey))
	c.Status(http.StatusNoContent)
}

func (h *Handler) CheckWebsite(c *gin.Context) {
	outcome, err := h.scraper.Scrape(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, "check_website", err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) ListResults(c *gin.Context) {
	website, ok := h.ownedWebsite(c)
	if !ok {
		return
	}

	limit, ok := queryInt(c, "limit", defaultResultsLimit, 1, maxResultsLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0, 0, -1)
	if !ok {
		return
	}

	results, err := h.resultRepo.ListResults(c.Request.Context(), website.ID, limit, offset)
	if err != nil {
		h.respondError(c, "list_results", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultNotificationsLimit, 1, maxNotificationsLimit)
	if !ok {
		return
	}
	unreadOnly := c.Query("unread") == "true"
	userID := c.GetString(userIDKey)

	notifications, err := h.notificationRepo.ListNotifications(c.Request.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.respondError(c, "list_notifications", err)
		return
	}

	response := gin.H{"notifications": notifications}
	if unread, err := h.notificationRepo.GetUnreadCount(c.Request.Context(), userID); err == nil {
		response["unread"] = unread
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.notificationRepo.MarkNotificationRead(c.Request.Context(), c.Param("id"), c.GetString(userIDKey)); err != nil {
		h.respondError(c, "mark_notification_read", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) ClearReadNotifications(c *gin.Context) {
	deleted, err := h.notificationRepo.ClearReadNotifications(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.respondError(c, "clear_read_notifications", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) GetNotificationFeed(c *gin.Context) {
	userID := c.GetString(userIDKey)

	notifications, err := h.notificationRepo.ListNotifications(c.Request.Context(), userID, false, defaultNotificationsLimit)
	if err != nil {
		h.respondError(c, "notification_feed", err)
		return
	}

	rss, err := h.generator.Run(userID, notifications)
	if err != nil {
		slog.Error("RSS generation error", "user", userID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(notifications)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) RunScheduler(c *gin.Context) {
	summary, err := h.scheduler.RunDueScrapes(c.Request.Context())
	if err != nil {
		h.respondError(c, "run_scheduler", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.websiteRepo.GetWebsiteCount(c.Request.Context()); err == nil {
		health["websites"] = count
	} else {
		health["status"] = "degraded"
	}

	if h.selectors != nil {
		health["selector_overrides"] = h.selectors.Count()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := map[string]interface{}{}

	if count, err := h.websiteRepo.GetWebsiteCount(ctx); err == nil {
		stats["websites"] = count
	}
	if count, err := h.websiteRepo.GetActiveWebsiteCount(ctx); err == nil {
		stats["active_websites"] = count
	}
	if count, err := h.resultRepo.GetResultCount(ctx); err == nil {
		stats["scrape_results"] = count
	}

	if h.scheduler != nil {
		if last := h.scheduler.LastRun(); last != nil {
			stats["last_run"] = gin.H{
				"started_at":  last.StartedAt,
				"total_due":   last.TotalDue,
				"succeeded":   last.Succeeded,
				"failed":      last.Failed,
				"skipped":     last.Skipped,
				"duration_ms": last.DurationMs,
			}
		}
	}

	c.JSON(http.StatusOK, stats)
}

// ownedWebsite loads the :id website and checks it belongs to the caller.
// It writes the error response itself and reports whether to continue.
func (h *Handler) ownedWebsite(c *gin.Context) (*database.Website, bool) {
	website, err := h.websiteRepo.GetWebsite(c.Request.Context(), c.Param("id"))
	if err == nil && website.UserID != c.GetString(userIDKey) {
		err = database.ErrNotFound
	}
	if err != nil {
		h.respondError(c, "get_website", err)
		return nil, false
	}
	return website, true
}

func (h *Handler) respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, database.ErrDuplicateWebsite):
		c.JSON(http.StatusConflict, gin.H{"error": "Website already tracked"})
	case errors.Is(err, site.ErrInvalidURL), errors.Is(err, site.ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("Database error", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// queryInt parses an integer query parameter. A negative hi means no upper
// bound; values above hi are clamped.
func queryInt(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < lo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	if hi >= 0 && v > hi {
		v = hi
	}
	return v, true
}
