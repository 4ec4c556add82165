package api

import (
	"github.com/lysyi3m/site-watch/app/database"
	"github.com/lysyi3m/site-watch/app/feed"
	"github.com/lysyi3m/site-watch/app/site"
	"github.com/lysyi3m/site-watch/app/tasks"
)

type GeneratorInterface interface {
	Run(userID string, notifications []database.Notification) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	websiteRepo      database.WebsiteRepository
	resultRepo       database.ResultRepository
	notificationRepo database.NotificationRepository
	generator        GeneratorInterface
	scraper          tasks.Scraper
	scheduler        tasks.SchedulerInterface
	selectors        *site.SelectorCache
}

type createWebsiteRequest struct {
	URL            string `json:"url" binding:"required"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Industry       string `json:"industry"`
	Location       string `json:"location"`
	CheckFrequency string `json:"check_frequency"`
	IsActive       *bool  `json:"is_active"`
}

type updateWebsiteRequest struct {
	Name           *string `json:"name"`
	IsActive       *bool   `json:"is_active"`
	CheckFrequency *string `json:"check_frequency"`
}
