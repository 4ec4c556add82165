package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateWebsite = errors.New("website already tracked")
)

type WebsiteRepository interface {
	CreateWebsite(ctx context.Context, website *Website) error
	GetWebsite(ctx context.Context, id string) (*Website, error)
	ListWebsites(ctx context.Context, userID string) ([]Website, error)
	ListActiveWebsites(ctx context.Context) ([]Website, error)
	UpdateWebsite(ctx context.Context, id, userID string, update WebsiteUpdate) (*Website, error)
	DeleteWebsite(ctx context.Context, id, userID string) error
	ClaimWebsite(ctx context.Context, id string, lastCheckedAt *time.Time, now time.Time, lease time.Duration) (bool, error)
	GetWebsiteCount(ctx context.Context) (int, error)
	GetActiveWebsiteCount(ctx context.Context) (int, error)
}

type ResultRepository interface {
	GetLatestResult(ctx context.Context, websiteID string) (*ScrapeResult, error)
	ListResults(ctx context.Context, websiteID string, limit, offset int) ([]ScrapeResult, error)
	RecordScrape(ctx context.Context, record ScrapeRecord) error
	GetResultCount(ctx context.Context) (int, error)
}

type NotificationRepository interface {
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	ClearReadNotifications(ctx context.Context, userID string) (int64, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
}
