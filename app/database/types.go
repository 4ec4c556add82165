package database

import (
	"encoding/json"
	"time"
)

type CheckFrequency string

const (
	FrequencyHourly CheckFrequency = "hourly"
	FrequencyDaily  CheckFrequency = "daily"
	FrequencyWeekly CheckFrequency = "weekly"
)

// Interval returns how long a website waits between checks. Unknown values
// fall back to daily.
func (f CheckFrequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyWeekly:
		return 168 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (f CheckFrequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

type WebsiteStatus string

const (
	StatusPending WebsiteStatus = "pending"
	StatusActive  WebsiteStatus = "active"
	StatusError   WebsiteStatus = "error"
	StatusPaused  WebsiteStatus = "paused"
)

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultPartial ResultStatus = "partial"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const NotificationTypeNewItems = "new_items"

type Website struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	URL            string         `json:"url"`
	Name           string         `json:"name"`
	Category       string         `json:"category"`
	Industry       string         `json:"industry,omitempty"`
	Location       string         `json:"location,omitempty"`
	CheckFrequency CheckFrequency `json:"check_frequency"`
	IsActive       bool           `json:"is_active"`
	LastCheckedAt  *time.Time     `json:"last_checked_at"`
	LastStatus     WebsiteStatus  `json:"last_status"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// WebsiteUpdate carries the user-editable fields; nil means unchanged.
type WebsiteUpdate struct {
	Name           *string
	IsActive       *bool
	CheckFrequency *CheckFrequency
}

type ScrapeResult struct {
	ID           string            `json:"id"`
	WebsiteID    string            `json:"website_id"`
	ScrapedAt    time.Time         `json:"scrape_timestamp"`
	Status       ResultStatus      `json:"status"`
	ItemsFound   int               `json:"items_found"`
	NewItems     int               `json:"new_items"`
	ChangedItems int               `json:"changed_items"`
	RemovedItems int               `json:"removed_items"`
	DurationMs   int64             `json:"duration_ms"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Preview      json.RawMessage   `json:"preview,omitempty"`
	ItemKeys     map[string]string `json:"-"`
}

type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	WebsiteID string            `json:"website_id,omitempty"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Severity  Severity          `json:"severity"`
	Metadata  map[string]string `json:"metadata"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
}

// ScrapeRecord groups the writes that finish one scrape attempt. They are
// applied atomically by ResultRepository.RecordScrape.
type ScrapeRecord struct {
	Result        ScrapeResult
	WebsiteStatus WebsiteStatus
	WebsiteError  string
	CheckedAt     time.Time
	Notification  *Notification
}
