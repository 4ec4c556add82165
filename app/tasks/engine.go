package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lysyi3m/site-watch/app/database"
	"github.com/lysyi3m/site-watch/app/site"
)

const defaultPreviewSize = 10

const errTruncatedBody = "response body exceeded the size limit; items were extracted from the first part only"

// Outcome summarizes one scrape attempt.
type Outcome struct {
	WebsiteID      string                `json:"website_id"`
	ResultID       string                `json:"result_id"`
	Status         database.ResultStatus `json:"status"`
	ItemsFound     int                   `json:"items_found"`
	NewItems       int                   `json:"new_items"`
	ChangedItems   int                   `json:"changed_items"`
	RemovedItems   int                   `json:"removed_items"`
	DurationMs     int64                 `json:"duration_ms"`
	Error          string                `json:"error,omitempty"`
	NotificationID string                `json:"notification_id,omitempty"`
}

type preview struct {
	Summary *site.PageSummary `json:"summary,omitempty"`
	Items   []site.Item       `json:"items"`
}

type EngineOptions struct {
	DiffMode    DiffMode
	PreviewSize int
}

type Engine struct {
	websiteRepo database.WebsiteRepository
	resultRepo  database.ResultRepository
	fetcher     Fetcher
	extractor   Extractor
	summarizer  Summarizer
	diffMode    DiffMode
	previewSize int
	printer     *message.Printer
	locks       *websiteLocks
	now         func() time.Time
}

var _ Scraper = (*Engine)(nil)

// NewEngine wires the scrape pipeline. summarizer may be nil.
func NewEngine(websiteRepo database.WebsiteRepository, resultRepo database.ResultRepository,
	fetcher Fetcher, extractor Extractor, summarizer Summarizer, opts EngineOptions) *Engine {
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = defaultPreviewSize
	}
	if opts.DiffMode == "" {
		opts.DiffMode = DiffCount
	}

	return &Engine{
		websiteRepo: websiteRepo,
		resultRepo:  resultRepo,
		fetcher:     fetcher,
		extractor:   extractor,
		summarizer:  summarizer,
		diffMode:    opts.DiffMode,
		previewSize: opts.PreviewSize,
		printer:     message.NewPrinter(language.English),
		locks:       newWebsiteLocks(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Scrape fetches the website, extracts its items, compares them with the
// previous result and records the outcome. Fetch and extraction failures are
// recorded as a failed result and returned with a nil error. An error is
// returned only when the website cannot be found or the store fails.
func (e *Engine) Scrape(ctx context.Context, websiteID, userID string) (*Outcome, error) {
	// A started scrape runs to completion; the fetch timeout bounds it.
	ctx = context.WithoutCancel(ctx)

	task := NewTask(TaskTypeScrapeWebsite, websiteID)
	task.Start()

	unlock := e.locks.lock(websiteID)
	defer unlock()

	website, err := e.websiteRepo.GetWebsite(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load website %s: %w", websiteID, err)
	}
	if userID != "" && website.UserID != userID {
		return nil, fmt.Errorf("failed to load website %s: %w", websiteID, database.ErrNotFound)
	}

	category, err := site.ParseCategory(website.Category)
	if err != nil {
		slog.Warn("Unknown website category, using generic extraction", "website", website.ID, "category", website.Category)
		category = site.CategoryOther
	}

	page, err := e.fetcher.Fetch(ctx, website.URL)
	if err != nil {
		return e.recordFailure(ctx, &task, website, err)
	}

	items, err := e.extractor.Run(page.Body, page.FinalURL, category)
	if err != nil {
		return e.recordFailure(ctx, &task, website, fmt.Errorf("failed to extract items: %w", err))
	}

	previous, err := e.resultRepo.GetLatestResult(ctx, website.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous result: %w", err)
	}

	keys := itemKeys(items)
	diff := computeDiff(e.diffMode, previous, items, keys)
	now := e.now()

	result := database.ScrapeResult{
		ID:           database.NewID(),
		WebsiteID:    website.ID,
		ScrapedAt:    now,
		Status:       database.ResultSuccess,
		ItemsFound:   len(items),
		NewItems:     diff.New,
		ChangedItems: diff.Changed,
		RemovedItems: diff.Removed,
		Preview:      e.buildPreview(page, items),
		ItemKeys:     keys,
	}
	if page.Truncated {
		result.Status = database.ResultPartial
		result.ErrorMessage = errTruncatedBody
	}

	record := database.ScrapeRecord{
		WebsiteStatus: database.StatusActive,
		CheckedAt:     now,
	}
	if diff.New > 0 {
		record.Notification = e.newItemsNotification(website, category, diff.New, now)
	}

	result.DurationMs = task.GetDuration().Milliseconds()
	record.Result = result

	if err := e.resultRepo.RecordScrape(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record scrape: %w", err)
	}

	outcome := &Outcome{
		WebsiteID:    website.ID,
		ResultID:     result.ID,
		Status:       result.Status,
		ItemsFound:   result.ItemsFound,
		NewItems:     result.NewItems,
		ChangedItems: result.ChangedItems,
		RemovedItems: result.RemovedItems,
		DurationMs:   result.DurationMs,
		Error:        result.ErrorMessage,
	}
	if record.Notification != nil {
		outcome.NotificationID = record.Notification.ID
	}

	slog.Info("Task completed",
		"type", string(task.Type),
		"website", website.ID,
		"url", website.URL,
		"duration", task.GetDuration(),
		"items", outcome.ItemsFound,
		"new", outcome.NewItems,
		"changed", outcome.ChangedItems,
		"removed", outcome.RemovedItems)

	return outcome, nil
}

func (e *Engine) recordFailure(ctx context.Context, task *Task, website *database.Website, cause error) (*Outcome, error) {
	now := e.now()

	result := database.ScrapeResult{
		ID:           database.NewID(),
		WebsiteID:    website.ID,
		ScrapedAt:    now,
		Status:       database.ResultFailed,
		DurationMs:   task.GetDuration().Milliseconds(),
		ErrorMessage: cause.Error(),
	}

	err := e.resultRepo.RecordScrape(ctx, database.ScrapeRecord{
		Result:        result,
		WebsiteStatus: database.StatusError,
		WebsiteError:  cause.Error(),
		CheckedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record failed scrape: %w", err)
	}

	slog.Warn("Task failed",
		"type", string(task.Type),
		"website", website.ID,
		"url", website.URL,
		"duration", task.GetDuration(),
		"error", cause)

	return &Outcome{
		WebsiteID:  website.ID,
		ResultID:   result.ID,
		Status:     result.Status,
		DurationMs: result.DurationMs,
		Error:      result.ErrorMessage,
	}, nil
}

func (e *Engine) buildPreview(page *site.Page, items []site.Item) json.RawMessage {
	p := preview{Items: items}
	if len(p.Items) > e.previewSize {
		p.Items = p.Items[:e.previewSize]
	}

	if e.summarizer != nil {
		summary, err := e.summarizer.Run(page.Body, page.FinalURL)
		if err != nil {
			slog.Debug("Page summary unavailable", "url", page.FinalURL, "error", err)
		} else {
			p.Summary = summary
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		slog.Warn("Failed to encode result preview", "url", page.FinalURL, "error", err)
		return nil
	}
	return data
}

func (e *Engine) newItemsNotification(website *database.Website, category site.Category, newItems int, now time.Time) *database.Notification {
	count := e.printer.Sprintf("%d", newItems)
	noun := category.Noun()

	return &database.Notification{
		ID:        database.NewID(),
		UserID:    website.UserID,
		WebsiteID: website.ID,
		Type:      database.NotificationTypeNewItems,
		Title:     fmt.Sprintf("%s new %s", count, noun),
		Message:   fmt.Sprintf("%s has %s new %s since the last check.", website.Name, count, noun),
		Severity:  database.SeveritySuccess,
		Metadata: map[string]string{
			"url":        website.URL,
			"website_id": website.ID,
			"category":   string(category),
			"new_items":  strconv.Itoa(newItems),
		},
		CreatedAt: now,
	}
}

// websiteLocks serializes scrapes of the same website within the process.
type websiteLocks struct {
	mu    sync.Mutex
	locks map[string]*websiteLock
}

type websiteLock struct {
	sync.Mutex
	refs int
}

func newWebsiteLocks() *websiteLocks {
	return &websiteLocks{locks: make(map[string]*websiteLock)}
}

func (l *websiteLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &websiteLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()

	return func() {
		entry.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
