package tasks

import (
	"context"

	"github.com/lysyi3m/site-watch/app/site"
)

// Fetcher retrieves a page. Failures should be *site.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*site.Page, error)
}

type Extractor interface {
	Run(data []byte, pageURL string, category site.Category) ([]site.Item, error)
}

type Summarizer interface {
	Run(data []byte, pageURL string) (*site.PageSummary, error)
}

// Scraper runs one scrape of one website. userID scopes the lookup to the
// owner's records; an empty userID skips the ownership check.
type Scraper interface {
	Scrape(ctx context.Context, websiteID, userID string) (*Outcome, error)
}

// SchedulerInterface is used by the main application and the API to drive
// scheduled scraping.
//
//	scheduler := NewScheduler(engine, websiteRepo, opts)
//	scheduler.Start()
//	defer scheduler.Stop()
type SchedulerInterface interface {
	Start()
	Stop()
	RunDueScrapes(ctx context.Context) (*RunSummary, error)
	LastRun() *RunSummary
}
