package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/site-watch/app/database"
	"github.com/lysyi3m/site-watch/app/site"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

type WebsiteOutcome struct {
	WebsiteID  string `json:"website_id"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	ItemsFound int    `json:"items_found"`
	NewItems   int    `json:"new_items"`
	Error      string `json:"error,omitempty"`
}

type RunSummary struct {
	StartedAt   time.Time        `json:"started_at"`
	TotalActive int              `json:"total_active"`
	TotalDue    int              `json:"total_due"`
	Attempted   int              `json:"attempted"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Skipped     int              `json:"skipped"`
	DurationMs  int64            `json:"duration_ms"`
	Outcomes    []WebsiteOutcome `json:"outcomes"`
}

type SchedulerOptions struct {
	// Interval between automatic runs. Zero disables the ticker loop.
	Interval time.Duration
	// Delay between consecutive scrapes against the same host.
	Delay time.Duration
	// Workers is the number of hosts scraped in parallel.
	Workers int
	// Lease is how long a claimed website stays reserved for this run.
	Lease time.Duration
}

var _ SchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	scraper     Scraper
	websiteRepo database.WebsiteRepository
	interval    time.Duration
	delay       time.Duration
	workers     int
	lease       time.Duration
	now         func() time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	runMu       sync.Mutex
	lastMu      sync.RWMutex
	lastRun     *RunSummary
}

func NewScheduler(scraper Scraper, websiteRepo database.WebsiteRepository, opts SchedulerOptions) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Minute
	}

	return &Scheduler{
		scraper:     scraper,
		websiteRepo: websiteRepo,
		interval:    opts.Interval,
		delay:       opts.Delay,
		workers:     opts.Workers,
		lease:       opts.Lease,
		now:         func() time.Time { return time.Now().UTC() },
		ctx:         ctx,
		cancel:      cancel,
	}
}

// IsDue reports whether an active website should be scraped at now.
// Unknown frequencies are treated as daily.
func IsDue(website database.Website, now time.Time) bool {
	if !website.IsActive {
		return false
	}
	if website.LastCheckedAt == nil {
		return true
	}
	return !now.Before(website.LastCheckedAt.Add(website.CheckFrequency.Interval()))
}

func (s *Scheduler) Start() {
	if s.interval <= 0 {
		slog.Info("Scheduler disabled", "interval", s.interval.String())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runScheduled()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.runScheduled()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) LastRun() *RunSummary {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastRun
}

func (s *Scheduler) runScheduled() {
	if _, err := s.RunDueScrapes(s.ctx); err != nil {
		slog.Error("Scheduled run failed", "error", err)
	}
}

// RunDueScrapes scrapes every due website once. A failing website is
// recorded in the summary and never stops the run.
func (s *Scheduler) RunDueScrapes(ctx context.Context) (*RunSummary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	task := NewTask(TaskTypeRunDueScrapes, "")
	task.Start()

	websites, err := s.websiteRepo.ListActiveWebsites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active websites: %w", err)
	}

	now := s.now()
	var due []database.Website
	for _, website := range websites {
		if IsDue(website, now) {
			due = append(due, website)
		}
	}

	summary := &RunSummary{
		StartedAt:   now,
		TotalActive: len(websites),
		TotalDue:    len(due),
		Outcomes:    make([]WebsiteOutcome, len(due)),
	}

	groups := groupByHost(due)
	if s.workers <= 1 || len(groups) <= 1 {
		s.runSerial(ctx, due, allIndexes(len(due)), summary.Outcomes)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, indexes := range groups {
			g.Go(func() error {
				s.runSerial(gctx, due, indexes, summary.Outcomes)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, outcome := range summary.Outcomes {
		switch outcome.Status {
		case OutcomeSuccess:
			summary.Attempted++
			summary.Succeeded++
		case OutcomeFailed:
			summary.Attempted++
			summary.Failed++
		default:
			summary.Skipped++
		}
	}
	summary.DurationMs = task.GetDuration().Milliseconds()

	s.lastMu.Lock()
	s.lastRun = summary
	s.lastMu.Unlock()

	slog.Info("Task completed",
		"type", string(task.Type),
		"duration", task.GetDuration(),
		"active", summary.TotalActive,
		"due", summary.TotalDue,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	return summary, nil
}

// runSerial scrapes due[i] for each index in order, pausing between calls.
func (s *Scheduler) runSerial(ctx context.Context, due []database.Website, indexes []int, outcomes []WebsiteOutcome) {
	for n, i := range indexes {
		if n > 0 && s.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.delay):
			}
		}
		if ctx.Err() != nil {
			outcomes[i] = WebsiteOutcome{WebsiteID: due[i].ID, URL: due[i].URL, Status: OutcomeSkipped, Error: ctx.Err().Error()}
			continue
		}
		outcomes[i] = s.scrapeOne(ctx, due[i])
	}
}

func (s *Scheduler) scrapeOne(ctx context.Context, website database.Website) (outcome WebsiteOutcome) {
	outcome = WebsiteOutcome{WebsiteID: website.ID, URL: website.URL}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scrape panicked", "website", website.ID, "panic", r)
			outcome.Status = OutcomeFailed
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	claimed, err := s.websiteRepo.ClaimWebsite(ctx, website.ID, website.LastCheckedAt, s.now(), s.lease)
	if err != nil {
		slog.Warn("Failed to claim website", "website", website.ID, "error", err)
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}
	if !claimed {
		slog.Debug("Website claimed elsewhere, skipping", "website", website.ID)
		outcome.Status = OutcomeSkipped
		return outcome
	}

	result, err := s.scraper.Scrape(ctx, website.ID, "")
	if err != nil {
		slog.Error("Scrape failed", "website", website.ID, "url", website.URL, "error", err)
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}

	outcome.ItemsFound = result.ItemsFound
	outcome.NewItems = result.NewItems
	outcome.Error = result.Error
	if result.Status == database.ResultFailed {
		outcome.Status = OutcomeFailed
	} else {
		outcome.Status = OutcomeSuccess
	}
	return outcome
}

// groupByHost returns indexes into websites grouped by registrable domain,
// in order of first appearance.
func groupByHost(websites []database.Website) [][]int {
	var groups [][]int
	positions := make(map[string]int)
	for i, website := range websites {
		key := site.HostKey(website.URL)
		pos, ok := positions[key]
		if !ok {
			pos = len(groups)
			positions[key] = pos
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], i)
	}
	return groups
}

func allIndexes(n int) []int {
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}
