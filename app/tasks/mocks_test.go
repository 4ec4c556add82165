package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/site-watch/app/database"
	"github.com/lysyi3m/site-watch/app/site"
)

// MockStore is an in-memory WebsiteRepository and ResultRepository.
type MockStore struct {
	mu            sync.Mutex
	websites      map[string]*database.Website
	order         []string
	leases        map[string]time.Time
	results       map[string][]database.ScrapeResult
	notifications []database.Notification
	recordErr     error
}

var (
	_ database.WebsiteRepository = (*MockStore)(nil)
	_ database.ResultRepository  = (*MockStore)(nil)
)

func NewMockStore(websites ...database.Website) *MockStore {
	m := &MockStore{
		websites: make(map[string]*database.Website),
		leases:   make(map[string]time.Time),
		results:  make(map[string][]database.ScrapeResult),
	}
	for _, w := range websites {
		w := w
		if w.CheckFrequency == "" {
			w.CheckFrequency = database.FrequencyDaily
		}
		m.websites[w.ID] = &w
		m.order = append(m.order, w.ID)
	}
	return m
}

func (m *MockStore) CreateWebsite(ctx context.Context, website *database.Website) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := *website
	m.websites[w.ID] = &w
	m.order = append(m.order, w.ID)
	return nil
}

func (m *MockStore) GetWebsite(ctx context.Context, id string) (*database.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.websites[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *w
	return &clone, nil
}

func (m *MockStore) ListWebsites(ctx context.Context, userID string) ([]database.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Website
	for _, id := range m.order {
		if w := m.websites[id]; w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *MockStore) ListActiveWebsites(ctx context.Context) ([]database.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Website
	for _, id := range m.order {
		if w := m.websites[id]; w.IsActive {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *MockStore) UpdateWebsite(ctx context.Context, id, userID string, update database.WebsiteUpdate) (*database.Website, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *MockStore) DeleteWebsite(ctx context.Context, id, userID string) error {
	return fmt.Errorf("not implemented")
}

func (m *MockStore) ClaimWebsite(ctx context.Context, id string, lastCheckedAt *time.Time, now time.Time, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.websites[id]
	if !ok || !w.IsActive {
		return false, nil
	}
	if (w.LastCheckedAt == nil) != (lastCheckedAt == nil) ||
		(w.LastCheckedAt != nil && !w.LastCheckedAt.Equal(*lastCheckedAt)) {
		return false, nil
	}
	if expires, ok := m.leases[id]; ok && expires.After(now) {
		return false, nil
	}
	m.leases[id] = now.Add(lease)
	return true, nil
}

func (m *MockStore) GetWebsiteCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.websites), nil
}

func (m *MockStore) GetActiveWebsiteCount(ctx context.Context) (int, error) {
	active, _ := m.ListActiveWebsites(ctx)
	return len(active), nil
}

func (m *MockStore) GetLatestResult(ctx context.Context, websiteID string) (*database.ScrapeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.results[websiteID]
	if len(results) == 0 {
		return nil, nil
	}
	latest := results[len(results)-1]
	return &latest, nil
}

func (m *MockStore) ListResults(ctx context.Context, websiteID string, limit, offset int) ([]database.ScrapeResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *MockStore) RecordScrape(ctx context.Context, record database.ScrapeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	w, ok := m.websites[record.Result.WebsiteID]
	if !ok {
		return database.ErrNotFound
	}
	m.results[w.ID] = append(m.results[w.ID], record.Result)
	checked := record.CheckedAt
	w.LastCheckedAt = &checked
	w.LastStatus = record.WebsiteStatus
	if !w.IsActive {
		w.LastStatus = database.StatusPaused
	}
	w.LastError = record.WebsiteError
	delete(m.leases, w.ID)
	if record.Notification != nil {
		m.notifications = append(m.notifications, *record.Notification)
	}
	return nil
}

func (m *MockStore) GetResultCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.results {
		n += len(r)
	}
	return n, nil
}

func (m *MockStore) addResult(result database.ScrapeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.WebsiteID] = append(m.results[result.WebsiteID], result)
}

func (m *MockStore) resultsFor(websiteID string) []database.ScrapeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.ScrapeResult(nil), m.results[websiteID]...)
}

func (m *MockStore) notificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

// MockFetcher serves pages keyed by URL.
type MockFetcher struct {
	mu       sync.Mutex
	pages    map[string][]byte
	errs     map[string]error
	delay    time.Duration
	cut      map[string]bool
	calls    []string
	inFlight int
	maxSeen  int
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{pages: make(map[string][]byte), errs: make(map[string]error), cut: make(map[string]bool)}
}

func (f *MockFetcher) Fetch(ctx context.Context, rawURL string) (*site.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	body, hasPage := f.pages[rawURL]
	err := f.errs[rawURL]
	truncated := f.cut[rawURL]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !hasPage {
		return nil, &site.FetchError{Kind: site.FetchErrorStatus, URL: rawURL, StatusCode: 404}
	}
	return &site.Page{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: body, Truncated: truncated, FetchedAt: time.Now()}, nil
}

func (f *MockFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// MockScraper records scrape calls for scheduler tests.
type MockScraper struct {
	mu       sync.Mutex
	store    *MockStore
	calls    []string
	fail     map[string]error
	failed   map[string]bool
	panics   map[string]bool
	delay    time.Duration
	inFlight map[string]int
	maxHost  int
}

func NewMockScraper(store *MockStore) *MockScraper {
	return &MockScraper{
		store:    store,
		fail:     make(map[string]error),
		failed:   make(map[string]bool),
		panics:   make(map[string]bool),
		inFlight: make(map[string]int),
	}
}

func (s *MockScraper) Scrape(ctx context.Context, websiteID, userID string) (*Outcome, error) {
	website, err := s.store.GetWebsite(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	host := site.HostKey(website.URL)

	s.mu.Lock()
	s.calls = append(s.calls, websiteID)
	s.inFlight[host]++
	if s.inFlight[host] > s.maxHost {
		s.maxHost = s.inFlight[host]
	}
	failErr := s.fail[websiteID]
	failed := s.failed[websiteID]
	shouldPanic := s.panics[websiteID]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[host]--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if shouldPanic {
		panic("boom")
	}
	if failErr != nil {
		return nil, failErr
	}

	status := database.ResultSuccess
	websiteStatus := database.StatusActive
	if failed {
		status = database.ResultFailed
		websiteStatus = database.StatusError
	}
	result := database.ScrapeResult{ID: database.NewID(), WebsiteID: websiteID, ScrapedAt: time.Now(), Status: status}
	if err := s.store.RecordScrape(ctx, database.ScrapeRecord{Result: result, WebsiteStatus: websiteStatus, CheckedAt: time.Now()}); err != nil {
		return nil, err
	}
	return &Outcome{WebsiteID: websiteID, ResultID: result.ID, Status: status}, nil
}

func (s *MockScraper) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func genericPage(titled int) []byte {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	for i := 0; i < titled; i++ {
		fmt.Fprintf(&b, "<article><h2>Listing %d</h2><a href=\"/l/%d\">view</a><span class=\"price\">$%d00</span></article>\n", i, i, i+1)
	}
	b.WriteString("<article><p>untitled promo</p></article>\n</body></html>")
	return []byte(b.String())
}
