package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 1, version)

	return db
}

func newTestWebsite(id, userID, url string) *Website {
	return &Website{
		ID:             id,
		UserID:         userID,
		URL:            url,
		Name:           "Test " + id,
		Category:       "properties",
		CheckFrequency: FrequencyDaily,
		IsActive:       true,
	}
}

func TestNewConnectionRequiresPath(t *testing.T) {
	_, err := NewConnection("")
	assert.Error(t, err)
}

func TestCreateWebsiteRejectsDuplicateForSameUser(t *testing.T) {
	ctx := context.Background()
	repo := NewWebsiteRepository(newTestDB(t))

	require.NoError(t, repo.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com/listings")))

	err := repo.CreateWebsite(ctx, newTestWebsite("w2", "alice", "https://example.com/listings"))
	assert.ErrorIs(t, err, ErrDuplicateWebsite)

	// Same URL for a different user is fine.
	require.NoError(t, repo.CreateWebsite(ctx, newTestWebsite("w3", "bob", "https://example.com/listings")))

	count, err := repo.GetWebsiteCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetWebsiteNotFound(t *testing.T) {
	repo := NewWebsiteRepository(newTestDB(t))

	_, err := repo.GetWebsite(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateWebsiteDefaults(t *testing.T) {
	ctx := context.Background()
	repo := NewWebsiteRepository(newTestDB(t))

	w := newTestWebsite("w1", "alice", "https://example.com")
	w.CheckFrequency = ""
	w.Industry = "real estate"
	require.NoError(t, repo.CreateWebsite(ctx, w))

	got, err := repo.GetWebsite(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, FrequencyDaily, got.CheckFrequency)
	assert.Equal(t, StatusPending, got.LastStatus)
	assert.Equal(t, "real estate", got.Industry)
	assert.Empty(t, got.Location)
	assert.Nil(t, got.LastCheckedAt)
	assert.True(t, got.IsActive)
}

func TestUpdateWebsitePauseAndResume(t *testing.T) {
	ctx := context.Background()
	repo := NewWebsiteRepository(newTestDB(t))
	require.NoError(t, repo.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	inactive := false
	weekly := FrequencyWeekly
	name := "Renamed"
	got, err := repo.UpdateWebsite(ctx, "w1", "alice", WebsiteUpdate{IsActive: &inactive, CheckFrequency: &weekly, Name: &name})
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, StatusPaused, got.LastStatus)
	assert.Equal(t, FrequencyWeekly, got.CheckFrequency)
	assert.Equal(t, "Renamed", got.Name)

	active := true
	got, err = repo.UpdateWebsite(ctx, "w1", "alice", WebsiteUpdate{IsActive: &active})
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, StatusPending, got.LastStatus)

	_, err = repo.UpdateWebsite(ctx, "w1", "mallory", WebsiteUpdate{IsActive: &active})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveWebsitesSkipsInactive(t *testing.T) {
	ctx := context.Background()
	repo := NewWebsiteRepository(newTestDB(t))

	require.NoError(t, repo.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://a.example.com")))
	paused := newTestWebsite("w2", "alice", "https://b.example.com")
	paused.IsActive = false
	require.NoError(t, repo.CreateWebsite(ctx, paused))

	active, err := repo.ListActiveWebsites(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "w1", active[0].ID)

	all, err := repo.ListWebsites(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClaimWebsiteIsExclusive(t *testing.T) {
	ctx := context.Background()
	repo := NewWebsiteRepository(newTestDB(t))
	require.NoError(t, repo.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	now := time.Now()
	ok, err := repo.ClaimWebsite(ctx, "w1", nil, now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimWebsite(ctx, "w1", nil, now, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail while the lease is live")

	ok, err = repo.ClaimWebsite(ctx, "w1", nil, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be reclaimed")

	stale := now.Add(-time.Hour)
	ok, err = repo.ClaimWebsite(ctx, "w1", &stale, now.Add(10*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "claim with a stale last_checked_at must fail")
}

func TestRecordScrapeWritesResultStatusAndNotification(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	websites := NewWebsiteRepository(db)
	results := NewResultRepository(db)
	notifications := NewNotificationRepository(db)
	require.NoError(t, websites.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	checkedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := results.RecordScrape(ctx, ScrapeRecord{
		Result: ScrapeResult{
			ID: "r1", WebsiteID: "w1", ScrapedAt: checkedAt, Status: ResultSuccess,
			ItemsFound: 8, NewItems: 3, DurationMs: 120,
			Preview:  []byte(`{"items":[]}`),
			ItemKeys: map[string]string{"abc": "def"},
		},
		WebsiteStatus: StatusActive,
		CheckedAt:     checkedAt,
		Notification: &Notification{
			ID: "n1", UserID: "alice", WebsiteID: "w1", Type: NotificationTypeNewItems,
			Title: "3 new properties", Message: "msg", Severity: SeveritySuccess,
			Metadata: map[string]string{"url": "https://example.com"}, CreatedAt: checkedAt,
		},
	})
	require.NoError(t, err)

	latest, err := results.GetLatestResult(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 8, latest.ItemsFound)
	assert.Equal(t, 3, latest.NewItems)
	assert.Equal(t, map[string]string{"abc": "def"}, latest.ItemKeys)
	assert.JSONEq(t, `{"items":[]}`, string(latest.Preview))

	w, err := websites.GetWebsite(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, w.LastStatus)
	require.NotNil(t, w.LastCheckedAt)
	assert.True(t, w.LastCheckedAt.Equal(checkedAt))

	list, err := notifications.ListNotifications(ctx, "alice", true, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://example.com", list[0].Metadata["url"])
}

func TestRecordScrapeKeepsPausedWebsitePaused(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	websites := NewWebsiteRepository(db)
	results := NewResultRepository(db)
	require.NoError(t, websites.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	inactive := false
	_, err := websites.UpdateWebsite(ctx, "w1", "alice", WebsiteUpdate{IsActive: &inactive})
	require.NoError(t, err)

	checkedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, status := range []WebsiteStatus{StatusActive, StatusError} {
		err = results.RecordScrape(ctx, ScrapeRecord{
			Result: ScrapeResult{
				ID: fmt.Sprintf("r%d", i), WebsiteID: "w1", ScrapedAt: checkedAt, Status: ResultSuccess, ItemsFound: 2,
			},
			WebsiteStatus: status,
			CheckedAt:     checkedAt,
		})
		require.NoError(t, err)

		w, err := websites.GetWebsite(ctx, "w1")
		require.NoError(t, err)
		assert.False(t, w.IsActive)
		assert.Equal(t, StatusPaused, w.LastStatus, "recording %s must not unpause", status)
		require.NotNil(t, w.LastCheckedAt)
	}
}

func TestRecordScrapeRejectsInvalidCounts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	websites := NewWebsiteRepository(db)
	results := NewResultRepository(db)
	require.NoError(t, websites.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	err := results.RecordScrape(ctx, ScrapeRecord{
		Result: ScrapeResult{
			ID: "r1", WebsiteID: "w1", ScrapedAt: time.Now(), Status: ResultSuccess,
			ItemsFound: 2, NewItems: 5,
		},
		WebsiteStatus: StatusActive,
		CheckedAt:     time.Now(),
	})
	require.Error(t, err)

	// Nothing from the failed transaction is visible.
	latest, err := results.GetLatestResult(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	w, err := websites.GetWebsite(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, w.LastStatus)
}

func TestListResultsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	websites := NewWebsiteRepository(db)
	results := NewResultRepository(db)
	require.NoError(t, websites.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, results.RecordScrape(ctx, ScrapeRecord{
			Result:        ScrapeResult{ID: id, WebsiteID: "w1", ScrapedAt: at, Status: ResultSuccess, ItemsFound: i},
			WebsiteStatus: StatusActive,
			CheckedAt:     at,
		}))
	}

	list, err := results.ListResults(ctx, "w1", 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r3", list[0].ID)
	assert.Equal(t, "r2", list[1].ID)

	list, err = results.ListResults(ctx, "w1", 2, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
}

func TestDeleteWebsiteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	websites := NewWebsiteRepository(db)
	results := NewResultRepository(db)
	notifications := NewNotificationRepository(db)
	require.NoError(t, websites.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	now := time.Now()
	require.NoError(t, results.RecordScrape(ctx, ScrapeRecord{
		Result:        ScrapeResult{ID: "r1", WebsiteID: "w1", ScrapedAt: now, Status: ResultSuccess, ItemsFound: 1, NewItems: 1},
		WebsiteStatus: StatusActive,
		CheckedAt:     now,
		Notification: &Notification{ID: "n1", UserID: "alice", WebsiteID: "w1", Type: NotificationTypeNewItems,
			Title: "t", Message: "m", Severity: SeveritySuccess, CreatedAt: now},
	}))

	assert.ErrorIs(t, websites.DeleteWebsite(ctx, "w1", "bob"), ErrNotFound)
	require.NoError(t, websites.DeleteWebsite(ctx, "w1", "alice"))

	count, err := results.GetResultCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	list, err := notifications.ListNotifications(ctx, "alice", false, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotificationReadLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	websites := NewWebsiteRepository(db)
	results := NewResultRepository(db)
	notifications := NewNotificationRepository(db)
	require.NoError(t, websites.CreateWebsite(ctx, newTestWebsite("w1", "alice", "https://example.com")))

	base := time.Now()
	for i, id := range []string{"n1", "n2"} {
		at := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, results.RecordScrape(ctx, ScrapeRecord{
			Result:        ScrapeResult{ID: "r" + id, WebsiteID: "w1", ScrapedAt: at, Status: ResultSuccess, ItemsFound: i + 1, NewItems: 1},
			WebsiteStatus: StatusActive,
			CheckedAt:     at,
			Notification: &Notification{ID: id, UserID: "alice", WebsiteID: "w1", Type: NotificationTypeNewItems,
				Title: "t", Message: "m", Severity: SeveritySuccess, CreatedAt: at},
		}))
	}

	assert.ErrorIs(t, notifications.MarkNotificationRead(ctx, "n1", "bob"), ErrNotFound)
	require.NoError(t, notifications.MarkNotificationRead(ctx, "n1", "alice"))

	unread, err := notifications.GetUnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	cleared, err := notifications.ClearReadNotifications(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	list, err := notifications.ListNotifications(ctx, "alice", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "n2", list[0].ID)
}
