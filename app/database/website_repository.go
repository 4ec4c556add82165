package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const websiteColumns = `id, user_id, url, name, category, COALESCE(industry, ''), COALESCE(location, ''),
	check_frequency, is_active, last_checked_at, last_status, COALESCE(last_error, ''),
	created_at, updated_at`

// WebsiteRepo handles database operations for tracked websites
type WebsiteRepo struct {
	db *DB
}

var _ WebsiteRepository = (*WebsiteRepo)(nil)

func NewWebsiteRepository(db *DB) *WebsiteRepo {
	return &WebsiteRepo{db: db}
}

// CreateWebsite inserts a new website. The (user, URL) pair is unique and a
// second insert fails with ErrDuplicateWebsite.
func (r *WebsiteRepo) CreateWebsite(ctx context.Context, w *Website) error {
	if w.ID == "" {
		w.ID = NewID()
	}
	if w.CheckFrequency == "" {
		w.CheckFrequency = FrequencyDaily
	}
	if w.LastStatus == "" {
		w.LastStatus = StatusPending
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	w.UpdatedAt = w.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracked_websites (
			id, user_id, url, name, category, industry, location,
			check_frequency, is_active, last_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.URL, w.Name, w.Category, nullString(w.Industry), nullString(w.Location),
		string(w.CheckFrequency), boolInt(w.IsActive), string(w.LastStatus),
		toMillis(w.CreatedAt), toMillis(w.UpdatedAt))

	if isUniqueViolation(err) {
		return ErrDuplicateWebsite
	}
	if err != nil {
		return fmt.Errorf("failed to create website: %w", err)
	}

	return nil
}

func (r *WebsiteRepo) GetWebsite(ctx context.Context, id string) (*Website, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+websiteColumns+` FROM tracked_websites WHERE id = ?`, id)

	w, err := scanWebsite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get website: %w", err)
	}

	return w, nil
}

func (r *WebsiteRepo) ListWebsites(ctx context.Context, userID string) ([]Website, error) {
	return r.queryWebsites(ctx, `SELECT `+websiteColumns+`
		FROM tracked_websites
		WHERE user_id = ?
		ORDER BY created_at DESC, id`, userID)
}

// ListActiveWebsites returns every active website, oldest check first.
func (r *WebsiteRepo) ListActiveWebsites(ctx context.Context) ([]Website, error) {
	return r.queryWebsites(ctx, `SELECT `+websiteColumns+`
		FROM tracked_websites
		WHERE is_active = 1
		ORDER BY COALESCE(last_checked_at, 0), id`)
}

func (r *WebsiteRepo) UpdateWebsite(ctx context.Context, id, userID string, update WebsiteUpdate) (*Website, error) {
	sets := []string{"updated_at = ?"}
	args := []any{toMillis(time.Now())}

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.CheckFrequency != nil {
		sets = append(sets, "check_frequency = ?")
		args = append(args, string(*update.CheckFrequency))
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*update.IsActive))
		if *update.IsActive {
			sets = append(sets, "last_status = CASE WHEN last_status = 'paused' THEN 'pending' ELSE last_status END")
		} else {
			sets = append(sets, "last_status = 'paused'", "lease_expires_at = NULL")
		}
	}

	args = append(args, id, userID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE tracked_websites
		SET `+strings.Join(sets, ", ")+`
		WHERE id = ? AND user_id = ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update website: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	return r.GetWebsite(ctx, id)
}

// DeleteWebsite removes the website; results and notifications cascade.
func (r *WebsiteRepo) DeleteWebsite(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tracked_websites WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete website: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete website: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// ClaimWebsite takes a short lease on an active website so that only one
// scheduler instance scrapes it. The claim only succeeds when last_checked_at
// still matches what the caller observed and no other lease is live.
func (r *WebsiteRepo) ClaimWebsite(ctx context.Context, id string, lastCheckedAt *time.Time, now time.Time, lease time.Duration) (bool, error) {
	observed := int64(-1)
	if lastCheckedAt != nil {
		observed = toMillis(*lastCheckedAt)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE tracked_websites
		SET lease_expires_at = ?
		WHERE id = ?
		  AND is_active = 1
		  AND COALESCE(last_checked_at, -1) = ?
		  AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
	`, toMillis(now.Add(lease)), id, observed, toMillis(now))
	if err != nil {
		return false, fmt.Errorf("failed to claim website: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim website: %w", err)
	}

	return n == 1, nil
}

func (r *WebsiteRepo) GetWebsiteCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_websites").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get website count: %w", err)
	}
	return count, nil
}

func (r *WebsiteRepo) GetActiveWebsiteCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_websites WHERE is_active = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get active website count: %w", err)
	}
	return count, nil
}

func (r *WebsiteRepo) queryWebsites(ctx context.Context, query string, args ...any) ([]Website, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	defer rows.Close()

	websites := []Website{}
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website row: %w", err)
		}
		websites = append(websites, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating website rows: %w", err)
	}

	return websites, nil
}

func scanWebsite(row rowScanner) (*Website, error) {
	var (
		w                    Website
		frequency, status    string
		isActive             int
		lastChecked          sql.NullInt64
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&w.ID, &w.UserID, &w.URL, &w.Name, &w.Category, &w.Industry, &w.Location,
		&frequency, &isActive, &lastChecked, &status, &w.LastError,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.CheckFrequency = CheckFrequency(frequency)
	w.LastStatus = WebsiteStatus(status)
	w.IsActive = isActive != 0
	w.LastCheckedAt = timePtr(lastChecked)
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)

	return &w, nil
}
