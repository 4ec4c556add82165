package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const resultColumns = `id, website_id, scrape_timestamp, status, items_found, new_items,
	changed_items, removed_items, duration_ms, COALESCE(error_message, ''),
	COALESCE(preview, ''), COALESCE(item_keys, '')`

// ResultRepo handles database operations for scrape results
type ResultRepo struct {
	db *DB
}

var _ ResultRepository = (*ResultRepo)(nil)

func NewResultRepository(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// GetLatestResult returns the most recent result for a website, or nil when
// the website was never scraped.
func (r *ResultRepo) GetLatestResult(ctx context.Context, websiteID string) (*ScrapeResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+`
		FROM scrape_results
		WHERE website_id = ?
		ORDER BY scrape_timestamp DESC, rowid DESC
		LIMIT 1
	`, websiteID)

	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest result: %w", err)
	}

	return result, nil
}

func (r *ResultRepo) ListResults(ctx context.Context, websiteID string, limit, offset int) ([]ScrapeResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM scrape_results
		WHERE website_id = ?
		ORDER BY scrape_timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, websiteID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []ScrapeResult{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, *result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}

	return results, nil
}

// RecordScrape appends the result, updates the website status and stores the
// optional notification in a single transaction. The website lease is released.
func (r *ResultRepo) RecordScrape(ctx context.Context, record ScrapeRecord) error {
	res := record.Result

	var itemKeys sql.NullString
	if len(res.ItemKeys) > 0 {
		data, err := json.Marshal(res.ItemKeys)
		if err != nil {
			return fmt.Errorf("failed to encode item keys: %w", err)
		}
		itemKeys = sql.NullString{String: string(data), Valid: true}
	}

	var preview sql.NullString
	if len(res.Preview) > 0 {
		preview = sql.NullString{String: string(res.Preview), Valid: true}
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scrape_results (
				id, website_id, scrape_timestamp, status, items_found, new_items,
				changed_items, removed_items, duration_ms, error_message, preview, item_keys
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, res.ID, res.WebsiteID, toMillis(res.ScrapedAt), string(res.Status), res.ItemsFound, res.NewItems,
			res.ChangedItems, res.RemovedItems, res.DurationMs, nullString(res.ErrorMessage), preview, itemKeys)
		if err != nil {
			return fmt.Errorf("failed to insert scrape result: %w", err)
		}

		upd, err := tx.ExecContext(ctx, `
			UPDATE tracked_websites
			SET last_checked_at = ?,
			    last_status = CASE WHEN is_active = 0 THEN 'paused' ELSE ? END,
			    last_error = ?, lease_expires_at = NULL, updated_at = ?
			WHERE id = ?
		`, toMillis(record.CheckedAt), string(record.WebsiteStatus), nullString(record.WebsiteError),
			toMillis(record.CheckedAt), res.WebsiteID)
		if err != nil {
			return fmt.Errorf("failed to update website status: %w", err)
		}
		if n, err := upd.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}

		if record.Notification != nil {
			if err := insertNotification(ctx, tx, record.Notification); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *ResultRepo) GetResultCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scrape_results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get result count: %w", err)
	}
	return count, nil
}

func scanResult(row rowScanner) (*ScrapeResult, error) {
	var (
		res               ScrapeResult
		status            string
		scrapedAt         int64
		preview, itemKeys string
	)

	err := row.Scan(
		&res.ID, &res.WebsiteID, &scrapedAt, &status, &res.ItemsFound, &res.NewItems,
		&res.ChangedItems, &res.RemovedItems, &res.DurationMs, &res.ErrorMessage,
		&preview, &itemKeys,
	)
	if err != nil {
		return nil, err
	}

	res.Status = ResultStatus(status)
	res.ScrapedAt = fromMillis(scrapedAt)
	if preview != "" {
		res.Preview = json.RawMessage(preview)
	}
	if itemKeys != "" {
		if err := json.Unmarshal([]byte(itemKeys), &res.ItemKeys); err != nil {
			return nil, fmt.Errorf("failed to decode item keys: %w", err)
		}
	}

	return &res, nil
}
