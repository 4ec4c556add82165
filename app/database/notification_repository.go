package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// NotificationRepo handles database operations for user notifications
type NotificationRepo struct {
	db *DB
}

var _ NotificationRepository = (*NotificationRepo)(nil)

func NewNotificationRepository(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	query := `
		SELECT id, user_id, COALESCE(website_id, ''), type, title, message, severity, metadata, is_read, created_at
		FROM notifications
		WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var (
			n         Notification
			severity  string
			metadata  string
			isRead    int
			createdAt int64
		)
		err := rows.Scan(&n.ID, &n.UserID, &n.WebsiteID, &n.Type, &n.Title, &n.Message,
			&severity, &metadata, &isRead, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}

		n.Severity = Severity(severity)
		n.IsRead = isRead != 0
		n.CreatedAt = fromMillis(createdAt)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode notification metadata: %w", err)
			}
		}

		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}

	return notifications, nil
}

func (r *NotificationRepo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *NotificationRepo) ClearReadNotifications(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = ? AND is_read = 1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear read notifications: %w", err)
	}
	return res.RowsAffected()
}

func (r *NotificationRepo) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return count, nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, n *Notification) error {
	metadata := "{}"
	if len(n.Metadata) > 0 {
		data, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode notification metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, website_id, type, title, message, severity, metadata, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, nullString(n.WebsiteID), n.Type, n.Title, n.Message, string(n.Severity),
		metadata, boolInt(n.IsRead), toMillis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}
