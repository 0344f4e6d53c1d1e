package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

var _ repository.NotificationRepository = (*NotificationDB)(nil)

// NotificationDB is the durable outbox of notifications handed to users.
type NotificationDB struct {
	q querier
}

func (n *NotificationDB) CreateNotification(ctx context.Context, note *model.Notification) error {
	if note.ID == "" {
		note.ID = xid.New().String()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	_, err := n.q.ExecContext(ctx,
		`INSERT INTO notifications (id, to_user, from_user, type, amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		note.ID,
		note.ToUser,
		note.FromUser,
		note.Type,
		note.Amount,
		note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification for %s: %w", note.ToUser, err)
	}
	return nil
}

// ListNotifications returns the newest notifications addressed to userID.
func (n *NotificationDB) ListNotifications(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Notification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := n.q.QueryContext(ctx,
		`SELECT id, to_user, from_user, type, amount, created_at
		 FROM notifications WHERE to_user = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications of %s: %w", userID, err)
	}
	defer rows.Close()

	notes := []model.Notification{}
	for rows.Next() {
		var note model.Notification
		if err := rows.Scan(
			&note.ID,
			&note.ToUser,
			&note.FromUser,
			&note.Type,
			&note.Amount,
			&note.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notifications: %w", err)
	}
	return notes, nil
}
