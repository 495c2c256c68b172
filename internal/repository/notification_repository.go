package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/luli-tech/task-manager/internal/model"
)

// NotificationRepo provides data access to the notifications and
// notification_preferences tables.
type NotificationRepo struct{ DB *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

// Create inserts a notification row and returns the stored record.
// Preferences never gate this insert: an undelivered notification is
// still a recorded one.
func (r *NotificationRepo) Create(ctx context.Context, userID uint64, taskID *uint64, message string) (model.Notification, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO notifications (user_id, task_id, message, is_read, created_at) VALUES (?,?,?,0,?)",
		userID, taskID, message, now)
	if err != nil {
		return model.Notification{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Notification{}, err
	}
	return model.Notification{
		ID:        uint64(id),
		UserID:    userID,
		TaskID:    taskID,
		Message:   message,
		CreatedAt: now,
	}, nil
}

// ListByUser returns all notifications for a user, newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Notification, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,user_id,task_id,message,is_read,created_at FROM notifications WHERE user_id=? ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		var (
			n      model.Notification
			taskID sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &taskID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			tid := uint64(taskID.Int64)
			n.TaskID = &tid
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkRead flags one notification as read for its owner.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE notifications SET is_read=1 WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Already-read rows match the WHERE but report zero changed rows
		// under MySQL, so confirm the row is actually missing.
		var exists int
		if qErr := r.DB.QueryRowContext(ctx,
			"SELECT 1 FROM notifications WHERE id=? AND user_id=? LIMIT 1", id, userID).Scan(&exists); qErr == sql.ErrNoRows {
			return sql.ErrNoRows
		} else if qErr != nil {
			return qErr
		}
	}
	return nil
}

// MarkAllRead flags every unread notification of a user as read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE notifications SET is_read=1 WHERE user_id=? AND is_read=0", userID)
	return err
}

// Delete removes one notification owned by the given user.
func (r *NotificationRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM notifications WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetPreferences returns a user's notification preferences, or the
// all-enabled defaults when no row exists.
func (r *NotificationRepo) GetPreferences(ctx context.Context, userID uint64) (model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id,push_enabled,email_enabled,updated_at FROM notification_preferences WHERE user_id=? LIMIT 1",
		userID).Scan(&p.UserID, &p.PushEnabled, &p.EmailEnabled, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.DefaultNotificationPreference(userID), nil
	}
	if err != nil {
		return model.NotificationPreference{}, err
	}
	return p, nil
}

// UpsertPreferences stores a user's channel toggles, creating the row
// on first write.
func (r *NotificationRepo) UpsertPreferences(ctx context.Context, p model.NotificationPreference) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, push_enabled, email_enabled)
		 VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE push_enabled=VALUES(push_enabled), email_enabled=VALUES(email_enabled)`,
		p.UserID, p.PushEnabled, p.EmailEnabled)
	return err
}
