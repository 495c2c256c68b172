package model

import "time"

// Notification represents a row in the `notifications` table. Rows
// are created by the reminder scanner (with a task id) or by other
// event sources (task id null) and are the durable record a user
// sees on their next list call regardless of whether any live
// stream delivery happened.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – user the notification belongs to.
//  TaskID    – originating task (nil for non-task events).
//  Message   – human-readable notification text.
//  IsRead    – whether the user has seen this notification.
//  CreatedAt – when the notification was generated.
type Notification struct {
	ID        uint64    // notifications.id
	UserID    uint64    // notifications.user_id
	TaskID    *uint64   // notifications.task_id (nullable)
	Message   string    // notifications.message
	IsRead    bool      // notifications.is_read
	CreatedAt time.Time // notifications.created_at
}

// NotificationPreference represents a row in the
// `notification_preferences` table. A user without a row gets the
// DefaultNotificationPreference. Disabled channels suppress
// delivery attempts only; the notification row itself is always
// written.
//
// Fields:
//  UserID       – user the preferences belong to.
//  PushEnabled  – deliver to live stream subscribers.
//  EmailEnabled – publish to the external email channel.
//  UpdatedAt    – timestamp of last update.
type NotificationPreference struct {
	UserID       uint64    // notification_preferences.user_id
	PushEnabled  bool      // notification_preferences.push_enabled
	EmailEnabled bool      // notification_preferences.email_enabled
	UpdatedAt    time.Time // notification_preferences.updated_at
}

// DefaultNotificationPreference is what a user without a stored
// preference row gets: every channel on.
func DefaultNotificationPreference(userID uint64) NotificationPreference {
	return NotificationPreference{UserID: userID, PushEnabled: true, EmailEnabled: true}
}
