// Package queue defines message payloads exchanged over the message
// broker and the publisher/consumer pair for the notification.created
// queue.
package queue

// NotificationCreatedEvent is published whenever the reminder scanner
// records a notification for a user whose email channel is enabled.
// It carries enough for an out-of-process delivery worker to act
// without querying the primary database.
type NotificationCreatedEvent struct {
	NotificationID uint64  `json:"notification_id"`
	UserID         uint64  `json:"user_id"`
	TaskID         *uint64 `json:"task_id,omitempty"`
	Message        string  `json:"message"`
	CreatedAt      string  `json:"created_at"`
}
