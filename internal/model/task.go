package model

import "time"

// Task status values stored in tasks.status.
const (
	TaskStatusPending    = "PENDING"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusCompleted  = "COMPLETED"
	TaskStatusArchived   = "ARCHIVED"
)

// Task priority values stored in tasks.priority.
const (
	TaskPriorityLow    = "LOW"
	TaskPriorityMedium = "MEDIUM"
	TaskPriorityHigh   = "HIGH"
	TaskPriorityUrgent = "URGENT"
)

// Task represents a row in the `tasks` table. ReminderTime is
// optional; when set, the reminder scanner fires once for it and
// flips Notified to true. Setting a new ReminderTime resets
// Notified to false in the same write, otherwise the scanner would
// never fire again for the task.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – owner of the task.
//  Title        – short task title.
//  Description  – free-form description (may be empty).
//  Status       – one of the TaskStatus* constants.
//  Priority     – one of the TaskPriority* constants.
//  DueDate      – optional deadline.
//  ReminderTime – optional reminder instant (nil = no reminder).
//  Notified     – whether the reminder for the current ReminderTime fired.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type Task struct {
	ID           uint64     // tasks.id
	UserID       uint64     // tasks.user_id
	Title        string     // tasks.title
	Description  string     // tasks.description
	Status       string     // tasks.status
	Priority     string     // tasks.priority
	DueDate      *time.Time // tasks.due_date (nullable)
	ReminderTime *time.Time // tasks.reminder_time (nullable)
	Notified     bool       // tasks.notified
	CreatedAt    time.Time  // tasks.created_at
	UpdatedAt    time.Time  // tasks.updated_at
}

// ValidTaskStatus reports whether s is one of the accepted status values.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusArchived:
		return true
	}
	return false
}

// ValidTaskPriority reports whether p is one of the accepted priority values.
func ValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}
