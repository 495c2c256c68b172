// Package scanner contains the periodic reminder scan: it finds tasks
// whose reminder time has elapsed, claims each one with a conditional
// write, records a notification row, and hands the event to the live
// delivery hub and to the external-channel queue.
package scanner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/luli-tech/task-manager/internal/model"
	"github.com/luli-tech/task-manager/internal/queue"
)

// TaskStore is the slice of task storage the scanner needs.
// *repository.TaskRepo implements it.
type TaskStore interface {
	ListDueReminders(ctx context.Context, now time.Time) ([]model.Task, error)
	ClaimReminder(ctx context.Context, id uint64) (bool, error)
}

// NotificationStore persists notification rows and preferences.
// *repository.NotificationRepo implements it.
type NotificationStore interface {
	Create(ctx context.Context, userID uint64, taskID *uint64, message string) (model.Notification, error)
	GetPreferences(ctx context.Context, userID uint64) (model.NotificationPreference, error)
}

// Hub receives claimed notifications for live fan-out.
type Hub interface {
	Publish(userID uint64, n model.Notification)
}

// Publisher pushes notification.created events toward external
// delivery channels. May be nil when no broker is configured.
type Publisher interface {
	PublishNotificationCreated(ctx context.Context, ev queue.NotificationCreatedEvent) error
}

// Scanner runs one pass per tick. It is constructed explicitly at
// service start and stopped at shutdown; Stop waits for an in-flight
// pass to finish so a task is never left claimed mid-cycle by an
// orderly shutdown.
type Scanner struct {
	tasks         TaskStore
	notifications NotificationStore
	hub           Hub
	publisher     Publisher
	interval      time.Duration

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// New creates a Scanner with the given pass interval.
func New(tasks TaskStore, notifications NotificationStore, h Hub, publisher Publisher, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scanner{
		tasks:         tasks,
		notifications: notifications,
		hub:           h,
		publisher:     publisher,
		interval:      interval,
		stop:          make(chan struct{}),
	}
}

// Start launches the scan loop in its own goroutine.
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.loop()
	log.Printf("scanner: started, interval=%s", s.interval)
}

// Stop signals the loop to exit and blocks until the current pass,
// if any, has completed.
func (s *Scanner) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	log.Printf("scanner: stopped")
}

func (s *Scanner) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Pass(context.Background())
		}
	}
}

// Pass executes one scan: select due, unclaimed reminders, then for
// each one claim -> record -> deliver. Errors abort only the affected
// step; anything left unclaimed stays eligible and is retried by the
// next tick with no extra bookkeeping.
func (s *Scanner) Pass(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.tasks.ListDueReminders(ctx, now)
	if err != nil {
		log.Printf("scanner: list due reminders failed: %v", err)
		return
	}

	for _, task := range due {
		claimed, err := s.tasks.ClaimReminder(ctx, task.ID)
		if err != nil {
			// Claim did not happen; the row stays eligible for the next tick.
			log.Printf("scanner: claim failed for task %d: %v", task.ID, err)
			continue
		}
		if !claimed {
			// A concurrent pass won the conditional update.
			continue
		}
		s.notify(ctx, task)
	}
}

// notify records the notification row for a claimed task and attempts
// delivery on each enabled channel. Channel preferences gate delivery
// only — the row is written regardless, so a user with everything
// disabled still sees the notification on their next list call.
func (s *Scanner) notify(ctx context.Context, task model.Task) {
	msg := fmt.Sprintf("Reminder: %s is due soon!", task.Title)
	taskID := task.ID
	n, err := s.notifications.Create(ctx, task.UserID, &taskID, msg)
	if err != nil {
		// The claim already succeeded, so this reminder will not fire
		// again: at-most-once, favoring no duplicate alerts over a
		// guaranteed row. Log the task id for manual backfill.
		log.Printf("scanner: claimed task %d but notification insert failed: %v", task.ID, err)
		return
	}

	pref, err := s.notifications.GetPreferences(ctx, task.UserID)
	if err != nil {
		log.Printf("scanner: preferences lookup failed for user %d: %v", task.UserID, err)
		pref = model.DefaultNotificationPreference(task.UserID)
	}

	if pref.PushEnabled {
		s.hub.Publish(task.UserID, n)
	}
	if pref.EmailEnabled && s.publisher != nil {
		ev := queue.NotificationCreatedEvent{
			NotificationID: n.ID,
			UserID:         n.UserID,
			TaskID:         n.TaskID,
			Message:        n.Message,
			CreatedAt:      n.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := s.publisher.PublishNotificationCreated(ctx, ev); err != nil {
			// Best effort; the row and any live push already happened.
			log.Printf("scanner: publish notification.created failed for notification %d: %v", n.ID, err)
		}
	}
}
