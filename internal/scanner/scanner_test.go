package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luli-tech/task-manager/internal/hub"
	"github.com/luli-tech/task-manager/internal/model"
	"github.com/luli-tech/task-manager/internal/queue"
)

// fakeTaskStore mirrors the conditional claim the SQL layer performs:
// ClaimReminder flips notified exactly once per task.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uint64]*model.Task
}

func newFakeTaskStore(tasks ...model.Task) *fakeTaskStore {
	s := &fakeTaskStore{tasks: make(map[uint64]*model.Task)}
	for i := range tasks {
		tt := tasks[i]
		s.tasks[tt.ID] = &tt
	}
	return s
}

func (s *fakeTaskStore) ListDueReminders(_ context.Context, now time.Time) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.Task
	for _, t := range s.tasks {
		if t.ReminderTime != nil && !t.Notified && !t.ReminderTime.After(now) {
			due = append(due, *t)
		}
	}
	return due, nil
}

func (s *fakeTaskStore) ClaimReminder(_ context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Notified || t.ReminderTime == nil {
		return false, nil
	}
	t.Notified = true
	return true, nil
}

func (s *fakeTaskStore) notified(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id].Notified
}

type fakeNotificationStore struct {
	mu         sync.Mutex
	rows       []model.Notification
	prefs      map[uint64]model.NotificationPreference
	failCreate bool
	nextID     uint64
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{prefs: make(map[uint64]model.NotificationPreference)}
}

func (s *fakeNotificationStore) Create(_ context.Context, userID uint64, taskID *uint64, message string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return model.Notification{}, errors.New("insert failed")
	}
	s.nextID++
	n := model.Notification{
		ID:        s.nextID,
		UserID:    userID,
		TaskID:    taskID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	s.rows = append(s.rows, n)
	return n, nil
}

func (s *fakeNotificationStore) GetPreferences(_ context.Context, userID uint64) (model.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pref, ok := s.prefs[userID]; ok {
		return pref, nil
	}
	return model.DefaultNotificationPreference(userID), nil
}

func (s *fakeNotificationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.NotificationCreatedEvent
}

func (p *fakePublisher) PublishNotificationCreated(_ context.Context, ev queue.NotificationCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func dueTask(id, userID uint64, title string, reminderAgo time.Duration) model.Task {
	at := time.Now().UTC().Add(-reminderAgo)
	return model.Task{ID: id, UserID: userID, Title: title, Status: model.TaskStatusPending, ReminderTime: &at}
}

func TestPassFiresDueReminderOnce(t *testing.T) {
	tasks := newFakeTaskStore(dueTask(1, 7, "Ship release", time.Minute))
	notifs := newFakeNotificationStore()
	h := hub.New(8)
	s := New(tasks, notifs, h, nil, time.Minute)

	s.Pass(context.Background())

	require.Equal(t, 1, notifs.count())
	n := notifs.rows[0]
	assert.Equal(t, uint64(7), n.UserID)
	require.NotNil(t, n.TaskID)
	assert.Equal(t, uint64(1), *n.TaskID)
	assert.Equal(t, "Reminder: Ship release is due soon!", n.Message)
	assert.True(t, tasks.notified(1))

	// A second pass finds nothing: the claim is permanent.
	s.Pass(context.Background())
	assert.Equal(t, 1, notifs.count())
}

func TestPassSkipsFutureAndClearedReminders(t *testing.T) {
	future := dueTask(2, 7, "Later", -time.Hour) // reminder one hour ahead
	noReminder := model.Task{ID: 3, UserID: 7, Title: "No reminder", Status: model.TaskStatusPending}
	tasks := newFakeTaskStore(future, noReminder)
	notifs := newFakeNotificationStore()
	s := New(tasks, notifs, hub.New(8), nil, time.Minute)

	s.Pass(context.Background())

	assert.Equal(t, 0, notifs.count())
	assert.False(t, tasks.notified(2))
}

func TestConcurrentPassesFireOnce(t *testing.T) {
	tasks := newFakeTaskStore(
		dueTask(1, 7, "One", time.Minute),
		dueTask(2, 7, "Two", time.Minute),
	)
	notifs := newFakeNotificationStore()
	s := New(tasks, notifs, hub.New(8), nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Pass(context.Background())
		}()
	}
	wg.Wait()

	// Both passes saw both tasks due, but each claim has one winner.
	assert.Equal(t, 2, notifs.count())
}

func TestSubscriberReceivesReminderEvent(t *testing.T) {
	tasks := newFakeTaskStore(dueTask(1, 7, "Standup", time.Minute))
	notifs := newFakeNotificationStore()
	h := hub.New(8)
	sub := h.Subscribe(7)
	s := New(tasks, notifs, h, nil, time.Minute)

	s.Pass(context.Background())

	select {
	case n := <-sub.Events():
		assert.Equal(t, "Reminder: Standup is due soon!", n.Message)
		require.NotNil(t, n.TaskID)
		assert.Equal(t, uint64(1), *n.TaskID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hub event")
	}
}

func TestPreferencesGateDeliveryNotPersistence(t *testing.T) {
	tasks := newFakeTaskStore(dueTask(1, 7, "Quiet", time.Minute))
	notifs := newFakeNotificationStore()
	notifs.prefs[7] = model.NotificationPreference{UserID: 7, PushEnabled: false, EmailEnabled: false}
	h := hub.New(8)
	sub := h.Subscribe(7)
	pub := &fakePublisher{}
	s := New(tasks, notifs, h, pub, time.Minute)

	s.Pass(context.Background())

	// The row is written even with every channel disabled.
	assert.Equal(t, 1, notifs.count())
	assert.Empty(t, sub.Events())
	assert.Equal(t, 0, pub.count())
}

func TestEmailPreferencePublishesEvent(t *testing.T) {
	tasks := newFakeTaskStore(dueTask(1, 7, "Mail me", time.Minute))
	notifs := newFakeNotificationStore()
	notifs.prefs[7] = model.NotificationPreference{UserID: 7, PushEnabled: false, EmailEnabled: true}
	pub := &fakePublisher{}
	s := New(tasks, notifs, hub.New(8), pub, time.Minute)

	s.Pass(context.Background())

	require.Equal(t, 1, pub.count())
	ev := pub.events[0]
	assert.Equal(t, uint64(7), ev.UserID)
	assert.Equal(t, "Reminder: Mail me is due soon!", ev.Message)
}

func TestInsertFailureDoesNotRefire(t *testing.T) {
	tasks := newFakeTaskStore(dueTask(1, 7, "Lost", time.Minute))
	notifs := newFakeNotificationStore()
	notifs.failCreate = true
	s := New(tasks, notifs, hub.New(8), nil, time.Minute)

	s.Pass(context.Background())

	// At-most-once: the claim stands even though the row was lost.
	assert.Equal(t, 0, notifs.count())
	assert.True(t, tasks.notified(1))

	notifs.failCreate = false
	s.Pass(context.Background())
	assert.Equal(t, 0, notifs.count())
}

func TestStartStop(t *testing.T) {
	tasks := newFakeTaskStore()
	s := New(tasks, newFakeNotificationStore(), hub.New(8), nil, 10*time.Millisecond)

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop() // idempotent
}
