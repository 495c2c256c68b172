package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luli-tech/task-manager/internal/model"
)

// fakeTaskStore keeps tasks in memory with the same conditional
// update semantics as the SQL layer: the notified flag keeps its
// stored value unless the update asks for a reset. afterGet, when
// set, runs once after the next GetByID so tests can interleave a
// concurrent mutation between the handler's read and its write.
type fakeTaskStore struct {
	mu       sync.Mutex
	tasks    map[uint64]*model.Task
	nextID   uint64
	afterGet func(s *fakeTaskStore)
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uint64]*model.Task)}
}

func (s *fakeTaskStore) put(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		s.nextID++
		t.ID = s.nextID
	}
	cp := t
	s.tasks[t.ID] = &cp
	return t
}

func (s *fakeTaskStore) get(id uint64) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *fakeTaskStore) Create(_ context.Context, t model.Task) (uint64, error) {
	t.Notified = false
	return s.put(t).ID, nil
}

func (s *fakeTaskStore) GetByID(_ context.Context, id uint64) (model.Task, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return model.Task{}, sql.ErrNoRows
	}
	snapshot := *t
	hook := s.afterGet
	s.afterGet = nil
	s.mu.Unlock()

	if hook != nil {
		hook(s)
	}
	return snapshot, nil
}

func (s *fakeTaskStore) ListByUser(_ context.Context, userID uint64) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) Update(_ context.Context, t model.Task, resetNotified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[t.ID]
	if !ok || stored.UserID != t.UserID {
		return sql.ErrNoRows
	}
	stored.Title = t.Title
	stored.Description = t.Description
	stored.Status = t.Status
	stored.Priority = t.Priority
	stored.DueDate = t.DueDate
	stored.ReminderTime = t.ReminderTime
	if resetNotified {
		stored.Notified = false
	}
	return nil
}

func (s *fakeTaskStore) Delete(_ context.Context, id, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return sql.ErrNoRows
	}
	delete(s.tasks, id)
	return nil
}

func (s *fakeTaskStore) CountByStatus(_ context.Context, userID uint64) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range s.tasks {
		if t.UserID == userID {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func taskRequest(t *testing.T, method, path, body string, userID uint64, taskID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", userID)
	if taskID != "" {
		c.SetParamNames("id")
		c.SetParamValues(taskID)
	}
	return c, rec
}

func reminderAt(t time.Time) *time.Time { u := t.UTC(); return &u }

func TestUpdateTitleOnlyPreservesFiredReminder(t *testing.T) {
	store := newFakeTaskStore()
	due := time.Now().UTC().Add(-time.Minute)
	store.put(model.Task{UserID: 7, Title: "Old", Status: model.TaskStatusPending,
		Priority: model.TaskPriorityMedium, ReminderTime: reminderAt(due)})

	// Between the handler's read and write, the scanner claims the
	// reminder. A title-only update must not revert that claim.
	store.afterGet = func(s *fakeTaskStore) {
		s.mu.Lock()
		s.tasks[1].Notified = true
		s.mu.Unlock()
	}

	h := NewTaskHandler(store)
	c, rec := taskRequest(t, http.MethodPatch, "/v1/tasks/1", `{"title":"New"}`, 7, "1")
	require.NoError(t, h.Update(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := store.get(1)
	assert.Equal(t, "New", got.Title)
	assert.True(t, got.Notified, "claim must survive an unrelated update")
	require.NotNil(t, got.ReminderTime)
	assert.Equal(t, due.Truncate(time.Second), got.ReminderTime.Truncate(time.Second))
}

func TestUpdateStatusOnlyLeavesNotified(t *testing.T) {
	store := newFakeTaskStore()
	store.put(model.Task{UserID: 7, Title: "Done soon", Status: model.TaskStatusPending,
		Priority: model.TaskPriorityLow, ReminderTime: reminderAt(time.Now()), Notified: true})

	h := NewTaskHandler(store)
	c, rec := taskRequest(t, http.MethodPatch, "/v1/tasks/1", `{"status":"COMPLETED"}`, 7, "1")
	require.NoError(t, h.Update(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := store.get(1)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.True(t, got.Notified)
}

func TestUpdateNewReminderResetsNotified(t *testing.T) {
	store := newFakeTaskStore()
	store.put(model.Task{UserID: 7, Title: "Again", Status: model.TaskStatusPending,
		Priority: model.TaskPriorityHigh, ReminderTime: reminderAt(time.Now().Add(-time.Hour)), Notified: true})

	h := NewTaskHandler(store)
	c, rec := taskRequest(t, http.MethodPatch, "/v1/tasks/1",
		`{"reminder_time":"2026-09-01T10:00:00Z"}`, 7, "1")
	require.NoError(t, h.Update(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := store.get(1)
	assert.False(t, got.Notified, "a new reminder re-arms the task")
	require.NotNil(t, got.ReminderTime)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), *got.ReminderTime)
}

func TestUpdateClearReminder(t *testing.T) {
	store := newFakeTaskStore()
	store.put(model.Task{UserID: 7, Title: "Quiet", Status: model.TaskStatusPending,
		Priority: model.TaskPriorityMedium, ReminderTime: reminderAt(time.Now().Add(time.Hour)), Notified: true})

	h := NewTaskHandler(store)
	c, rec := taskRequest(t, http.MethodPatch, "/v1/tasks/1", `{"reminder_time":""}`, 7, "1")
	require.NoError(t, h.Update(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := store.get(1)
	assert.Nil(t, got.ReminderTime)
	assert.False(t, got.Notified)
}

func TestUpdateRejectsBadReminder(t *testing.T) {
	store := newFakeTaskStore()
	store.put(model.Task{UserID: 7, Title: "Bad", Status: model.TaskStatusPending,
		Priority: model.TaskPriorityMedium})

	h := NewTaskHandler(store)
	c, rec := taskRequest(t, http.MethodPatch, "/v1/tasks/1", `{"reminder_time":"tomorrow"}`, 7, "1")
	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateForbiddenForNonOwner(t *testing.T) {
	store := newFakeTaskStore()
	store.put(model.Task{UserID: 7, Title: "Mine", Status: model.TaskStatusPending,
		Priority: model.TaskPriorityMedium})

	h := NewTaskHandler(store)
	c, rec := taskRequest(t, http.MethodPatch, "/v1/tasks/1", `{"title":"Theirs"}`, 8, "1")
	require.NoError(t, h.Update(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, "Mine", store.get(1).Title)
}

func TestStatsCountsByStatus(t *testing.T) {
	store := newFakeTaskStore()
	for _, status := range []string{
		model.TaskStatusPending, model.TaskStatusPending,
		model.TaskStatusInProgress, model.TaskStatusCompleted,
	} {
		store.put(model.Task{UserID: 7, Title: "t", Status: status, Priority: model.TaskPriorityLow})
	}
	store.put(model.Task{UserID: 8, Title: "other", Status: model.TaskStatusPending, Priority: model.TaskPriorityLow})

	h := NewTaskHandler(store)
	c, rec := taskRequest(t, http.MethodGet, "/v1/me/stats", "", 7, "")
	require.NoError(t, h.Stats(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"total":4,"pending":2,"in_progress":1,"completed":1,"archived":0}`,
		rec.Body.String())
}
