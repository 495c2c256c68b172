package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/luli-tech/task-manager/internal/model"
)

// TaskStore is the task storage surface the handler needs.
// *repository.TaskRepo implements it; tests substitute an in-memory
// fake.
type TaskStore interface {
	Create(ctx context.Context, t model.Task) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.Task, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Task, error)
	Update(ctx context.Context, t model.Task, resetNotified bool) error
	Delete(ctx context.Context, id, userID uint64) error
	CountByStatus(ctx context.Context, userID uint64) (map[string]int, error)
}

// TaskHandler bundles dependencies for task CRUD endpoints.
type TaskHandler struct {
	Tasks TaskStore
}

func NewTaskHandler(t TaskStore) *TaskHandler { return &TaskHandler{Tasks: t} }

// ----- DTOs -----

type createTaskReq struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	ReminderTime *time.Time `json:"reminder_time"`
}

// updateTaskReq uses pointers so absent fields leave the stored value
// untouched. reminder_time is a string: RFC3339 sets a new reminder,
// "" clears it, absent leaves it alone.
type updateTaskReq struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Status       *string    `json:"status"`
	Priority     *string    `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	ReminderTime *string    `json:"reminder_time"`
}

type taskResp struct {
	ID           uint64     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	ReminderTime *time.Time `json:"reminder_time"`
	Notified     bool       `json:"notified"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toTaskResp(t model.Task) taskResp {
	return taskResp{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		DueDate:      t.DueDate,
		ReminderTime: t.ReminderTime,
		Notified:     t.Notified,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Create adds a task for the authenticated user.
func (h *TaskHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}
	var req createTaskReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
	}
	if req.Status == "" {
		req.Status = model.TaskStatusPending
	}
	if req.Priority == "" {
		req.Priority = model.TaskPriorityMedium
	}
	if !model.ValidTaskStatus(req.Status) || !model.ValidTaskPriority(req.Priority) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status or priority"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t := model.Task{
		UserID:       uid,
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		DueDate:      req.DueDate,
		ReminderTime: req.ReminderTime,
	}
	id, err := h.Tasks.Create(ctx, t)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create task failed"})
	}

	created, err := h.Tasks.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load task failed"})
	}
	return c.JSON(http.StatusCreated, toTaskResp(created))
}

// List returns the authenticated user's tasks.
func (h *TaskHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tasks, err := h.Tasks.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp := make([]taskResp, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResp(t))
	}
	return c.JSON(http.StatusOK, resp)
}

// Get returns a single task owned by the caller.
func (h *TaskHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tasks.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if t.UserID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, toTaskResp(t))
}

// Update mutates a task. Setting a new reminder_time resets the
// notified flag in the same write, which makes the reminder eligible
// to fire again; omitting the field leaves both untouched. The reset
// happens only when the request itself carried reminder_time — on any
// other update the flag's stored value is preserved, so a concurrent
// scanner claim between our read and write cannot be reverted.
func (h *TaskHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req updateTaskReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tasks.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if t.UserID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
		}
		t.Title = title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		if !model.ValidTaskStatus(*req.Status) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}
		t.Status = *req.Status
	}
	if req.Priority != nil {
		if !model.ValidTaskPriority(*req.Priority) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid priority"})
		}
		t.Priority = *req.Priority
	}
	if req.DueDate != nil {
		t.DueDate = req.DueDate
	}
	reminderChanged := false
	if req.ReminderTime != nil {
		if *req.ReminderTime == "" {
			t.ReminderTime = nil
		} else {
			when, err := time.Parse(time.RFC3339, *req.ReminderTime)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reminder_time"})
			}
			utc := when.UTC()
			t.ReminderTime = &utc
		}
		reminderChanged = true
	}

	if err := h.Tasks.Update(ctx, t, reminderChanged); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update task failed"})
	}

	updated, err := h.Tasks.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load task failed"})
	}
	return c.JSON(http.StatusOK, toTaskResp(updated))
}

// Delete removes a task owned by the caller.
func (h *TaskHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Tasks.Delete(ctx, id, uid); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete task failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

type taskStatsResp struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Archived   int `json:"archived"`
}

// Stats returns the caller's task counts broken down by status.
func (h *TaskHandler) Stats(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credential"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	counts, err := h.Tasks.CountByStatus(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	resp := taskStatsResp{
		Pending:    counts[model.TaskStatusPending],
		InProgress: counts[model.TaskStatusInProgress],
		Completed:  counts[model.TaskStatusCompleted],
		Archived:   counts[model.TaskStatusArchived],
	}
	resp.Total = resp.Pending + resp.InProgress + resp.Completed + resp.Archived
	return c.JSON(http.StatusOK, resp)
}
