package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/luli-tech/task-manager/internal/model"
)

// TaskRepo provides data access to the tasks table. All timestamp
// comparisons are performed in UTC; callers must pass UTC instants.
type TaskRepo struct{ DB *sql.DB }

func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{DB: db} }

const taskColumns = "id,user_id,title,description,status,priority,due_date,reminder_time,notified,created_at,updated_at"

func scanTask(scan func(dest ...any) error) (model.Task, error) {
	var (
		t        model.Task
		due      sql.NullTime
		reminder sql.NullTime
	)
	err := scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&due, &reminder, &t.Notified, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Task{}, err
	}
	if due.Valid {
		t.DueDate = &due.Time
	}
	if reminder.Valid {
		t.ReminderTime = &reminder.Time
	}
	return t, nil
}

// Create inserts a task and returns its ID. A freshly created task
// always starts with notified = false, whether or not it carries a
// reminder.
func (r *TaskRepo) Create(ctx context.Context, t model.Task) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tasks (user_id, title, description, status, priority, due_date, reminder_time, notified) VALUES (?,?,?,?,?,?,?,0)",
		t.UserID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.ReminderTime)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a task by id. Ownership is checked by the caller.
func (r *TaskRepo) GetByID(ctx context.Context, id uint64) (model.Task, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id=? LIMIT 1", id)
	return scanTask(row.Scan)
}

// ListByUser returns all tasks owned by a user, newest first.
func (r *TaskRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE user_id=? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update writes the mutable columns of a task in one statement. The
// notified flag is never copied from the in-memory snapshot: the row's
// current value is kept unless resetNotified is set, which the handler
// does only when the request itself carried a reminder_time change.
// Writing the snapshot back would let an unrelated update (say, a
// title change) race the scanner's claim and silently re-arm a
// reminder that already fired; keeping the reset conditional inside
// the statement leaves the conditional claim as the only other writer
// of that flag.
func (r *TaskRepo) Update(ctx context.Context, t model.Task, resetNotified bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tasks SET title=?, description=?, status=?, priority=?, due_date=?, reminder_time=?, notified=IF(?, 0, notified) WHERE id=? AND user_id=?",
		t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.ReminderTime, resetNotified, t.ID, t.UserID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Row exists but nothing changed, or the row is gone. Distinguish.
		var exists int
		if qErr := r.DB.QueryRowContext(ctx,
			"SELECT 1 FROM tasks WHERE id=? AND user_id=? LIMIT 1", t.ID, t.UserID).Scan(&exists); qErr == sql.ErrNoRows {
			return sql.ErrNoRows
		} else if qErr != nil {
			return qErr
		}
	}
	return nil
}

// Delete removes a task owned by the given user.
func (r *TaskRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM tasks WHERE id=? AND user_id=?", id, userID)
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

// CountByStatus returns the number of tasks a user has per status.
// Statuses with no tasks are absent from the map.
func (r *TaskRepo) CountByStatus(ctx context.Context, userID uint64) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM tasks WHERE user_id=? GROUP BY status", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListDueReminders returns tasks whose reminder has elapsed and has
// not fired yet. The rows are candidates only; the scanner must still
// win ClaimReminder for each before notifying.
func (r *TaskRepo) ListDueReminders(ctx context.Context, now time.Time) ([]model.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE reminder_time IS NOT NULL AND reminder_time <= ? AND notified=0 ORDER BY reminder_time, id",
		now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ClaimReminder performs the compare-and-set transition to the claimed
// state: notified flips to true only if it is still false. Exactly one
// of any number of concurrent scanner passes observes true for a given
// row; everyone else sees false and must skip the task.
func (r *TaskRepo) ClaimReminder(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tasks SET notified=1 WHERE id=? AND notified=0 AND reminder_time IS NOT NULL", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
