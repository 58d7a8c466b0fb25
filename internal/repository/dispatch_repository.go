package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
)

// DispatchRepositoryInterface persists deferred workflow sends. A delayed
// rule writes a task here; the worker claims due tasks and delivers them.
type DispatchRepositoryInterface interface {
	Create(task *model.DispatchTask) error
	GetByID(id string) (*model.DispatchTask, error)
	ListDue(now time.Time, limit int) ([]*model.DispatchTask, error)
	MarkCompleted(id string) error
	MarkFailed(id string, lastError string) error
	Cancel(id string) error
}

type DispatchRepository struct {
	DB *sql.DB
}

const dispatchColumns = `id, workflow_id, reference_doctype, reference_name, channel,
	recipients, message, due_at, status, last_error, created_at`

func (r *DispatchRepository) Create(task *model.DispatchTask) error {
	task.CreatedAt = time.Now()
	if task.Status == "" {
		task.Status = model.DispatchPending
	}
	query := `
        INSERT INTO dispatch_tasks
            (id, workflow_id, reference_doctype, reference_name, channel, recipients,
             message, due_at, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.Exec(query,
		task.ID, task.WorkflowID, task.ReferenceDoctype, task.ReferenceName, task.Channel,
		pq.Array(task.Recipients), task.Message, task.DueAt, task.Status, task.CreatedAt,
	)
	return err
}

func (r *DispatchRepository) GetByID(id string) (*model.DispatchTask, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatch_tasks WHERE id=$1`
	task, err := scanDispatchTask(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("dispatch task", id)
		}
		return nil, err
	}
	return task, nil
}

// ListDue returns pending tasks whose due time has passed.
func (r *DispatchRepository) ListDue(now time.Time, limit int) ([]*model.DispatchTask, error) {
	query := `SELECT ` + dispatchColumns + `
        FROM dispatch_tasks
        WHERE status='Pending' AND due_at <= $1
        ORDER BY due_at
        LIMIT $2
    `
	rows, err := r.DB.Query(query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*model.DispatchTask{}
	for rows.Next() {
		task, err := scanDispatchTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *DispatchRepository) MarkCompleted(id string) error {
	_, err := r.DB.Exec(`UPDATE dispatch_tasks SET status='Completed' WHERE id=$1`, id)
	return err
}

func (r *DispatchRepository) MarkFailed(id string, lastError string) error {
	_, err := r.DB.Exec(`UPDATE dispatch_tasks SET status='Failed', last_error=$1 WHERE id=$2`, lastError, id)
	return err
}

// Cancel withdraws a pending task. Completed and failed tasks stay as they are.
func (r *DispatchRepository) Cancel(id string) error {
	_, err := r.DB.Exec(`UPDATE dispatch_tasks SET status='Cancelled' WHERE id=$1 AND status='Pending'`, id)
	return err
}

func scanDispatchTask(row rowScanner) (*model.DispatchTask, error) {
	var task model.DispatchTask
	err := row.Scan(
		&task.ID, &task.WorkflowID, &task.ReferenceDoctype, &task.ReferenceName,
		&task.Channel, pq.Array(&task.Recipients), &task.Message, &task.DueAt,
		&task.Status, &task.LastError, &task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

var _ DispatchRepositoryInterface = (*DispatchRepository)(nil)
