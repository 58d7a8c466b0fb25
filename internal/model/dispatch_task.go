// internal/model/dispatch_task.go
package model

import "time"

// DispatchStatus tracks a deferred workflow dispatch through the scheduler.
type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "Pending"
	DispatchCompleted DispatchStatus = "Completed"
	DispatchFailed    DispatchStatus = "Failed"
	DispatchCancelled DispatchStatus = "Cancelled"
)

// DispatchTask is a durable deferred-send record. A delayed workflow rule
// writes one of these instead of arming a timer; the worker delivers it at or
// after DueAt.
type DispatchTask struct {
	ID               string         `db:"id" json:"id"` // uuid
	WorkflowID       int            `db:"workflow_id" json:"workflow_id"`
	ReferenceDoctype string         `db:"reference_doctype" json:"reference_doctype"`
	ReferenceName    string         `db:"reference_name" json:"reference_name"`
	Channel          Channel        `db:"channel" json:"channel"`
	Recipients       []string       `db:"recipients" json:"recipients"`
	Message          string         `db:"message" json:"message"`
	DueAt            time.Time      `db:"due_at" json:"due_at"`
	Status           DispatchStatus `db:"status" json:"status"`
	LastError        string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}
