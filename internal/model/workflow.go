// internal/model/workflow.go
package model

import "time"

// WorkflowType distinguishes rules fired by document events from rules the
// scheduler runs on its own cadence.
type WorkflowType string

const (
	WorkflowEventBased WorkflowType = "Event Based"
	WorkflowScheduled  WorkflowType = "Scheduled"
)

// DelayUnit is the unit of a rule's dispatch delay.
type DelayUnit string

const (
	DelayMinutes DelayUnit = "Minutes"
	DelayHours   DelayUnit = "Hours"
	DelayDays    DelayUnit = "Days"
)

// WorkflowRule is a configured trigger-condition-action tuple. Counters are
// mutated on every execution via atomic increments in the repository.
type WorkflowRule struct {
	ID               int          `db:"id" json:"id"`
	Name             string       `db:"name" json:"name"`
	WorkflowType     WorkflowType `db:"workflow_type" json:"workflow_type"`
	TriggerDoctype   string       `db:"trigger_doctype" json:"trigger_doctype"`
	TriggerEvent     string       `db:"trigger_event" json:"trigger_event"`
	Channel          Channel      `db:"channel" json:"channel"`
	Conditions       string       `db:"conditions" json:"conditions,omitempty"`
	MessageTemplate  string       `db:"message_template" json:"message_template,omitempty"`
	CustomMessage    string       `db:"custom_message" json:"custom_message,omitempty"`
	RecipientField   string       `db:"recipient_field" json:"recipient_field"`
	SendToMultiple   bool         `db:"send_to_multiple" json:"send_to_multiple"`
	FallbackRecipient string      `db:"fallback_recipient" json:"fallback_recipient,omitempty"`
	DelayDuration    int          `db:"delay_duration" json:"delay_duration"`
	DelayUnit        DelayUnit    `db:"delay_unit" json:"delay_unit"`
	IsActive         bool         `db:"is_active" json:"is_active"`
	RateLimitCheck   bool         `db:"rate_limit_check" json:"rate_limit_check"`
	RespectDND       bool         `db:"respect_dnd" json:"respect_dnd"`
	WorkingHoursOnly bool         `db:"working_hours_only" json:"working_hours_only"`
	EnableLogging    bool         `db:"enable_logging" json:"enable_logging"`
	ExecutionCount   int          `db:"execution_count" json:"execution_count"`
	SuccessCount     int          `db:"success_count" json:"success_count"`
	FailureCount     int          `db:"failure_count" json:"failure_count"`
	SuccessRate      float64      `db:"success_rate" json:"success_rate"`
	LastExecuted     *time.Time   `db:"last_executed" json:"last_executed,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time   `db:"updated_at" json:"updated_at,omitempty"`
}

// WorkflowExecutionLog is an append-only audit record of one rule firing
// against one document.
type WorkflowExecutionLog struct {
	ID              int       `db:"id" json:"id"`
	WorkflowID      int       `db:"workflow_id" json:"workflow_id"`
	TriggerDoctype  string    `db:"trigger_doctype" json:"trigger_doctype"`
	TriggerName     string    `db:"trigger_name" json:"trigger_name"`
	Channel         Channel   `db:"channel" json:"channel"`
	Status          string    `db:"status" json:"status"` // Success, Failed
	Details         string    `db:"details" json:"details,omitempty"`
	ExecutionTime   time.Time `db:"execution_time" json:"execution_time"`
}
