package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
)

type WorkflowRepositoryInterface interface {
	Create(rule *model.WorkflowRule) error
	Update(rule *model.WorkflowRule) error
	GetByID(id int) (*model.WorkflowRule, error)
	List(offset, limit int, activeOnly bool) ([]*model.WorkflowRule, int, error)
	ListActive(doctype, event string) ([]*model.WorkflowRule, error)
	RecordExecution(id int, success bool) error
	CreateExecutionLog(entry *model.WorkflowExecutionLog) error
	ListExecutionLogs(workflowID, offset, limit int) ([]*model.WorkflowExecutionLog, error)
	DeleteExecutionLogsOlderThan(cutoff time.Time) (int64, error)
	Stats(since time.Time) (map[string]int, error)
}

type WorkflowRepository struct {
	DB *sql.DB
}

const workflowColumns = `id, name, workflow_type, trigger_doctype, trigger_event, channel,
	conditions, message_template, custom_message, recipient_field, send_to_multiple,
	fallback_recipient, delay_duration, delay_unit, is_active, rate_limit_check,
	respect_dnd, working_hours_only, enable_logging, execution_count, success_count,
	failure_count, success_rate, last_executed, created_at, updated_at`

// ====================== Rule CRUD ======================

func (r *WorkflowRepository) Create(rule *model.WorkflowRule) error {
	rule.CreatedAt = time.Now()
	if rule.WorkflowType == "" {
		rule.WorkflowType = model.WorkflowEventBased
	}
	if rule.DelayUnit == "" {
		rule.DelayUnit = model.DelayMinutes
	}
	query := `
        INSERT INTO workflow_rules
            (name, workflow_type, trigger_doctype, trigger_event, channel, conditions,
             message_template, custom_message, recipient_field, send_to_multiple,
             fallback_recipient, delay_duration, delay_unit, is_active, rate_limit_check,
             respect_dnd, working_hours_only, enable_logging, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		rule.Name, rule.WorkflowType, rule.TriggerDoctype, rule.TriggerEvent, rule.Channel,
		rule.Conditions, rule.MessageTemplate, rule.CustomMessage, rule.RecipientField,
		rule.SendToMultiple, rule.FallbackRecipient, rule.DelayDuration, rule.DelayUnit,
		rule.IsActive, rule.RateLimitCheck, rule.RespectDND, rule.WorkingHoursOnly,
		rule.EnableLogging, rule.CreatedAt,
	).Scan(&rule.ID)
}

func (r *WorkflowRepository) Update(rule *model.WorkflowRule) error {
	query := `
        UPDATE workflow_rules
        SET name=$1, workflow_type=$2, trigger_doctype=$3, trigger_event=$4, channel=$5,
            conditions=$6, message_template=$7, custom_message=$8, recipient_field=$9,
            send_to_multiple=$10, fallback_recipient=$11, delay_duration=$12, delay_unit=$13,
            is_active=$14, rate_limit_check=$15, respect_dnd=$16, working_hours_only=$17,
            enable_logging=$18, updated_at=NOW()
        WHERE id=$19
    `
	_, err := r.DB.Exec(query,
		rule.Name, rule.WorkflowType, rule.TriggerDoctype, rule.TriggerEvent, rule.Channel,
		rule.Conditions, rule.MessageTemplate, rule.CustomMessage, rule.RecipientField,
		rule.SendToMultiple, rule.FallbackRecipient, rule.DelayDuration, rule.DelayUnit,
		rule.IsActive, rule.RateLimitCheck, rule.RespectDND, rule.WorkingHoursOnly,
		rule.EnableLogging, rule.ID,
	)
	return err
}

func (r *WorkflowRepository) GetByID(id int) (*model.WorkflowRule, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_rules WHERE id=$1`
	rule, err := scanWorkflowRule(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("workflow rule", fmt.Sprint(id))
		}
		return nil, err
	}
	return rule, nil
}

func (r *WorkflowRepository) List(offset, limit int, activeOnly bool) ([]*model.WorkflowRule, int, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_rules`
	countQuery := `SELECT COUNT(*) FROM workflow_rules`
	if activeOnly {
		query += ` WHERE is_active`
		countQuery += ` WHERE is_active`
	}
	query += " ORDER BY id DESC LIMIT $1 OFFSET $2"

	rows, err := r.DB.Query(query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	rules := []*model.WorkflowRule{}
	for rows.Next() {
		rule, err := scanWorkflowRule(rows)
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, rule)
	}

	var total int
	if err := r.DB.QueryRow(countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// ListActive returns the active event-based rules registered for a document
// event, the set the engine walks when a host event arrives.
func (r *WorkflowRepository) ListActive(doctype, event string) ([]*model.WorkflowRule, error) {
	query := `SELECT ` + workflowColumns + `
        FROM workflow_rules
        WHERE is_active AND workflow_type='Event Based' AND trigger_doctype=$1 AND trigger_event=$2
        ORDER BY id
    `
	rows, err := r.DB.Query(query, doctype, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*model.WorkflowRule{}
	for rows.Next() {
		rule, err := scanWorkflowRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// RecordExecution bumps the rule counters in one statement so concurrent
// executions cannot lose increments.
func (r *WorkflowRepository) RecordExecution(id int, success bool) error {
	query := `
        UPDATE workflow_rules
        SET execution_count = execution_count + 1,
            success_count = success_count + $1,
            failure_count = failure_count + $2,
            success_rate = (success_count + $1) * 100.0 / (execution_count + 1),
            last_executed = NOW()
        WHERE id=$3
    `
	successInc, failureInc := 0, 1
	if success {
		successInc, failureInc = 1, 0
	}
	_, err := r.DB.Exec(query, successInc, failureInc, id)
	return err
}

// ====================== Execution logs ======================

func (r *WorkflowRepository) CreateExecutionLog(entry *model.WorkflowExecutionLog) error {
	entry.ExecutionTime = time.Now()
	query := `
        INSERT INTO workflow_execution_logs
            (workflow_id, trigger_doctype, trigger_name, channel, status, details, execution_time)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		entry.WorkflowID, entry.TriggerDoctype, entry.TriggerName, entry.Channel,
		entry.Status, entry.Details, entry.ExecutionTime,
	).Scan(&entry.ID)
}

func (r *WorkflowRepository) ListExecutionLogs(workflowID, offset, limit int) ([]*model.WorkflowExecutionLog, error) {
	query := `
        SELECT id, workflow_id, trigger_doctype, trigger_name, channel, status, details, execution_time
        FROM workflow_execution_logs
        WHERE workflow_id=$1
        ORDER BY id DESC LIMIT $2 OFFSET $3
    `
	rows, err := r.DB.Query(query, workflowID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.WorkflowExecutionLog{}
	for rows.Next() {
		var entry model.WorkflowExecutionLog
		if err := rows.Scan(&entry.ID, &entry.WorkflowID, &entry.TriggerDoctype, &entry.TriggerName,
			&entry.Channel, &entry.Status, &entry.Details, &entry.ExecutionTime); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (r *WorkflowRepository) DeleteExecutionLogsOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.DB.Exec(`DELETE FROM workflow_execution_logs WHERE execution_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats aggregates workflow activity for the dashboard widget.
func (r *WorkflowRepository) Stats(since time.Time) (map[string]int, error) {
	stats := map[string]int{}

	var active, total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM workflow_rules WHERE is_active`).Scan(&active); err != nil {
		return nil, err
	}
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM workflow_rules`).Scan(&total); err != nil {
		return nil, err
	}
	stats["active_workflows"] = active
	stats["total_workflows"] = total

	var executions, successes int
	if err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM workflow_execution_logs WHERE execution_time >= $1`, since,
	).Scan(&executions); err != nil {
		return nil, err
	}
	if err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM workflow_execution_logs WHERE execution_time >= $1 AND status='Success'`, since,
	).Scan(&successes); err != nil {
		return nil, err
	}
	stats["executions"] = executions
	stats["successes"] = successes

	return stats, nil
}

func scanWorkflowRule(row rowScanner) (*model.WorkflowRule, error) {
	var rule model.WorkflowRule
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.WorkflowType, &rule.TriggerDoctype, &rule.TriggerEvent,
		&rule.Channel, &rule.Conditions, &rule.MessageTemplate, &rule.CustomMessage,
		&rule.RecipientField, &rule.SendToMultiple, &rule.FallbackRecipient,
		&rule.DelayDuration, &rule.DelayUnit, &rule.IsActive, &rule.RateLimitCheck,
		&rule.RespectDND, &rule.WorkingHoursOnly, &rule.EnableLogging,
		&rule.ExecutionCount, &rule.SuccessCount, &rule.FailureCount, &rule.SuccessRate,
		&rule.LastExecuted, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

var _ WorkflowRepositoryInterface = (*WorkflowRepository)(nil)
