// internal/service/workflow_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/queue"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

// Execution log statuses.
const (
	ExecutionSuccess = "Success"
	ExecutionFailed  = "Failed"
	ExecutionSkipped = "Skipped"
)

// WorkflowService evaluates event-based rules against incoming documents and
// dispatches the resulting messages, immediately or via a durable deferred
// task.
type WorkflowService struct {
	Rules     repository.WorkflowRepositoryInterface
	Dispatch  repository.DispatchRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Sender    MessageSender
	Templates *TemplateService
	Queue     queue.Queue
	Settings  *config.Store

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func (s *WorkflowService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validate rejects rules that could never fire. Condition syntax errors
// surface here, at save time, not when a document event arrives.
func (s *WorkflowService) Validate(rule *model.WorkflowRule) error {
	if rule.Name == "" {
		return appErrors.NewValidation("rule name is required")
	}
	if rule.TriggerDoctype == "" {
		return appErrors.NewValidation("trigger doctype is required")
	}
	if rule.WorkflowType == "" || rule.WorkflowType == model.WorkflowEventBased {
		if rule.TriggerEvent == "" {
			return appErrors.NewValidation("trigger event is required for event based rules")
		}
	}
	if !rule.Channel.Valid() {
		return appErrors.NewValidation("unknown channel %q", rule.Channel)
	}
	if rule.MessageTemplate == "" && rule.CustomMessage == "" {
		return appErrors.NewValidation("either a message template or a custom message is required")
	}
	if rule.RecipientField == "" && rule.FallbackRecipient == "" {
		return appErrors.NewValidation("a recipient field or a fallback recipient is required")
	}
	if _, err := CompileCondition(rule.Conditions); err != nil {
		return err
	}
	return nil
}

func (s *WorkflowService) Create(rule *model.WorkflowRule) error {
	if err := s.Validate(rule); err != nil {
		return err
	}
	return s.Rules.Create(rule)
}

func (s *WorkflowService) Update(rule *model.WorkflowRule) error {
	if err := s.Validate(rule); err != nil {
		return err
	}
	return s.Rules.Update(rule)
}

// HandleEvent runs every active rule registered for the document's doctype
// and event. One misbehaving rule must never block the rest, so each rule is
// executed under its own recover.
func (s *WorkflowService) HandleEvent(ctx context.Context, event string, doc *model.Document) {
	rules, err := s.Rules.ListActive(doc.Doctype, event)
	if err != nil {
		logger.Error("failed to list workflow rules",
			zap.String("doctype", doc.Doctype),
			zap.String("event", event),
			zap.Error(err))
		return
	}

	for _, rule := range rules {
		s.executeSafely(ctx, rule, doc)
	}
}

func (s *WorkflowService) executeSafely(ctx context.Context, rule *model.WorkflowRule, doc *model.Document) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("workflow rule panicked",
				zap.Int("rule_id", rule.ID),
				zap.String("rule", rule.Name),
				zap.Any("panic", r))
			s.recordOutcome(rule, doc, false, fmt.Sprintf("Unexpected error: %v", r))
		}
	}()

	if err := s.Execute(ctx, rule, doc); err != nil {
		logger.Error("workflow rule failed",
			zap.Int("rule_id", rule.ID),
			zap.String("rule", rule.Name),
			zap.String("document", doc.Name),
			zap.Error(err))
	}
}

// Execute runs one rule against one document: condition, guards, recipient
// resolution, message build, then immediate or deferred dispatch.
func (s *WorkflowService) Execute(ctx context.Context, rule *model.WorkflowRule, doc *model.Document) error {
	if !rule.IsActive {
		return nil
	}

	cond, err := CompileCondition(rule.Conditions)
	if err != nil {
		// Validation blocks this at save time; a stored rule can still carry
		// a bad condition written before the grammar changed.
		s.recordOutcome(rule, doc, false, fmt.Sprintf("Invalid condition: %v", err))
		return err
	}
	met, err := cond.Eval(doc)
	if err != nil {
		// A runtime evaluation error means the condition is not met.
		logger.Warn("condition evaluation failed",
			zap.Int("rule_id", rule.ID),
			zap.String("condition", rule.Conditions),
			zap.Error(err))
		return nil
	}
	if !met {
		return nil
	}

	if rule.RateLimitCheck && s.Sender.RateLimited(rule.Channel) {
		s.logSkip(rule, doc, "Rate limit exceeded")
		return nil
	}

	if rule.WorkingHoursOnly && !s.withinWorkingHours() {
		s.logSkip(rule, doc, "Outside working hours")
		return nil
	}

	recipients := s.resolveRecipients(rule, doc)
	if len(recipients) == 0 {
		s.logSkip(rule, doc, "No recipients found")
		return nil
	}

	if rule.RespectDND {
		recipients = s.filterDND(recipients)
		if len(recipients) == 0 {
			s.logSkip(rule, doc, "All recipients have DND enabled")
			return nil
		}
	}

	message, err := s.buildMessage(rule, doc)
	if err != nil {
		s.recordOutcome(rule, doc, false, fmt.Sprintf("Message build failed: %v", err))
		return err
	}

	// A negative delay ("before" the document's own schedule) still goes
	// through the task table; its due_at lands in the past and the next
	// dispatch tick delivers it.
	if rule.DelayDuration != 0 {
		return s.scheduleDeferred(rule, doc, recipients, message)
	}

	return s.dispatch(ctx, rule, doc, recipients, message)
}

// scheduleDeferred writes a durable dispatch task instead of arming a timer, so the
// send survives a process restart. The queue publish is best effort; the
// worker's due-task tick delivers anything the queue loses.
func (s *WorkflowService) scheduleDeferred(rule *model.WorkflowRule, doc *model.Document, recipients []string, message string) error {
	due := s.now().Add(s.delayDuration(rule))

	task := &model.DispatchTask{
		ID:               uuid.NewString(),
		WorkflowID:       rule.ID,
		ReferenceDoctype: doc.Doctype,
		ReferenceName:    doc.Name,
		Channel:          rule.Channel,
		Recipients:       recipients,
		Message:          message,
		DueAt:            due,
	}
	if err := s.Dispatch.Create(task); err != nil {
		s.recordOutcome(rule, doc, false, fmt.Sprintf("Failed to schedule dispatch: %v", err))
		return err
	}

	if s.Queue != nil {
		if err := s.Queue.Publish(queue.TopicDispatchTasks, task.ID); err != nil {
			logger.Warn("failed to enqueue dispatch task",
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
	}

	s.recordOutcome(rule, doc, true, "Scheduled for "+due.Format("02/01/2006 15:04"))
	return nil
}

func (s *WorkflowService) delayDuration(rule *model.WorkflowRule) time.Duration {
	d := time.Duration(rule.DelayDuration)
	switch rule.DelayUnit {
	case model.DelayHours:
		return d * time.Hour
	case model.DelayDays:
		return d * 24 * time.Hour
	default:
		return d * time.Minute
	}
}

func (s *WorkflowService) dispatch(ctx context.Context, rule *model.WorkflowRule, doc *model.Document, recipients []string, message string) error {
	ref := &model.Reference{Doctype: doc.Doctype, Name: doc.Name}

	sent := 0
	for _, recipient := range recipients {
		if _, err := s.Sender.Send(ctx, rule.Channel, recipient, message, ref); err != nil {
			logger.Warn("workflow send failed",
				zap.Int("rule_id", rule.ID),
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		sent++
	}

	s.recordOutcome(rule, doc, sent > 0, fmt.Sprintf("Sent to %d/%d recipients", sent, len(recipients)))
	if sent == 0 {
		return appErrors.NewProvider("workflow", 0, "all sends failed")
	}
	return nil
}

// RunDispatchTask delivers a due deferred send. Tasks that are no longer
// pending were already handled by a concurrent worker or cancelled.
func (s *WorkflowService) RunDispatchTask(ctx context.Context, taskID string) error {
	task, err := s.Dispatch.GetByID(taskID)
	if err != nil {
		return err
	}
	if task.Status != model.DispatchPending {
		return nil
	}
	if task.DueAt.After(s.now()) {
		return nil
	}

	rule, err := s.Rules.GetByID(task.WorkflowID)
	if err != nil {
		return err
	}

	ref := &model.Reference{Doctype: task.ReferenceDoctype, Name: task.ReferenceName}
	sent := 0
	var lastErr error
	for _, recipient := range task.Recipients {
		if _, err := s.Sender.Send(ctx, task.Channel, recipient, task.Message, ref); err != nil {
			lastErr = err
			continue
		}
		sent++
	}

	doc := &model.Document{Doctype: task.ReferenceDoctype, Name: task.ReferenceName}
	if sent == 0 {
		if err := s.Dispatch.MarkFailed(task.ID, lastErr.Error()); err != nil {
			logger.Error("failed to mark dispatch task", zap.String("task_id", task.ID), zap.Error(err))
		}
		s.recordOutcome(rule, doc, false, fmt.Sprintf("Deferred send failed: %v", lastErr))
		return lastErr
	}

	if err := s.Dispatch.MarkCompleted(task.ID); err != nil {
		logger.Error("failed to mark dispatch task", zap.String("task_id", task.ID), zap.Error(err))
	}
	s.recordOutcome(rule, doc, true, fmt.Sprintf("Sent to %d/%d recipients", sent, len(task.Recipients)))
	return nil
}

// RunDueDispatchTasks is the scheduler safety net for deferred sends whose
// queue message never arrived.
func (s *WorkflowService) RunDueDispatchTasks(ctx context.Context, limit int) {
	tasks, err := s.Dispatch.ListDue(s.now(), limit)
	if err != nil {
		logger.Error("failed to list due dispatch tasks", zap.Error(err))
		return
	}
	for _, task := range tasks {
		if err := s.RunDispatchTask(ctx, task.ID); err != nil {
			logger.Warn("dispatch task failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
}

// TestResult is a dry run of a rule against a sample document. Nothing is
// sent and no counters move.
type TestResult struct {
	ConditionMet bool     `json:"condition_met"`
	SkipReason   string   `json:"skip_reason,omitempty"`
	Recipients   []string `json:"recipients"`
	Message      string   `json:"message,omitempty"`
}

// TestRule reports what Execute would do for the given document.
func (s *WorkflowService) TestRule(ruleID int, doc *model.Document) (*TestResult, error) {
	rule, err := s.Rules.GetByID(ruleID)
	if err != nil {
		return nil, err
	}

	cond, err := CompileCondition(rule.Conditions)
	if err != nil {
		return nil, err
	}
	met, err := cond.Eval(doc)
	if err != nil {
		met = false
	}

	result := &TestResult{ConditionMet: met, Recipients: []string{}}
	if !met {
		result.SkipReason = "Condition not met"
		return result, nil
	}

	result.Recipients = s.resolveRecipients(rule, doc)
	if len(result.Recipients) == 0 {
		result.SkipReason = "No recipients found"
		return result, nil
	}

	message, err := s.buildMessage(rule, doc)
	if err != nil {
		return nil, err
	}
	result.Message = message
	return result, nil
}

// ====================== Helpers ======================

// resolveRecipients reads the configured document field, splits multiples on
// commas, and normalizes each number. The fallback recipient applies only
// when the field yields nothing usable.
func (s *WorkflowService) resolveRecipients(rule *model.WorkflowRule, doc *model.Document) []string {
	raw := ""
	if rule.RecipientField != "" {
		raw = doc.GetString(rule.RecipientField)
	}

	parts := []string{raw}
	if rule.SendToMultiple {
		parts = strings.Split(raw, ",")
	}

	recipients := []string{}
	for _, part := range parts {
		phone := NormalizePhone(strings.TrimSpace(part))
		if phone != "" && ValidRecipient(phone) {
			recipients = append(recipients, phone)
		}
	}

	if len(recipients) == 0 && rule.FallbackRecipient != "" {
		fallback := NormalizePhone(rule.FallbackRecipient)
		if fallback != "" {
			recipients = append(recipients, fallback)
		}
	}
	return recipients
}

func (s *WorkflowService) filterDND(recipients []string) []string {
	kept := []string{}
	for _, phone := range recipients {
		dnd, err := s.Contacts.IsDoNotDisturb(phone)
		if err != nil {
			// Can't tell, keep the recipient rather than silently dropping.
			logger.Warn("DND lookup failed", zap.String("phone", phone), zap.Error(err))
			kept = append(kept, phone)
			continue
		}
		if !dnd {
			kept = append(kept, phone)
		}
	}
	return kept
}

func (s *WorkflowService) withinWorkingHours() bool {
	set := s.Settings.Get()
	start := set.WorkingHoursStart
	end := set.WorkingHoursEnd
	if start == "" || end == "" {
		return true
	}

	now := s.now().Format("15:04")
	if start <= end {
		return now >= start && now <= end
	}
	// Overnight window, e.g. 20:00 to 06:00.
	return now >= start || now <= end
}

// buildMessage renders the rule's named template, or its inline custom
// message, with the document's fields as context.
func (s *WorkflowService) buildMessage(rule *model.WorkflowRule, doc *model.Document) (string, error) {
	context := s.buildMessageContext(doc)

	if rule.MessageTemplate != "" {
		return s.Templates.Render(rule.MessageTemplate, context)
	}

	now := s.now()
	merged := map[string]string{
		"company_name": s.Settings.Get().CompanyName,
		"date":         now.Format("02/01/2006"),
		"datetime":     now.Format("02/01/2006 15:04"),
	}
	for k, v := range context {
		merged[k] = v
	}
	return RenderTemplate(rule.CustomMessage, merged), nil
}

func (s *WorkflowService) buildMessageContext(doc *model.Document) map[string]string {
	context := map[string]string{
		"name":    doc.Name,
		"doctype": doc.Doctype,
	}
	for field := range doc.Fields {
		context[field] = doc.GetString(field)
	}
	return context
}

// logSkip records why a rule did not send. Skips are audit entries only;
// they do not move the execution counters.
func (s *WorkflowService) logSkip(rule *model.WorkflowRule, doc *model.Document, reason string) {
	logger.Info("workflow rule skipped",
		zap.Int("rule_id", rule.ID),
		zap.String("rule", rule.Name),
		zap.String("document", doc.Name),
		zap.String("reason", reason))

	if !rule.EnableLogging {
		return
	}
	entry := &model.WorkflowExecutionLog{
		WorkflowID:     rule.ID,
		TriggerDoctype: doc.Doctype,
		TriggerName:    doc.Name,
		Channel:        rule.Channel,
		Status:         ExecutionSkipped,
		Details:        reason,
		ExecutionTime:  s.now(),
	}
	if err := s.Rules.CreateExecutionLog(entry); err != nil {
		logger.Error("failed to write execution log", zap.Int("rule_id", rule.ID), zap.Error(err))
	}
}

// recordOutcome updates the rule's counters and, when the rule asks for it,
// appends an execution log entry.
func (s *WorkflowService) recordOutcome(rule *model.WorkflowRule, doc *model.Document, success bool, details string) {
	if err := s.Rules.RecordExecution(rule.ID, success); err != nil {
		logger.Error("failed to record execution", zap.Int("rule_id", rule.ID), zap.Error(err))
	}

	if !rule.EnableLogging {
		return
	}
	status := ExecutionSuccess
	if !success {
		status = ExecutionFailed
	}
	entry := &model.WorkflowExecutionLog{
		WorkflowID:     rule.ID,
		TriggerDoctype: doc.Doctype,
		TriggerName:    doc.Name,
		Channel:        rule.Channel,
		Status:         status,
		Details:        details,
		ExecutionTime:  s.now(),
	}
	if err := s.Rules.CreateExecutionLog(entry); err != nil {
		logger.Error("failed to write execution log", zap.Int("rule_id", rule.ID), zap.Error(err))
	}
}

var _ queue.DispatchRunner = (*WorkflowService)(nil)
