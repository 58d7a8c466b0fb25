// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/queue"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

// CampaignService runs one-shot bulk sends against a filtered audience. The
// HTTP layer only flips campaign state; the actual send loop runs on the
// worker via the campaign run queue.
type CampaignService struct {
	Campaigns repository.CampaignRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Sender    MessageSender
	Templates *TemplateService
	Queue     queue.Queue
	Settings  *config.Store

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validate rejects campaigns that could never run.
func (s *CampaignService) Validate(c *model.Campaign) error {
	if c.Name == "" {
		return appErrors.NewValidation("campaign name is required")
	}
	if !c.Channel.Valid() {
		return appErrors.NewValidation("unknown channel %q", c.Channel)
	}
	if c.Channel == model.ChannelOTP {
		return appErrors.NewValidation("OTP is not a campaign channel")
	}
	if c.MessageTemplate == "" && c.MessageContent == "" {
		return appErrors.NewValidation("either a message template or message content is required")
	}
	switch c.TargetAudience {
	case model.AudienceAllContacts, model.AudienceCustomers, model.AudienceLeads:
	case model.AudienceCustomFilter:
		if _, err := CompileCondition(c.ContactFilter); err != nil {
			return err
		}
	default:
		return appErrors.NewValidation("unknown target audience %q", c.TargetAudience)
	}
	return nil
}

// Create saves a draft and pre-computes its recipient count so the UI can
// show audience size before anything is sent.
func (s *CampaignService) Create(c *model.Campaign) error {
	if err := s.Validate(c); err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if err := s.Campaigns.Create(c); err != nil {
		return err
	}
	return s.RecomputeRecipients(c.ID)
}

// Update only applies to drafts; a campaign in flight or finished is
// immutable apart from cancellation.
func (s *CampaignService) Update(c *model.Campaign) error {
	existing, err := s.Campaigns.GetByID(c.ID)
	if err != nil {
		return err
	}
	if existing.Status != model.CampaignDraft {
		return appErrors.NewState("only draft campaigns can be edited, campaign %d is %s", c.ID, existing.Status)
	}
	if err := s.Validate(c); err != nil {
		return err
	}
	if err := s.Campaigns.Update(c); err != nil {
		return err
	}
	return s.RecomputeRecipients(c.ID)
}

// RecomputeRecipients refreshes the stored audience size. A resolution
// failure is logged, not fatal; the count is informational until the run.
func (s *CampaignService) RecomputeRecipients(id int) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	recipients, err := s.resolveAudience(c)
	if err != nil {
		logger.Warn("failed to resolve campaign audience", zap.Int("campaign_id", id), zap.Error(err))
		return nil
	}
	return s.Campaigns.UpdateRecipientCount(id, len(recipients))
}

// Schedule moves a draft to Scheduled with a future send time.
func (s *CampaignService) Schedule(id int, sendAt time.Time) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignDraft {
		return appErrors.NewState("only draft campaigns can be scheduled, campaign %d is %s", id, c.Status)
	}
	if !sendAt.After(s.now()) {
		return appErrors.NewValidation("send time must be in the future")
	}

	c.SendAt = &sendAt
	c.Status = model.CampaignScheduled
	return s.Campaigns.Update(c)
}

// Start claims the campaign for processing and hands the send loop to the
// worker. Draft and Scheduled campaigns can start; anything else is a state
// error.
func (s *CampaignService) Start(id int) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignDraft && c.Status != model.CampaignScheduled {
		return appErrors.NewState("campaign %d cannot start from %s", id, c.Status)
	}

	if err := s.Campaigns.UpdateStatus(id, model.CampaignProcessing); err != nil {
		return err
	}

	if err := s.Queue.Publish(queue.TopicCampaignRuns, id); err != nil {
		// Roll the claim back so a later start can retry.
		if revertErr := s.Campaigns.UpdateStatus(id, c.Status); revertErr != nil {
			logger.Error("failed to revert campaign status",
				zap.Int("campaign_id", id), zap.Error(revertErr))
		}
		return err
	}

	logger.Info("campaign queued", zap.Int("campaign_id", id), zap.String("name", c.Name))
	return nil
}

// StartDue promotes scheduled campaigns whose send time has arrived. Runs on
// the worker's scheduler tick.
func (s *CampaignService) StartDue() {
	due, err := s.Campaigns.ListDueScheduled(s.now())
	if err != nil {
		logger.Error("failed to list due campaigns", zap.Error(err))
		return
	}
	for _, c := range due {
		if err := s.Start(c.ID); err != nil {
			logger.Error("failed to start scheduled campaign",
				zap.Int("campaign_id", c.ID), zap.Error(err))
		}
	}
}

// Cancel stops a campaign that has not finished. A processing campaign
// finishes its in-flight batch; the status check in Process stops further
// batches.
func (s *CampaignService) Cancel(id int) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status.Terminal() {
		return appErrors.NewState("campaign %d is already %s", id, c.Status)
	}
	return s.Campaigns.UpdateStatus(id, model.CampaignCancelled)
}

// Process runs the send loop for a claimed campaign: resolve the audience,
// render once per recipient, send, then record totals and the final state.
func (s *CampaignService) Process(ctx context.Context, id int) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignProcessing {
		logger.Warn("skipping campaign not in processing state",
			zap.Int("campaign_id", id), zap.String("status", string(c.Status)))
		return nil
	}

	recipients, err := s.resolveAudience(c)
	if err != nil {
		s.fail(c, err)
		return err
	}
	if len(recipients) == 0 {
		err := appErrors.NewValidation("campaign %d has no recipients", id)
		s.fail(c, err)
		return err
	}

	ref := &model.Reference{Doctype: "Campaign", Name: fmt.Sprint(c.ID)}
	sent, failed := 0, 0
	for _, recipient := range recipients {
		// A cancel mid-run stops the loop at the next recipient.
		current, err := s.Campaigns.GetByID(id)
		if err == nil && current.Status == model.CampaignCancelled {
			logger.Info("campaign cancelled mid-run",
				zap.Int("campaign_id", id), zap.Int("sent", sent))
			return s.record(c, sent, failed, model.CampaignCancelled)
		}

		body, err := s.renderFor(c, recipient)
		if err != nil {
			failed++
			continue
		}
		if _, err := s.Sender.Send(ctx, c.Channel, recipient.MobileNo, body, ref); err != nil {
			failed++
			continue
		}
		sent++
	}

	status := model.CampaignCompleted
	if sent == 0 {
		status = model.CampaignFailed
	}
	return s.record(c, sent, failed, status)
}

func (s *CampaignService) record(c *model.Campaign, sent, failed int, status model.CampaignStatus) error {
	total := sent + failed
	successRate := 0.0
	if total > 0 {
		successRate = float64(sent) / float64(total) * 100
	}

	if err := s.Campaigns.UpdateResults(c.ID, sent, failed, successRate, status); err != nil {
		return err
	}

	logger.Info("campaign finished",
		zap.Int("campaign_id", c.ID),
		zap.String("status", string(status)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
		zap.Float64("success_rate", successRate))
	return nil
}

func (s *CampaignService) fail(c *model.Campaign, cause error) {
	logger.Error("campaign failed", zap.Int("campaign_id", c.ID), zap.Error(cause))
	if err := s.Campaigns.UpdateStatus(c.ID, model.CampaignFailed); err != nil {
		logger.Error("failed to mark campaign failed", zap.Int("campaign_id", c.ID), zap.Error(err))
	}
}

// resolveAudience expands the campaign's audience selection into concrete
// recipients. Custom Filter evaluates the campaign's filter expression
// against each contact's fields.
func (s *CampaignService) resolveAudience(c *model.Campaign) ([]model.Recipient, error) {
	switch c.TargetAudience {
	case model.AudienceAllContacts:
		contacts, err := s.Contacts.ListContacts()
		if err != nil {
			return nil, err
		}
		return contactRecipients(contacts), nil

	case model.AudienceCustomers:
		customers, err := s.Contacts.ListCustomers(c.CustomerGroup, c.Territory)
		if err != nil {
			return nil, err
		}
		recipients := []model.Recipient{}
		for _, cu := range customers {
			if phone := NormalizePhone(cu.MobileNo); phone != "" {
				recipients = append(recipients, model.Recipient{Name: cu.CustomerName, MobileNo: phone})
			}
		}
		return recipients, nil

	case model.AudienceLeads:
		leads, err := s.Contacts.ListLeads(c.LeadSource, c.Territory)
		if err != nil {
			return nil, err
		}
		recipients := []model.Recipient{}
		for _, l := range leads {
			if phone := NormalizePhone(l.MobileNo); phone != "" {
				recipients = append(recipients, model.Recipient{Name: l.LeadName, MobileNo: phone})
			}
		}
		return recipients, nil

	case model.AudienceCustomFilter:
		return s.filterContacts(c.ContactFilter)
	}
	return nil, appErrors.NewValidation("unknown target audience %q", c.TargetAudience)
}

func (s *CampaignService) filterContacts(filter string) ([]model.Recipient, error) {
	cond, err := CompileCondition(filter)
	if err != nil {
		return nil, err
	}
	contacts, err := s.Contacts.ListContacts()
	if err != nil {
		return nil, err
	}

	recipients := []model.Recipient{}
	for _, contact := range contacts {
		doc := contactDocument(contact)
		match, err := cond.Eval(doc)
		if err != nil || !match {
			continue
		}
		if phone := NormalizePhone(contact.MobileNo); phone != "" {
			recipients = append(recipients, model.Recipient{
				Name:     contactName(contact),
				MobileNo: phone,
			})
		}
	}
	return recipients, nil
}

// renderFor builds the per-recipient message body.
func (s *CampaignService) renderFor(c *model.Campaign, recipient model.Recipient) (string, error) {
	context := map[string]string{
		"customer_name": recipient.Name,
		"mobile_no":     recipient.MobileNo,
	}

	if c.MessageTemplate != "" {
		return s.Templates.Render(c.MessageTemplate, context)
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
	return RenderTemplate(c.MessageContent, merged), nil
}

func contactRecipients(contacts []model.Contact) []model.Recipient {
	recipients := []model.Recipient{}
	for _, contact := range contacts {
		if phone := NormalizePhone(contact.MobileNo); phone != "" {
			recipients = append(recipients, model.Recipient{
				Name:     contactName(contact),
				MobileNo: phone,
			})
		}
	}
	return recipients
}

func contactName(c model.Contact) string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

func contactDocument(c model.Contact) *model.Document {
	return &model.Document{
		Doctype: "Contact",
		Name:    contactName(c),
		Fields: map[string]any{
			"first_name":     c.FirstName,
			"last_name":      c.LastName,
			"mobile_no":      c.MobileNo,
			"email":          c.Email,
			"company":        c.Company,
			"do_not_disturb": c.DoNotDisturb,
		},
	}
}

var _ queue.CampaignProcessor = (*CampaignService)(nil)
