// internal/model/campaign.go
package model

import "time"

// CampaignStatus is a strict forward state machine. No state is re-enterable
// except via an admin-initiated cancel.
type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "Draft"
	CampaignScheduled  CampaignStatus = "Scheduled"
	CampaignProcessing CampaignStatus = "Processing"
	CampaignCompleted  CampaignStatus = "Completed"
	CampaignCancelled  CampaignStatus = "Cancelled"
	CampaignFailed     CampaignStatus = "Failed"
)

// Terminal reports whether the campaign can no longer move forward.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled || s == CampaignFailed
}

// TargetAudience selects the recipient set for a campaign.
type TargetAudience string

const (
	AudienceAllContacts  TargetAudience = "All Contacts"
	AudienceCustomers    TargetAudience = "Customers"
	AudienceLeads        TargetAudience = "Leads"
	AudienceCustomFilter TargetAudience = "Custom Filter"
)

// Campaign is a one-shot bulk send to a filtered audience.
type Campaign struct {
	ID                 int            `db:"id" json:"id"`
	Name               string         `db:"name" json:"name"`
	Channel            Channel        `db:"channel" json:"channel"`
	Status             CampaignStatus `db:"status" json:"status"`
	MessageTemplate    string         `db:"message_template" json:"message_template,omitempty"`
	MessageContent     string         `db:"message_content" json:"message_content,omitempty"`
	TargetAudience     TargetAudience `db:"target_audience" json:"target_audience"`
	CustomerGroup      string         `db:"customer_group" json:"customer_group,omitempty"`
	LeadSource         string         `db:"lead_source" json:"lead_source,omitempty"`
	Territory          string         `db:"territory" json:"territory,omitempty"`
	ContactFilter      string         `db:"contact_filter" json:"contact_filter,omitempty"`
	SendAt             *time.Time     `db:"send_at" json:"send_at,omitempty"`
	TotalRecipients    int            `db:"total_recipients" json:"total_recipients"`
	MessagesSent       int            `db:"messages_sent" json:"messages_sent"`
	MessagesFailed     int            `db:"messages_failed" json:"messages_failed"`
	SuccessRate        float64        `db:"success_rate" json:"success_rate"`
	ProviderCampaignID string         `db:"provider_campaign_id" json:"provider_campaign_id,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
