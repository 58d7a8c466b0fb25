package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	Update(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	GetByProviderID(providerID string) (*model.Campaign, error)
	List(offset, limit int, channel, status string) ([]*model.Campaign, int, error)
	UpdateStatus(id int, status model.CampaignStatus) error
	UpdateResults(id int, sent, failed int, successRate float64, status model.CampaignStatus) error
	UpdateRecipientCount(id, total int) error
	ListDueScheduled(now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, channel, status, message_template, message_content,
	target_audience, customer_group, lead_source, territory, contact_filter, send_at,
	total_recipients, messages_sent, messages_failed, success_rate, provider_campaign_id,
	created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
        INSERT INTO campaigns
            (name, channel, status, message_template, message_content, target_audience,
             customer_group, lead_source, territory, contact_filter, send_at,
             total_recipients, provider_campaign_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.Name, c.Channel, c.Status, c.MessageTemplate, c.MessageContent, c.TargetAudience,
		c.CustomerGroup, c.LeadSource, c.Territory, c.ContactFilter, c.SendAt,
		c.TotalRecipients, c.ProviderCampaignID, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	query := `
        UPDATE campaigns
        SET name=$1, channel=$2, status=$3, message_template=$4, message_content=$5,
            target_audience=$6, customer_group=$7, lead_source=$8, territory=$9,
            contact_filter=$10, send_at=$11, total_recipients=$12, updated_at=NOW()
        WHERE id=$13
    `
	_, err := r.DB.Exec(query,
		c.Name, c.Channel, c.Status, c.MessageTemplate, c.MessageContent, c.TargetAudience,
		c.CustomerGroup, c.LeadSource, c.Territory, c.ContactFilter, c.SendAt,
		c.TotalRecipients, c.ID,
	)
	return err
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("campaign", fmt.Sprint(id))
		}
		return nil, err
	}
	return c, nil
}

// GetByProviderID resolves the campaign a provider webhook refers to.
func (r *CampaignRepository) GetByProviderID(providerID string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE provider_campaign_id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, providerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("campaign", providerID)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if channel != "" {
		query += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	countArgs := []interface{}{}
	countPos := 1
	if channel != "" {
		countQuery += fmt.Sprintf(" AND channel=$%d", countPos)
		countArgs = append(countArgs, channel)
		countPos++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", countPos)
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(id int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

// UpdateResults records the final counts of a processing pass.
func (r *CampaignRepository) UpdateResults(id int, sent, failed int, successRate float64, status model.CampaignStatus) error {
	query := `
        UPDATE campaigns
        SET messages_sent=$1, messages_failed=$2, success_rate=$3, status=$4, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, sent, failed, successRate, status, id)
	return err
}

func (r *CampaignRepository) UpdateRecipientCount(id, total int) error {
	query := `UPDATE campaigns SET total_recipients=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, total, id)
	return err
}

// ListDueScheduled returns Scheduled campaigns whose send time has passed,
// the set the worker promotes to Processing.
func (r *CampaignRepository) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status='Scheduled' AND send_at <= $1`
	rows, err := r.DB.Query(query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.Channel, &c.Status, &c.MessageTemplate, &c.MessageContent,
		&c.TargetAudience, &c.CustomerGroup, &c.LeadSource, &c.Territory, &c.ContactFilter,
		&c.SendAt, &c.TotalRecipients, &c.MessagesSent, &c.MessagesFailed, &c.SuccessRate,
		&c.ProviderCampaignID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
