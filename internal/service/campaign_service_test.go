package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/queue"
	"github.com/flashchat/erp-messaging/internal/service"
)

// mockCampaignRepo keeps campaigns in memory.
type mockCampaignRepo struct {
	campaigns map[int]*model.Campaign
}

func newMockCampaignRepo(campaigns ...*model.Campaign) *mockCampaignRepo {
	m := &mockCampaignRepo{campaigns: map[int]*model.Campaign{}}
	for _, c := range campaigns {
		m.campaigns[c.ID] = c
	}
	return m
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	c.ID = len(m.campaigns) + 1
	m.campaigns[c.ID] = c
	return nil
}

func (m *mockCampaignRepo) Update(c *model.Campaign) error {
	m.campaigns[c.ID] = c
	return nil
}

func (m *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	if c, ok := m.campaigns[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, appErrors.NewNotFound("campaign", "?")
}

func (m *mockCampaignRepo) GetByProviderID(providerID string) (*model.Campaign, error) {
	for _, c := range m.campaigns {
		if c.ProviderCampaignID == providerID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, appErrors.NewNotFound("campaign", providerID)
}

func (m *mockCampaignRepo) List(offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	out := []*model.Campaign{}
	for _, c := range m.campaigns {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockCampaignRepo) UpdateStatus(id int, status model.CampaignStatus) error {
	m.campaigns[id].Status = status
	return nil
}

func (m *mockCampaignRepo) UpdateResults(id int, sent, failed int, successRate float64, status model.CampaignStatus) error {
	c := m.campaigns[id]
	c.MessagesSent = sent
	c.MessagesFailed = failed
	c.SuccessRate = successRate
	c.Status = status
	return nil
}

func (m *mockCampaignRepo) UpdateRecipientCount(id, total int) error {
	m.campaigns[id].TotalRecipients = total
	return nil
}

func (m *mockCampaignRepo) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	out := []*model.Campaign{}
	for _, c := range m.campaigns {
		if c.Status == model.CampaignScheduled && c.SendAt != nil && !c.SendAt.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

type campaignFixture struct {
	svc       *service.CampaignService
	campaigns *mockCampaignRepo
	contacts  *mockContactRepo
	sender    *mockSender
	queue     *queue.InMemoryQueue
	now       time.Time
}

func newCampaignFixture(campaigns ...*model.Campaign) *campaignFixture {
	f := &campaignFixture{
		campaigns: newMockCampaignRepo(campaigns...),
		contacts: &mockContactRepo{
			customers: []model.Customer{
				{ID: 1, CustomerName: "Alice Smith", MobileNo: "0712000001", CustomerGroup: "Retail", Territory: "Nairobi"},
				{ID: 2, CustomerName: "Bob Jones", MobileNo: "0712000002", CustomerGroup: "Retail", Territory: "Mombasa"},
				{ID: 3, CustomerName: "Carol White", MobileNo: "0712000003", CustomerGroup: "Wholesale", Territory: "Nairobi"},
			},
			contacts: []model.Contact{
				{ID: 1, FirstName: "Dan", LastName: "Otieno", MobileNo: "0713000001", Company: "Acme"},
				{ID: 2, FirstName: "Eve", LastName: "Kamau", MobileNo: "0713000002", Company: "Globex"},
			},
			dnd: map[string]bool{},
		},
		sender: &mockSender{},
		queue:  queue.NewInMemoryQueue(),
		now:    time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC),
	}
	templates := &service.TemplateService{
		Templates: &mockTemplateRepo{templates: map[string]*model.MessageTemplate{}},
		Settings:  config.NewStore(&config.Settings{CompanyName: "Acme Traders"}),
		Now:       func() time.Time { return f.now },
	}
	f.svc = &service.CampaignService{
		Campaigns: f.campaigns,
		Contacts:  f.contacts,
		Sender:    f.sender,
		Templates: templates,
		Queue:     f.queue,
		Settings:  config.NewStore(&config.Settings{CompanyName: "Acme Traders"}),
		Now:       func() time.Time { return f.now },
	}
	return f
}

func retailCampaign() *model.Campaign {
	return &model.Campaign{
		ID:             1,
		Name:           "March Promo",
		Channel:        model.ChannelSMS,
		Status:         model.CampaignProcessing,
		MessageContent: "Hi {customer_name}, 20% off this week at {company_name}!",
		TargetAudience: model.AudienceCustomers,
		CustomerGroup:  "Retail",
	}
}

func TestCampaignProcessSendsToResolvedAudience(t *testing.T) {
	f := newCampaignFixture(retailCampaign())

	require.NoError(t, f.svc.Process(context.Background(), 1))

	require.Len(t, f.sender.sent, 2) // Retail group only
	bodies := map[string]string{}
	for _, msg := range f.sender.sent {
		bodies[msg.Recipient] = msg.Body
	}
	assert.Equal(t, "Hi Alice Smith, 20% off this week at Acme Traders!", bodies["+0712000001"])
	assert.Equal(t, "Hi Bob Jones, 20% off this week at Acme Traders!", bodies["+0712000002"])

	c := f.campaigns.campaigns[1]
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.Equal(t, 2, c.MessagesSent)
	assert.Equal(t, 0, c.MessagesFailed)
	assert.InDelta(t, 100.0, c.SuccessRate, 0.01)
}

func TestCampaignProcessPartialFailure(t *testing.T) {
	f := newCampaignFixture(retailCampaign())
	f.sender.failFor = map[string]bool{"+0712000002": true}

	require.NoError(t, f.svc.Process(context.Background(), 1))

	c := f.campaigns.campaigns[1]
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.Equal(t, 1, c.MessagesSent)
	assert.Equal(t, 1, c.MessagesFailed)
	assert.InDelta(t, 50.0, c.SuccessRate, 0.01)
}

func TestCampaignProcessAllFailedMarksFailed(t *testing.T) {
	f := newCampaignFixture(retailCampaign())
	f.sender.sendErr = appErrors.NewProvider("send-sms", 500, "upstream down")

	require.NoError(t, f.svc.Process(context.Background(), 1))

	c := f.campaigns.campaigns[1]
	assert.Equal(t, model.CampaignFailed, c.Status)
	assert.Equal(t, 0, c.MessagesSent)
	assert.Equal(t, 2, c.MessagesFailed)
}

func TestCampaignProcessSkipsWrongState(t *testing.T) {
	c := retailCampaign()
	c.Status = model.CampaignDraft
	f := newCampaignFixture(c)

	require.NoError(t, f.svc.Process(context.Background(), 1))
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, model.CampaignDraft, f.campaigns.campaigns[1].Status)
}

func TestCampaignCustomFilterAudience(t *testing.T) {
	c := retailCampaign()
	c.TargetAudience = model.AudienceCustomFilter
	c.ContactFilter = "doc.company == 'Acme'"
	f := newCampaignFixture(c)

	require.NoError(t, f.svc.Process(context.Background(), 1))

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+0713000001", f.sender.sent[0].Recipient)
}

func TestCampaignAllContactsAudience(t *testing.T) {
	c := retailCampaign()
	c.TargetAudience = model.AudienceAllContacts
	f := newCampaignFixture(c)

	require.NoError(t, f.svc.Process(context.Background(), 1))
	assert.Len(t, f.sender.sent, 2)
}

func TestCampaignStateGuards(t *testing.T) {
	completed := retailCampaign()
	completed.Status = model.CampaignCompleted
	f := newCampaignFixture(completed)

	err := f.svc.Start(1)
	require.Error(t, err)
	assert.True(t, appErrors.IsState(err))

	err = f.svc.Cancel(1)
	require.Error(t, err)
	assert.True(t, appErrors.IsState(err))

	err = f.svc.Schedule(1, f.now.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, appErrors.IsState(err))
}

func TestCampaignScheduleRequiresFutureTime(t *testing.T) {
	draft := retailCampaign()
	draft.Status = model.CampaignDraft
	f := newCampaignFixture(draft)

	err := f.svc.Schedule(1, f.now.Add(-time.Hour))
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))

	require.NoError(t, f.svc.Schedule(1, f.now.Add(time.Hour)))
	assert.Equal(t, model.CampaignScheduled, f.campaigns.campaigns[1].Status)
}

func TestCampaignStartDuePromotesScheduled(t *testing.T) {
	due := retailCampaign()
	due.Status = model.CampaignScheduled
	sendAt := time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)
	due.SendAt = &sendAt
	f := newCampaignFixture(due)

	// Subscribe so the queued run is consumed synchronously enough to assert
	// on the status flip; the processing itself is covered elsewhere.
	processed := make(chan int, 1)
	f.queue.Subscribe(queue.TopicCampaignRuns, func(payload any) error {
		processed <- payload.(int)
		return nil
	})

	f.svc.StartDue()

	select {
	case id := <-processed:
		assert.Equal(t, 1, id)
	case <-time.After(time.Second):
		t.Fatal("campaign run was not queued")
	}
	assert.Equal(t, model.CampaignProcessing, f.campaigns.campaigns[1].Status)
}

func TestCampaignValidate(t *testing.T) {
	f := newCampaignFixture()

	err := f.svc.Create(&model.Campaign{
		Name:           "OTP Blast",
		Channel:        model.ChannelOTP,
		MessageContent: "hi",
		TargetAudience: model.AudienceAllContacts,
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))

	err = f.svc.Create(&model.Campaign{
		Name:           "Bad Filter",
		Channel:        model.ChannelSMS,
		MessageContent: "hi",
		TargetAudience: model.AudienceCustomFilter,
		ContactFilter:  "company ==",
	})
	require.Error(t, err)

	err = f.svc.Create(&model.Campaign{
		Name:           "Valid",
		Channel:        model.ChannelSMS,
		MessageContent: "Hi {customer_name}!",
		TargetAudience: model.AudienceAllContacts,
	})
	require.NoError(t, err)
	// Audience size is precomputed on create.
	assert.Equal(t, 2, f.campaigns.campaigns[1].TotalRecipients)
}
