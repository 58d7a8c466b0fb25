// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flashchat/erp-messaging/internal/config"
	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
	"github.com/flashchat/erp-messaging/internal/repository"
	"github.com/flashchat/erp-messaging/pkg/logger"
)

var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

// RenderTemplate substitutes {key} tokens from data. Keys missing from data
// are left in place so callers can spot unresolved placeholders.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// ExtractPlaceholders lists the {key} tokens used in a template body.
func ExtractPlaceholders(content string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(content, -1)
	keys := []string{}
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	return keys
}

// TemplateService manages named message templates and their rendering.
type TemplateService struct {
	Templates repository.TemplateRepositoryInterface
	Settings  *config.Store

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func (s *TemplateService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// defaultContext is merged under every render: callers can override any key.
func (s *TemplateService) defaultContext() map[string]string {
	now := s.now()
	return map[string]string{
		"company_name": s.Settings.Get().CompanyName,
		"date":         now.Format("02/01/2006"),
		"datetime":     now.Format("02/01/2006 15:04"),
	}
}

// Validate rejects templates that use placeholders outside the declared
// variable set. The three default context keys are always allowed.
func (s *TemplateService) Validate(t *model.MessageTemplate) error {
	if t.Name == "" {
		return appErrors.NewValidation("template name is required")
	}
	if t.TemplateContent == "" {
		return appErrors.NewValidation("template content is required")
	}

	allowed := map[string]bool{"company_name": true, "date": true, "datetime": true}
	for _, v := range t.AvailableVariables {
		allowed[v] = true
	}

	unsupported := []string{}
	for _, key := range ExtractPlaceholders(t.TemplateContent) {
		if !allowed[key] {
			unsupported = append(unsupported, key)
		}
	}
	if len(unsupported) > 0 {
		return appErrors.NewValidation("unsupported variables found: %s", strings.Join(unsupported, ", "))
	}
	return nil
}

func (s *TemplateService) Create(t *model.MessageTemplate) error {
	if err := s.Validate(t); err != nil {
		return err
	}
	return s.Templates.Create(t)
}

func (s *TemplateService) Update(t *model.MessageTemplate) error {
	if err := s.Validate(t); err != nil {
		return err
	}
	return s.Templates.Update(t)
}

// Render fetches a template by name, substitutes the caller context merged
// over the defaults, and bumps the usage counter. A failed counter update is
// logged, not surfaced; rendering already succeeded.
func (s *TemplateService) Render(name string, context map[string]string) (string, error) {
	t, err := s.Templates.GetByName(name)
	if err != nil {
		return "", err
	}

	merged := s.defaultContext()
	for k, v := range context {
		merged[k] = v
	}
	rendered := RenderTemplate(t.TemplateContent, merged)

	if err := s.Templates.RecordUsage(t.ID); err != nil {
		logger.Warn("failed to record template usage", zap.String("template", name), zap.Error(err))
	}
	return rendered, nil
}

// Preview renders with canned sample data for the admin UI.
func (s *TemplateService) Preview(name string, context map[string]string) (string, error) {
	sample := map[string]string{
		"customer_name":  "John Doe",
		"order_id":       "SO-2025-00001",
		"amount":         "1,500.00",
		"due_date":       s.now().Format("02/01/2006"),
		"invoice_number": "INV-2025-00001",
	}
	for k, v := range context {
		sample[k] = v
	}
	return s.Render(name, sample)
}
