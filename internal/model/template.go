// internal/model/template.go
package model

import "time"

// MessageTemplate is named text with {variable} placeholders validated
// against the declared variable set at save time.
type MessageTemplate struct {
	ID                 int        `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	TemplateContent    string     `db:"template_content" json:"template_content"`
	AvailableVariables []string   `db:"available_variables" json:"available_variables"`
	Category           string     `db:"category" json:"category,omitempty"`
	UsageCount         int        `db:"usage_count" json:"usage_count"`
	LastUsed           *time.Time `db:"last_used" json:"last_used,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}
