// internal/model/message_log.go
package model

import "time"

// MessageLog is one row per message attempt, outbound or inbound. Every call
// into the gateway persists exactly one row; webhooks and manual retries
// mutate it afterwards.
type MessageLog struct {
	ID                int           `db:"id" json:"id"`
	Channel           Channel       `db:"channel" json:"channel"`
	Direction         Direction     `db:"direction" json:"direction"`
	PhoneNumber       string        `db:"phone_number" json:"phone_number"`
	Content           string        `db:"content" json:"content"`
	Status            MessageStatus `db:"status" json:"status"`
	ProviderMessageID string        `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ReferenceDoctype  string        `db:"reference_doctype" json:"reference_doctype,omitempty"`
	ReferenceName     string        `db:"reference_name" json:"reference_name,omitempty"`
	ResponseContent   string        `db:"response_content" json:"response_content,omitempty"`
	ErrorMessage      string        `db:"error_message" json:"error_message,omitempty"`
	RetryCount        int           `db:"retry_count" json:"retry_count"`
	DeviceID          string        `db:"device_id" json:"device_id,omitempty"`
	SentAt            *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time    `db:"delivered_at" json:"delivered_at,omitempty"`
	ReceivedAt        *time.Time    `db:"received_at" json:"received_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// Reference points a message log at the business record that triggered it.
type Reference struct {
	Doctype string
	Name    string
}
