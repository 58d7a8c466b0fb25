// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ValidationError is returned for bad caller input: missing secrets,
// malformed phone numbers, unsupported template variables.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RateLimitError is returned when a channel's hourly send budget is spent.
// Nothing is persisted for the rejected attempt.
type RateLimitError struct {
	Channel string
	Limit   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (%d/hour)", e.Channel, e.Limit)
}

func NewRateLimit(channel string, limit int) error {
	return &RateLimitError{Channel: channel, Limit: limit}
}

func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// ProviderError carries the upstream message from a failed FlashChat API call.
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("flashchat %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("flashchat %s failed: %s", e.Endpoint, e.Message)
}

func NewProvider(endpoint string, statusCode int, message string) error {
	return &ProviderError{Endpoint: endpoint, StatusCode: statusCode, Message: message}
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// SignatureError rejects a webhook whose HMAC does not match the raw body.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return e.Reason
}

func NewSignature(reason string) error {
	return &SignatureError{Reason: reason}
}

func IsSignature(err error) bool {
	var se *SignatureError
	return errors.As(err, &se)
}

// NotFoundError identifies a missing record by kind and key.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func NewNotFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// StateError is returned when an operation is not valid for the record's
// current status, e.g. starting a completed campaign.
type StateError struct {
	Message string
}

func (e *StateError) Error() string {
	return e.Message
}

func NewState(format string, args ...any) error {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
