package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
)

// MessageLogRepositoryInterface defines the queries the gateway, webhook
// receiver and dashboard need against the message log.
type MessageLogRepositoryInterface interface {
	Create(entry *model.MessageLog) error
	GetByID(id int) (*model.MessageLog, error)
	ListByProviderID(providerID string) ([]*model.MessageLog, error)
	List(offset, limit int, channel, status string) ([]*model.MessageLog, int, error)
	UpdateStatus(id int, status model.MessageStatus, deliveredAt *time.Time) error
	MarkRetried(id int, status model.MessageStatus, errorMessage string) error
	CountSentSince(channel model.Channel, since time.Time) (int, error)
	StatsSince(since time.Time) (map[string]int, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

type MessageLogRepository struct {
	DB *sql.DB
}

const messageLogColumns = `id, channel, direction, phone_number, content, status,
	provider_message_id, reference_doctype, reference_name, response_content,
	error_message, retry_count, device_id, sent_at, delivered_at, received_at, created_at`

func (r *MessageLogRepository) Create(entry *model.MessageLog) error {
	entry.CreatedAt = time.Now()
	if entry.Direction == "" {
		entry.Direction = model.DirectionOutbound
	}
	query := `
        INSERT INTO message_logs
            (channel, direction, phone_number, content, status, provider_message_id,
             reference_doctype, reference_name, response_content, error_message,
             retry_count, device_id, sent_at, delivered_at, received_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		entry.Channel, entry.Direction, entry.PhoneNumber, entry.Content, entry.Status,
		entry.ProviderMessageID, entry.ReferenceDoctype, entry.ReferenceName,
		entry.ResponseContent, entry.ErrorMessage, entry.RetryCount, entry.DeviceID,
		entry.SentAt, entry.DeliveredAt, entry.ReceivedAt, entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *MessageLogRepository) GetByID(id int) (*model.MessageLog, error) {
	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE id=$1`
	entry, err := scanMessageLog(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("message log", fmt.Sprint(id))
		}
		return nil, err
	}
	return entry, nil
}

func (r *MessageLogRepository) ListByProviderID(providerID string) ([]*model.MessageLog, error) {
	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE provider_message_id=$1`
	rows, err := r.DB.Query(query, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.MessageLog{}
	for rows.Next() {
		entry, err := scanMessageLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *MessageLogRepository) List(offset, limit int, channel, status string) ([]*model.MessageLog, int, error) {
	query := `SELECT ` + messageLogColumns + ` FROM message_logs WHERE 1=1`
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

	entries := []*model.MessageLog{}
	for rows.Next() {
		entry, err := scanMessageLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	countQuery := `SELECT COUNT(*) FROM message_logs WHERE 1=1`
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

	return entries, total, nil
}

func (r *MessageLogRepository) UpdateStatus(id int, status model.MessageStatus, deliveredAt *time.Time) error {
	if deliveredAt != nil {
		query := `UPDATE message_logs SET status=$1, delivered_at=$2 WHERE id=$3`
		_, err := r.DB.Exec(query, status, deliveredAt, id)
		return err
	}
	query := `UPDATE message_logs SET status=$1 WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

// MarkRetried records the outcome of a manual retry on a failed row.
func (r *MessageLogRepository) MarkRetried(id int, status model.MessageStatus, errorMessage string) error {
	query := `UPDATE message_logs SET status=$1, error_message=$2, retry_count=retry_count+1 WHERE id=$3`
	_, err := r.DB.Exec(query, status, errorMessage, id)
	return err
}

// CountSentSince is the rate-limit input: Sent/Delivered rows of one channel
// inside the trailing window. The count is derived, never cached.
func (r *MessageLogRepository) CountSentSince(channel model.Channel, since time.Time) (int, error) {
	query := `
        SELECT COUNT(*) FROM message_logs
        WHERE channel=$1 AND status IN ('Sent', 'Delivered') AND sent_at >= $2
    `
	var count int
	err := r.DB.QueryRow(query, channel, since).Scan(&count)
	return count, err
}

// StatsSince aggregates message counts for the dashboard widget.
func (r *MessageLogRepository) StatsSince(since time.Time) (map[string]int, error) {
	query := `
        SELECT channel, status, COUNT(*) FROM message_logs
        WHERE created_at >= $1
        GROUP BY channel, status
    `
	rows, err := r.DB.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "sms_sent": 0, "whatsapp_sent": 0, "failed": 0}
	for rows.Next() {
		var channel, status string
		var count int
		if err := rows.Scan(&channel, &status, &count); err != nil {
			return nil, err
		}
		stats["total"] += count
		switch {
		case status == "Failed":
			stats["failed"] += count
		case channel == "SMS" && (status == "Sent" || status == "Delivered"):
			stats["sms_sent"] += count
		case channel == "WhatsApp" && (status == "Sent" || status == "Delivered"):
			stats["whatsapp_sent"] += count
		}
	}
	return stats, rows.Err()
}

// DeleteOlderThan is the retention sweep.
func (r *MessageLogRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.DB.Exec(`DELETE FROM message_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessageLog(row rowScanner) (*model.MessageLog, error) {
	var entry model.MessageLog
	err := row.Scan(
		&entry.ID, &entry.Channel, &entry.Direction, &entry.PhoneNumber, &entry.Content,
		&entry.Status, &entry.ProviderMessageID, &entry.ReferenceDoctype, &entry.ReferenceName,
		&entry.ResponseContent, &entry.ErrorMessage, &entry.RetryCount, &entry.DeviceID,
		&entry.SentAt, &entry.DeliveredAt, &entry.ReceivedAt, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

var _ MessageLogRepositoryInterface = (*MessageLogRepository)(nil)
