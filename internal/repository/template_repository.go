package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/flashchat/erp-messaging/internal/errors"
	"github.com/flashchat/erp-messaging/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(t *model.MessageTemplate) error
	Update(t *model.MessageTemplate) error
	GetByID(id int) (*model.MessageTemplate, error)
	GetByName(name string) (*model.MessageTemplate, error)
	List(offset, limit int) ([]*model.MessageTemplate, int, error)
	RecordUsage(id int) error
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, name, template_content, available_variables, category,
	usage_count, last_used, created_at`

func (r *TemplateRepository) Create(t *model.MessageTemplate) error {
	t.CreatedAt = time.Now()
	query := `
        INSERT INTO message_templates (name, template_content, available_variables, category, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		t.Name, t.TemplateContent, pq.Array(t.AvailableVariables), t.Category, t.CreatedAt,
	).Scan(&t.ID)
}

func (r *TemplateRepository) Update(t *model.MessageTemplate) error {
	query := `
        UPDATE message_templates
        SET name=$1, template_content=$2, available_variables=$3, category=$4
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, t.Name, t.TemplateContent, pq.Array(t.AvailableVariables), t.Category, t.ID)
	return err
}

func (r *TemplateRepository) GetByID(id int) (*model.MessageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE id=$1`
	t, err := scanTemplate(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("message template", fmt.Sprint(id))
		}
		return nil, err
	}
	return t, nil
}

func (r *TemplateRepository) GetByName(name string) (*model.MessageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE name=$1`
	t, err := scanTemplate(r.DB.QueryRow(query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("message template", name)
		}
		return nil, err
	}
	return t, nil
}

func (r *TemplateRepository) List(offset, limit int) ([]*model.MessageTemplate, int, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates ORDER BY name LIMIT $1 OFFSET $2`
	rows, err := r.DB.Query(query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	templates := []*model.MessageTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, t)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM message_templates`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return templates, total, nil
}

// RecordUsage bumps the usage counter atomically.
func (r *TemplateRepository) RecordUsage(id int) error {
	query := `UPDATE message_templates SET usage_count = usage_count + 1, last_used = NOW() WHERE id=$1`
	_, err := r.DB.Exec(query, id)
	return err
}

func scanTemplate(row rowScanner) (*model.MessageTemplate, error) {
	var t model.MessageTemplate
	err := row.Scan(
		&t.ID, &t.Name, &t.TemplateContent, pq.Array(&t.AvailableVariables),
		&t.Category, &t.UsageCount, &t.LastUsed, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
