package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
	"github.com/hawkfin/hawkd/internal/template"
)

// TemplateStore reads and writes prompt templates. The streaming core
// treats templates as read-only; writes exist for the UI's CRUD screens
// and for seeding.
type TemplateStore struct {
	db  *DB
	log *logging.Logger
}

// NewTemplateStore creates a template store using the given database.
func NewTemplateStore(db *DB) *TemplateStore {
	return &TemplateStore{db: db, log: db.log.Sub("templates")}
}

// List returns all templates, ordered by category then insertion order.
// Templates without stored input_fields get them derived from the
// prompt text.
func (s *TemplateStore) List() ([]domain.Template, error) {
	rows, err := s.db.sql.Query(`
		SELECT id, family_type, template_category, prompt_text, input_fields, usage_count, status
		FROM templates ORDER BY template_category, rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var t domain.Template
		var fields sql.NullString
		if err := rows.Scan(&t.ID, &t.FamilyType, &t.TemplateCategory, &t.PromptText,
			&fields, &t.UsageCount, &t.Status); err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		if fields.Valid && fields.String != "" {
			_ = json.Unmarshal([]byte(fields.String), &t.InputFields)
		}
		if len(t.InputFields) == 0 {
			t.InputFields = template.ExtractFields(t.PromptText)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// ListByCategory returns the templates of one category in stable order;
// the 1-based position within this slice is the template index used for
// success-rate statistics.
func (s *TemplateStore) ListByCategory(category string) ([]domain.Template, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []domain.Template
	for _, t := range all {
		if t.TemplateCategory == category {
			out = append(out, t)
		}
	}
	return out, nil
}

// Upsert inserts or replaces a template. A missing id gets generated.
func (s *TemplateStore) Upsert(t domain.Template) (domain.Template, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	var fields any
	if len(t.InputFields) > 0 {
		data, err := json.Marshal(t.InputFields)
		if err != nil {
			return t, fmt.Errorf("encoding input fields: %w", err)
		}
		fields = string(data)
	}

	_, err := s.db.sql.Exec(`
		INSERT INTO templates (id, family_type, template_category, prompt_text, input_fields, usage_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			family_type = excluded.family_type,
			template_category = excluded.template_category,
			prompt_text = excluded.prompt_text,
			input_fields = excluded.input_fields,
			status = excluded.status`,
		t.ID, t.FamilyType, t.TemplateCategory, t.PromptText, fields, t.UsageCount, t.Status)
	if err != nil {
		return t, fmt.Errorf("upserting template: %w", err)
	}

	s.db.notify.Publish(ChangeEvent{Table: TableTemplates, Op: OpUpdate, Key: t.ID})
	return t, nil
}

// IncrementUsage bumps a template's usage counter. Best-effort.
func (s *TemplateStore) IncrementUsage(id string) {
	_, err := s.db.sql.Exec(`UPDATE templates SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		s.log.Warn().Err(err).Str("template", id).Msg("usage count update failed")
	}
}
