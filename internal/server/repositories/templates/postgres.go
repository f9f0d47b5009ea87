// Package templates persists grading templates fetched from the remote
// authority. An entry is created once, filled once, and never changed again.
package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the entry for templateID, filled or pending, or
// common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, templateID string) (*models.Template, error) {
	query := `
		SELECT id, template_id, page_count, template_json, created_at, updated_at
		FROM scan_templates WHERE template_id = $1
	`
	var (
		t       models.Template
		content []byte
	)
	err := r.db.QueryRowContext(ctx, query, templateID).
		Scan(&t.ID, &t.TemplateID, &t.PageCount, &content, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Content = content
	return &t, nil
}

// Create inserts a pending entry. When another caller got there first the
// unique key on template_id rejects the insert and common.ErrAlreadyExists
// is returned.
func (r *PostgresRepository) Create(ctx context.Context, templateID string) (*models.Template, error) {
	query := `
		INSERT INTO scan_templates (template_id, page_count)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`
	t := &models.Template{TemplateID: templateID, PageCount: common.DefaultTemplatePages}
	err := r.db.QueryRowContext(ctx, query, templateID, t.PageCount).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Fill stores content into a pending entry. It reports false when the entry
// was already filled by someone else.
func (r *PostgresRepository) Fill(ctx context.Context, templateID string, content json.RawMessage, pageCount int) (bool, error) {
	query := `
		UPDATE scan_templates
		SET template_json = $2, page_count = $3, updated_at = now()
		WHERE template_id = $1 AND template_json IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, templateID, string(content), pageCount)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
