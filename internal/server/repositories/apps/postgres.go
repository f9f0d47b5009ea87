// Package apps reads published scanner client releases.
package apps

import (
	"context"
	"database/sql"
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

// Latest returns the most recently published release, or common.ErrorNotFound.
func (r *PostgresRepository) Latest(ctx context.Context) (*models.ScannerApp, error) {
	query := `
		SELECT version_num, download_address, created_at
		FROM scanner_apps
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var (
		app     models.ScannerApp
		version sql.NullString
		url     sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query).Scan(&version, &url, &app.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	app.Version, app.DownloadURL = version.String, url.String
	return &app, nil
}
