// Package scans stores uploaded pages and merged sheets.
package scans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const scanColumns = `id, device_id, status, template_id, exam_id, side, reverted,
	page_name, page_file_path, page_remote_path, tmp_file_name, tmp_file_path,
	file_a_name, file_a_local_path, file_a_remote_path,
	file_b_name, file_b_local_path, file_b_remote_path,
	scanner_json, result_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (*models.Scan, error) {
	var (
		s      models.Scan
		status int64
		side   string
		str    [13]sql.NullString
		meta   []byte
		result []byte
	)
	err := row.Scan(
		&s.ID, &s.DeviceID, &status, &str[0], &str[1], &side, &s.Reverted,
		&str[2], &str[3], &str[4], &str[5], &str[6],
		&str[7], &str[8], &str[9],
		&str[10], &str[11], &str[12],
		&meta, &result, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = models.ScanStatus(status)
	s.ScannerJSON, s.ResultJSON = meta, result
	s.Side = models.Side(side)
	s.TemplateID, s.ExamID = str[0].String, str[1].String
	s.PageName, s.PageFilePath, s.PageRemotePath = str[2].String, str[3].String, str[4].String
	s.TmpFileName, s.TmpFilePath = str[5].String, str[6].String
	s.FileA = models.PageSlot{Name: str[7].String, LocalPath: str[8].String, RemotePath: str[9].String}
	s.FileB = models.PageSlot{Name: str[10].String, LocalPath: str[11].String, RemotePath: str[12].String}
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Create inserts a freshly uploaded page.
func (r *PostgresRepository) Create(ctx context.Context, scan *models.Scan) (*models.Scan, error) {
	query := `
		INSERT INTO scans (device_id, status, side, reverted, tmp_file_name, tmp_file_path, scanner_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		scan.DeviceID, int64(scan.Status), string(scan.Side), scan.Reverted,
		nullString(scan.TmpFileName), nullString(scan.TmpFilePath), nullJSON(scan.ScannerJSON),
	).Scan(&scan.ID, &scan.CreatedAt, &scan.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scan, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`

	s, err := scanScan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// FindByTmpName returns a page still waiting under the given provisional
// name, or common.ErrorNotFound. Pages that never got a side are skipped;
// among the rest one with a template wins, then the oldest.
func (r *PostgresRepository) FindByTmpName(ctx context.Context, name string) (*models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans
		WHERE tmp_file_name = $1 AND side IN ('A', 'B')
		ORDER BY template_id IS NULL, id
		LIMIT 1`

	s, err := scanScan(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// UpdateMatch persists the matcher's verdict together with the upload it
// was made on.
func (r *PostgresRepository) UpdateMatch(ctx context.Context, scan *models.Scan) error {
	query := `
		UPDATE scans
		SET side = $2, template_id = $3, exam_id = $4, reverted = $5,
			device_id = $6, tmp_file_path = $7, scanner_json = $8, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		scan.ID, string(scan.Side), nullString(scan.TemplateID), nullString(scan.ExamID), scan.Reverted,
		scan.DeviceID, nullString(scan.TmpFilePath), nullJSON(scan.ScannerJSON))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrorNotFound)
}

// LockPending selects pending A/B pages with any of the given provisional
// names and holds row locks on them until the surrounding transaction ends.
// Rows are locked in id order.
func (r *PostgresRepository) LockPending(ctx context.Context, names ...string) ([]*models.Scan, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ph := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = n
	}
	query := `SELECT ` + scanColumns + ` FROM scans
		WHERE tmp_file_name IN (` + strings.Join(ph, ", ") + `) AND side IN ('A', 'B')
		ORDER BY id
		FOR UPDATE`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock scans: %w", err)
	}
	defer rows.Close()

	var result []*models.Scan
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveMerged writes the survivor of a merge. The row must still be pending,
// otherwise common.ErrNotMergeable is returned.
func (r *PostgresRepository) SaveMerged(ctx context.Context, scan *models.Scan) error {
	query := `
		UPDATE scans SET
			side = $2, template_id = $3, exam_id = $4,
			page_name = $5, page_file_path = $6,
			tmp_file_name = NULL, tmp_file_path = NULL,
			file_a_name = $7, file_a_local_path = $8,
			file_b_name = $9, file_b_local_path = $10,
			updated_at = now()
		WHERE id = $1 AND tmp_file_name IS NOT NULL
	`
	res, err := r.db.ExecContext(ctx, query,
		scan.ID, string(scan.Side), nullString(scan.TemplateID), nullString(scan.ExamID),
		nullString(scan.PageName), nullString(scan.PageFilePath),
		nullString(scan.FileA.Name), nullString(scan.FileA.LocalPath),
		nullString(scan.FileB.Name), nullString(scan.FileB.LocalPath),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrNotMergeable)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrorNotFound)
}

// AdvanceStatus moves a scan from one status to another only if it is still
// in the expected one.
func (r *PostgresRepository) AdvanceStatus(ctx context.Context, id int64, from, to models.ScanStatus) error {
	query := `UPDATE scans SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, int64(from), int64(to))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrStatusConflict)
}

// SetRemotePaths records where the sheet's files live in object storage.
func (r *PostgresRepository) SetRemotePaths(ctx context.Context, id int64, a, b, page string) error {
	query := `
		UPDATE scans
		SET file_a_remote_path = $2, file_b_remote_path = $3, page_remote_path = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, nullString(a), nullString(b), nullString(page))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res, common.ErrorNotFound)
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return none
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
