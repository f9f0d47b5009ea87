// Package devices provides a PostgreSQL-backed repository for scanner
// devices and the owners they belong to.
package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
)

// PostgresRepository implements device storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOwner returns the owner with the given external id, or
// common.ErrorNotFound.
func (r *PostgresRepository) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	query := `SELECT id, owner_id, name, created_at FROM owners WHERE owner_id = $1`

	owner := &models.Owner{}
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&owner.ID, &owner.OwnerID, &owner.Name, &owner.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return owner, nil
}

const deviceColumns = `id, device_id, name, owner_id, last_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var (
		d          models.Device
		name       sql.NullString
		ownerID    sql.NullString
		lastActive sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.DeviceID, &name, &ownerID, &lastActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Name = name.String
	d.OwnerID = ownerID.String
	if lastActive.Valid {
		t := lastActive.Time
		d.LastActive = &t
	}
	return &d, nil
}

// GetByDeviceID returns the device with the given external id, or
// common.ErrorNotFound.
func (r *PostgresRepository) GetByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = $1`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// Create inserts a device. A duplicate device id yields common.ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, device *models.Device) (*models.Device, error) {
	query := `
		INSERT INTO devices (device_id, name, owner_id, last_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	var lastActive sql.NullTime
	if device.LastActive != nil {
		lastActive = sql.NullTime{Time: *device.LastActive, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query, device.DeviceID, device.Name, device.OwnerID, lastActive).
		Scan(&device.ID, &device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return device, nil
}

// Touch stamps the device heartbeat. Last write wins.
func (r *PostgresRepository) Touch(ctx context.Context, deviceID string, at time.Time) error {
	query := `UPDATE devices SET last_active = $2, updated_at = $2 WHERE device_id = $1`

	res, err := r.db.ExecContext(ctx, query, deviceID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ListActiveSince returns devices whose heartbeat is later than since,
// most recent first.
func (r *PostgresRepository) ListActiveSince(ctx context.Context, since time.Time) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE last_active > $1
		ORDER BY last_active DESC`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to select devices: %w", err)
	}
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
