// Package services contains server-side business logic: the upload
// pipeline, the device registry and the archive step.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/repomanager"
)

// DeviceService resolves scanners, records their heartbeat and lists the
// active ones.
type DeviceService struct {
	db           dbx.DBTX
	repomanager  repomanager.RepositoryManager
	activeWindow time.Duration
	now          func() time.Time
}

func NewDeviceService(db dbx.DBTX, m repomanager.RepositoryManager, activeWindow time.Duration) *DeviceService {
	return &DeviceService{
		db:           db,
		repomanager:  m,
		activeWindow: activeWindow,
		now:          time.Now,
	}
}

// Register returns the device, creating it under ownerID if it is new.
func (s *DeviceService) Register(ctx context.Context, ownerID, deviceID string) (*models.Device, error) {
	if ownerID == "" || deviceID == "" {
		return nil, common.ErrMissingIdentifiers
	}
	repo := s.repomanager.Devices(s.db)

	d, err := repo.GetByDeviceID(ctx, deviceID)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error getting device: %w", err)
	}

	owner, err := repo.GetOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("error getting owner: %w", err)
	}

	d, err = repo.Create(ctx, &models.Device{
		DeviceID: deviceID,
		OwnerID:  owner.OwnerID,
		Name:     owner.Name + " scanner",
	})
	if errors.Is(err, common.ErrAlreadyExists) {
		// Registered concurrently by another request.
		return repo.GetByDeviceID(ctx, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating device: %w", err)
	}
	return d, nil
}

// Touch registers the device if needed and stamps its heartbeat with at.
func (s *DeviceService) Touch(ctx context.Context, ownerID, deviceID string, at time.Time) (*models.Device, error) {
	d, err := s.Register(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}
	if err := s.repomanager.Devices(s.db).Touch(ctx, deviceID, at); err != nil {
		return nil, fmt.Errorf("error updating heartbeat: %w", err)
	}
	d.LastActive = &at
	return d, nil
}

// Active lists devices whose last upload falls inside the active window.
func (s *DeviceService) Active(ctx context.Context) ([]*models.Device, error) {
	since := s.now().Add(-s.activeWindow)
	devices, err := s.repomanager.Devices(s.db).ListActiveSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("error listing devices: %w", err)
	}
	return devices, nil
}
