package devices

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/server/models"
)

type Repository interface {
	GetOwner(ctx context.Context, ownerID string) (*models.Owner, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*models.Device, error)
	Create(ctx context.Context, device *models.Device) (*models.Device, error)
	Touch(ctx context.Context, deviceID string, at time.Time) error
	ListActiveSince(ctx context.Context, since time.Time) ([]*models.Device, error)
}
