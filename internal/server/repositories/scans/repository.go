package scans

import (
	"context"

	"github.com/dmitrijs2005/sheetscan/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, scan *models.Scan) (*models.Scan, error)
	GetByID(ctx context.Context, id int64) (*models.Scan, error)
	FindByTmpName(ctx context.Context, name string) (*models.Scan, error)
	UpdateMatch(ctx context.Context, scan *models.Scan) error
	LockPending(ctx context.Context, names ...string) ([]*models.Scan, error)
	SaveMerged(ctx context.Context, scan *models.Scan) error
	Delete(ctx context.Context, id int64) error
	AdvanceStatus(ctx context.Context, id int64, from, to models.ScanStatus) error
	SetRemotePaths(ctx context.Context, id int64, a, b, page string) error
}
