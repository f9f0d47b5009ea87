package apps

import (
	"context"

	"github.com/dmitrijs2005/sheetscan/internal/server/models"
)

type Repository interface {
	Latest(ctx context.Context) (*models.ScannerApp, error)
}
