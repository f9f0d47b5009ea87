package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/repomanager"
)

// ScanService exposes scan status changes to downstream collaborators.
type ScanService struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
}

func NewScanService(db dbx.DBTX, m repomanager.RepositoryManager) *ScanService {
	return &ScanService{db: db, repomanager: m}
}

func (s *ScanService) Get(ctx context.Context, id int64) (*models.Scan, error) {
	return s.repomanager.Scans(s.db).GetByID(ctx, id)
}

// AdvanceStatus moves scan id to the given status, which must be the strict
// successor of its current one.
func (s *ScanService) AdvanceStatus(ctx context.Context, id int64, to models.ScanStatus) (*models.Scan, error) {
	repo := s.repomanager.Scans(s.db)

	scan, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scan.Status.CanAdvanceTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", common.ErrInvalidTransition, scan.Status, to)
	}
	if err := repo.AdvanceStatus(ctx, id, scan.Status, to); err != nil {
		return nil, err
	}
	scan.Status = to
	return scan, nil
}
