package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/repomanager"
)

type AppService struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
}

func NewAppService(db dbx.DBTX, m repomanager.RepositoryManager) *AppService {
	return &AppService{db: db, repomanager: m}
}

// Latest returns the newest scanner client release, or nil when none has
// been published.
func (s *AppService) Latest(ctx context.Context) (*models.ScannerApp, error) {
	app, err := s.repomanager.Apps(s.db).Latest(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return app, err
}
