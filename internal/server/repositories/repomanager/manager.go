package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/apps"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/devices"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/scans"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/templates"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Devices(db dbx.DBTX) devices.Repository
	Scans(db dbx.DBTX) scans.Repository
	Templates(db dbx.DBTX) templates.Repository
	Apps(db dbx.DBTX) apps.Repository
}
