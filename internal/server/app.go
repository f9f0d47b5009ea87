// Package server wires the scan ingestion service together: storage,
// template resolution, the upload pipeline and the HTTP server. It also
// handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/dmitrijs2005/sheetscan/internal/server/authority"
	"github.com/dmitrijs2005/sheetscan/internal/server/config"
	"github.com/dmitrijs2005/sheetscan/internal/server/httpapi"
	"github.com/dmitrijs2005/sheetscan/internal/server/matcher"
	"github.com/dmitrijs2005/sheetscan/internal/server/merger"
	"github.com/dmitrijs2005/sheetscan/internal/server/observability"
	"github.com/dmitrijs2005/sheetscan/internal/server/recognition"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sheetscan/internal/server/services"
	"github.com/dmitrijs2005/sheetscan/internal/server/templatecache"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, logging.ParseLevel(c.LogLevel))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	templates := templatecache.New(
		rm.Templates(db),
		authority.NewClient(c.AuthorityURL, c.AuthorityTimeout, http.DefaultClient),
		logger.With("module", "template_cache"),
		templatecache.Options{
			Backoff: templatecache.Backoff{
				InitialDelay: c.TemplateBackoffInitial,
				Multiplier:   c.TemplateBackoffMultiplier,
				MaxDelay:     c.TemplateBackoffMax,
				Jitter:       true,
			},
			MaxWait:  c.TemplateMaxWait,
			Observer: observability.TemplateMetrics{},
		},
	)

	devices := services.NewDeviceService(db, rm, c.ActiveWindow)
	ingest := services.NewIngestService(services.IngestDeps{
		DB:         db,
		Repos:      rm,
		MediaRoot:  c.MediaRoot,
		Devices:    devices,
		Matcher:    matcher.New(matcher.QRDecoder{}, nil, rm.Scans(db), c.ExamMarker, logger.With("module", "matcher")),
		Templates:  templates,
		Merger:     merger.New(dbx.SQLTx(db), rm.Scans, logger.With("module", "merger")),
		Recognizer: recognition.LogRecognizer{Log: logger.With("module", "recognition")},
		Log:        logger.With("module", "ingest"),
	})

	srv := httpapi.NewServer(c.HTTPAddr, c.ShutdownTimeout, httpapi.Services{
		Ingest:   ingest,
		Devices:  devices,
		Apps:     services.NewAppService(db, rm),
		Scans:    services.NewScanService(db, rm),
		Archives: services.NewArchiveService(db, rm, c),
	}, logger)

	return &App{config: c, logger: logger, db: db, http: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "error closing database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
