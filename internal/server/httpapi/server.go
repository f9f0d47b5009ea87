// Package httpapi exposes the scan pipeline over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/observability"
	"github.com/dmitrijs2005/sheetscan/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Ingestor interface {
	Ingest(ctx context.Context, req services.UploadRequest) (*services.IngestResult, error)
}

type DeviceRegistry interface {
	Register(ctx context.Context, ownerID, deviceID string) (*models.Device, error)
	Active(ctx context.Context) ([]*models.Device, error)
}

type AppChecker interface {
	Latest(ctx context.Context) (*models.ScannerApp, error)
}

type StatusTracker interface {
	AdvanceStatus(ctx context.Context, id int64, to models.ScanStatus) (*models.Scan, error)
}

type Archiver interface {
	Archive(ctx context.Context, id int64) (*models.Scan, error)
}

// Services groups the collaborators the handlers call into.
type Services struct {
	Ingest   Ingestor
	Devices  DeviceRegistry
	Apps     AppChecker
	Scans    StatusTracker
	Archives Archiver
}

type Server struct {
	address         string
	shutdownTimeout time.Duration
	svc             Services
	logger          logging.Logger
	router          *gin.Engine
	started         time.Time
}

func NewServer(address string, shutdownTimeout time.Duration, svc Services, l logging.Logger) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		address:         address,
		shutdownTimeout: shutdownTimeout,
		svc:             svc,
		logger:          l.With("module", "http_server"),
		router:          gin.New(),
		started:         time.Now(),
	}
	s.router.Use(gin.Recovery())
	s.router.Use(observability.RequestLogger(s.logger))
	s.router.Use(observability.RequestMetricsMiddleware())
	s.routes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	school := r.Group("/schools/:owner/scanners/:device")
	school.POST("/upload", s.upload)
	school.POST("/update", s.updateDevice)

	r.GET("/scanners/active", s.activeDevices)
	r.GET("/check_app", s.checkApp)

	r.POST("/scans/:id/status", s.advanceStatus)
	r.POST("/scans/:id/archive", s.archive)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
