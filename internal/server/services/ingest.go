package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/filex"
	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/dmitrijs2005/sheetscan/internal/server/matcher"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/observability"
	"github.com/dmitrijs2005/sheetscan/internal/server/pagekey"
	"github.com/dmitrijs2005/sheetscan/internal/server/recognition"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/scans"
)

const (
	InfoNoTemplate = "template not resolvable yet: front page or its code has not arrived"
	InfoDeferred   = "page stored, waiting for the other side of the sheet"
)

type Outcome int

const (
	OutcomeMerged Outcome = iota
	OutcomeDeferred
	OutcomeNoTemplate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMerged:
		return "merged"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeNoTemplate:
		return "no_template"
	}
	return "unknown"
}

// UploadRequest is one page as received from a device.
type UploadRequest struct {
	OwnerID  string
	DeviceID string
	FileName string
	File     io.Reader
	Sidecar  json.RawMessage
}

type IngestResult struct {
	Outcome Outcome
	// Info is the human readable message for informational outcomes.
	Info   string
	Scan   *models.Scan
	Merged *models.MergedScan
}

type DeviceToucher interface {
	Touch(ctx context.Context, ownerID, deviceID string, at time.Time) (*models.Device, error)
}

type PageMatcher interface {
	Match(ctx context.Context, u matcher.Upload) (matcher.Match, error)
}

type TemplateResolver interface {
	Resolve(ctx context.Context, templateID string) (*models.Template, error)
}

type PageMerger interface {
	TryMerge(ctx context.Context, rec *models.Scan) (*models.MergedScan, bool, error)
}

type IngestDeps struct {
	DB         dbx.DBTX
	Repos      repomanager.RepositoryManager
	MediaRoot  string
	Devices    DeviceToucher
	Matcher    PageMatcher
	Templates  TemplateResolver
	Merger     PageMerger
	Recognizer recognition.Recognizer
	Log        logging.Logger
}

// IngestService runs the upload pipeline for one page at a time.
type IngestService struct {
	IngestDeps
	now func() time.Time
}

func NewIngestService(deps IngestDeps) *IngestService {
	return &IngestService{IngestDeps: deps, now: time.Now}
}

type sidecar struct {
	QRCodeScanned      *bool   `json:"qr_code_scanned"`
	QRCodeScannedCamel *bool   `json:"qrCodeScanned"`
	QRCode             *string `json:"qr_code"`
	QRCodeCamel        *string `json:"qrCode"`
	Reverted           bool    `json:"reverted"`
}

// ParseSidecar reads the device metadata. Both snake_case and camelCase
// keys are accepted.
func ParseSidecar(raw json.RawMessage) (matcher.Meta, error) {
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return matcher.Meta{}, fmt.Errorf("%w: sidecar: %v", common.ErrorIncorrectPayload, err)
	}
	meta := matcher.Meta{Reverted: sc.Reverted}
	switch {
	case sc.QRCodeScanned != nil:
		meta.QRCodeScanned = *sc.QRCodeScanned
	case sc.QRCodeScannedCamel != nil:
		meta.QRCodeScanned = *sc.QRCodeScannedCamel
	}
	switch {
	case sc.QRCode != nil:
		meta.QRCode = *sc.QRCode
	case sc.QRCodeCamel != nil:
		meta.QRCode = *sc.QRCodeCamel
	}
	return meta, nil
}

// Ingest stores the page, matches it, resolves its template and merges it
// with its sibling when both sides are present. Soft states come back as a
// result with Outcome other than OutcomeMerged and a nil error.
func (s *IngestService) Ingest(ctx context.Context, req UploadRequest) (*IngestResult, error) {
	res, err := s.ingest(ctx, req)
	if err != nil {
		observability.RecordUpload("error")
		return nil, err
	}
	observability.RecordUpload(res.Outcome.String())
	return res, nil
}

func (s *IngestService) ingest(ctx context.Context, req UploadRequest) (*IngestResult, error) {
	if req.OwnerID == "" || req.DeviceID == "" {
		return nil, common.ErrMissingIdentifiers
	}
	if req.File == nil || req.FileName == "" {
		return nil, fmt.Errorf("%w: file is required", common.ErrorIncorrectPayload)
	}
	if len(req.Sidecar) == 0 {
		return nil, fmt.Errorf("%w: json sidecar is required", common.ErrorIncorrectPayload)
	}
	meta, err := ParseSidecar(req.Sidecar)
	if err != nil {
		return nil, err
	}

	fileName := filepath.Base(req.FileName)
	stem := pagekey.Stem(fileName)
	key, err := pagekey.Parse(stem)
	if err != nil {
		return nil, err
	}

	log := s.Log.With("page", stem, "device", req.DeviceID)

	device, err := s.Devices.Touch(ctx, req.OwnerID, req.DeviceID, s.now())
	if err != nil {
		return nil, err
	}

	path, err := s.store(key, filepath.Ext(fileName), req.File)
	if err != nil {
		return nil, err
	}

	repo := s.Repos.Scans(s.DB)
	scan, created, err := s.claim(ctx, repo, &models.Scan{
		DeviceID:    device.ID,
		Status:      models.StatusRecognizing,
		TmpFileName: stem,
		TmpFilePath: path,
		ScannerJSON: req.Sidecar,
	})
	if err != nil {
		return nil, err
	}

	if err := s.match(ctx, repo, scan, meta); err != nil {
		if created {
			if derr := repo.Delete(ctx, scan.ID); derr != nil {
				log.Warn(ctx, "failed to drop unmatched scan", "scan_id", scan.ID, "error", derr)
			}
		}
		return nil, err
	}
	log.Debug(ctx, "page matched", "scan_id", scan.ID, "side", scan.Side, "template_id", scan.TemplateID)

	tpl, err := s.Templates.Resolve(ctx, scan.TemplateID)
	if errors.Is(err, common.ErrNotResolvable) {
		return &IngestResult{Outcome: OutcomeNoTemplate, Info: InfoNoTemplate, Scan: scan}, nil
	}
	if err != nil {
		return nil, err
	}

	merged, ok, err := s.Merger.TryMerge(ctx, scan)
	if err != nil {
		return nil, fmt.Errorf("error merging pages: %w", err)
	}
	if !ok {
		return &IngestResult{Outcome: OutcomeDeferred, Info: InfoDeferred, Scan: scan}, nil
	}

	survivor := merged.Survivor
	err = s.Recognizer.Recognize(ctx, recognition.Job{
		ScanID:        survivor.ID,
		TemplateID:    survivor.TemplateID,
		ExamID:        survivor.ExamID,
		CompositePath: merged.CompositePath,
		Reverted:      survivor.Reverted,
		Template:      tpl.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("error handing off to recognition: %w", err)
	}
	return &IngestResult{Outcome: OutcomeMerged, Scan: &survivor, Merged: merged}, nil
}

// claim returns the page still waiting under the same provisional name, so a
// re-upload refreshes it in place, or creates a new record. created reports
// which of the two happened.
func (s *IngestService) claim(ctx context.Context, repo scans.Repository, page *models.Scan) (*models.Scan, bool, error) {
	existing, err := repo.FindByTmpName(ctx, page.TmpFileName)
	switch {
	case err == nil && existing.Provisional():
		existing.DeviceID = page.DeviceID
		existing.TmpFilePath = page.TmpFilePath
		existing.ScannerJSON = page.ScannerJSON
		return existing, false, nil
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		return nil, false, fmt.Errorf("error looking up scan: %w", err)
	}

	scan, err := repo.Create(ctx, page)
	if err != nil {
		return nil, false, fmt.Errorf("error creating scan: %w", err)
	}
	return scan, true, nil
}

func (s *IngestService) match(ctx context.Context, repo scans.Repository, scan *models.Scan, meta matcher.Meta) error {
	m, err := s.Matcher.Match(ctx, matcher.Upload{Name: scan.TmpFileName, ImagePath: scan.TmpFilePath, Meta: meta})
	if err != nil {
		return fmt.Errorf("error matching page: %w", err)
	}
	scan.Side, scan.TemplateID, scan.ExamID, scan.Reverted = m.Side, m.TemplateID, m.ExamID, m.Reverted
	if err := repo.UpdateMatch(ctx, scan); err != nil {
		return fmt.Errorf("error saving match: %w", err)
	}
	return nil
}

// store writes the raw page to <media>/img/<stem>/<digits><ext>.
func (s *IngestService) store(key pagekey.Key, ext string, r io.Reader) (string, error) {
	dir, err := filex.EnsureDir(s.MediaRoot, "img", key.String())
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, key.Suffix()+ext)
	if _, err := filex.SaveStream(path, r); err != nil {
		return "", fmt.Errorf("error storing upload: %w", err)
	}
	return path, nil
}
