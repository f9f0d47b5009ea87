// Package merger pairs the front and back pages of a sheet into one record
// with a composite image.
package merger

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/dmitrijs2005/sheetscan/internal/server/imaging"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/pagekey"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/scans"
)

// ComposeFunc writes the composite of two page images and returns its path.
type ComposeFunc func(frontPath, backPath string) (string, error)

type Merger struct {
	tx       dbx.TxFunc
	scansFor func(dbx.DBTX) scans.Repository
	compose  ComposeFunc
	log      logging.Logger
}

func New(tx dbx.TxFunc, scansFor func(dbx.DBTX) scans.Repository, log logging.Logger) *Merger {
	return &Merger{tx: tx, scansFor: scansFor, compose: imaging.Compose, log: log}
}

// TryMerge merges rec with its sibling page if both are waiting. It returns
// (nil, false, nil) when the sibling has not arrived yet, or when a
// concurrent request already merged the pair.
//
// Both rows are locked for the duration of the merge, so of two concurrent
// attempts on the same pair exactly one merges and the other defers.
func (m *Merger) TryMerge(ctx context.Context, rec *models.Scan) (*models.MergedScan, bool, error) {
	if rec == nil || !rec.Provisional() {
		return nil, false, common.ErrNotMergeable
	}
	key, err := pagekey.Parse(rec.TmpFileName)
	if err != nil {
		return nil, false, err
	}
	sib, err := key.Sibling()
	if err != nil {
		return nil, false, nil
	}

	frontName, backName := key.String(), sib.String()
	if !key.IsFront() {
		frontName, backName = backName, frontName
	}

	var merged *models.MergedScan
	err = m.tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := m.scansFor(tx)

		rows, err := repo.LockPending(ctx, frontName, backName)
		if err != nil {
			return err
		}
		front, back := pick(rows, frontName), pick(rows, backName)
		if front == nil || back == nil {
			return nil
		}

		out, err := m.compose(front.TmpFilePath, back.TmpFilePath)
		if err != nil {
			return fmt.Errorf("compose %s: %w", frontName, err)
		}

		survivor := *front
		survivor.Side = models.SideAB
		survivor.FileA = models.PageSlot{Name: front.TmpFileName, LocalPath: front.TmpFilePath}
		survivor.FileB = models.PageSlot{Name: back.TmpFileName, LocalPath: back.TmpFilePath}
		survivor.TmpFileName, survivor.TmpFilePath = "", ""
		survivor.PageFilePath = out
		survivor.PageName = filepath.Base(out)
		for _, r := range append([]*models.Scan{back}, rows...) {
			if survivor.TemplateID == "" {
				survivor.TemplateID = r.TemplateID
			}
			if survivor.ExamID == "" {
				survivor.ExamID = r.ExamID
			}
		}

		if err := repo.SaveMerged(ctx, &survivor); err != nil {
			return fmt.Errorf("save merged scan: %w", err)
		}
		if err := repo.Delete(ctx, back.ID); err != nil {
			return fmt.Errorf("delete back page: %w", err)
		}
		// Re-uploads of either side leave extra rows under the same names.
		for _, r := range rows {
			if r.ID == front.ID || r.ID == back.ID {
				continue
			}
			if err := repo.Delete(ctx, r.ID); err != nil {
				return fmt.Errorf("delete duplicate page %d: %w", r.ID, err)
			}
		}

		merged = &models.MergedScan{
			Survivor:      survivor,
			Front:         *front,
			Back:          *back,
			CompositePath: out,
			CompositeName: survivor.PageName,
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if merged == nil {
		m.log.Debug(ctx, "merge deferred", "page", rec.TmpFileName, "waiting_for", sib.String())
		return nil, false, nil
	}

	m.log.Info(ctx, "pages merged", "scan_id", merged.Survivor.ID, "front", frontName, "back", backName)
	return merged, true, nil
}

// pick returns the oldest row with the given provisional name.
func pick(rows []*models.Scan, name string) *models.Scan {
	for _, r := range rows {
		if r.TmpFileName == name {
			return r
		}
	}
	return nil
}
