// Package recognition hands finished sheets to the scoring pipeline.
package recognition

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/sheetscan/internal/logging"
)

// Job is everything the recognizer needs for one sheet.
type Job struct {
	ScanID        int64
	TemplateID    string
	ExamID        string
	CompositePath string
	Reverted      bool
	Template      json.RawMessage
}

type Recognizer interface {
	Recognize(ctx context.Context, job Job) error
}

// LogRecognizer only records that a sheet is ready.
type LogRecognizer struct {
	Log logging.Logger
}

func (r LogRecognizer) Recognize(ctx context.Context, job Job) error {
	r.Log.Info(ctx, "sheet ready for recognition",
		"scan_id", job.ScanID,
		"template_id", job.TemplateID,
		"exam_id", job.ExamID,
		"composite", job.CompositePath,
		"template_bytes", len(job.Template),
	)
	return nil
}
