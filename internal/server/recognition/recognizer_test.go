package recognition

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRecognizer(t *testing.T) {
	var buf bytes.Buffer
	r := LogRecognizer{Log: logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))}

	err := r.Recognize(context.Background(), Job{ScanID: 9, TemplateID: "examTPL42", CompositePath: "/m/1_2.jpg", Template: []byte(`{}`)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "scan_id=9")
	assert.Contains(t, buf.String(), "composite=/m/1_2.jpg")
}
