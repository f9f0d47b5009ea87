package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestor struct {
	res     *services.IngestResult
	err     error
	got     services.UploadRequest
	content string
}

func (f *fakeIngestor) Ingest(_ context.Context, req services.UploadRequest) (*services.IngestResult, error) {
	f.got = req
	if req.File != nil {
		b, _ := io.ReadAll(req.File)
		f.content = string(b)
	}
	return f.res, f.err
}

type fakeDevices struct {
	device *models.Device
	active []*models.Device
	err    error
}

func (f *fakeDevices) Register(_ context.Context, owner, device string) (*models.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Device{DeviceID: device, OwnerID: owner, Name: "North High scanner"}, nil
}

func (f *fakeDevices) Active(context.Context) ([]*models.Device, error) {
	return f.active, f.err
}

type fakeApps struct {
	app *models.ScannerApp
	err error
}

func (f fakeApps) Latest(context.Context) (*models.ScannerApp, error) { return f.app, f.err }

type fakeScans struct {
	err    error
	lastID int64
	lastTo models.ScanStatus
}

func (f *fakeScans) AdvanceStatus(_ context.Context, id int64, to models.ScanStatus) (*models.Scan, error) {
	f.lastID, f.lastTo = id, to
	if f.err != nil {
		return nil, f.err
	}
	return &models.Scan{ID: id, Status: to, Side: models.SideAB}, nil
}

func (f *fakeScans) Archive(_ context.Context, id int64) (*models.Scan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Scan{ID: id, Status: models.StatusSyncing, Side: models.SideAB, PageRemotePath: "scans/k/0001_0002.png"}, nil
}

type fixture struct {
	ingest  *fakeIngestor
	devices *fakeDevices
	scans   *fakeScans
	apps    fakeApps
}

func (f *fixture) server() *Server {
	return NewServer(":0", time.Second, Services{
		Ingest:   f.ingest,
		Devices:  f.devices,
		Apps:     f.apps,
		Scans:    f.scans,
		Archives: f.scans,
	}, logging.Nop())
}

func newFixture() *fixture {
	return &fixture{ingest: &fakeIngestor{}, devices: &fakeDevices{}, scans: &fakeScans{}}
}

func multipartBody(t *testing.T, fileName, content, sidecar string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("json", sidecar))
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(strings.TrimSpace(rr.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestUpload_Merged(t *testing.T) {
	f := newFixture()
	f.ingest.res = &services.IngestResult{Outcome: services.OutcomeMerged}

	body, ct := multipartBody(t, "examA_0002.jpg", "jpeg-bytes", `{"qr_code_scanned": false}`)
	req := httptest.NewRequest(http.MethodPost, "/schools/school-1/scanners/scanner-7/upload", body)
	req.Header.Set("Content-Type", ct)

	rr, got := do(t, f.server(), req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, got)

	assert.Equal(t, "school-1", f.ingest.got.OwnerID)
	assert.Equal(t, "scanner-7", f.ingest.got.DeviceID)
	assert.Equal(t, "examA_0002.jpg", f.ingest.got.FileName)
	assert.Equal(t, "jpeg-bytes", f.ingest.content)
	assert.JSONEq(t, `{"qr_code_scanned": false}`, string(f.ingest.got.Sidecar))
}

func TestUpload_InformationalOutcomes(t *testing.T) {
	for _, info := range []string{services.InfoDeferred, services.InfoNoTemplate} {
		f := newFixture()
		f.ingest.res = &services.IngestResult{Outcome: services.OutcomeDeferred, Info: info}

		body, ct := multipartBody(t, "sheet_0009.png", "x", `{}`)
		req := httptest.NewRequest(http.MethodPost, "/schools/s/scanners/d/upload", body)
		req.Header.Set("Content-Type", ct)

		rr, got := do(t, f.server(), req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, info, got["info"])
	}
}

func TestUpload_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{common.ErrMissingIdentifiers, http.StatusBadRequest},
		{common.ErrOwnerNotFound, http.StatusBadRequest},
		{fmt.Errorf("%w: sidecar", common.ErrorIncorrectPayload), http.StatusBadRequest},
		{fmt.Errorf("%w: \"cover\"", common.ErrInvalidPageName), http.StatusBadRequest},
		{common.ErrTemplateTimeout, http.StatusGatewayTimeout},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newFixture()
			f.ingest.err = tt.err

			body, ct := multipartBody(t, "a_0001.png", "x", `{}`)
			req := httptest.NewRequest(http.MethodPost, "/schools/s/scanners/d/upload", body)
			req.Header.Set("Content-Type", ct)

			rr, got := do(t, f.server(), req)
			assert.Equal(t, tt.status, rr.Code)
			require.Contains(t, got, "error")
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, common.ErrorInternal.Error(), got["error"])
			} else {
				assert.Equal(t, tt.err.Error(), got["error"])
			}
		})
	}
}

func TestUpload_WithoutFile(t *testing.T) {
	f := newFixture()
	f.ingest.err = common.ErrorIncorrectPayload

	body, ct := multipartBody(t, "", "", `{}`)
	req := httptest.NewRequest(http.MethodPost, "/schools/s/scanners/d/upload", body)
	req.Header.Set("Content-Type", ct)

	rr, _ := do(t, f.server(), req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Nil(t, f.ingest.got.File)
}

func TestUpdateDevice(t *testing.T) {
	f := newFixture()
	rr, got := do(t, f.server(), httptest.NewRequest(http.MethodPost, "/schools/school-1/scanners/scanner-7/update", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "scanner-7", got["device_id"])
	assert.Equal(t, "North High scanner", got["name"])

	f.devices.err = common.ErrOwnerNotFound
	rr, got = do(t, f.server(), httptest.NewRequest(http.MethodPost, "/schools/ghost/scanners/scanner-7/update", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, common.ErrOwnerNotFound.Error(), got["error"])
}

func TestActiveDevices(t *testing.T) {
	f := newFixture()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.devices.active = []*models.Device{{DeviceID: "a", LastActive: &at}, {DeviceID: "b", LastActive: &at}}

	rr := httptest.NewRecorder()
	f.server().Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/scanners/active", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []deviceView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].DeviceID)

	f.devices.active = nil
	rr = httptest.NewRecorder()
	f.server().Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/scanners/active", nil))
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestCheckApp(t *testing.T) {
	f := newFixture()
	rr, got := do(t, f.server(), httptest.NewRequest(http.MethodGet, "/check_app", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, got)

	f.apps.app = &models.ScannerApp{Version: "1.4.0", DownloadURL: "https://example.org/app.apk"}
	rr, got = do(t, f.server(), httptest.NewRequest(http.MethodGet, "/check_app", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1.4.0", got["version_num"])
	assert.Equal(t, "https://example.org/app.apk", got["download_address"])
}

func TestAdvanceStatus(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/scans/12/status", strings.NewReader(`{"status": 1}`))
	req.Header.Set("Content-Type", "application/json")

	rr, got := do(t, f.server(), req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "uploading", got["status"])
	assert.EqualValues(t, 12, f.scans.lastID)
	assert.Equal(t, models.StatusUploading, f.scans.lastTo)
}

func TestAdvanceStatus_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		err    error
		status int
	}{
		{"bad id", "/scans/abc/status", `{"status": 1}`, nil, http.StatusBadRequest},
		{"missing status", "/scans/1/status", `{}`, nil, http.StatusBadRequest},
		{"unknown status", "/scans/1/status", `{"status": 7}`, nil, http.StatusConflict},
		{"skip", "/scans/1/status", `{"status": 3}`, common.ErrInvalidTransition, http.StatusConflict},
		{"lost race", "/scans/1/status", `{"status": 2}`, common.ErrStatusConflict, http.StatusConflict},
		{"missing scan", "/scans/404/status", `{"status": 1}`, common.ErrorNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.scans.err = tt.err
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			rr, got := do(t, f.server(), req)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, got, "error")
		})
	}
}

func TestArchive(t *testing.T) {
	f := newFixture()
	rr, got := do(t, f.server(), httptest.NewRequest(http.MethodPost, "/scans/5/archive", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "syncing", got["status"])
	assert.Equal(t, "scans/k/0001_0002.png", got["page_remote_path"])

	f.scans.err = common.ErrNotMergeable
	rr, _ = do(t, f.server(), httptest.NewRequest(http.MethodPost, "/scans/5/archive", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newFixture().server()

	rr, got := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", got["status"])

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sheetscan_http_requests_total")
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", time.Second, Services{}, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
