package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func Test_parseFile_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	want := Config{
		HTTPAddr:                  ":9000",
		DatabaseDSN:               "postgres://db/scans",
		MediaRoot:                 "/srv/media",
		LogLevel:                  "warn",
		AuthorityURL:              "https://authority.example/",
		AuthorityTimeout:          3 * time.Second,
		TemplateMaxWait:           2 * time.Minute,
		TemplateBackoffInitial:    time.Second,
		TemplateBackoffMax:        30 * time.Second,
		TemplateBackoffMultiplier: 1.5,
		ActiveWindow:              5 * time.Minute,
		ExamMarker:                "EXAM",
		ShutdownTimeout:           20 * time.Second,
		S3RootUser:                "user",
		S3RootPassword:            "password",
		S3Bucket:                  "bucket",
		S3Region:                  "region",
		S3BaseEndpoint:            "base_endpoint",
	}

	t.Run("loads from json", func(t *testing.T) {
		path := writeTempFile(t, "cfg.json", `{
			"http_addr": ":9000",
			"database_dsn": "postgres://db/scans",
			"media_root": "/srv/media",
			"log_level": "warn",
			"authority_url": "https://authority.example/",
			"authority_timeout": "3s",
			"template_max_wait": "2m",
			"template_backoff_initial": 1000000000,
			"template_backoff_max": "30s",
			"template_backoff_multiplier": 1.5,
			"active_window": "5m",
			"exam_marker": "EXAM",
			"shutdown_timeout": "20s",
			"s3_root_user": "user",
			"s3_root_password": "password",
			"s3_bucket": "bucket",
			"s3_region": "region",
			"s3_base_endpoint": "base_endpoint"
		}`)
		os.Args = []string{"testbin", "-config", path}

		cfg := &Config{}
		parseFile(cfg)
		assert.Empty(t, cmp.Diff(want, *cfg))
	})

	t.Run("loads from toml", func(t *testing.T) {
		path := writeTempFile(t, "cfg.toml", `
http_addr = ":9000"
database_dsn = "postgres://db/scans"
media_root = "/srv/media"
log_level = "warn"
authority_url = "https://authority.example/"
authority_timeout = "3s"
template_max_wait = "2m"
template_backoff_initial = "1s"
template_backoff_max = "30s"
template_backoff_multiplier = 1.5
active_window = "5m"
exam_marker = "EXAM"
shutdown_timeout = "20s"
s3_root_user = "user"
s3_root_password = "password"
s3_bucket = "bucket"
s3_region = "region"
s3_base_endpoint = "base_endpoint"
`)
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		parseFile(cfg)
		assert.Empty(t, cmp.Diff(want, *cfg))
	})

	t.Run("absent keys keep current values", func(t *testing.T) {
		path := writeTempFile(t, "partial.json", `{"media_root": "/data"}`)
		os.Args = []string{"testbin", "-c", path}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFile(cfg)

		assert.Equal(t, "/data", cfg.MediaRoot)
		assert.Equal(t, ":8000", cfg.HTTPAddr)
		assert.Equal(t, 10*time.Minute, cfg.ActiveWindow)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{HTTPAddr: "defaults:1234"}
		parseFile(cfg)
		assert.Equal(t, "defaults:1234", cfg.HTTPAddr)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := writeTempFile(t, "bad.json", `{ this is not valid json`)
		os.Args = []string{"testbin", "-config", bad}
		require.Panics(t, func() { parseFile(&Config{}) })
	})

	t.Run("invalid TOML duration → panics", func(t *testing.T) {
		bad := writeTempFile(t, "bad.toml", `active_window = "sometimes"`)
		os.Args = []string{"testbin", "-c", bad}
		require.Panics(t, func() { parseFile(&Config{}) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(t.TempDir(), "absent.json")}
		require.Panics(t, func() { parseFile(&Config{}) })
	})
}
