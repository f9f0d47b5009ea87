package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/sheetscan/internal/flagx"
	"github.com/dmitrijs2005/sheetscan/internal/timex"
)

// FileConfig mirrors Config for decoding config files. Durations accept
// strings such as "1s"; JSON files may also give integer nanoseconds.
type FileConfig struct {
	HTTPAddr                  string         `json:"http_addr" toml:"http_addr"`
	DatabaseDSN               string         `json:"database_dsn" toml:"database_dsn"`
	MediaRoot                 string         `json:"media_root" toml:"media_root"`
	LogLevel                  string         `json:"log_level" toml:"log_level"`
	AuthorityURL              string         `json:"authority_url" toml:"authority_url"`
	AuthorityTimeout          timex.Duration `json:"authority_timeout" toml:"authority_timeout"`
	TemplateMaxWait           timex.Duration `json:"template_max_wait" toml:"template_max_wait"`
	TemplateBackoffInitial    timex.Duration `json:"template_backoff_initial" toml:"template_backoff_initial"`
	TemplateBackoffMax        timex.Duration `json:"template_backoff_max" toml:"template_backoff_max"`
	TemplateBackoffMultiplier float64        `json:"template_backoff_multiplier" toml:"template_backoff_multiplier"`
	ActiveWindow              timex.Duration `json:"active_window" toml:"active_window"`
	ExamMarker                string         `json:"exam_marker" toml:"exam_marker"`
	ShutdownTimeout           timex.Duration `json:"shutdown_timeout" toml:"shutdown_timeout"`
	S3RootUser                string         `json:"s3_root_user" toml:"s3_root_user"`
	S3RootPassword            string         `json:"s3_root_password" toml:"s3_root_password"`
	S3Bucket                  string         `json:"s3_bucket" toml:"s3_bucket"`
	S3Region                  string         `json:"s3_region" toml:"s3_region"`
	S3BaseEndpoint            string         `json:"s3_base_endpoint" toml:"s3_base_endpoint"`
}

// parseFile overlays values from the file named by -c/-config. Files ending
// in .toml are decoded as TOML, anything else as JSON. Keys absent from the
// file keep their current value. An unreadable or invalid file panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.MediaRoot, c.MediaRoot)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.AuthorityURL, c.AuthorityURL)
	setDuration(&config.AuthorityTimeout, c.AuthorityTimeout)
	setDuration(&config.TemplateMaxWait, c.TemplateMaxWait)
	setDuration(&config.TemplateBackoffInitial, c.TemplateBackoffInitial)
	setDuration(&config.TemplateBackoffMax, c.TemplateBackoffMax)
	if c.TemplateBackoffMultiplier > 0 {
		config.TemplateBackoffMultiplier = c.TemplateBackoffMultiplier
	}
	setDuration(&config.ActiveWindow, c.ActiveWindow)
	setString(&config.ExamMarker, c.ExamMarker)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
