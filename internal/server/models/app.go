package models

import "time"

// ScannerApp describes the latest scanner client release.
type ScannerApp struct {
	Version     string    `json:"version_num"`
	DownloadURL string    `json:"download_address"`
	CreatedAt   time.Time `json:"created"`
}
