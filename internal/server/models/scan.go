// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/json"
	"time"
)

// Side identifies which face(s) of a physical sheet a scan covers.
type Side string

const (
	SideUnresolved Side = ""
	SideA          Side = "A"
	SideB          Side = "B"
	SideC          Side = "C"
	SideD          Side = "D"
	SideAB         Side = "AB"
)

// Pending reports whether the side still takes part in pairing.
func (s Side) Pending() bool {
	return s == SideA || s == SideB
}

// PageSlot holds the file references for one side of a sheet.
type PageSlot struct {
	Name       string
	LocalPath  string
	RemotePath string
}

// Empty reports whether the slot has never been filled.
func (p PageSlot) Empty() bool {
	return p.Name == "" && p.LocalPath == ""
}

// Scan is one uploaded page, or a merged front/back pair (Side == SideAB).
type Scan struct {
	ID         int64
	DeviceID   int64
	Status     ScanStatus
	TemplateID string
	ExamID     string
	Side       Side
	Reverted   bool

	// PageName and PageFilePath point at the composite image once merged.
	PageName       string
	PageFilePath   string
	PageRemotePath string

	// TmpFileName and TmpFilePath form the provisional slot. Both are
	// cleared when the page is merged into its pair.
	TmpFileName string
	TmpFilePath string

	FileA PageSlot
	FileB PageSlot

	ScannerJSON json.RawMessage
	ResultJSON  json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Provisional reports whether the scan still waits for its sibling.
func (s *Scan) Provisional() bool {
	return s.TmpFileName != "" && s.Side.Pending()
}

// MergedScan is the outcome of pairing two pages. Front and Back are
// snapshots of the page records as they were before the merge; Survivor is
// the persisted record carrying both sides.
type MergedScan struct {
	Survivor      Scan
	Front         Scan
	Back          Scan
	CompositePath string
	CompositeName string
}
