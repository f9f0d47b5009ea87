package models

import "fmt"

// ScanStatus is the linear processing state of a scan. Values only move
// forward, one step at a time.
type ScanStatus int

const (
	StatusRecognizing ScanStatus = iota
	StatusUploading
	StatusSyncing
	StatusSynced
)

var statusNames = [...]string{
	StatusRecognizing: "recognizing",
	StatusUploading:   "uploading",
	StatusSyncing:     "syncing",
	StatusSynced:      "synced",
}

func (s ScanStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Valid reports whether s is one of the known states.
func (s ScanStatus) Valid() bool {
	return s >= StatusRecognizing && s <= StatusSynced
}

// Next returns the successor of s. The last state has none.
func (s ScanStatus) Next() (ScanStatus, bool) {
	if !s.Valid() || s == StatusSynced {
		return s, false
	}
	return s + 1, true
}

// CanAdvanceTo reports whether to is the strict successor of s.
func (s ScanStatus) CanAdvanceTo(to ScanStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}
