package models

import "time"

// Owner is the organisation (school) a scanning device belongs to.
type Owner struct {
	ID        int64
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// Device is a registered scanner. LastActive is the upload heartbeat.
type Device struct {
	ID         int64
	DeviceID   string
	Name       string
	OwnerID    string
	LastActive *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActiveAt reports whether the device uploaded within window before now.
func (d *Device) ActiveAt(now time.Time, window time.Duration) bool {
	if d.LastActive == nil {
		return false
	}
	return now.Sub(*d.LastActive) <= window
}
