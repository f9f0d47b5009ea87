package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/apps"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/devices"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/scans"
)

// memScans is an in-memory scans.Repository. A single mutex stands in for
// row locks.
type memScans struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Scan
}

func newMemScans() *memScans { return &memScans{rows: map[int64]*models.Scan{}} }

func (m *memScans) Create(_ context.Context, s *models.Scan) (*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.rows[s.ID] = &cp
	return s, nil
}

func (m *memScans) GetByID(_ context.Context, id int64) (*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memScans) sorted() []*models.Scan {
	out := make([]*models.Scan, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memScans) FindByTmpName(_ context.Context, name string) (*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Scan
	for _, s := range m.sorted() {
		if s.TmpFileName != name || !s.Side.Pending() {
			continue
		}
		if found == nil || (found.TemplateID == "" && s.TemplateID != "") {
			found = s
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *memScans) UpdateMatch(_ context.Context, s *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[s.ID]
	if !ok {
		return common.ErrorNotFound
	}
	row.Side, row.TemplateID, row.ExamID, row.Reverted = s.Side, s.TemplateID, s.ExamID, s.Reverted
	row.DeviceID, row.TmpFilePath, row.ScannerJSON = s.DeviceID, s.TmpFilePath, s.ScannerJSON
	return nil
}

func (m *memScans) LockPending(_ context.Context, names ...string) ([]*models.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Scan
	for _, s := range m.sorted() {
		if !s.Side.Pending() {
			continue
		}
		for _, n := range names {
			if s.TmpFileName == n {
				cp := *s
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (m *memScans) SaveMerged(_ context.Context, s *models.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[s.ID]
	if !ok || row.TmpFileName == "" {
		return common.ErrNotMergeable
	}
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memScans) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memScans) AdvanceStatus(_ context.Context, id int64, from, to models.ScanStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != from {
		return common.ErrStatusConflict
	}
	row.Status = to
	return nil
}

func (m *memScans) SetRemotePaths(_ context.Context, id int64, a, b, page string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	row.FileA.RemotePath, row.FileB.RemotePath, row.PageRemotePath = a, b, page
	return nil
}

func (m *memScans) all() []models.Scan {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Scan
	for _, s := range m.sorted() {
		out = append(out, *s)
	}
	return out
}

type memDevices struct {
	devices.Repository

	mu      sync.Mutex
	owners  map[string]*models.Owner
	devices map[string]*models.Device
	touches int
	since   time.Time
}

func newMemDevices() *memDevices {
	return &memDevices{
		owners:  map[string]*models.Owner{"school-1": {ID: 1, OwnerID: "school-1", Name: "North High"}},
		devices: map[string]*models.Device{},
	}
}

func (m *memDevices) GetOwner(_ context.Context, id string) (*models.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return o, nil
}

func (m *memDevices) GetByDeviceID(_ context.Context, id string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDevices) Create(_ context.Context, d *models.Device) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.DeviceID]; ok {
		return nil, common.ErrAlreadyExists
	}
	d.ID = int64(len(m.devices) + 1)
	cp := *d
	m.devices[d.DeviceID] = &cp
	return d, nil
}

func (m *memDevices) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return common.ErrorNotFound
	}
	d.LastActive = &at
	m.touches++
	return nil
}

func (m *memDevices) ListActiveSince(_ context.Context, since time.Time) ([]*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	var out []*models.Device
	for _, d := range m.devices {
		if d.LastActive != nil && d.LastActive.After(since) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubApps struct {
	app *models.ScannerApp
	err error
}

func (s stubApps) Latest(context.Context) (*models.ScannerApp, error) { return s.app, s.err }

type memRepos struct {
	repomanager.RepositoryManager
	scans   *memScans
	devices *memDevices
	apps    apps.Repository
}

func newMemRepos() *memRepos {
	return &memRepos{scans: newMemScans(), devices: newMemDevices()}
}

func (m *memRepos) Scans(dbx.DBTX) scans.Repository     { return m.scans }
func (m *memRepos) Devices(dbx.DBTX) devices.Repository { return m.devices }
func (m *memRepos) Apps(dbx.DBTX) apps.Repository       { return m.apps }

// racingRepos swaps in a different devices repository.
type racingRepos struct {
	*memRepos
	devices devices.Repository
}

func (r *racingRepos) Devices(dbx.DBTX) devices.Repository { return r.devices }

type staleRepos struct {
	*memRepos
}

func (r *staleRepos) Scans(dbx.DBTX) scans.Repository { return staleScans{r.memRepos.scans} }
