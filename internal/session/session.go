// Package session tracks the lifecycle of an observing session: the
// session-state record from spec.md section 3 and the persisted session
// log layout from section 6, grounded on the naming in
// original_source/nightwatch/orchestrator.py's SessionState/
// ObservingTarget/ObservationLogEntry.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Target is the currently acquired observing target, if any.
type Target struct {
	Name       string    `json:"name"`
	RA         float64   `json:"ra_hours"`
	Dec        float64   `json:"dec_degrees"`
	ObjectType string    `json:"object_type,omitempty"`
	CatalogID  string    `json:"catalog_id,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// State is a snapshot of a session's lifecycle state.
type State struct {
	ID                string     `json:"session_id"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           time.Time  `json:"ended_at,omitempty"`
	Observing         bool       `json:"-"`
	CurrentTarget     *Target    `json:"current_target,omitempty"`
	ImagesCaptured    int        `json:"images_captured"`
	TotalExposureSec  float64    `json:"total_exposure_sec"`
	ErrorCount        int        `json:"error_count"`
	LastError         string     `json:"last_error,omitempty"`
	Metrics           map[string]any `json:"metrics,omitempty"`
}

// Manager owns the single current session, if any, and persists session
// logs on safe shutdown or explicit end. Not revived once ended, per
// spec.md section 3's lifecycle rule.
type Manager struct {
	mu      sync.Mutex
	current *State
	dataDir string
}

// NewManager creates a session manager that persists logs under dataDir.
func NewManager(dataDir string) *Manager {
	return &Manager{dataDir: dataDir}
}

// Start begins a new session. If id is empty, a ULID is generated. Returns
// an error if a session is already in progress.
func (m *Manager) Start(id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return nil, fmt.Errorf("session: a session is already in progress (id=%s)", m.current.ID)
	}
	if id == "" {
		id = ulid.Make().String()
	}
	m.current = &State{
		ID:        id,
		StartedAt: time.Now(),
		Observing: true,
	}
	return m.snapshotLocked(), nil
}

// Current returns a snapshot of the current session, or nil if none.
func (m *Manager) Current() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() *State {
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// SetTarget records the acquired target for the current session.
func (m *Manager) SetTarget(t *Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.CurrentTarget = t
}

// RecordImage increments the image/exposure counters for the current
// session.
func (m *Manager) RecordImage(exposureSec float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.ImagesCaptured++
	m.current.TotalExposureSec += exposureSec
}

// RecordError increments the error counter and records the last error
// text for the current session.
func (m *Manager) RecordError(errText string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.ErrorCount++
	m.current.LastError = errText
}

// End closes the current session, persists its log, and clears it. Ending
// with no session in progress is a no-op returning (nil, nil).
func (m *Manager) End() (*State, error) {
	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return nil, nil
	}
	s.EndedAt = time.Now()
	s.Observing = false
	snap := *s
	m.current = nil
	m.mu.Unlock()

	if err := m.persist(&snap); err != nil {
		return &snap, err
	}
	return &snap, nil
}

// persist writes the session log to <data_dir>/session_<id>.json per
// spec.md section 6's persisted-state layout.
func (m *Manager) persist(s *State) error {
	if m.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return fmt.Errorf("session: create data dir: %w", err)
	}
	path := filepath.Join(m.dataDir, fmt.Sprintf("session_%s.json", s.ID))
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write log: %w", err)
	}
	return nil
}
