// Package memory is an in-process queue.Store. Safe for concurrent access.
// Intended for tests, development and single-instance deployments that can
// lose state on restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"hospital-portal/models"
	"hospital-portal/queue"
)

var _ queue.Store = (*Store)(nil)

// Store keeps sessions in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	sessions map[string]*models.ActiveSession
	draft    *models.RosterDraft
	history  []models.SessionHistory
}

// New returns a new empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*models.ActiveSession)}
}

// ActiveSession returns the most recently updated running record.
func (m *Store) ActiveSession(_ context.Context) (*models.ActiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.ActiveSession
	for _, s := range m.sessions {
		if !s.IsRunning {
			continue
		}
		if latest == nil || s.LastUpdated.After(latest.LastUpdated) {
			latest = s
		}
	}
	return latest.Clone(), nil
}

// ReplaceActive deletes every running record and inserts s in one step.
func (m *Store) ReplaceActive(_ context.Context, s *models.ActiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteRunningLocked()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// UpdateActive overwrites the running record with s.ID.
func (m *Store) UpdateActive(_ context.Context, s *models.ActiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[s.ID]
	if !ok || !cur.IsRunning {
		return queue.ErrSessionNotFound
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// DeleteRunning removes every running record.
func (m *Store) DeleteRunning(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRunningLocked(), nil
}

func (m *Store) deleteRunningLocked() int64 {
	var n int64
	for id, s := range m.sessions {
		if s.IsRunning {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunningCount reports how many running records exist. Tests use it to check
// the singleton invariant.
func (m *Store) RunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.IsRunning {
			n++
		}
	}
	return n
}

// Draft returns the stored draft roster, or nil.
func (m *Store) Draft(_ context.Context) (*models.RosterDraft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.draft == nil {
		return nil, nil
	}
	d := *m.draft
	d.Doctors = append([]models.Participant{}, m.draft.Doctors...)
	return &d, nil
}

// SaveDraft overwrites the draft roster.
func (m *Store) SaveDraft(_ context.Context, d *models.RosterDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	cp.Doctors = append([]models.Participant{}, d.Doctors...)
	m.draft = &cp
	return nil
}

// AppendHistory records a finished session.
func (m *Store) AppendHistory(_ context.Context, h *models.SessionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	cp.Doctors = append([]models.Participant(nil), h.Doctors...)
	m.history = append(m.history, cp)
	return nil
}

// ListHistory returns up to limit entries ordered by end time, newest first.
func (m *Store) ListHistory(_ context.Context, limit int) ([]models.SessionHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SessionHistory, len(m.history))
	copy(out, m.history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndTime.After(out[j].EndTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
