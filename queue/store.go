package queue

import (
	"context"
	"time"

	"hospital-portal/models"
)

// Store persists the single active session, the draft roster and the
// append-only session history.
type Store interface {
	// ActiveSession returns the running session, or nil when idle.
	ActiveSession(ctx context.Context) (*models.ActiveSession, error)
	// ReplaceActive deletes every running record and inserts s.
	ReplaceActive(ctx context.Context, s *models.ActiveSession) error
	// UpdateActive overwrites the running record with the same ID as s.
	UpdateActive(ctx context.Context, s *models.ActiveSession) error
	// DeleteRunning removes every running record and reports how many went.
	DeleteRunning(ctx context.Context) (int64, error)

	Draft(ctx context.Context) (*models.RosterDraft, error)
	SaveDraft(ctx context.Context, d *models.RosterDraft) error

	AppendHistory(ctx context.Context, h *models.SessionHistory) error
	// ListHistory returns up to limit entries, newest first.
	ListHistory(ctx context.Context, limit int) ([]models.SessionHistory, error)
}

// Locker provides the single-writer critical section around mutations.
type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Notifier receives every state the service commits.
type Notifier interface {
	Publish(status models.QueueStatus)
}

// Clock returns the current time.
type Clock func() time.Time
