package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hospital-portal/models"
)

// LockKey names the critical section every mutation runs under.
const LockKey = "active-queue"

// DefaultHistoryLimit bounds ListHistory when the caller asks for nothing specific.
const DefaultHistoryLimit = 50

// Service is the queue state machine. All mutations re-read the persisted
// session inside the critical section, authorize against it, then write a
// whole-value replacement.
type Service struct {
	store      Store
	locker     Locker
	notifier   Notifier
	logger     *slog.Logger
	now        Clock
	newID      func() string
	minDoctors int
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where committed states are published.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Service) { s.now = c }
}

// WithIDGenerator overrides how session and history ids are minted.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// WithMinDoctors sets the minimum roster size needed to start.
func WithMinDoctors(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minDoctors = n
		}
	}
}

// NewService returns a Service backed by store, serialized through locker.
func NewService(store Store, locker Locker, opts ...Option) *Service {
	s := &Service{
		store:      store,
		locker:     locker,
		logger:     slog.Default(),
		now:        time.Now,
		newID:      uuid.NewString,
		minDoctors: DefaultMinDoctors,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinDoctors reports the configured minimum roster size.
func (s *Service) MinDoctors() int { return s.minDoctors }

// Status returns the view every poller sees.
func (s *Service) Status(ctx context.Context) (models.QueueStatus, error) {
	active, err := s.store.ActiveSession(ctx)
	if err != nil {
		return models.QueueStatus{}, fmt.Errorf("load active session: %w", err)
	}
	return models.StatusOf(active, s.now()), nil
}

// View renders session the way Status would at this instant.
func (s *Service) View(session *models.ActiveSession) models.QueueStatus {
	return models.StatusOf(session, s.now())
}

// Draft returns the roster staged while idle, or an empty draft.
func (s *Service) Draft(ctx context.Context) (*models.RosterDraft, error) {
	d, err := s.store.Draft(ctx)
	if err != nil {
		return nil, fmt.Errorf("load draft roster: %w", err)
	}
	if d == nil {
		d = &models.RosterDraft{Doctors: []models.Participant{}}
	}
	return d, nil
}

// History lists finished sessions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.SessionHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	h, err := s.store.ListHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list session history: %w", err)
	}
	return h, nil
}

// Start moves Idle → Running, or replaces the running session with a fresh
// instance when the caller owns it or is an admin.
func (s *Service) Start(ctx context.Context, caller models.Identity, req StartRequest) (*models.ActiveSession, error) {
	var started *models.ActiveSession
	err := s.withLock(ctx, func(ctx context.Context) error {
		var err error
		started, err = s.start(ctx, caller, req)
		if err != nil {
			return err
		}
		s.publish(started)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

func (s *Service) start(ctx context.Context, caller models.Identity, req StartRequest) (*models.ActiveSession, error) {
	doctors, runnerName := req.Doctors, req.RunnerName
	if len(doctors) == 0 || runnerName == "" {
		draft, err := s.store.Draft(ctx)
		if err != nil {
			return nil, fmt.Errorf("load draft roster: %w", err)
		}
		if draft != nil {
			if len(doctors) == 0 {
				doctors = draft.Doctors
			}
			if runnerName == "" {
				runnerName = draft.RunnerName
			}
		}
	}
	if err := validateRoster(doctors, s.minDoctors); err != nil {
		return nil, err
	}
	if err := validateRunnerName(runnerName); err != nil {
		return nil, err
	}

	active, err := s.store.ActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	if !CanMutate(caller, active) {
		s.logger.Warn("queue start rejected, another runner owns the session",
			slog.String("caller", caller.ID),
			slog.String("runner", active.RunnerID),
		)
		return nil, ErrForbidden
	}

	session := newSession(s.newID(), caller, doctors, runnerName, s.now())
	if err := s.store.ReplaceActive(ctx, session); err != nil {
		return nil, fmt.Errorf("persist active session: %w", err)
	}

	attrs := []any{
		slog.String("session_id", session.ID),
		slog.String("runner", caller.ID),
		slog.Int("doctors", len(session.Doctors)),
	}
	if active != nil {
		attrs = append(attrs, slog.String("replaced", active.ID))
	}
	s.logger.Info("queue started", attrs...)
	return session, nil
}

// Advance moves the pointer one step in req.Direction.
func (s *Service) Advance(ctx context.Context, caller models.Identity, req AdvanceRequest) (*models.ActiveSession, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, caller, func(session *models.ActiveSession) (bool, error) {
		return step(session, int(req.Direction)), nil
	})
}

// EditRoster replaces the roster and/or runner name. While running only the
// runner or an admin may edit and the minimum roster size applies; while idle
// the edit is stored as the draft roster.
func (s *Service) EditRoster(ctx context.Context, caller models.Identity, req EditRosterRequest) (*models.ActiveSession, *models.RosterDraft, error) {
	if req.RunnerName != nil {
		if err := validateRunnerName(*req.RunnerName); err != nil {
			return nil, nil, err
		}
	}

	var (
		session *models.ActiveSession
		draft   *models.RosterDraft
	)
	err := s.withLock(ctx, func(ctx context.Context) error {
		active, err := s.store.ActiveSession(ctx)
		if err != nil {
			return fmt.Errorf("load active session: %w", err)
		}
		if active == nil {
			draft, err = s.editDraft(ctx, caller, req)
			return err
		}

		if !CanMutate(caller, active) {
			return s.forbidden(caller, active, "edit roster")
		}
		next := active.Clone()
		if req.Doctors != nil {
			if err := validateRoster(req.Doctors, s.minDoctors); err != nil {
				return err
			}
			replaceRoster(next, req.Doctors)
		}
		if req.RunnerName != nil {
			next.RunnerName = *req.RunnerName
		}
		next.LastUpdated = s.now()
		if err := s.store.UpdateActive(ctx, next); err != nil {
			return fmt.Errorf("persist active session: %w", err)
		}
		session = next
		s.publish(session)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if session != nil {
		s.logger.Info("queue roster edited",
			slog.String("session_id", session.ID),
			slog.String("by", caller.ID),
			slog.Int("doctors", len(session.Doctors)),
			slog.Int("index", session.CurrentIndex),
		)
	}
	return session, draft, nil
}

func (s *Service) editDraft(ctx context.Context, caller models.Identity, req EditRosterRequest) (*models.RosterDraft, error) {
	current, err := s.store.Draft(ctx)
	if err != nil {
		return nil, fmt.Errorf("load draft roster: %w", err)
	}
	draft := &models.RosterDraft{Doctors: []models.Participant{}}
	if current != nil {
		draft.Doctors = append(draft.Doctors, current.Doctors...)
		draft.RunnerName = current.RunnerName
	}
	if req.Doctors != nil {
		if err := validateParticipants(req.Doctors); err != nil {
			return nil, err
		}
		draft.Doctors = append([]models.Participant{}, req.Doctors...)
	}
	if req.RunnerName != nil {
		draft.RunnerName = *req.RunnerName
	}
	draft.UpdatedBy = caller.ID
	draft.UpdatedAt = s.now()
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("persist draft roster: %w", err)
	}
	return draft, nil
}

// StopResult reports what a stop removed.
type StopResult struct {
	DeletedCount int64
	History      *models.SessionHistory
}

// Stop ends the running session. Every running record is deleted, not just
// the one read, and a history entry is appended for the session that was seen.
func (s *Service) Stop(ctx context.Context, caller models.Identity, req StopRequest) (StopResult, error) {
	var res StopResult
	err := s.withLock(ctx, func(ctx context.Context) error {
		active, err := s.store.ActiveSession(ctx)
		if err != nil {
			return fmt.Errorf("load active session: %w", err)
		}
		if !CanMutate(caller, active) {
			return s.forbidden(caller, active, "stop")
		}

		deleted, err := s.store.DeleteRunning(ctx)
		if err != nil {
			return fmt.Errorf("delete running sessions: %w", err)
		}
		res.DeletedCount = deleted
		s.publish(nil)
		if active == nil {
			return nil
		}

		h := historyFor(s.newID(), active, caller, req.Cancelled, s.now())
		if err := s.store.AppendHistory(ctx, h); err != nil {
			// History is reporting only; the stop itself already happened.
			s.logger.Error("write session history failed",
				slog.String("session_id", active.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		res.History = h
		return nil
	})
	if err != nil {
		return StopResult{}, err
	}

	s.logger.Info("queue stopped",
		slog.String("by", caller.ID),
		slog.Int64("deleted", res.DeletedCount),
	)
	return res, nil
}

// Sync applies a runner's state push: it starts a session when idle and
// otherwise replaces the fields the request carries. A push carrying the
// StartTime of a session that is no longer running fails with ErrNotRunning.
func (s *Service) Sync(ctx context.Context, caller models.Identity, req SyncRequest) (*models.ActiveSession, error) {
	if err := req.validate(s.minDoctors); err != nil {
		return nil, err
	}

	var session *models.ActiveSession
	err := s.withLock(ctx, func(ctx context.Context) error {
		active, err := s.store.ActiveSession(ctx)
		if err != nil {
			return fmt.Errorf("load active session: %w", err)
		}
		if !req.targets(active) {
			return ErrNotRunning
		}
		if active == nil {
			start := StartRequest{Doctors: req.Doctors}
			if req.RunnerName != nil {
				start.RunnerName = *req.RunnerName
			}
			session, err = s.start(ctx, caller, start)
			if err != nil {
				return err
			}
			s.publish(session)
			return nil
		}

		if !CanMutate(caller, active) {
			return s.forbidden(caller, active, "sync")
		}
		next := active.Clone()
		if req.Doctors != nil {
			next.Doctors = append([]models.Participant(nil), req.Doctors...)
		}
		if req.CurrentIndex != nil {
			next.CurrentIndex = *req.CurrentIndex
		}
		if req.RunnerName != nil {
			next.RunnerName = *req.RunnerName
		}
		resetIfOutOfBounds(next)
		next.LastUpdated = s.now()
		if err := s.store.UpdateActive(ctx, next); err != nil {
			return fmt.Errorf("persist active session: %w", err)
		}
		session = next
		s.publish(session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// mutate runs fn against a copy of the running session and persists the copy
// when fn reports a change.
func (s *Service) mutate(ctx context.Context, caller models.Identity, fn func(*models.ActiveSession) (bool, error)) (*models.ActiveSession, error) {
	var (
		session *models.ActiveSession
		changed bool
	)
	err := s.withLock(ctx, func(ctx context.Context) error {
		active, err := s.store.ActiveSession(ctx)
		if err != nil {
			return fmt.Errorf("load active session: %w", err)
		}
		if active == nil {
			return ErrNotRunning
		}
		if !CanMutate(caller, active) {
			return s.forbidden(caller, active, "move pointer")
		}

		next := active.Clone()
		changed, err = fn(next)
		if err != nil {
			return err
		}
		if !changed {
			session = active
			return nil
		}
		next.LastUpdated = s.now()
		if err := s.store.UpdateActive(ctx, next); err != nil {
			return fmt.Errorf("persist active session: %w", err)
		}
		session = next
		s.publish(session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Debug("queue pointer moved",
			slog.String("session_id", session.ID),
			slog.Int("index", session.CurrentIndex),
		)
	}
	return session, nil
}

func (s *Service) withLock(ctx context.Context, fn func(context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, LockKey)
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", LockKey, err)
	}
	defer unlock()
	return fn(ctx)
}

func (s *Service) forbidden(caller models.Identity, active *models.ActiveSession, action string) error {
	s.logger.Warn("queue mutation rejected",
		slog.String("action", action),
		slog.String("caller", caller.ID),
		slog.String("runner", active.RunnerID),
	)
	return ErrForbidden
}

// publish must be called while holding the lock so viewers see commits in order.
func (s *Service) publish(session *models.ActiveSession) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(s.View(session))
}
