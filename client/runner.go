package client

import (
	"context"
	"sync"
	"time"

	"hospital-portal/models"
)

// Pusher sends the runner's state to the portal.
type Pusher interface {
	Push(ctx context.Context, u StatusUpdate) (models.QueueStatus, error)
}

// Runner is the controlling side of a running queue. It applies actions to
// local state immediately, pushes the result debounced, and filters polled
// states through a WriteGuard so its own optimistic changes are not reverted
// by stale echoes.
type Runner struct {
	pusher   Pusher
	guard    *WriteGuard
	debounce *Debouncer
	timeout  time.Duration
	onError  func(error)

	mu    sync.Mutex
	state models.QueueStatus
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithGrace sets the self-write suppression window.
func WithGrace(d time.Duration) RunnerOption {
	return func(r *Runner) { r.guard = NewWriteGuard(d) }
}

// WithDebounce sets how long pushes are held back to coalesce bursts.
func WithDebounce(d time.Duration) RunnerOption {
	return func(r *Runner) { r.debounce = NewDebouncer(d) }
}

// WithPushTimeout bounds each push.
func WithPushTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithPushErrorHandler receives rejected or failed pushes.
func WithPushErrorHandler(fn func(error)) RunnerOption {
	return func(r *Runner) { r.onError = fn }
}

// NewRunner returns a Runner starting from initial, usually the state
// returned by Start.
func NewRunner(p Pusher, initial models.QueueStatus, opts ...RunnerOption) *Runner {
	r := &Runner{
		pusher:   p,
		guard:    NewWriteGuard(DefaultGrace),
		debounce: NewDebouncer(DefaultDebounce),
		timeout:  10 * time.Second,
		onError:  func(error) {},
		state:    copyStatus(initial),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns a copy of the local state.
func (r *Runner) State() models.QueueStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyStatus(r.state)
}

// Advance moves the local pointer forward and schedules a push.
func (r *Runner) Advance() { r.move(1) }

// Retreat moves the local pointer back and schedules a push.
func (r *Runner) Retreat() { r.move(-1) }

func (r *Runner) move(delta int) {
	r.mu.Lock()
	n := len(r.state.Doctors)
	if !r.state.IsRunning || n == 0 {
		r.mu.Unlock()
		return
	}
	r.state.CurrentIndex = ((r.state.CurrentIndex+delta)%n + n) % n
	r.state.CurrentDoctor = currentOf(r.state)
	r.mu.Unlock()
	r.schedule()
}

// SetRoster replaces the local roster and schedules a push. The pointer goes
// back to 0 when it no longer fits, matching the portal.
func (r *Runner) SetRoster(doctors []models.Participant) {
	r.mu.Lock()
	r.state.Doctors = append([]models.Participant{}, doctors...)
	if r.state.CurrentIndex >= len(r.state.Doctors) {
		r.state.CurrentIndex = 0
	}
	r.state.CurrentDoctor = currentOf(r.state)
	r.mu.Unlock()
	r.schedule()
}

// Apply offers a polled state. It reports whether the state was taken.
func (r *Runner) Apply(remote models.QueueStatus) bool {
	if !r.guard.ShouldApply(remote) {
		return false
	}
	r.mu.Lock()
	r.state = copyStatus(remote)
	r.mu.Unlock()
	return true
}

// Flush pushes any pending change now.
func (r *Runner) Flush() { r.debounce.Flush() }

// Close discards any pending push.
func (r *Runner) Close() { r.debounce.Stop() }

func (r *Runner) schedule() {
	r.guard.MarkWrite()
	r.debounce.Do(r.push)
}

func (r *Runner) push() {
	r.mu.Lock()
	if !r.state.IsRunning {
		r.mu.Unlock()
		return
	}
	idx := r.state.CurrentIndex
	update := StatusUpdate{
		IsRunning:         true,
		CurrentQueueIndex: &idx,
		Doctors:           append([]models.Participant{}, r.state.Doctors...),
	}
	if r.state.RunnerName != "" {
		name := r.state.RunnerName
		update.RunnerName = &name
	}
	if r.state.StartTime != nil {
		start := *r.state.StartTime
		update.StartTime = &start
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	resp, err := r.pusher.Push(ctx, update)
	if err != nil {
		// Includes a push for a session stopped in the meantime. The next poll
		// shows the authoritative state.
		r.guard.Reset()
		r.onError(err)
		return
	}
	if resp.LastUpdated != nil {
		r.guard.Ack(*resp.LastUpdated)
	}
}

func currentOf(s models.QueueStatus) *models.Participant {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Doctors) {
		return nil
	}
	d := s.Doctors[s.CurrentIndex]
	return &d
}

func copyStatus(s models.QueueStatus) models.QueueStatus {
	s.Doctors = append([]models.Participant{}, s.Doctors...)
	if s.CurrentDoctor != nil {
		d := *s.CurrentDoctor
		s.CurrentDoctor = &d
	}
	return s
}
