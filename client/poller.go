package client

import (
	"context"
	"time"

	"hospital-portal/models"
)

// Fetcher reads the current queue state.
type Fetcher interface {
	Status(ctx context.Context) (models.QueueStatus, error)
}

// Poller fetches state on a fixed interval and hands it to OnState.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	onState  func(models.QueueStatus)
	onError  func(error)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithErrorHandler receives fetch failures. Polling continues after them;
// the portal answers transient failures with 500s that are safe to retry.
func WithErrorHandler(fn func(error)) PollerOption {
	return func(p *Poller) { p.onError = fn }
}

// NewPoller returns a Poller calling onState with every fetched state.
func NewPoller(f Fetcher, onState func(models.QueueStatus), opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:  f,
		interval: DefaultPollInterval,
		onState:  onState,
		onError:  func(error) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is done, fetching once immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	status, err := p.fetcher.Status(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.onError(err)
		}
		return
	}
	p.onState(status)
}
