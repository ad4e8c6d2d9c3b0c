package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher is the part of Service the refresher drives
type Publisher interface {
	Publish(ctx context.Context) ([]byte, error)
}

// Refresher republishes the feed on a fixed interval
type Refresher struct {
	publisher Publisher
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	once      sync.Once
}

// NewRefresher creates a refresher; it does nothing until Start
func NewRefresher(publisher Publisher, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		publisher: publisher,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start publishes once and then on every tick until ctx is done or Stop is
// called. Calling Start more than once has no effect.
func (r *Refresher) Start(ctx context.Context) {
	r.once.Do(func() {
		r.wg.Add(1)
		go r.loop(ctx)
	})
}

// Stop stops the loop and waits for an in-flight publish
func (r *Refresher) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *Refresher) refresh() {
	if _, err := r.publisher.Publish(r.ctx); err != nil {
		slog.Error("Scheduled publish failed", "error", err)
	}
}
