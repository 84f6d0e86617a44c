package upload

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Default stall detection thresholds.
const (
	DefaultStallTimeout       = 30 * time.Second
	DefaultStallCheckInterval = 5 * time.Second
)

// ErrStalled is the cancellation cause for an upload whose progress stopped
// changing for longer than the stall timeout.
var ErrStalled = errors.New("upload timed out")

// WatchdogConfig holds the stall thresholds.
type WatchdogConfig struct {
	StallTimeout       time.Duration
	StallCheckInterval time.Duration
}

func (c WatchdogConfig) withDefaults() WatchdogConfig {
	if c.StallTimeout <= 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	if c.StallCheckInterval <= 0 {
		c.StallCheckInterval = DefaultStallCheckInterval
	}
	return c
}

// Watchdog cancels an in-flight upload when its progress value has not
// changed for StallTimeout. Repeating the same value does not count as
// progress.
type Watchdog struct {
	cfg    WatchdogConfig
	cancel context.CancelCauseFunc

	mu           sync.Mutex
	lastValue    int64
	lastChangeAt time.Time
	stopped      bool

	stalledCh chan struct{}
}

// NewWatchdog creates a Watchdog that calls cancel(ErrStalled) on a stall.
func NewWatchdog(cfg WatchdogConfig, cancel context.CancelCauseFunc) *Watchdog {
	return &Watchdog{
		cfg:          cfg.withDefaults(),
		cancel:       cancel,
		lastValue:    -1,
		lastChangeAt: time.Now(),
		stalledCh:    make(chan struct{}),
	}
}

// Start begins monitoring in a background goroutine. The goroutine exits
// when ctx is cancelled, Stop is called, or a stall is detected.
func (w *Watchdog) Start(ctx context.Context) {
	go w.monitor(ctx)
}

// Observe records a progress value. Only a changed value resets the timer.
func (w *Watchdog) Observe(value int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || value == w.lastValue {
		return
	}
	w.lastValue = value
	w.lastChangeAt = time.Now()
}

// Stalled returns a channel closed when a stall is detected.
func (w *Watchdog) Stalled() <-chan struct{} {
	return w.stalledCh
}

// Stop prevents the watchdog from firing.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

func (w *Watchdog) monitor(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.StallCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.stopped {
				w.mu.Unlock()
				return
			}
			if time.Since(w.lastChangeAt) >= w.cfg.StallTimeout {
				w.stopped = true
				close(w.stalledCh)
				w.mu.Unlock()
				w.cancel(ErrStalled)
				return
			}
			w.mu.Unlock()
		}
	}
}
