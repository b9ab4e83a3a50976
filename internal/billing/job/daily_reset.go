// Package job runs the service's periodic maintenance work.
package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ServiceZone is the timezone the daily quiz quota follows.
const ServiceZone = "Asia/Tokyo"

// Resetter zeroes the daily quota of every user not yet reset for date.
type Resetter interface {
	ResetDailyQuizCounts(ctx context.Context, date string) (int64, error)
}

// DailyReset periodically resets daily quiz quotas when the service day
// changes. Resetting is idempotent per day, so running it on every tick and
// from the on-demand endpoint is safe.
type DailyReset struct {
	mu       sync.RWMutex
	store    Resetter
	loc      *time.Location
	now      func() time.Time
	interval time.Duration
	logger   *slog.Logger
	lastDate string
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDailyReset(store Resetter, logger *slog.Logger) *DailyReset {
	return &DailyReset{
		store:    store,
		loc:      serviceLocation(),
		now:      time.Now,
		interval: 5 * time.Minute,
		logger:   logger,
	}
}

// serviceLocation falls back to a fixed UTC+9 zone when tzdata is missing.
func serviceLocation() *time.Location {
	loc, err := time.LoadLocation(ServiceZone)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// Today is the current service day as YYYY-MM-DD.
func (d *DailyReset) Today() string {
	return d.now().In(d.loc).Format(time.DateOnly)
}

// ResetNow resets quotas for the current service day.
func (d *DailyReset) ResetNow(ctx context.Context) (string, int64, error) {
	date := d.Today()
	n, err := d.store.ResetDailyQuizCounts(ctx, date)
	if err != nil {
		return date, 0, err
	}

	d.mu.Lock()
	d.lastDate = date
	d.mu.Unlock()

	d.logger.Info("daily quiz count reset", "date", date, "users", n)
	return date, n, nil
}

// Start runs a reset immediately and then whenever the service day changes.
func (d *DailyReset) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		d.tick(ctx)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the loop and waits for a running reset to finish.
func (d *DailyReset) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (d *DailyReset) tick(ctx context.Context) {
	d.mu.RLock()
	last := d.lastDate
	d.mu.RUnlock()

	if last == d.Today() {
		return
	}
	if _, _, err := d.ResetNow(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("daily quiz count reset", "error", err)
	}
}
