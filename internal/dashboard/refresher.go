package dashboard

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/hawkfin/hawkd/internal/domain"
	"github.com/hawkfin/hawkd/internal/logging"
	"github.com/hawkfin/hawkd/internal/store"
)

// PositionSource supplies the position snapshot the aggregator reduces.
type PositionSource interface {
	Snapshot(currencyFilter string) ([]domain.Position, error)
}

// PublishFunc receives every freshly computed snapshot, typically to
// fan it out to gateway subscribers.
type PublishFunc func(*Metrics)

// Refresher keeps the dashboard snapshot current. A recompute runs on
// position change notifications, on the cron schedule, and on filter
// changes. Every recompute is full; no incremental state survives
// between refreshes.
type Refresher struct {
	agg       *Aggregator
	positions PositionSource
	notifier  *store.Notifier
	publish   PublishFunc
	log       *logging.Logger

	cron *cron.Cron

	mu     sync.RWMutex
	filter string
	latest *Metrics

	unsubscribe func()
}

// NewRefresher assembles a refresher. publish may be nil.
func NewRefresher(agg *Aggregator, positions PositionSource, notifier *store.Notifier,
	publish PublishFunc, log *logging.Logger) *Refresher {
	return &Refresher{
		agg:       agg,
		positions: positions,
		notifier:  notifier,
		publish:   publish,
		log:       log.Sub("dashboard.refresher"),
	}
}

// Start computes the initial snapshot, subscribes to position changes
// and schedules periodic recomputes with the given cron spec (empty
// disables the schedule).
func (r *Refresher) Start(cronSpec string) error {
	if _, err := r.Refresh(); err != nil {
		// The store may simply be empty or briefly unavailable; the
		// change subscription and schedule will catch up.
		r.log.Warn().Err(err).Msg("initial dashboard refresh failed")
	}

	if r.notifier != nil {
		r.unsubscribe = r.notifier.Subscribe(store.TablePositions, func(store.ChangeEvent) {
			if _, err := r.Refresh(); err != nil {
				r.log.Warn().Err(err).Msg("change-triggered refresh failed")
			}
		})
	}

	if cronSpec != "" {
		c := cron.New()
		if _, err := c.AddFunc(cronSpec, func() {
			if _, err := r.Refresh(); err != nil {
				r.log.Warn().Err(err).Msg("scheduled refresh failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", cronSpec, err)
		}
		c.Start()
		r.cron = c
	}
	return nil
}

// Stop cancels the schedule and the change subscription.
func (r *Refresher) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

// Refresh recomputes the snapshot from a fresh position read and
// publishes it. Read errors propagate so callers see "unknown" rather
// than stale-as-current.
func (r *Refresher) Refresh() (*Metrics, error) {
	r.mu.RLock()
	filter := r.filter
	r.mu.RUnlock()

	rows, err := r.positions.Snapshot(filter)
	if err != nil {
		return nil, fmt.Errorf("refreshing dashboard: %w", err)
	}
	m := r.agg.Compute(rows, filter)

	r.mu.Lock()
	r.latest = m
	r.mu.Unlock()

	if r.publish != nil {
		r.publish(m)
	}
	return m, nil
}

// SetFilter changes the currency filter and recomputes immediately.
func (r *Refresher) SetFilter(currency string) (*Metrics, error) {
	r.mu.Lock()
	r.filter = currency
	r.mu.Unlock()
	return r.Refresh()
}

// Latest returns the most recent snapshot, or nil before the first
// successful refresh.
func (r *Refresher) Latest() *Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}
