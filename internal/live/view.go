// Package live maintains an in-memory projection of the record table,
// seeded from a full list and kept current by the change feed.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/observability"
)

// Lister loads the full record set, newest first.
type Lister interface {
	List(ctx context.Context) ([]domain.Record, error)
}

// Feed delivers record change events until closed.
type Feed interface {
	Events() <-chan domain.ChangeEvent
	Close()
}

// View is the synchronized projection. All methods are safe for concurrent
// use.
type View struct {
	mu      sync.RWMutex
	records []domain.Record
	loading bool

	feed    Feed
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New seeds the view from lister and starts applying feed events. The feed
// must already be subscribed when New is called so that changes landing
// during the initial load are not missed.
func New(ctx context.Context, lister Lister, feed Feed, logger *slog.Logger, metrics *observability.Metrics) (*View, error) {
	v := &View{
		loading: true,
		feed:    feed,
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}

	records, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed live view: %w", err)
	}

	v.mu.Lock()
	v.records = records
	v.loading = false
	v.mu.Unlock()
	metrics.LiveViewSize.Set(float64(len(records)))

	go v.run()
	return v, nil
}

// Records returns a snapshot of the current projection, newest first.
func (v *View) Records() []domain.Record {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Record, len(v.records))
	copy(out, v.records)
	return out
}

// Loading reports whether the initial load is still in flight.
func (v *View) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

// Close detaches the view from the feed and waits for the apply loop to
// drain. The last snapshot remains readable after Close.
func (v *View) Close() {
	v.once.Do(func() {
		v.feed.Close()
		<-v.done
	})
}

func (v *View) run() {
	defer close(v.done)
	for event := range v.feed.Events() {
		v.apply(event)
	}
}

func (v *View) apply(event domain.ChangeEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch event.Type {
	case domain.ChangeInsert:
		if v.indexOf(event.Record.ID) >= 0 {
			break
		}
		v.records = append([]domain.Record{event.Record}, v.records...)
	case domain.ChangeUpdate:
		if i := v.indexOf(event.Record.ID); i >= 0 {
			v.records[i] = event.Record
		} else {
			v.records = append([]domain.Record{event.Record}, v.records...)
		}
	case domain.ChangeDelete:
		if i := v.indexOf(event.Record.ID); i >= 0 {
			v.records = append(v.records[:i], v.records[i+1:]...)
		}
	default:
		v.logger.Warn("ignoring change event with unknown type", "type", event.Type)
		return
	}
	v.metrics.LiveViewSize.Set(float64(len(v.records)))
}

// indexOf requires v.mu held.
func (v *View) indexOf(id string) int {
	for i, r := range v.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
