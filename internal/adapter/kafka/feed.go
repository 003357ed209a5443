// Package kafka is the alternate change-feed driver, for deployments where
// the record table is fronted by a CDC relay that republishes the table's
// change envelopes to a topic. Event payloads are canonical change-event
// JSON: {"type":"insert"|"update"|"delete","record":{...}}.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/quakewatch/eq-records/internal/config"
	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/observability"
)

// Feed consumes change events from the CDC topic. It satisfies the same
// subscription contract as the Postgres driver: events until Close, then a
// closed channel, and Close races harmlessly with in-flight deliveries.
type Feed struct {
	reader *kafkago.Reader
	events chan domain.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	logger  *slog.Logger
	metrics *observability.Metrics
}

// Subscribe creates a consumer for the configured feed topic and starts
// delivering events.
func Subscribe(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Feed {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaFeedTopic,
		GroupID: cfg.KafkaGroupID,
	})

	feedCtx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		reader:  reader,
		events:  make(chan domain.ChangeEvent, 64),
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}

	go f.run(feedCtx)
	return f
}

// Events returns the channel change events are delivered on. It is closed
// on teardown.
func (f *Feed) Events() <-chan domain.ChangeEvent {
	return f.events
}

// Close tears the subscription down and waits for the consume loop to exit.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.cancel()
		<-f.done
		if err := f.reader.Close(); err != nil {
			f.logger.Warn("kafka feed reader close failed", "error", err)
		}
	})
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.events)

	f.metrics.FeedConnected.Set(1)
	defer f.metrics.FeedConnected.Set(0)

	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error("change feed read failed", "error", err)
			return
		}

		event, err := decodeMessage(msg.Value)
		if err != nil {
			// A poison message must not wedge the feed.
			f.logger.Warn("skipping undecodable feed message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			continue
		}
		f.metrics.FeedEvents.WithLabelValues(string(event.Type)).Inc()

		select {
		case f.events <- event:
		case <-ctx.Done():
			return
		}
	}
}

// decodeMessage parses one CDC payload into a change event.
func decodeMessage(value []byte) (domain.ChangeEvent, error) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	switch event.Type {
	case domain.ChangeInsert, domain.ChangeUpdate, domain.ChangeDelete:
	default:
		return domain.ChangeEvent{}, fmt.Errorf("unknown change type %q", event.Type)
	}
	if event.Record.ID == "" {
		return domain.ChangeEvent{}, fmt.Errorf("change event missing record id")
	}
	return event, nil
}
