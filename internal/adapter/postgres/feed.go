package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/observability"
)

// Subscription is a change-feed handle. Events arrive on Events until Close
// tears the subscription down; after that the channel is closed and no
// further events are delivered. Close is safe to call more than once and
// races harmlessly with in-flight notifications.
type Subscription struct {
	events chan domain.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Events returns the channel change events are delivered on. It is closed
// on teardown.
func (s *Subscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

// Close tears the subscription down and waits for the feed loop to exit.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Subscribe opens a dedicated connection, LISTENs on the record table's
// notification channel, and delivers decoded events until Close.
//
// Delivery is asynchronous relative to the CRUD call that caused a change:
// a caller's own create may return before or after the matching feed event
// arrives. Consumers get eventual consistency, nothing stronger.
func Subscribe(ctx context.Context, databaseURL, channel string, logger *slog.Logger, metrics *observability.Metrics) (*Subscription, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect change feed: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		events: make(chan domain.ChangeEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.events)
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = conn.Close(closeCtx)
		}()

		metrics.FeedConnected.Set(1)
		defer metrics.FeedConnected.Set(0)

		for {
			notification, err := conn.WaitForNotification(feedCtx)
			if err != nil {
				if feedCtx.Err() != nil {
					return
				}
				logger.Error("change feed connection lost", "error", err)
				return
			}

			event, err := decodeNotification(notification.Payload)
			if err != nil {
				logger.Warn("skipping undecodable feed payload", "error", err)
				continue
			}
			metrics.FeedEvents.WithLabelValues(string(event.Type)).Inc()

			select {
			case sub.events <- event:
			case <-feedCtx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// feedRecord mirrors the row_to_json column names the trigger emits.
type feedRecord struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	TS          time.Time `json:"ts"`
	Magnitude   float64   `json:"magnitude"`
	Location    string    `json:"location"`
	Depth       float64   `json:"depth"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

type feedPayload struct {
	Op     string     `json:"op"`
	Record feedRecord `json:"record"`
}

// decodeNotification maps a trigger envelope onto a domain change event.
func decodeNotification(payload string) (domain.ChangeEvent, error) {
	var p feedPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode feed payload: %w", err)
	}

	var changeType domain.ChangeType
	switch p.Op {
	case "INSERT":
		changeType = domain.ChangeInsert
	case "UPDATE":
		changeType = domain.ChangeUpdate
	case "DELETE":
		changeType = domain.ChangeDelete
	default:
		return domain.ChangeEvent{}, fmt.Errorf("unknown feed op %q", p.Op)
	}

	return domain.ChangeEvent{
		Type: changeType,
		Record: domain.Record{
			ID:          p.Record.ID,
			Date:        p.Record.Date,
			Timestamp:   p.Record.TS,
			Magnitude:   p.Record.Magnitude,
			Location:    p.Record.Location,
			Depth:       p.Record.Depth,
			Latitude:    p.Record.Latitude,
			Longitude:   p.Record.Longitude,
			Description: p.Record.Description,
			Source:      p.Record.Source,
			CreatedAt:   p.Record.CreatedAt,
		},
	}, nil
}
