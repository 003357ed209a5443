package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/observability"
)

type fakeLister struct {
	records []domain.Record
	err     error
}

func (f *fakeLister) List(_ context.Context) ([]domain.Record, error) {
	return f.records, f.err
}

type fakeFeed struct {
	events chan domain.ChangeEvent
	once   sync.Once
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan domain.ChangeEvent, 16)}
}

func (f *fakeFeed) Events() <-chan domain.ChangeEvent { return f.events }

func (f *fakeFeed) Close() {
	f.once.Do(func() { close(f.events) })
}

func testRecord(id, location string) domain.Record {
	return domain.Record{
		ID:        id,
		Date:      "2024-03-15",
		Timestamp: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Magnitude: 5.0,
		Location:  location,
		Depth:     10,
		Latitude:  -1.2,
		Longitude: 120.4,
		Source:    domain.SourceManual,
	}
}

func newTestView(t *testing.T, seed []domain.Record) (*View, *fakeFeed) {
	t.Helper()
	feed := newFakeFeed()
	view, err := New(context.Background(),
		&fakeLister{records: seed},
		feed,
		slog.New(slog.DiscardHandler),
		observability.NewMetricsForTesting(),
	)
	require.NoError(t, err)
	t.Cleanup(view.Close)
	return view, feed
}

func waitForRecords(t *testing.T, view *View, want []domain.Record) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cmp.Diff(want, view.Records()) == ""
	}, time.Second, 5*time.Millisecond,
		"view never converged, last diff:\n%s", cmp.Diff(want, view.Records()))
}

func TestView_SeedsFromLister(t *testing.T) {
	seed := []domain.Record{
		testRecord("r3", "Sulawesi"),
		testRecord("r2", "Maluku"),
		testRecord("r1", "Java"),
	}
	view, _ := newTestView(t, seed)

	assert.False(t, view.Loading())
	if diff := cmp.Diff(seed, view.Records()); diff != "" {
		t.Errorf("seeded records mismatch (-want +got):\n%s", diff)
	}
}

func TestView_SeedFailure(t *testing.T) {
	listErr := errors.New("connection refused")
	_, err := New(context.Background(),
		&fakeLister{err: listErr},
		newFakeFeed(),
		slog.New(slog.DiscardHandler),
		observability.NewMetricsForTesting(),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, listErr)
}

func TestView_InsertPrepends(t *testing.T) {
	seed := []domain.Record{testRecord("r1", "Java")}
	view, feed := newTestView(t, seed)

	fresh := testRecord("r2", "Maluku")
	feed.events <- domain.ChangeEvent{Type: domain.ChangeInsert, Record: fresh}

	waitForRecords(t, view, []domain.Record{fresh, seed[0]})
}

func TestView_DuplicateInsertIgnored(t *testing.T) {
	seed := []domain.Record{testRecord("r1", "Java")}
	view, feed := newTestView(t, seed)

	feed.events <- domain.ChangeEvent{Type: domain.ChangeInsert, Record: testRecord("r1", "Java again")}
	feed.events <- domain.ChangeEvent{Type: domain.ChangeInsert, Record: testRecord("r2", "Maluku")}

	waitForRecords(t, view, []domain.Record{testRecord("r2", "Maluku"), seed[0]})
}

func TestView_UpdateReplacesInPlace(t *testing.T) {
	seed := []domain.Record{
		testRecord("r2", "Maluku"),
		testRecord("r1", "Java"),
	}
	view, feed := newTestView(t, seed)

	revised := testRecord("r1", "Java Trench")
	revised.Magnitude = 6.1
	feed.events <- domain.ChangeEvent{Type: domain.ChangeUpdate, Record: revised}

	waitForRecords(t, view, []domain.Record{seed[0], revised})
}

func TestView_UpdateForUnseenRecordPrepends(t *testing.T) {
	seed := []domain.Record{testRecord("r1", "Java")}
	view, feed := newTestView(t, seed)

	unseen := testRecord("r9", "Banda Sea")
	feed.events <- domain.ChangeEvent{Type: domain.ChangeUpdate, Record: unseen}

	waitForRecords(t, view, []domain.Record{unseen, seed[0]})
}

func TestView_DeleteRemoves(t *testing.T) {
	seed := []domain.Record{
		testRecord("r3", "Sulawesi"),
		testRecord("r2", "Maluku"),
		testRecord("r1", "Java"),
	}
	view, feed := newTestView(t, seed)

	feed.events <- domain.ChangeEvent{Type: domain.ChangeDelete, Record: domain.Record{ID: "r2"}}

	waitForRecords(t, view, []domain.Record{seed[0], seed[2]})
}

func TestView_DeleteUnknownIDIsNoop(t *testing.T) {
	seed := []domain.Record{testRecord("r1", "Java")}
	view, feed := newTestView(t, seed)

	feed.events <- domain.ChangeEvent{Type: domain.ChangeDelete, Record: domain.Record{ID: "missing"}}
	feed.events <- domain.ChangeEvent{Type: domain.ChangeInsert, Record: testRecord("r2", "Maluku")}

	waitForRecords(t, view, []domain.Record{testRecord("r2", "Maluku"), seed[0]})
}

func TestView_RecordsReturnsSnapshot(t *testing.T) {
	seed := []domain.Record{testRecord("r1", "Java")}
	view, _ := newTestView(t, seed)

	snapshot := view.Records()
	snapshot[0].Location = "mutated"

	assert.Equal(t, "Java", view.Records()[0].Location)
}

func TestView_CloseKeepsLastSnapshot(t *testing.T) {
	seed := []domain.Record{testRecord("r1", "Java")}
	view, feed := newTestView(t, seed)

	fresh := testRecord("r2", "Maluku")
	feed.events <- domain.ChangeEvent{Type: domain.ChangeInsert, Record: fresh}
	waitForRecords(t, view, []domain.Record{fresh, seed[0]})

	view.Close()
	view.Close()

	if diff := cmp.Diff([]domain.Record{fresh, seed[0]}, view.Records()); diff != "" {
		t.Errorf("post-close snapshot mismatch (-want +got):\n%s", diff)
	}
}
