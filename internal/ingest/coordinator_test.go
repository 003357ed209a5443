package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/quakewatch/eq-records/internal/blob"
	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/ingest"
	"github.com/quakewatch/eq-records/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mixedCSV is the canonical partial-failure file: rows 2 and 4 are valid,
// rows 3, 5 and 6 each violate a distinct rule.
const mixedCSV = "date,magnitude,location,depth,latitude,longitude,description\n" +
	",5.0,Somewhere,10,45,90,missing date\n" +
	"2024-03-15,5.4,Mindanao,33.1,7.19,125.45,valid\n" +
	"2024-03-15,strong,Luzon,10,16.1,120.6,bad magnitude\n" +
	"2024-03-16,4.1,Visayas,12,10.5,123.9,valid\n" +
	"2024-03-17,5.0,Palawan,15,95,118.7,bad latitude\n"

type fakeStore struct {
	created []domain.Record
	failOn  map[string]error // keyed by record location
}

func (f *fakeStore) Create(_ context.Context, rec domain.Record) (domain.Record, error) {
	if err := f.failOn[rec.Location]; err != nil {
		return domain.Record{}, err
	}
	rec.ID = "id-" + rec.Location
	f.created = append(f.created, rec)
	return rec, nil
}

type failingBlobs struct{ err error }

func (f *failingBlobs) Upload(context.Context, string, []byte, string) (blob.Location, error) {
	return blob.Location{}, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newIngestor(t *testing.T, blobs blob.Store, store ingest.RecordCreator) *ingest.Ingestor {
	t.Helper()
	return ingest.New(blobs, store, "earthquake-bucket", discardLogger(), observability.NewMetricsForTesting())
}

func TestIngest_PartialFailure(t *testing.T) {
	store := &fakeStore{}
	blobs := blob.NewMemory()

	outcome, err := newIngestor(t, blobs, store).Ingest(context.Background(), "quakes.csv", []byte(mixedCSV))
	require.NoError(t, err)

	assert.Equal(t, 5, outcome.TotalRows)
	assert.Equal(t, 2, outcome.ValidRows)
	assert.Equal(t, 2, outcome.CreatedCount)
	assert.Equal(t, 0, outcome.CreateFailures)

	expected := []ingest.RowError{
		{Row: 2, Reasons: []string{"Row 2: Missing required fields"}},
		{Row: 4, Reasons: []string{"Row 4: Invalid numeric values"}},
		{Row: 6, Reasons: []string{"Row 6: Latitude must be between -90 and 90"}},
	}
	if diff := cmp.Diff(expected, outcome.ErrorRows); diff != "" {
		t.Errorf("error rows mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, store.created, 2, "exactly one create per valid row")
	assert.Equal(t, "Mindanao", store.created[0].Location)
	assert.Equal(t, "Visayas", store.created[1].Location)
	for _, rec := range store.created {
		assert.Equal(t, domain.SourceCSVUpload, rec.Source)
	}
}

func TestIngest_RejectsNonCSVBeforeAnySideEffect(t *testing.T) {
	store := &fakeStore{}
	blobs := blob.NewMemory()

	_, err := newIngestor(t, blobs, store).Ingest(context.Background(), "quakes.xlsx", []byte(mixedCSV))

	require.ErrorIs(t, err, ingest.ErrNotCSV)
	assert.Zero(t, blobs.Len(), "storage must not be touched")
	assert.Empty(t, store.created)
}

func TestIngest_StorageFailureIsFatal(t *testing.T) {
	store := &fakeStore{}
	blobs := &failingBlobs{err: errors.New("bucket unreachable")}

	outcome, err := newIngestor(t, blobs, store).Ingest(context.Background(), "quakes.csv", []byte(mixedCSV))

	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Contains(t, err.Error(), "upload raw file")
	assert.Empty(t, store.created, "no persistence after a storage failure")
}

func TestIngest_ParseFailureKeepsUpload(t *testing.T) {
	store := &fakeStore{}
	blobs := blob.NewMemory()

	outcome, err := newIngestor(t, blobs, store).Ingest(context.Background(), "broken.csv", []byte("date,location\n\"unterminated\n"))

	var parseErr *ingest.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Nil(t, outcome)
	assert.Equal(t, 1, blobs.Len(), "the raw upload stays for manual inspection")
	assert.Empty(t, store.created)
}

func TestIngest_CreateFailuresAreCountedNotFatal(t *testing.T) {
	store := &fakeStore{failOn: map[string]error{
		"Mindanao": errors.New("constraint violation"),
	}}
	blobs := blob.NewMemory()

	outcome, err := newIngestor(t, blobs, store).Ingest(context.Background(), "quakes.csv", []byte(mixedCSV))
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.ValidRows)
	assert.Equal(t, 1, outcome.CreatedCount)
	assert.Equal(t, 1, outcome.CreateFailures)
	require.Len(t, store.created, 1)
	assert.Equal(t, "Visayas", store.created[0].Location)
}

func TestIngest_AllRowsFailedStillYieldsOutcome(t *testing.T) {
	csv := "date,magnitude,location,depth,latitude,longitude\n" +
		",,Unnamed,,,\n" +
		"2024-03-15,5.0,Somewhere,10,45,200\n"
	store := &fakeStore{}

	outcome, err := newIngestor(t, blob.NewMemory(), store).Ingest(context.Background(), "bad.csv", []byte(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.TotalRows)
	assert.Equal(t, 0, outcome.ValidRows)
	assert.Len(t, outcome.ErrorRows, 2)
	assert.Zero(t, outcome.CreatedCount)
	assert.Empty(t, store.created)
}

func TestIngest_StorageKeyIsTimePrefixed(t *testing.T) {
	frozen := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	ingest.SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { ingest.SetClock(nil) })

	blobs := blob.NewMemory()
	outcome, err := newIngestor(t, blobs, &fakeStore{}).Ingest(context.Background(), "nested/dir/quakes.csv", []byte(mixedCSV))
	require.NoError(t, err)

	wantKey := "earthquake-bucket/1710504000000_quakes.csv"
	assert.Equal(t, wantKey, outcome.Storage.Path)
	_, ok := blobs.Get(wantKey)
	assert.True(t, ok)
}

func TestIngest_ExtensionCheckIsCaseInsensitive(t *testing.T) {
	outcome, err := newIngestor(t, blob.NewMemory(), &fakeStore{}).Ingest(context.Background(), "QUAKES.CSV", []byte(mixedCSV))
	require.NoError(t, err)
	assert.Equal(t, 5, outcome.TotalRows)
}
