package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakewatch/eq-records/internal/domain"
)

func TestDecodeMessage_Insert(t *testing.T) {
	payload := []byte(`{
		"type": "insert",
		"record": {
			"id": "0b6f3c1e-8a1d-4f0e-9c43-1d2e5f6a7b8c",
			"date": "2024-03-15",
			"timestamp": "2024-03-15T12:00:00Z",
			"magnitude": 5.4,
			"location": "Sulawesi, Indonesia",
			"depth": 10.5,
			"latitude": -1.23,
			"longitude": 120.45,
			"description": "offshore",
			"source": "csv_upload",
			"created_at": "2024-03-15T12:00:01Z"
		}
	}`)

	event, err := decodeMessage(payload)
	require.NoError(t, err)

	assert.Equal(t, domain.ChangeInsert, event.Type)
	assert.Equal(t, "0b6f3c1e-8a1d-4f0e-9c43-1d2e5f6a7b8c", event.Record.ID)
	assert.Equal(t, "Sulawesi, Indonesia", event.Record.Location)
	assert.InDelta(t, 5.4, event.Record.Magnitude, 1e-9)
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), event.Record.Timestamp.UTC())
}

func TestDecodeMessage_DeleteCarriesOnlyID(t *testing.T) {
	payload := []byte(`{"type":"delete","record":{"id":"abc-123"}}`)

	event, err := decodeMessage(payload)
	require.NoError(t, err)

	assert.Equal(t, domain.ChangeDelete, event.Type)
	assert.Equal(t, "abc-123", event.Record.ID)
}

func TestDecodeMessage_UnknownType(t *testing.T) {
	_, err := decodeMessage([]byte(`{"type":"truncate","record":{"id":"abc"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown change type")
}

func TestDecodeMessage_MissingRecordID(t *testing.T) {
	_, err := decodeMessage([]byte(`{"type":"update","record":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing record id")
}

func TestDecodeMessage_BadJSON(t *testing.T) {
	_, err := decodeMessage([]byte(`{"type":`))
	require.Error(t, err)
}
