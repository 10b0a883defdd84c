package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wslog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())

	return path
}

func readFiltered(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	require.NoError(t, err)
	defer reader.Close()

	events, err := reader.All()
	require.NoError(t, err)
	return events
}

func connIDs(events []Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ConnectionID)
	}
	return ids
}

func TestReaderIteratesEvents(t *testing.T) {
	now := time.Now()
	path := createTestLogFile(t, []Event{
		{Timestamp: now, ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: now, ConnectionID: "conn-2", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: now, ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerConnection, Category: CategoryState},
	})

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		read = append(read, event)
	}

	assert.Equal(t, []string{"conn-1", "conn-2", "conn-3"}, connIDs(read))
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.wslog"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "conn-A", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			URL: "ws://a/ws", Message: &MessageEvent{Type: "greeting", Format: "JSON"}},
		{Timestamp: base.Add(10 * time.Minute), ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			URL: "ws://a/ws", Message: &MessageEvent{Type: "response", Format: "JSON"}},
		{Timestamp: base.Add(20 * time.Minute), ConnectionID: "conn-B", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryControl,
			URL: "ws://b/ws"},
		{Timestamp: base.Add(30 * time.Minute), ConnectionID: "conn-B", Direction: DirectionIn, Layer: LayerConnection, Category: CategoryState,
			URL: "ws://b/ws"},
	}
	path := createTestLogFile(t, events)

	in := DirectionIn
	wireLayer := LayerWire
	state := CategoryState
	start := base.Add(5 * time.Minute)
	end := base.Add(30 * time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"none", Filter{}, []string{"conn-A", "conn-A", "conn-B", "conn-B"}},
		{"connection", Filter{ConnectionID: "conn-B"}, []string{"conn-B", "conn-B"}},
		{"direction", Filter{Direction: &in}, []string{"conn-A", "conn-B", "conn-B"}},
		{"layer", Filter{Layer: &wireLayer}, []string{"conn-A", "conn-A"}},
		{"category", Filter{Category: &state}, []string{"conn-B"}},
		{"time range", Filter{TimeStart: &start, TimeEnd: &end}, []string{"conn-A", "conn-B"}},
		{"url", Filter{URL: "ws://a/ws"}, []string{"conn-A", "conn-A"}},
		{"message type", Filter{MessageType: "response"}, []string{"conn-A"}},
		{"combined", Filter{ConnectionID: "conn-A", Layer: &wireLayer, Direction: &in}, []string{"conn-A"}},
		{"no match", Filter{ConnectionID: "conn-Z"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connIDs(readFiltered(t, path, tt.filter)))
		})
	}
}
