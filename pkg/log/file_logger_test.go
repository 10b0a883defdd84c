package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wslog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "log file was not created")
}

func TestFileLoggerBadPath(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "dir", "x.wslog"))
	assert.Error(t, err)
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wslog")

	for _, id := range []string{"conn-1", "conn-2"} {
		logger, err := NewFileLogger(path)
		require.NoError(t, err)
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: id, Layer: LayerTransport})
		assert.Equal(t, uint64(1), logger.Written())
		require.NoError(t, logger.Close())
	}

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	events, err := reader.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-1", "conn-2"}, connIDs(events))
}

func TestFileLoggerThreadSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wslog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	const numGoroutines = 10
	const eventsPerGoroutine = 100

	var wg sync.WaitGroup
	for i := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for range eventsPerGoroutine {
				logger.Log(Event{
					Timestamp:    time.Now(),
					ConnectionID: fmt.Sprintf("conn-%d", id),
					Frame:        &FrameEvent{Size: 3, Data: []byte{1, 2, 3}},
				})
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, logger.Close())

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	events, err := reader.All()
	require.NoError(t, err, "interleaved writes corrupted the stream")
	assert.Len(t, events, numGoroutines*eventsPerGoroutine)
}

func TestFileLoggerClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wslog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	logger.Log(Event{ConnectionID: "conn-123"})

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close(), "double close")

	// Logging after close is ignored.
	logger.Log(Event{ConnectionID: "conn-456"})
	assert.Equal(t, uint64(1), logger.Written())
}

func TestWriterLoggerSurvivesRotation(t *testing.T) {
	dir := t.TempDir()
	rotating := &lumberjack.Logger{Filename: filepath.Join(dir, "proto.wslog")}

	logger := NewWriterLogger(rotating)
	logger.Log(Event{ConnectionID: "before"})
	require.NoError(t, rotating.Rotate())
	logger.Log(Event{ConnectionID: "after"})
	require.NoError(t, logger.Close())

	files, err := filepath.Glob(filepath.Join(dir, "proto*.wslog"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	var all []string
	for _, f := range files {
		reader, err := NewReader(f)
		require.NoError(t, err)
		events, err := reader.All()
		reader.Close()
		require.NoError(t, err, "each rotated file decodes on its own")
		all = append(all, connIDs(events)...)
	}
	assert.ElementsMatch(t, []string{"before", "after"}, all)
}

func TestFileLoggerInterfaceSatisfaction(t *testing.T) {
	var _ Logger = (*FileLogger)(nil)
}
