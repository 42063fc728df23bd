package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hj91/node-nutrunner-open-library/internal/event"
)

func TestAppendWritesOneJSONLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	require.NoError(t, log.Append(Entry{Type: "connected"}))
	require.NoError(t, log.Append(Entry{Type: "commandFailed", MID: "0042", Message: "command failed"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	require.Equal(t, "commandFailed", e.Type)
	require.Equal(t, "0042", e.MID)
	require.False(t, e.Timestamp.IsZero())
}

func TestSubscribeRecordsConnectionAndCommandEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	bus := event.NewBus()
	Subscribe(bus, log)

	// Publish runs each handler on its own goroutine, so wait for each
	// entry to reach the file before publishing the next one; that keeps
	// the file order equal to the publish order checked below.
	lineCount := func() int {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0
		}
		return bytes.Count(data, []byte("\n"))
	}
	publishAndWait := func(e event.Event, wantLines int) {
		bus.Publish(e)
		require.Eventually(t, func() bool { return lineCount() == wantLines }, 2*time.Second, 5*time.Millisecond)
	}

	publishAndWait(event.Event{Type: event.Connected}, 1)
	publishAndWait(event.Event{Type: event.CommandFailed, MID: "0018", ErrorCode: 3, Message: "bad pset"}, 2)
	publishAndWait(event.Event{Type: event.AlarmEvent, AlarmNumber: "100", AlarmText: "E-STOP", AlarmSeverity: "critical"}, 3)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var entries []Entry
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 3)
	require.Equal(t, "connected", entries[0].Type)
	require.Equal(t, "0018", entries[1].MID)
	require.Equal(t, "alarm", entries[2].Type)
}
