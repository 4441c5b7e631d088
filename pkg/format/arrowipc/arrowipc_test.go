package arrowipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhep/evconv/pkg/event"
	"github.com/openhep/evconv/pkg/format"
)

func makeEvents(n int) []event.Event {
	events := make([]event.Event, n)
	for i := range events {
		evt := &events[i]
		evt.FlightDistance = float64(i) * 1.5
		evt.VertexChi2 = float64(i) * 2.5
		for j := range evt.Candidates {
			base := float64(i*3 + j + 1)
			evt.Candidates[j] = event.KaonCandidate{
				PX:     base * 0.5,
				PY:     base * 1.5,
				PZ:     base * 2.5,
				ProbK:  1 / base,
				ProbPi: 1 - 1/base,
				Charge: j%2 == 1,
				IsMuon: (i+j)%3 == 0,
				IPChi2: base,
			}
		}
	}
	return events
}

func writeAll(t *testing.T, w format.Writer, path string, events []event.Event) {
	t.Helper()

	require.NoError(t, w.Open(path))
	for i := range events {
		require.NoError(t, w.WriteEvent(&events[i]))
	}
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, path string) []event.Event {
	t.Helper()

	r := NewReader()
	require.NoError(t, r.Open(path))
	defer func() { require.NoError(t, r.Close()) }()

	var out []event.Event
	var evt event.Event
	for {
		ok, err := r.NextEvent(&evt)
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, evt)
	}
	return out
}

func TestRowLayoutRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.arrow")
	events := makeEvents(7)
	writeAll(t, NewRowWriter(), path, events)

	got := readAll(t, path)
	require.Len(t, got, len(events))
	for i := range events {
		assert.True(t, events[i].Equal(&got[i]), "event %d", i)
	}
}

func TestColumnarLayoutRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.arrow")
	events := makeEvents(7)
	writeAll(t, NewColumnarWriter(), path, events)

	got := readAll(t, path)
	require.Len(t, got, len(events))
	for i := range events {
		assert.True(t, events[i].Equal(&got[i]), "event %d", i)
	}
}

func TestColumnarLockstep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.arrow")
	events := makeEvents(5)
	writeAll(t, NewColumnarWriter(), path, events)

	// Inspect the file at the IPC level: the columnar layout must hold
	// one batch whose every field array has exactly len(events) elements.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	defer fr.Close()

	require.Equal(t, 1, fr.NumRecords())
	rec, err := fr.Record(0)
	require.NoError(t, err)

	require.Equal(t, int64(event.NumFlatColumns), rec.NumCols())
	for i := 0; i < int(rec.NumCols()); i++ {
		assert.Equal(t, len(events), rec.Column(i).Len(), "column %s", event.FlatColumns[i])
	}
}

func TestRowLayoutBatchPerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.arrow")
	events := makeEvents(4)
	writeAll(t, NewRowWriter(), path, events)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	defer fr.Close()

	assert.Equal(t, len(events), fr.NumRecords())
}

func TestEmptyColumnarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.arrow")
	writeAll(t, NewColumnarWriter(), path, nil)

	got := readAll(t, path)
	assert.Empty(t, got)
}

func TestExhaustion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.arrow")
	events := makeEvents(2)
	writeAll(t, NewRowWriter(), path, events)

	r := NewReader()
	require.NoError(t, r.Open(path))
	defer func() { require.NoError(t, r.Close()) }()

	var evt event.Event
	for range events {
		ok, err := r.NextEvent(&evt)
		require.NoError(t, err)
		require.True(t, ok)
	}

	before := evt
	ok, err := r.NextEvent(&evt)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, before.Equal(&evt))
}

func TestOpenRejectsForeignSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-events")
	require.NoError(t, os.WriteFile(path, []byte("not an arrow file"), 0o644))

	r := NewReader()
	assert.Error(t, r.Open(path))
}
