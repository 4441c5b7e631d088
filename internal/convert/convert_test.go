package convert

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openhep/evconv/pkg/event"
	"github.com/openhep/evconv/pkg/format"

	_ "github.com/openhep/evconv/pkg/format/avro"
	_ "github.com/openhep/evconv/pkg/format/protostream"
	_ "github.com/openhep/evconv/pkg/format/sqlite"
)

func makeEvents(n int) []event.Event {
	events := make([]event.Event, n)
	for i := range events {
		evt := &events[i]
		evt.FlightDistance = float64(i) + 0.125
		evt.VertexChi2 = float64(i) * 2
		for j := range evt.Candidates {
			base := float64(i*3 + j + 1)
			evt.Candidates[j] = event.KaonCandidate{
				PX:     base,
				PY:     base + 1,
				PZ:     base + 2,
				ProbK:  0.45,
				ProbPi: 0.55,
				Charge: j != 0,
				IsMuon: i%2 == 1,
				IPChi2: base * 3,
			}
		}
	}
	return events
}

// sliceReader replays a fixed event slice and records lifecycle calls.
type sliceReader struct {
	events   []event.Event
	pos      int
	opened   bool
	closed   bool
	prepared *event.Event
	readErr  error
}

func (r *sliceReader) Open(string) error { r.opened = true; return nil }

func (r *sliceReader) NextEvent(evt *event.Event) (bool, error) {
	if r.readErr != nil {
		return false, r.readErr
	}
	if r.pos >= len(r.events) {
		return false, nil
	}
	*evt = r.events[r.pos]
	r.pos++
	return true, nil
}

func (r *sliceReader) Close() error { r.closed = true; return nil }

func (r *sliceReader) PrepareForConversion(evt *event.Event) { r.prepared = evt }

// sliceWriter collects written events and records lifecycle calls.
type sliceWriter struct {
	events   []event.Event
	opened   bool
	closed   bool
	writeErr error
}

func (w *sliceWriter) Open(string) error { w.opened = true; return nil }

func (w *sliceWriter) WriteEvent(evt *event.Event) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.events = append(w.events, *evt)
	return nil
}

func (w *sliceWriter) Close() error { w.closed = true; return nil }

func TestRunCopiesAllEventsInOrder(t *testing.T) {
	events := makeEvents(10)
	r := &sliceReader{events: events}
	w := &sliceWriter{}

	stats, err := New(r, w, "src", "dst", zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(len(events)), stats.Events)
	require.Len(t, w.events, len(events))
	for i := range events {
		assert.True(t, events[i].Equal(&w.events[i]), "event %d", i)
	}

	assert.True(t, r.opened)
	assert.True(t, r.closed)
	assert.True(t, w.opened)
	assert.True(t, w.closed)
	assert.NotNil(t, r.prepared, "preparer capability must be invoked before the loop")
}

func TestRunClosesWriterOnReadError(t *testing.T) {
	r := &sliceReader{readErr: assert.AnError}
	w := &sliceWriter{}

	_, err := New(r, w, "src", "dst", zap.NewNop()).Run(context.Background())
	require.Error(t, err)
	assert.True(t, r.closed)
	assert.True(t, w.closed)
}

func TestRunClosesReaderOnWriteError(t *testing.T) {
	r := &sliceReader{events: makeEvents(3)}
	w := &sliceWriter{writeErr: assert.AnError}

	_, err := New(r, w, "src", "dst", zap.NewNop()).Run(context.Background())
	require.Error(t, err)
	assert.True(t, r.closed)
	assert.True(t, w.closed)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &sliceReader{events: makeEvents(3)}
	w := &sliceWriter{}

	_, err := New(r, w, "src", "dst", zap.NewNop()).Run(ctx)
	require.Error(t, err)
	assert.Empty(t, w.events)
	assert.True(t, r.closed)
	assert.True(t, w.closed)
}

// runFormat converts src (already on disk in srcFmt) into dstFmt and
// returns the destination path.
func runFormat(t *testing.T, srcFmt, dstFmt format.Format, srcPath, dstPath string) {
	t.Helper()

	r, err := format.NewReader(srcFmt, format.Options{})
	require.NoError(t, err)
	w, err := format.NewWriter(dstFmt, format.Options{})
	require.NoError(t, err)

	_, err = New(r, w, srcPath, dstPath, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
}

func readBack(t *testing.T, f format.Format, path string) []event.Event {
	t.Helper()

	r, err := format.NewReader(f, format.Options{})
	require.NoError(t, err)
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

// Converting A->B->C must yield the same events as converting A->C
// directly.
func TestCrossFormatEquivalence(t *testing.T) {
	dir := t.TempDir()
	events := makeEvents(12)

	src := filepath.Join(dir, "src.sqlite")
	w, err := format.NewWriter(format.SQLite, format.Options{})
	require.NoError(t, err)
	require.NoError(t, w.Open(src))
	for i := range events {
		require.NoError(t, w.WriteEvent(&events[i]))
	}
	require.NoError(t, w.Close())

	mid := filepath.Join(dir, "mid.avro")
	twoHop := filepath.Join(dir, "two-hop.proto")
	oneHop := filepath.Join(dir, "one-hop.proto")

	runFormat(t, format.SQLite, format.Avro, src, mid)
	runFormat(t, format.Avro, format.Proto, mid, twoHop)
	runFormat(t, format.SQLite, format.Proto, src, oneHop)

	gotTwo := readBack(t, format.Proto, twoHop)
	gotOne := readBack(t, format.Proto, oneHop)

	require.Len(t, gotTwo, len(events))
	require.Len(t, gotOne, len(events))
	for i := range events {
		assert.True(t, events[i].Equal(&gotTwo[i]), "event %d via two hops", i)
		assert.True(t, gotTwo[i].Equal(&gotOne[i]), "event %d one hop vs two", i)
	}
}

func TestStatsThroughput(t *testing.T) {
	assert.Equal(t, float64(0), Stats{}.Throughput())
	assert.InDelta(t, 100, Stats{Events: 100, Duration: 1e9}.Throughput(), 1e-9)
}
