package roottree

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhep/evconv/pkg/event"
)

func makeEvents(n int) []event.Event {
	events := make([]event.Event, n)
	for i := range events {
		evt := &events[i]
		evt.FlightDistance = float64(i) + 0.5
		evt.VertexChi2 = float64(i) * 4
		for j := range evt.Candidates {
			base := float64(i*3 + j + 1)
			evt.Candidates[j] = event.KaonCandidate{
				PX:     base * 100,
				PY:     base * 200,
				PZ:     base * 300,
				ProbK:  0.6,
				ProbPi: 0.4,
				Charge: i%2 == 0,
				IsMuon: (i+j)%2 == 1,
				IPChi2: base,
			}
		}
	}
	return events
}

func writeTree(t *testing.T, path string, compressed bool, events []event.Event) {
	t.Helper()

	w := NewWriter(compressed)
	require.NoError(t, w.Open(path))
	for i := range events {
		require.NoError(t, w.WriteEvent(&events[i]))
	}
	require.NoError(t, w.Close())
}

func readTree(t *testing.T, path string) []event.Event {
	t.Helper()

	r := NewReader()
	require.NoError(t, r.Open(path))
	defer func() { require.NoError(t, r.Close()) }()

	var evt event.Event
	r.PrepareForConversion(&evt)

	var out []event.Event
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

func roundTrip(t *testing.T, compressed bool) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.root")
	events := makeEvents(6)
	writeTree(t, path, compressed, events)

	got := readTree(t, path)
	require.Len(t, got, len(events))
	for i := range events {
		assert.True(t, events[i].Equal(&got[i]), "event %d", i)
	}
}

func TestRoundTrip(t *testing.T) {
	roundTrip(t, false)
}

func TestRoundTripZlib(t *testing.T) {
	roundTrip(t, true)
}

func TestChainedFiles(t *testing.T) {
	dir := t.TempDir()
	first := makeEvents(3)
	second := makeEvents(5)[3:]

	pathA := filepath.Join(dir, "a.root")
	pathB := filepath.Join(dir, "b.root")
	writeTree(t, pathA, false, first)
	writeTree(t, pathB, false, second)

	got := readTree(t, strings.Join([]string{pathA, pathB}, ","))
	want := append(append([]event.Event{}, first...), second...)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(&got[i]), "event %d", i)
	}
}

func TestPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.root")
	events := makeEvents(4)
	writeTree(t, path, false, events)

	r := NewReader()
	require.NoError(t, r.Open(path))
	defer func() { require.NoError(t, r.Close()) }()

	var evt event.Event
	r.PrepareForConversion(&evt)

	pos, total := r.Position()
	assert.Equal(t, int64(0), pos)
	assert.Equal(t, int64(len(events)), total)

	ok, err := r.NextEvent(&evt)
	require.NoError(t, err)
	require.True(t, ok)

	pos, _ = r.Position()
	assert.Equal(t, int64(1), pos)
}

func TestNextEventRequiresPrepare(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.root")
	writeTree(t, path, false, makeEvents(1))

	r := NewReader()
	require.NoError(t, r.Open(path))
	defer func() { require.NoError(t, r.Close()) }()

	var evt event.Event
	_, err := r.NextEvent(&evt)
	assert.Error(t, err)
}

func TestNextEventRejectsOtherEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.root")
	writeTree(t, path, false, makeEvents(1))

	r := NewReader()
	require.NoError(t, r.Open(path))
	defer func() { require.NoError(t, r.Close()) }()

	var prepared, other event.Event
	r.PrepareForConversion(&prepared)

	_, err := r.NextEvent(&other)
	assert.Error(t, err)
}

func TestCloseMidChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.root")
	writeTree(t, path, false, makeEvents(5))

	r := NewReader()
	require.NoError(t, r.Open(path))

	var evt event.Event
	r.PrepareForConversion(&evt)

	// Consume a single entry, then close with the pump still parked.
	ok, err := r.NextEvent(&evt)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.Close())
}

func TestOpenMissingSource(t *testing.T) {
	r := NewReader()
	assert.Error(t, r.Open(filepath.Join(t.TempDir(), "no-such.root")))
}
