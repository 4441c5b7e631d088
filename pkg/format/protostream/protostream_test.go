package protostream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhep/evconv/pkg/event"
	"github.com/openhep/evconv/pkg/format"
)

func makeEvents(n int) []event.Event {
	events := make([]event.Event, n)
	for i := range events {
		evt := &events[i]
		evt.FlightDistance = float64(i) * 0.75
		evt.VertexChi2 = float64(i) + 10
		for j := range evt.Candidates {
			base := float64(i*3 + j + 1)
			evt.Candidates[j] = event.KaonCandidate{
				PX:     base,
				PY:     base / 2,
				PZ:     base / 4,
				ProbK:  0.3,
				ProbPi: 0.7,
				Charge: (i+j)%2 == 1,
				IsMuon: j == 0,
				IPChi2: base * 5,
			}
		}
	}
	return events
}

func roundTrip(t *testing.T, codec string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.proto")
	events := makeEvents(8)

	w := NewWriter(codec)
	require.NoError(t, w.Open(path))
	for i := range events {
		require.NoError(t, w.WriteEvent(&events[i]))
	}
	require.NoError(t, w.Close())

	r := NewReader(codec)
	require.NoError(t, r.Open(path))
	defer func() { require.NoError(t, r.Close()) }()

	var evt event.Event
	for i := range events {
		ok, err := r.NextEvent(&evt)
		require.NoError(t, err)
		require.True(t, ok, "event %d", i)
		assert.True(t, events[i].Equal(&evt), "event %d", i)
	}

	ok, err := r.NextEvent(&evt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	roundTrip(t, "")
}

func TestRoundTripGzip(t *testing.T) {
	roundTrip(t, CodecGzip)
}

func TestRoundTripZstd(t *testing.T) {
	roundTrip(t, CodecZstd)
}

func TestMessageRoundTrip(t *testing.T) {
	events := makeEvents(3)

	var buf, scratch []byte
	for i := range events {
		buf, scratch = marshalEvent(buf[:0], scratch, &events[i])

		var got event.Event
		require.NoError(t, unmarshalEvent(buf, &got))
		assert.True(t, events[i].Equal(&got), "event %d", i)
	}
}

func TestTruncatedStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.proto")
	events := makeEvents(1)

	w := NewWriter("")
	require.NoError(t, w.Open(path))
	require.NoError(t, w.WriteEvent(&events[0]))
	require.NoError(t, w.Close())

	// Drop the tail of the only frame: the length prefix then promises
	// more bytes than the stream holds.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-4], 0o644))

	r := NewReader("")
	require.NoError(t, r.Open(path))
	defer func() { _ = r.Close() }()

	var evt event.Event
	_, err = r.NextEvent(&evt)
	assert.Error(t, err)
}

func TestResolveCodec(t *testing.T) {
	codec, err := resolveCodec(format.Options{})
	require.NoError(t, err)
	assert.Equal(t, "", codec)

	codec, err = resolveCodec(format.Options{Compressed: true})
	require.NoError(t, err)
	assert.Equal(t, CodecGzip, codec)

	codec, err = resolveCodec(format.Options{Compressed: true, Codec: CodecZstd})
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, codec)

	_, err = resolveCodec(format.Options{Compressed: true, Codec: "lz4"})
	assert.Error(t, err)
}

func TestOpenMissingSource(t *testing.T) {
	r := NewReader("")
	assert.Error(t, r.Open(filepath.Join(t.TempDir(), "no-such.proto")))
}
