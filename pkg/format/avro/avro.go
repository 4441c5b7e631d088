// Package avro implements the schema-row back-end: an Avro object
// container file whose embedded schema mirrors the nested event shape
// directly, so records decode into the canonical form without the
// flattened projection. The charge and muon flags stay boolean here; the
// integer widening rule belongs to the flattened row shape only.
package avro

import (
	"os"

	"github.com/linkedin/goavro/v2"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/event"
	"github.com/openhep/evconv/pkg/format"
)

// eventSchema is the container schema: two event-level doubles plus the
// array of three candidate sub-records. The field names are the on-disk
// contract.
const eventSchema = `{
  "type": "record",
  "name": "Event",
  "namespace": "evconv",
  "fields": [
    {"name": "b_flight_distance", "type": "double"},
    {"name": "b_vertex_chi2", "type": "double"},
    {"name": "kaon_candidates", "type": {"type": "array", "items": {
      "type": "record",
      "name": "KaonCandidate",
      "fields": [
        {"name": "h_px", "type": "double"},
        {"name": "h_py", "type": "double"},
        {"name": "h_pz", "type": "double"},
        {"name": "h_prob_k", "type": "double"},
        {"name": "h_prob_pi", "type": "double"},
        {"name": "h_charge", "type": "boolean"},
        {"name": "h_is_muon", "type": "boolean"},
        {"name": "h_ip_chi2", "type": "double"}
      ]
    }}}
  ]
}`

// eventToNative converts the canonical event into goavro's native form.
func eventToNative(evt *event.Event) map[string]interface{} {
	candidates := make([]interface{}, 0, event.NumCandidates)
	for i := range evt.Candidates {
		c := &evt.Candidates[i]
		candidates = append(candidates, map[string]interface{}{
			"h_px":      c.PX,
			"h_py":      c.PY,
			"h_pz":      c.PZ,
			"h_prob_k":  c.ProbK,
			"h_prob_pi": c.ProbPi,
			"h_charge":  c.Charge,
			"h_is_muon": c.IsMuon,
			"h_ip_chi2": c.IPChi2,
		})
	}
	return map[string]interface{}{
		"b_flight_distance": evt.FlightDistance,
		"b_vertex_chi2":     evt.VertexChi2,
		"kaon_candidates":   candidates,
	}
}

// nativeToEvent decodes one goavro datum into the canonical event. Every
// field must be present with its schema type; anything else is a decode
// error.
func nativeToEvent(datum interface{}, evt *event.Event) error {
	rec, ok := datum.(map[string]interface{})
	if !ok {
		return errors.Newf(errors.ErrorTypeDecode, "datum is %T, want record", datum)
	}

	var err error
	getDouble := func(m map[string]interface{}, name string) float64 {
		v, ok := m[name].(float64)
		if !ok && err == nil {
			err = errors.Newf(errors.ErrorTypeDecode, "field %s is %T, want double", name, m[name])
		}
		return v
	}
	getBool := func(m map[string]interface{}, name string) bool {
		v, ok := m[name].(bool)
		if !ok && err == nil {
			err = errors.Newf(errors.ErrorTypeDecode, "field %s is %T, want boolean", name, m[name])
		}
		return v
	}

	evt.FlightDistance = getDouble(rec, "b_flight_distance")
	evt.VertexChi2 = getDouble(rec, "b_vertex_chi2")

	candidates, ok := rec["kaon_candidates"].([]interface{})
	if !ok {
		return errors.Newf(errors.ErrorTypeDecode, "kaon_candidates is %T, want array", rec["kaon_candidates"])
	}
	if len(candidates) != event.NumCandidates {
		return errors.Newf(errors.ErrorTypeDecode, "event has %d candidates, want %d", len(candidates), event.NumCandidates)
	}

	for i, item := range candidates {
		cm, ok := item.(map[string]interface{})
		if !ok {
			return errors.Newf(errors.ErrorTypeDecode, "candidate %d is %T, want record", i, item)
		}
		c := &evt.Candidates[i]
		c.PX = getDouble(cm, "h_px")
		c.PY = getDouble(cm, "h_py")
		c.PZ = getDouble(cm, "h_pz")
		c.ProbK = getDouble(cm, "h_prob_k")
		c.ProbPi = getDouble(cm, "h_prob_pi")
		c.Charge = getBool(cm, "h_charge")
		c.IsMuon = getBool(cm, "h_is_muon")
		c.IPChi2 = getDouble(cm, "h_ip_chi2")
	}

	return err
}

// Reader reads one container datum per NextEvent, decoding against the
// file's embedded schema.
type Reader struct {
	f         *os.File
	ocfReader *goavro.OCFReader
	path      string
}

// NewReader creates an unopened schema-row reader.
func NewReader() *Reader {
	return &Reader{}
}

// Open opens the container file and its embedded schema.
func (r *Reader) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "opening avro container").WithDetail("path", path)
	}

	ocfReader, err := goavro.NewOCFReader(f)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "reading avro container header").WithDetail("path", path)
	}

	r.f = f
	r.ocfReader = ocfReader
	r.path = path
	return nil
}

// NextEvent reads and decodes the next datum.
func (r *Reader) NextEvent(evt *event.Event) (bool, error) {
	if r.ocfReader == nil {
		return false, errors.New(errors.ErrorTypeInternal, "avro reader not opened")
	}

	if !r.ocfReader.Scan() {
		if err := r.ocfReader.Err(); err != nil {
			return false, errors.Wrap(err, errors.ErrorTypeDecode, "scanning avro container").WithDetail("path", r.path)
		}
		return false, nil
	}

	datum, err := r.ocfReader.Read()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeDecode, "reading avro datum").WithDetail("path", r.path)
	}

	return true, nativeToEvent(datum, evt)
}

// Close releases the file handle; the container reader itself holds no
// native resources.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	r.ocfReader = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeResource, "closing avro reader")
	}
	return nil
}

// Writer appends one datum per event to a container file, optionally with
// the deflate codec.
type Writer struct {
	f          *os.File
	ocfWriter  *goavro.OCFWriter
	compressed bool
	path       string
}

// NewWriter creates an unopened schema-row writer. When compressed is
// true the container uses the deflate codec.
func NewWriter(compressed bool) *Writer {
	return &Writer{compressed: compressed}
}

// Open creates the container file with the nested event schema.
func (w *Writer) Open(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating avro container").WithDetail("path", path)
	}

	codec, err := goavro.NewCodec(eventSchema)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeInternal, "building avro codec")
	}

	compression := goavro.CompressionNullLabel
	if w.compressed {
		compression = goavro.CompressionDeflateLabel
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Codec:           codec,
		CompressionName: compression,
	})
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating avro container writer").WithDetail("path", path)
	}

	w.f = f
	w.ocfWriter = ocfWriter
	w.path = path
	return nil
}

// WriteEvent appends one datum in call order.
func (w *Writer) WriteEvent(evt *event.Event) error {
	if w.ocfWriter == nil {
		return errors.New(errors.ErrorTypeInternal, "avro writer not opened")
	}

	if err := w.ocfWriter.Append([]interface{}{eventToNative(evt)}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEncode, "appending avro datum").WithDetail("path", w.path)
	}
	return nil
}

// Close flushes the container to disk. The OCF writer appends eagerly, so
// closing the file handle completes the container.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	w.ocfWriter = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeResource, "closing avro writer")
	}
	return nil
}

func init() {
	_ = format.RegisterReader(format.Avro, func(format.Options) (format.Reader, error) {
		return NewReader(), nil
	})
	_ = format.RegisterWriter(format.Avro, func(opts format.Options) (format.Writer, error) {
		return NewWriter(opts.Compressed), nil
	})
}
