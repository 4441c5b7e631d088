// Package event defines the canonical in-memory record every storage
// back-end reads and writes. It is the single schema of the system: a
// reader fills an Event, a writer consumes it, and no back-end ever sees
// another back-end's native representation.
//
// The package also defines FlatRow, the 26-scalar flattened projection of
// an Event used by the row-oriented back-ends (relational table columns,
// columnar container fields, analysis-tree branches). Flattening widens the
// two boolean flags per candidate to int32; unflattening narrows them back.
// Both directions are exact inverses.
//
// The field set comes from the LHCb B2HHH open-data sample. FlightDistance,
// VertexChi2 and IPChi2 are not consumed by any conversion, but they are
// part of the on-disk contract and must round-trip bit-for-bit.
package event

// KaonCandidate is one reconstructed charged-track candidate: momentum
// components, particle-identification probabilities, a two-valued charge,
// a muon-identification flag and the impact-parameter chi-square.
type KaonCandidate struct {
	PX     float64
	PY     float64
	PZ     float64
	ProbK  float64
	ProbPi float64
	Charge bool
	IsMuon bool
	IPChi2 float64
}

// Event is the canonical event record: exactly three kaon candidates in a
// fixed, order-significant sequence plus two event-level scalars. Candidate
// index 0..2 has the same meaning in every format. An Event is a transient
// buffer: the conversion driver reuses one instance across iterations, so
// no component may retain a reference to it.
type Event struct {
	FlightDistance float64
	VertexChi2     float64
	Candidates     [3]KaonCandidate
}

// Equal reports exact field-wise equality on all numeric and boolean
// members. It is the round-trip identity contract used by the tests.
func (e *Event) Equal(o *Event) bool {
	return *e == *o
}

// NumCandidates is the fixed number of candidates per event.
const NumCandidates = 3

// FlatCandidate is the per-candidate block of the flattened row shape,
// with the boolean flags widened to int32.
type FlatCandidate struct {
	PX     float64
	PY     float64
	PZ     float64
	ProbK  float64
	ProbPi float64
	Charge int32
	IsMuon int32
	IPChi2 float64
}

// FlatRow is the flattened projection of an Event: the two event-level
// scalars followed by three per-candidate blocks of eight scalars each.
// The field order matches FlatColumns, which is the on-disk column and
// branch order for the row-oriented back-ends.
type FlatRow struct {
	BFlightDistance float64
	BVertexChi2     float64
	H               [NumCandidates]FlatCandidate
}

// FlatColumns lists the 26 column names of the flattened row shape in
// positional order. This order is the on-disk contract shared by the
// relational table and the container fields; changing it breaks every
// existing file.
var FlatColumns = []string{
	"b_flight_distance",
	"b_vertex_chi2",
	"h1_px", "h1_py", "h1_pz", "h1_prob_k", "h1_prob_pi", "h1_charge", "h1_is_muon", "h1_ip_chi2",
	"h2_px", "h2_py", "h2_pz", "h2_prob_k", "h2_prob_pi", "h2_charge", "h2_is_muon", "h2_ip_chi2",
	"h3_px", "h3_py", "h3_pz", "h3_prob_k", "h3_prob_pi", "h3_charge", "h3_is_muon", "h3_ip_chi2",
}

// NumFlatColumns is the width of the flattened row shape.
const NumFlatColumns = 26

// FromEvent overwrites the row with the flattened form of e, widening the
// boolean flags to int32 (true -> 1, false -> 0).
func (f *FlatRow) FromEvent(e *Event) {
	f.BFlightDistance = e.FlightDistance
	f.BVertexChi2 = e.VertexChi2
	for i := range e.Candidates {
		c := &e.Candidates[i]
		h := &f.H[i]
		h.PX = c.PX
		h.PY = c.PY
		h.PZ = c.PZ
		h.ProbK = c.ProbK
		h.ProbPi = c.ProbPi
		h.Charge = widen(c.Charge)
		h.IsMuon = widen(c.IsMuon)
		h.IPChi2 = c.IPChi2
	}
}

// ToEvent overwrites e with the unflattened form of the row, narrowing the
// widened flags back to bool (non-zero -> true).
func (f *FlatRow) ToEvent(e *Event) {
	e.FlightDistance = f.BFlightDistance
	e.VertexChi2 = f.BVertexChi2
	for i := range f.H {
		h := &f.H[i]
		c := &e.Candidates[i]
		c.PX = h.PX
		c.PY = h.PY
		c.PZ = h.PZ
		c.ProbK = h.ProbK
		c.ProbPi = h.ProbPi
		c.Charge = h.Charge != 0
		c.IsMuon = h.IsMuon != 0
		c.IPChi2 = h.IPChi2
	}
}

// Pointers returns pointers to the 26 scalar fields in FlatColumns order,
// for use as a scan destination list when decoding a row.
func (f *FlatRow) Pointers() []any {
	ptrs := make([]any, 0, NumFlatColumns)
	ptrs = append(ptrs, &f.BFlightDistance, &f.BVertexChi2)
	for i := range f.H {
		h := &f.H[i]
		ptrs = append(ptrs, &h.PX, &h.PY, &h.PZ, &h.ProbK, &h.ProbPi, &h.Charge, &h.IsMuon, &h.IPChi2)
	}
	return ptrs
}

// Values returns the 26 scalar field values in FlatColumns order, for use
// as a bind-parameter list when encoding a row.
func (f *FlatRow) Values() []any {
	vals := make([]any, 0, NumFlatColumns)
	vals = append(vals, f.BFlightDistance, f.BVertexChi2)
	for i := range f.H {
		h := &f.H[i]
		vals = append(vals, h.PX, h.PY, h.PZ, h.ProbK, h.ProbPi, h.Charge, h.IsMuon, h.IPChi2)
	}
	return vals
}

func widen(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
