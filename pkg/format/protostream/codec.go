// Package protostream implements the message-stream back-end: a flat file
// of consecutive length-delimited protobuf wire messages mirroring the
// nested event shape, optionally wrapped end-to-end in a streaming
// compression filter.
//
// The message schema is fixed and closed, so the codec is written directly
// against the wire format with protowire instead of going through
// generated reflection-based message types. Layout:
//
//	Event      1: b_flight_distance (fixed64)
//	           2: b_vertex_chi2     (fixed64)
//	           3: kaon_candidates   (repeated message, exactly 3)
//	Candidate  1: h_px  2: h_py  3: h_pz          (fixed64)
//	           4: h_prob_k  5: h_prob_pi          (fixed64)
//	           6: h_charge  7: h_is_muon          (varint bool)
//	           8: h_ip_chi2                       (fixed64)
//
// Each message is preceded by a uvarint length prefix, so the stream is
// self-delimiting and a reader can resume framing after any prefix.
package protostream

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/event"
)

// Event field numbers.
const (
	fieldFlightDistance = 1
	fieldVertexChi2     = 2
	fieldCandidate      = 3
)

// Candidate field numbers.
const (
	fieldPX     = 1
	fieldPY     = 2
	fieldPZ     = 3
	fieldProbK  = 4
	fieldProbPi = 5
	fieldCharge = 6
	fieldIsMuon = 7
	fieldIPChi2 = 8
)

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	if v {
		return protowire.AppendVarint(b, 1)
	}
	return protowire.AppendVarint(b, 0)
}

func appendCandidate(b []byte, c *event.KaonCandidate) []byte {
	b = appendDouble(b, fieldPX, c.PX)
	b = appendDouble(b, fieldPY, c.PY)
	b = appendDouble(b, fieldPZ, c.PZ)
	b = appendDouble(b, fieldProbK, c.ProbK)
	b = appendDouble(b, fieldProbPi, c.ProbPi)
	b = appendBool(b, fieldCharge, c.Charge)
	b = appendBool(b, fieldIsMuon, c.IsMuon)
	b = appendDouble(b, fieldIPChi2, c.IPChi2)
	return b
}

// marshalEvent appends the wire encoding of evt to b and returns the
// extended buffer. scratch is reused for candidate sub-messages.
func marshalEvent(b, scratch []byte, evt *event.Event) (out, scratchOut []byte) {
	b = appendDouble(b, fieldFlightDistance, evt.FlightDistance)
	b = appendDouble(b, fieldVertexChi2, evt.VertexChi2)
	for i := range evt.Candidates {
		scratch = appendCandidate(scratch[:0], &evt.Candidates[i])
		b = protowire.AppendTag(b, fieldCandidate, protowire.BytesType)
		b = protowire.AppendBytes(b, scratch)
	}
	return b, scratch
}

func consumeDouble(b []byte) (float64, int, error) {
	bits, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, n, protowire.ParseError(n)
	}
	return math.Float64frombits(bits), n, nil
}

func unmarshalCandidate(b []byte, c *event.KaonCandidate) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.Fixed64Type:
			v, n, err := consumeDouble(b)
			if err != nil {
				return err
			}
			b = b[n:]
			switch num {
			case fieldPX:
				c.PX = v
			case fieldPY:
				c.PY = v
			case fieldPZ:
				c.PZ = v
			case fieldProbK:
				c.ProbK = v
			case fieldProbPi:
				c.ProbPi = v
			case fieldIPChi2:
				c.IPChi2 = v
			}
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldCharge:
				c.Charge = v != 0
			case fieldIsMuon:
				c.IsMuon = v != 0
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// unmarshalEvent decodes one wire message into evt. An event message must
// carry exactly three candidate sub-messages.
func unmarshalEvent(b []byte, evt *event.Event) error {
	ncand := 0
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), errors.ErrorTypeDecode, "reading message tag")
		}
		b = b[n:]

		switch {
		case num == fieldFlightDistance && typ == protowire.Fixed64Type:
			v, n, err := consumeDouble(b)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeDecode, "reading flight distance")
			}
			evt.FlightDistance = v
			b = b[n:]
		case num == fieldVertexChi2 && typ == protowire.Fixed64Type:
			v, n, err := consumeDouble(b)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeDecode, "reading vertex chi2")
			}
			evt.VertexChi2 = v
			b = b[n:]
		case num == fieldCandidate && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), errors.ErrorTypeDecode, "reading candidate message")
			}
			b = b[n:]
			if ncand >= event.NumCandidates {
				return errors.Newf(errors.ErrorTypeDecode, "message has more than %d candidates", event.NumCandidates)
			}
			if err := unmarshalCandidate(sub, &evt.Candidates[ncand]); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDecode, "decoding candidate message")
			}
			ncand++
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), errors.ErrorTypeDecode, "skipping unknown field")
			}
			b = b[n:]
		}
	}

	if ncand != event.NumCandidates {
		return errors.Newf(errors.ErrorTypeDecode, "message has %d candidates, want %d", ncand, event.NumCandidates)
	}
	return nil
}
