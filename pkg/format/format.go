// Package format defines the Reader/Writer abstraction that maps the
// canonical event schema onto the storage back-ends, plus the registry
// that turns a format selector into a concrete variant.
//
// Every back-end package (sqlite, arrowipc, avro, protostream, roottree)
// implements Reader and/or Writer against its own native object model and
// registers constructor functions in its init(). No back-end ever depends
// on another back-end's representation: the canonical event.Event is the
// only currency between a Reader and a Writer.
package format

import (
	"fmt"

	"github.com/openhep/evconv/pkg/event"
)

// Format selects a storage back-end. A Format is chosen once per Reader or
// Writer construction and never changes for the lifetime of the instance.
type Format string

const (
	// SQLite is the relational back-end: one table of flattened rows.
	SQLite Format = "sqlite"
	// ArrowRow is the hierarchical container with row-oriented layout:
	// one single-row record batch per event.
	ArrowRow Format = "arrow-row"
	// ArrowCol is the hierarchical container with columnar layout: one
	// field array per scalar, all sharing the row-index dimension.
	ArrowCol Format = "arrow-col"
	// Avro is the schema-row back-end: an object container file whose
	// embedded schema mirrors the nested event shape.
	Avro Format = "avro"
	// Proto is the message-stream back-end: consecutive length-delimited
	// wire messages, optionally behind a compression filter.
	Proto Format = "proto"
	// Root is the analysis-tree back-end: a tree whose branch set mirrors
	// the flattened row shape.
	Root Format = "root"
)

// String returns the selector spelling used on the command line.
func (f Format) String() string { return string(f) }

// ParseFormat maps a selector string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case SQLite, ArrowRow, ArrowCol, Avro, Proto, Root:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Formats returns all defined format selectors in a stable order.
func Formats() []Format {
	return []Format{SQLite, ArrowRow, ArrowCol, Avro, Proto, Root}
}

// Options carries construction-time configuration for a Reader or Writer.
// Compression applies only to the formats that support it (avro, proto,
// root); the others ignore it.
type Options struct {
	// Compressed enables the back-end's compressed mode.
	Compressed bool
	// Codec selects the message-stream filter algorithm ("gzip" or
	// "zstd"). Empty means gzip. Ignored by the other back-ends.
	Codec string
}

// Reader is the sequential source abstraction. The usage protocol is:
// Open exactly once, NextEvent until it reports exhaustion, Close exactly
// once. Each NextEvent advances an internal cursor by exactly one record;
// there is no random access and no rewind.
type Reader interface {
	// Open establishes the source, acquiring the native handles the
	// back-end requires. It fails if the path does not exist or is not
	// valid for the format.
	Open(path string) error

	// NextEvent overwrites every field of evt with the next record in
	// source order and returns true. When the source is exhausted it
	// returns false with a nil error and leaves evt unspecified. A record
	// that cannot be decoded is a fatal error.
	NextEvent(evt *event.Event) (bool, error)

	// Close releases all handles acquired by Open.
	Close() error
}

// Writer is the sequential destination abstraction: Open exactly once,
// WriteEvent per record in call order, Close exactly once after the last
// write. Close must leave the destination fully readable for its format.
type Writer interface {
	// Open creates or truncates the destination and acquires the native
	// handles needed for writing.
	Open(path string) error

	// WriteEvent appends one record derived from evt. The destination's
	// record order equals the call order.
	WriteEvent(evt *event.Event) error

	// Close flushes and releases all acquired resources.
	Close() error
}

// ConversionPreparer is an optional Reader capability: binding the
// destination addresses of an event to the source's internal field slots
// before iteration starts. Only the analysis-tree reader needs it (a
// consequence of that back-end's pull-by-address access model); the driver
// type-asserts for the interface and calls it when present.
type ConversionPreparer interface {
	PrepareForConversion(evt *event.Event)
}
