// Package evconv converts particle-collision event files between storage
// back-ends while preserving the canonical event schema exactly.
//
// Every source file holds a sequence of B -> hhh decay candidates: two
// event-level doubles plus exactly three kaon candidates of eight scalars
// each. Conversion is a strictly sequential pump from one reader to one
// writer; the same canonical events come out of any chain of conversions
// regardless of the formats visited along the way.
//
// # Supported back-ends
//
//	sqlite      - relational table, one row per event (26 flat columns)
//	arrow-row   - Arrow IPC file, one record batch per event
//	arrow-col   - Arrow IPC file, one accumulated columnar batch
//	avro        - Avro object container with the nested event schema
//	proto       - length-delimited protobuf message stream
//	root        - ROOT file with a flat TTree named DecayTree
//
// # Quick Start
//
// Convert a ROOT analysis tree into a SQLite table:
//
//	import (
//	    "context"
//	    "github.com/openhep/evconv/internal/convert"
//	    "github.com/openhep/evconv/pkg/format"
//	    _ "github.com/openhep/evconv/pkg/format/roottree"
//	    _ "github.com/openhep/evconv/pkg/format/sqlite"
//	)
//
//	reader, _ := format.NewReader(format.Root, format.Options{})
//	writer, _ := format.NewWriter(format.SQLite, format.Options{})
//	c := convert.New(reader, writer, "b2hhh.root", "b2hhh.sqlite", logger)
//	stats, err := c.Run(context.Background())
//
// # Key Packages
//
//	pkg/event    - canonical event schema and the flattened row projection
//	pkg/format   - Reader/Writer contracts and the back-end registry
//	pkg/config   - JSON run configuration for the CLI
//	pkg/errors   - structured error handling
//	pkg/logger   - structured logging
//	internal/convert - the sequential conversion driver
//
// Back-ends register themselves in init; import the ones you need for
// their side effect, the way cmd/evconv does.
package evconv
