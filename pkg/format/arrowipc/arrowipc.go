// Package arrowipc implements the hierarchical container back-end on top
// of the Arrow IPC file format. Two writer layouts share one file
// technology and one 26-field flat schema:
//
//   - row layout: one single-row record batch appended per event, so the
//     file is row-contiguous;
//   - columnar layout: one builder per scalar field appended in lockstep
//     per event and emitted as a single column-contiguous batch, so row
//     index i across all field arrays reconstructs event i.
//
// IPC framing is identical either way, so a single Reader serves both
// layouts, iterating batches and rows within batches.
package arrowipc

import (
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/event"
)

// flatSchema builds the Arrow schema of the flattened row shape: float64
// scalars except the widened flag columns, which are int32.
func flatSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, event.NumFlatColumns)
	for _, col := range event.FlatColumns {
		var dt arrow.DataType = arrow.PrimitiveTypes.Float64
		if strings.Contains(col, "charge") || strings.Contains(col, "is_muon") {
			dt = arrow.PrimitiveTypes.Int32
		}
		fields = append(fields, arrow.Field{Name: col, Type: dt})
	}
	return arrow.NewSchema(fields, nil)
}

// appendRow appends one flattened event to the record builder, one value
// per field builder in schema order.
func appendRow(rb *array.RecordBuilder, row *event.FlatRow) error {
	for i, v := range row.Values() {
		switch b := rb.Field(i).(type) {
		case *array.Float64Builder:
			b.Append(v.(float64))
		case *array.Int32Builder:
			b.Append(v.(int32))
		default:
			return errors.Newf(errors.ErrorTypeInternal, "unexpected builder type %T for column %s", b, event.FlatColumns[i])
		}
	}
	return nil
}

// decodeRow scans row rowIdx of a record batch into the flat row.
func decodeRow(rec arrow.Record, rowIdx int, row *event.FlatRow) error {
	ptrs := row.Pointers()
	if int(rec.NumCols()) != len(ptrs) {
		return errors.Newf(errors.ErrorTypeDecode, "batch has %d columns, want %d", rec.NumCols(), len(ptrs))
	}
	for i, p := range ptrs {
		switch col := rec.Column(i).(type) {
		case *array.Float64:
			*p.(*float64) = col.Value(rowIdx)
		case *array.Int32:
			*p.(*int32) = col.Value(rowIdx)
		default:
			return errors.Newf(errors.ErrorTypeDecode, "unexpected array type %T for column %s", col, event.FlatColumns[i])
		}
	}
	return nil
}

// Reader reads events from an Arrow IPC file, iterating record batches
// sequentially and rows within each batch. It does not care whether the
// file was produced by the row or the columnar writer.
type Reader struct {
	f          *os.File
	fileReader *ipc.FileReader
	batch      arrow.Record
	batchIndex int
	rowIndex   int
	row        event.FlatRow
	path       string
}

// NewReader creates an unopened container reader.
func NewReader() *Reader {
	return &Reader{batchIndex: -1}
}

// Open maps the IPC file and reads its footer and schema.
func (r *Reader) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "opening container file").WithDetail("path", path)
	}

	fileReader, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "reading container footer").WithDetail("path", path)
	}

	if !fileReader.Schema().Equal(flatSchema()) {
		_ = fileReader.Close()
		_ = f.Close()
		return errors.New(errors.ErrorTypeOpen, "container schema does not match the flattened event shape").WithDetail("path", path)
	}

	r.f = f
	r.fileReader = fileReader
	r.batchIndex = -1
	r.rowIndex = 0
	r.path = path
	return nil
}

// NextEvent decodes the next row, advancing to the next record batch when
// the current one is exhausted.
func (r *Reader) NextEvent(evt *event.Event) (bool, error) {
	if r.fileReader == nil {
		return false, errors.New(errors.ErrorTypeInternal, "container reader not opened")
	}

	for r.batch == nil || r.rowIndex >= int(r.batch.NumRows()) {
		if err := r.loadNextBatch(); err != nil {
			return false, err
		}
		if r.batch == nil {
			return false, nil
		}
	}

	if err := decodeRow(r.batch, r.rowIndex, &r.row); err != nil {
		return false, err
	}
	r.row.ToEvent(evt)
	r.rowIndex++
	return true, nil
}

func (r *Reader) loadNextBatch() error {
	if r.batch != nil {
		r.batch.Release()
		r.batch = nil
	}

	r.batchIndex++
	if r.batchIndex >= r.fileReader.NumRecords() {
		return nil
	}

	batch, err := r.fileReader.Record(r.batchIndex)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDecode, "reading record batch").
			WithDetail("path", r.path).
			WithDetail("batch", r.batchIndex)
	}
	batch.Retain()
	r.batch = batch
	r.rowIndex = 0
	return nil
}

// Close releases the current batch, the IPC reader and the file handle.
func (r *Reader) Close() error {
	var firstErr error
	if r.batch != nil {
		r.batch.Release()
		r.batch = nil
	}
	if r.fileReader != nil {
		if err := r.fileReader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.fileReader = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.f = nil
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeResource, "closing container reader")
	}
	return nil
}

// RowWriter writes the row-oriented layout: each WriteEvent emits one
// single-row record batch, keeping the file row-contiguous.
type RowWriter struct {
	f          *os.File
	fileWriter *ipc.FileWriter
	builder    *array.RecordBuilder
	row        event.FlatRow
	path       string
}

// NewRowWriter creates an unopened row-layout writer.
func NewRowWriter() *RowWriter {
	return &RowWriter{}
}

// Open creates the destination file and the IPC writer with the flat
// schema.
func (w *RowWriter) Open(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating container file").WithDetail("path", path)
	}

	alloc := memory.NewGoAllocator()
	schema := flatSchema()

	fileWriter, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(alloc))
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating container writer").WithDetail("path", path)
	}

	w.f = f
	w.fileWriter = fileWriter
	w.builder = array.NewRecordBuilder(alloc, schema)
	w.path = path
	return nil
}

// WriteEvent appends one single-row record batch.
func (w *RowWriter) WriteEvent(evt *event.Event) error {
	if w.fileWriter == nil {
		return errors.New(errors.ErrorTypeInternal, "container writer not opened")
	}

	w.row.FromEvent(evt)
	if err := appendRow(w.builder, &w.row); err != nil {
		return err
	}

	rec := w.builder.NewRecord()
	defer rec.Release()

	if err := w.fileWriter.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEncode, "writing record batch").WithDetail("path", w.path)
	}
	return nil
}

// Close writes the IPC footer and releases the builder and file handle.
func (w *RowWriter) Close() error {
	return closeWriter(w.builder, w.fileWriter, w.f, nil)
}

// ColumnarWriter writes the columnar layout: WriteEvent appends one
// element to every per-field builder in lockstep, and Close emits the
// accumulated arrays as a single column-contiguous record batch.
type ColumnarWriter struct {
	f          *os.File
	fileWriter *ipc.FileWriter
	builder    *array.RecordBuilder
	row        event.FlatRow
	path       string
}

// NewColumnarWriter creates an unopened columnar-layout writer.
func NewColumnarWriter() *ColumnarWriter {
	return &ColumnarWriter{}
}

// Open creates the destination file and the IPC writer with the flat
// schema.
func (w *ColumnarWriter) Open(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating container file").WithDetail("path", path)
	}

	alloc := memory.NewGoAllocator()
	schema := flatSchema()

	fileWriter, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(alloc))
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating container writer").WithDetail("path", path)
	}

	w.f = f
	w.fileWriter = fileWriter
	w.builder = array.NewRecordBuilder(alloc, schema)
	w.path = path
	return nil
}

// WriteEvent appends the flattened event to the per-field builders. All 26
// builders advance together, preserving the shared row-index dimension.
func (w *ColumnarWriter) WriteEvent(evt *event.Event) error {
	if w.fileWriter == nil {
		return errors.New(errors.ErrorTypeInternal, "container writer not opened")
	}

	w.row.FromEvent(evt)
	return appendRow(w.builder, &w.row)
}

// Close emits the accumulated columns as one record batch, writes the IPC
// footer and releases all handles.
func (w *ColumnarWriter) Close() error {
	flush := func() error {
		rec := w.builder.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		if err := w.fileWriter.Write(rec); err != nil {
			return errors.Wrap(err, errors.ErrorTypeEncode, "writing columnar batch").WithDetail("path", w.path)
		}
		return nil
	}
	return closeWriter(w.builder, w.fileWriter, w.f, flush)
}

// closeWriter runs the optional final flush, then releases the builder,
// the IPC writer and the file handle in order, reporting the first error
// while still releasing everything.
func closeWriter(builder *array.RecordBuilder, fileWriter *ipc.FileWriter, f *os.File, flush func() error) error {
	var firstErr error
	if flush != nil && fileWriter != nil {
		if err := flush(); err != nil {
			firstErr = err
		}
	}
	if builder != nil {
		builder.Release()
	}
	if fileWriter != nil {
		if err := fileWriter.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.ErrorTypeResource, "closing container writer")
		}
	}
	if f != nil {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.ErrorTypeResource, "closing container file")
		}
	}
	return firstErr
}
