package arrowipc

import "github.com/openhep/evconv/pkg/format"

func init() {
	// Both layout selectors read through the same reader: IPC framing is
	// independent of how the batches were laid out at write time.
	readerFactory := func(format.Options) (format.Reader, error) {
		return NewReader(), nil
	}
	_ = format.RegisterReader(format.ArrowRow, readerFactory)
	_ = format.RegisterReader(format.ArrowCol, readerFactory)

	_ = format.RegisterWriter(format.ArrowRow, func(format.Options) (format.Writer, error) {
		return NewRowWriter(), nil
	})
	_ = format.RegisterWriter(format.ArrowCol, func(format.Options) (format.Writer, error) {
		return NewColumnarWriter(), nil
	})
}
