package protostream

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/event"
	"github.com/openhep/evconv/pkg/format"
)

// Stream filter codecs. Gzip matches the original wire files; zstd is the
// faster alternative for new ones.
const (
	CodecGzip = "gzip"
	CodecZstd = "zstd"
)

// maxMessageSize bounds a single frame. An event message is a few hundred
// bytes; anything near this limit means the framing is corrupt.
const maxMessageSize = 1 << 20

func resolveCodec(opts format.Options) (string, error) {
	if !opts.Compressed {
		return "", nil
	}
	switch opts.Codec {
	case "", CodecGzip:
		return CodecGzip, nil
	case CodecZstd:
		return CodecZstd, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unknown stream codec %q", opts.Codec)
}

// Reader reads one length-delimited message per NextEvent from a byte
// stream, optionally through a decompression filter.
type Reader struct {
	f     *os.File
	gz    *gzip.Reader
	zr    *zstd.Decoder
	br    *bufio.Reader
	buf   []byte
	codec string
	path  string
}

// NewReader creates an unopened message-stream reader. codec is empty for
// an uncompressed stream.
func NewReader(codec string) *Reader {
	return &Reader{codec: codec}
}

// Open opens the stream and stacks the decompression filter when the
// reader was constructed for a compressed stream.
func (r *Reader) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "opening message stream").WithDetail("path", path)
	}

	switch r.codec {
	case "":
		r.br = bufio.NewReader(f)
	case CodecGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return errors.Wrap(err, errors.ErrorTypeOpen, "opening gzip filter").WithDetail("path", path)
		}
		r.gz = gz
		r.br = bufio.NewReader(gz)
	case CodecZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return errors.Wrap(err, errors.ErrorTypeOpen, "opening zstd filter").WithDetail("path", path)
		}
		r.zr = zr
		r.br = bufio.NewReader(zr)
	default:
		_ = f.Close()
		return errors.Newf(errors.ErrorTypeConfig, "unknown stream codec %q", r.codec)
	}

	r.f = f
	r.path = path
	return nil
}

// NextEvent reads one frame: a uvarint length prefix followed by the
// message body. A clean EOF at a frame boundary is exhaustion; an EOF
// inside a frame is a decode error.
func (r *Reader) NextEvent(evt *event.Event) (bool, error) {
	if r.br == nil {
		return false, errors.New(errors.ErrorTypeInternal, "message-stream reader not opened")
	}

	size, err := binary.ReadUvarint(r.br)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeDecode, "reading message length").WithDetail("path", r.path)
	}
	if size > maxMessageSize {
		return false, errors.Newf(errors.ErrorTypeDecode, "message length %d exceeds limit", size).WithDetail("path", r.path)
	}

	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.br, r.buf); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeDecode, "reading message body").WithDetail("path", r.path)
	}

	if err := unmarshalEvent(r.buf, evt); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeDecode, "decoding event message").WithDetail("path", r.path)
	}
	return true, nil
}

// Close releases the filter and the file handle.
func (r *Reader) Close() error {
	var firstErr error
	if r.gz != nil {
		if err := r.gz.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.gz = nil
	}
	if r.zr != nil {
		r.zr.Close()
		r.zr = nil
	}
	if r.f != nil {
		if err := r.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.f = nil
	}
	r.br = nil
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeResource, "closing message-stream reader")
	}
	return nil
}

// Writer serializes one length-delimited message per WriteEvent into a
// byte stream, optionally through a compression filter.
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	gz      *gzip.Writer
	zw      *zstd.Encoder
	out     io.Writer
	buf     []byte
	scratch []byte
	codec   string
	path    string
}

// NewWriter creates an unopened message-stream writer. codec is empty for
// an uncompressed stream.
func NewWriter(codec string) *Writer {
	return &Writer{codec: codec}
}

// Open creates the destination stream and stacks the compression filter
// when one was configured.
func (w *Writer) Open(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating message stream").WithDetail("path", path)
	}

	switch w.codec {
	case "":
		w.bw = bufio.NewWriter(f)
		w.out = w.bw
	case CodecGzip:
		w.gz = gzip.NewWriter(f)
		w.out = w.gz
	case CodecZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return errors.Wrap(err, errors.ErrorTypeOpen, "opening zstd filter").WithDetail("path", path)
		}
		w.zw = zw
		w.out = zw
	default:
		_ = f.Close()
		return errors.Newf(errors.ErrorTypeConfig, "unknown stream codec %q", w.codec)
	}

	w.f = f
	w.path = path
	return nil
}

// WriteEvent appends one framed message in call order.
func (w *Writer) WriteEvent(evt *event.Event) error {
	if w.out == nil {
		return errors.New(errors.ErrorTypeInternal, "message-stream writer not opened")
	}

	w.buf, w.scratch = marshalEvent(w.buf[:0], w.scratch, evt)

	var header [binary.MaxVarintLen64]byte
	frame := protowire.AppendVarint(header[:0], uint64(len(w.buf)))
	if _, err := w.out.Write(frame); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEncode, "writing message length").WithDetail("path", w.path)
	}
	if _, err := w.out.Write(w.buf); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEncode, "writing message body").WithDetail("path", w.path)
	}
	return nil
}

// Close flushes the filter and buffered bytes and releases the file
// handle, leaving a complete, decodable stream.
func (w *Writer) Close() error {
	var firstErr error
	if w.gz != nil {
		if err := w.gz.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.gz = nil
	}
	if w.zw != nil {
		if err := w.zw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.zw = nil
	}
	if w.bw != nil {
		if err := w.bw.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.bw = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.f = nil
	}
	w.out = nil
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeResource, "closing message-stream writer")
	}
	return nil
}

func init() {
	_ = format.RegisterReader(format.Proto, func(opts format.Options) (format.Reader, error) {
		codec, err := resolveCodec(opts)
		if err != nil {
			return nil, err
		}
		return NewReader(codec), nil
	})
	_ = format.RegisterWriter(format.Proto, func(opts format.Options) (format.Writer, error) {
		codec, err := resolveCodec(opts)
		if err != nil {
			return nil, err
		}
		return NewWriter(codec), nil
	})
}
