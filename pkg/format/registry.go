package format

import (
	"sync"

	"go.uber.org/zap"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/logger"
)

// ReaderFactory creates a Reader variant for its format. It performs no
// I/O; the returned Reader acquires its handles in Open.
type ReaderFactory func(opts Options) (Reader, error)

// WriterFactory creates a Writer variant for its format.
type WriterFactory func(opts Options) (Writer, error)

// Registry maps format selectors to reader and writer factories.
type Registry struct {
	readers map[Format]ReaderFactory
	writers map[Format]WriterFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// Global registry instance. Back-end packages register themselves here
// from their init() functions.
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[Format]ReaderFactory),
		writers: make(map[Format]WriterFactory),
		logger:  logger.With(zap.String("component", "format_registry")),
	}
}

// RegisterReader registers a reader factory for a format.
func (r *Registry) RegisterReader(f Format, factory ReaderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.readers[f]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "reader for format %s already registered", f)
	}

	r.readers[f] = factory
	return nil
}

// RegisterWriter registers a writer factory for a format.
func (r *Registry) RegisterWriter(f Format, factory WriterFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.writers[f]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "writer for format %s already registered", f)
	}

	r.writers[f] = factory
	return nil
}

// NewReader constructs the Reader variant for a format.
func (r *Registry) NewReader(f Format, opts Options) (Reader, error) {
	r.mu.RLock()
	factory, exists := r.readers[f]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no reader registered for format %s", f)
	}

	reader, err := factory(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "creating reader").WithDetail("format", f.String())
	}

	return reader, nil
}

// NewWriter constructs the Writer variant for a format.
func (r *Registry) NewWriter(f Format, opts Options) (Writer, error) {
	r.mu.RLock()
	factory, exists := r.writers[f]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no writer registered for format %s", f)
	}

	writer, err := factory(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "creating writer").WithDetail("format", f.String())
	}

	return writer, nil
}

// ListReaders returns the formats with a registered reader, in selector
// declaration order.
func (r *Registry) ListReaders() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Format, 0, len(r.readers))
	for _, f := range Formats() {
		if _, ok := r.readers[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// ListWriters returns the formats with a registered writer.
func (r *Registry) ListWriters() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Format, 0, len(r.writers))
	for _, f := range Formats() {
		if _, ok := r.writers[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// HasReader reports whether a reader is registered for a format.
func (r *Registry) HasReader(f Format) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.readers[f]
	return ok
}

// HasWriter reports whether a writer is registered for a format.
func (r *Registry) HasWriter(f Format) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.writers[f]
	return ok
}

// Global registry functions

// RegisterReader registers a reader factory in the global registry.
func RegisterReader(f Format, factory ReaderFactory) error {
	return globalRegistry.RegisterReader(f, factory)
}

// RegisterWriter registers a writer factory in the global registry.
func RegisterWriter(f Format, factory WriterFactory) error {
	return globalRegistry.RegisterWriter(f, factory)
}

// NewReader constructs a Reader from the global registry.
func NewReader(f Format, opts Options) (Reader, error) {
	return globalRegistry.NewReader(f, opts)
}

// NewWriter constructs a Writer from the global registry.
func NewWriter(f Format, opts Options) (Writer, error) {
	return globalRegistry.NewWriter(f, opts)
}

// ListReaders returns readable formats from the global registry.
func ListReaders() []Format {
	return globalRegistry.ListReaders()
}

// ListWriters returns writable formats from the global registry.
func ListWriters() []Format {
	return globalRegistry.ListWriters()
}

// HasReader checks the global registry for a reader.
func HasReader(f Format) bool {
	return globalRegistry.HasReader(f)
}

// HasWriter checks the global registry for a writer.
func HasWriter(f Format) bool {
	return globalRegistry.HasWriter(f)
}
