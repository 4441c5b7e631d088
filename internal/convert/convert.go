// Package convert drives a conversion run: it pumps events from one
// Reader to one Writer, strictly sequentially. One canonical event buffer
// is reused across iterations - the reader overwrites it, the writer
// consumes it, and no one retains it. There is no batching, buffering or
// concurrency in this loop; the first error aborts the whole run.
package convert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/event"
	"github.com/openhep/evconv/pkg/format"
)

// Stats reports the outcome of a completed run.
type Stats struct {
	Events   int64
	Duration time.Duration
}

// Throughput returns events per second over the whole run.
func (s Stats) Throughput() float64 {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Events) / secs
}

// Converter owns one Reader and one Writer for the lifetime of a run.
// Handles are acquired in Run and released on every exit path.
type Converter struct {
	reader format.Reader
	writer format.Writer
	source string
	dest   string
	logger *zap.Logger
}

// New creates a converter for one source/destination pair.
func New(reader format.Reader, writer format.Writer, source, dest string, logger *zap.Logger) *Converter {
	return &Converter{
		reader: reader,
		writer: writer,
		source: source,
		dest:   dest,
		logger: logger,
	}
}

// Run executes the conversion: open reader, open writer, copy events one
// at a time until the source is exhausted, close the writer, close the
// reader. The context is checked between iterations; cancellation aborts
// the run like any other fatal error.
func (c *Converter) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	c.logger.Info("starting conversion",
		zap.String("source", c.source),
		zap.String("destination", c.dest))

	if err := c.reader.Open(c.source); err != nil {
		return stats, err
	}
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", zap.Error(err))
		}
	}()

	if err := c.writer.Open(c.dest); err != nil {
		return stats, err
	}
	// The writer must be closed exactly once on every exit path. On the
	// success path it is closed explicitly below so the flush error can
	// fail the run; this defer covers the error paths only.
	writerClosed := false
	defer func() {
		if !writerClosed {
			if err := c.writer.Close(); err != nil {
				c.logger.Warn("closing writer after failed run", zap.Error(err))
			}
		}
	}()

	var evt event.Event
	if p, ok := c.reader.(format.ConversionPreparer); ok {
		p.PrepareForConversion(&evt)
	}

	for {
		select {
		case <-ctx.Done():
			return stats, errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "conversion cancelled")
		default:
		}

		ok, err := c.reader.NextEvent(&evt)
		if err != nil {
			return stats, err
		}
		if !ok {
			break
		}

		if err := c.writer.WriteEvent(&evt); err != nil {
			return stats, err
		}
		stats.Events++
	}

	writerClosed = true
	if err := c.writer.Close(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	c.logger.Info("conversion completed",
		zap.Int64("events", stats.Events),
		zap.Duration("duration", stats.Duration),
		zap.Float64("throughput_eps", stats.Throughput()))

	return stats, nil
}
