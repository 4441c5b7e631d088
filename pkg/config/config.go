// Package config defines the conversion run configuration consumed by the
// CLI: one source endpoint and one destination endpoint, each naming a
// format selector, a path and the optional compression settings.
package config

import (
	"encoding/json"
	"os"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/format"
)

// Endpoint describes one side of a conversion.
type Endpoint struct {
	// Format is the format selector (sqlite, arrow-row, arrow-col, avro,
	// proto, root).
	Format string `json:"format"`
	// Path is the source or destination path. The analysis-tree reader
	// also accepts a comma-separated list of files to chain.
	Path string `json:"path"`
	// Compressed enables the compressed mode on the formats that have
	// one (avro, proto, root); the others ignore it.
	Compressed bool `json:"compressed,omitempty"`
	// Codec selects the message-stream filter (gzip or zstd).
	Codec string `json:"codec,omitempty"`
}

// ParseFormat returns the endpoint's format selector.
func (e *Endpoint) ParseFormat() (format.Format, error) {
	f, err := format.ParseFormat(e.Format)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "parsing endpoint format")
	}
	return f, nil
}

// Options returns the endpoint's construction-time options.
func (e *Endpoint) Options() format.Options {
	return format.Options{
		Compressed: e.Compressed,
		Codec:      e.Codec,
	}
}

// Config is one conversion run: any readable format to any writable one.
type Config struct {
	Source      Endpoint `json:"source"`
	Destination Endpoint `json:"destination"`
}

// Load reads and validates a JSON config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "reading config file").WithDetail("path", path)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "parsing config file").WithDetail("path", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that both endpoints name a known format and a path, and
// that the chosen variants are actually registered.
func (c *Config) Validate() error {
	src, err := c.Source.ParseFormat()
	if err != nil {
		return err
	}
	dst, err := c.Destination.ParseFormat()
	if err != nil {
		return err
	}

	if c.Source.Path == "" {
		return errors.New(errors.ErrorTypeConfig, "source path is required")
	}
	if c.Destination.Path == "" {
		return errors.New(errors.ErrorTypeConfig, "destination path is required")
	}

	if !format.HasReader(src) {
		return errors.Newf(errors.ErrorTypeConfig, "format %s is not readable", src)
	}
	if !format.HasWriter(dst) {
		return errors.Newf(errors.ErrorTypeConfig, "format %s is not writable", dst)
	}
	return nil
}
