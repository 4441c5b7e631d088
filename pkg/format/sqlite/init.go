package sqlite

import "github.com/openhep/evconv/pkg/format"

func init() {
	// The relational back-end has no compressed mode; options are ignored.
	_ = format.RegisterReader(format.SQLite, func(format.Options) (format.Reader, error) {
		return NewReader(), nil
	})
	_ = format.RegisterWriter(format.SQLite, func(format.Options) (format.Writer, error) {
		return NewWriter(), nil
	})
}
