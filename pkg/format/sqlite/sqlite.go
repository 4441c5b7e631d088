// Package sqlite implements the relational back-end: one table named
// events holding the 26-column flattened row shape. Column order and the
// integer widening of the charge and muon flags are the on-disk contract
// shared with every other row-oriented back-end.
package sqlite

import (
	"database/sql"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/event"
)

const tableName = "events"

// columnDDL renders the CREATE TABLE column list: REAL scalars except the
// two widened flag columns per candidate, which are INTEGER.
func columnDDL() string {
	defs := make([]string, 0, event.NumFlatColumns)
	for _, col := range event.FlatColumns {
		typ := "REAL"
		if strings.Contains(col, "charge") || strings.Contains(col, "is_muon") {
			typ = "INTEGER"
		}
		defs = append(defs, col+" "+typ)
	}
	return strings.Join(defs, ", ")
}

func columnList() string {
	return strings.Join(event.FlatColumns, ", ")
}

func placeholderList() string {
	return strings.TrimSuffix(strings.Repeat("?, ", event.NumFlatColumns), ", ")
}

// Reader reads events back from the relational table in rowid order, one
// row per NextEvent, narrowing the widened flag columns to bool.
type Reader struct {
	db   *sql.DB
	rows *sql.Rows
	row  event.FlatRow
	path string
}

// NewReader creates an unopened relational reader.
func NewReader() *Reader {
	return &Reader{}
}

// Open opens the database read-only and executes the single ordered
// SELECT that enumerates all events.
func (r *Reader) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "sqlite source does not exist").WithDetail("path", path)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "opening sqlite database").WithDetail("path", path)
	}

	rows, err := db.Query("SELECT " + columnList() + " FROM " + tableName + " ORDER BY rowid")
	if err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "querying events table").WithDetail("path", path)
	}

	r.db = db
	r.rows = rows
	r.path = path
	return nil
}

// NextEvent scans the next row of the result cursor into evt.
func (r *Reader) NextEvent(evt *event.Event) (bool, error) {
	if r.rows == nil {
		return false, errors.New(errors.ErrorTypeInternal, "sqlite reader not opened")
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return false, errors.Wrap(err, errors.ErrorTypeDecode, "stepping select statement").WithDetail("path", r.path)
		}
		return false, nil
	}

	if err := r.rows.Scan(r.row.Pointers()...); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeDecode, "scanning event row").WithDetail("path", r.path)
	}

	r.row.ToEvent(evt)
	return true, nil
}

// Close releases the result cursor and the database handle.
func (r *Reader) Close() error {
	var firstErr error
	if r.rows != nil {
		if err := r.rows.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.rows = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.db = nil
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeResource, "closing sqlite reader")
	}
	return nil
}

// Writer appends events to the relational table through one prepared
// INSERT per call. All writes happen inside a single transaction committed
// at Close; the table is created at Open.
type Writer struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
	row  event.FlatRow
	path string
}

// NewWriter creates an unopened relational writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Open creates or truncates the destination database, creates the events
// table and prepares the INSERT statement. Durability pragmas are relaxed:
// the destination of a failed run is unspecified anyway, so the journal is
// kept in memory for bulk-load speed.
func (w *Writer) Open(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrorTypeOpen, "truncating sqlite destination").WithDetail("path", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating sqlite database").WithDetail("path", path)
	}

	for _, pragma := range []string{
		"PRAGMA synchronous = OFF",
		"PRAGMA journal_mode = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return errors.Wrap(err, errors.ErrorTypeOpen, "setting bulk-load pragma").WithDetail("pragma", pragma)
		}
	}

	if _, err := db.Exec("CREATE TABLE " + tableName + " (" + columnDDL() + ")"); err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating events table").WithDetail("path", path)
	}

	tx, err := db.Begin()
	if err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.ErrorTypeResource, "beginning insert transaction")
	}

	stmt, err := tx.Prepare("INSERT INTO " + tableName + " (" + columnList() + ") VALUES (" + placeholderList() + ")")
	if err != nil {
		_ = tx.Rollback()
		_ = db.Close()
		return errors.Wrap(err, errors.ErrorTypeResource, "preparing insert statement")
	}

	w.db = db
	w.tx = tx
	w.stmt = stmt
	w.path = path
	return nil
}

// WriteEvent binds the flattened form of evt to the prepared INSERT and
// executes it.
func (w *Writer) WriteEvent(evt *event.Event) error {
	if w.stmt == nil {
		return errors.New(errors.ErrorTypeInternal, "sqlite writer not opened")
	}

	w.row.FromEvent(evt)
	if _, err := w.stmt.Exec(w.row.Values()...); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEncode, "inserting event row").WithDetail("path", w.path)
	}
	return nil
}

// Close finalizes the statement, commits the transaction and closes the
// database, leaving the destination readable.
func (w *Writer) Close() error {
	var firstErr error
	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.stmt = nil
	}
	if w.tx != nil {
		if err := w.tx.Commit(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.tx = nil
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.db = nil
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeResource, "closing sqlite writer")
	}
	return nil
}
