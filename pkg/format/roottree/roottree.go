// Package roottree implements the analysis-tree back-end on ROOT files
// through go-hep's groot. The branch set mirrors the flattened row shape
// (charge and muon flags widened to int32), bound by name on the tree
// named DecayTree.
//
// The tree reader follows a pull-by-address model: branch storage
// addresses must be bound before iteration starts, which is what the
// PrepareForConversion capability exists for. The double branches are
// bound straight into the prepared event; the two int32 flag branches go
// through a shadow buffer and are narrowed to bool on every NextEvent.
package roottree

import (
	"fmt"
	"strings"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/openhep/evconv/pkg/errors"
	"github.com/openhep/evconv/pkg/event"
	"github.com/openhep/evconv/pkg/format"
)

// TreeName is the name of the event tree inside every analysis-tree file.
const TreeName = "DecayTree"

// errStopped aborts the read pump when the reader is closed before the
// chain is exhausted.
var errStopped = errors.New(errors.ErrorTypeInternal, "tree read pump stopped")

// branchName renders the per-candidate branch names: H1_PX, H2_ProbK,
// H3_isMuon and so on.
func branchName(cand int, leaf string) string {
	return fmt.Sprintf("H%d_%s", cand+1, leaf)
}

// Reader reads events from one or more chained tree files. Open accepts a
// single path or a comma-separated list, viewed as one sequential chain.
type Reader struct {
	tree    rtree.Tree
	closer  func() error
	scan    *rtree.Reader
	started bool

	prepared *event.Event
	vars     []rtree.ReadVar
	charge   [event.NumCandidates]int32
	isMuon   [event.NumCandidates]int32

	numEvents int64
	posEvents int64

	ready    chan struct{}
	resume   chan struct{}
	quit     chan struct{}
	pumpDone chan struct{}
	readErr  error

	path string
}

// NewReader creates an unopened analysis-tree reader.
func NewReader() *Reader {
	return &Reader{}
}

// Open chains the source files into one sequential view and records the
// total entry count. Branch binding happens later, in
// PrepareForConversion.
func (r *Reader) Open(path string) error {
	files := strings.Split(path, ",")
	tree, closer, err := rtree.ChainOf(TreeName, files...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "chaining tree files").WithDetail("path", path)
	}

	r.tree = tree
	r.closer = closer
	r.numEvents = tree.Entries()
	r.posEvents = 0
	r.path = path
	return nil
}

// PrepareForConversion binds evt's storage addresses to the tree's branch
// slots. It must be called once after Open and before the first NextEvent;
// every subsequent NextEvent must be given the same event instance.
func (r *Reader) PrepareForConversion(evt *event.Event) {
	vars := make([]rtree.ReadVar, 0, event.NumFlatColumns)
	vars = append(vars,
		rtree.ReadVar{Name: "B_FlightDistance", Value: &evt.FlightDistance},
		rtree.ReadVar{Name: "B_VertexChi2", Value: &evt.VertexChi2},
	)
	for i := range evt.Candidates {
		c := &evt.Candidates[i]
		vars = append(vars,
			rtree.ReadVar{Name: branchName(i, "PX"), Value: &c.PX},
			rtree.ReadVar{Name: branchName(i, "PY"), Value: &c.PY},
			rtree.ReadVar{Name: branchName(i, "PZ"), Value: &c.PZ},
			rtree.ReadVar{Name: branchName(i, "ProbK"), Value: &c.ProbK},
			rtree.ReadVar{Name: branchName(i, "ProbPi"), Value: &c.ProbPi},
			rtree.ReadVar{Name: branchName(i, "Charge"), Value: &r.charge[i]},
			rtree.ReadVar{Name: branchName(i, "isMuon"), Value: &r.isMuon[i]},
			rtree.ReadVar{Name: branchName(i, "IPChi2"), Value: &c.IPChi2},
		)
	}

	r.prepared = evt
	r.vars = vars
}

// NextEvent copies the next chain entry into the prepared event. The
// callback-driven tree reader is adapted to this pull contract by a pump
// goroutine that pauses after each entry until the next call resumes it.
func (r *Reader) NextEvent(evt *event.Event) (bool, error) {
	if r.tree == nil {
		return false, errors.New(errors.ErrorTypeInternal, "tree reader not opened")
	}
	if r.prepared == nil {
		return false, errors.New(errors.ErrorTypeCapability, "NextEvent called without PrepareForConversion")
	}
	if evt != r.prepared {
		return false, errors.New(errors.ErrorTypeInternal, "NextEvent called with an event other than the prepared one")
	}

	if r.posEvents >= r.numEvents {
		return false, nil
	}

	if !r.started {
		if err := r.startPump(); err != nil {
			return false, err
		}
	} else {
		r.resume <- struct{}{}
	}

	if _, ok := <-r.ready; !ok {
		if r.readErr != nil {
			return false, errors.Wrap(r.readErr, errors.ErrorTypeDecode, "reading tree entry").WithDetail("path", r.path)
		}
		return false, nil
	}

	for i := range evt.Candidates {
		evt.Candidates[i].Charge = r.charge[i] != 0
		evt.Candidates[i].IsMuon = r.isMuon[i] != 0
	}
	r.posEvents++
	return true, nil
}

// startPump creates the tree reader over the bound branch addresses and
// launches the goroutine that steps it one entry per handshake.
func (r *Reader) startPump() error {
	scan, err := rtree.NewReader(r.tree, r.vars)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "binding tree branches").WithDetail("path", r.path)
	}

	r.scan = scan
	r.ready = make(chan struct{})
	r.resume = make(chan struct{})
	r.quit = make(chan struct{})
	r.pumpDone = make(chan struct{})
	r.started = true

	go func() {
		defer close(r.pumpDone)
		err := scan.Read(func(rtree.RCtx) error {
			select {
			case r.ready <- struct{}{}:
			case <-r.quit:
				return errStopped
			}
			select {
			case <-r.resume:
				return nil
			case <-r.quit:
				return errStopped
			}
		})
		if err != nil && err != errStopped {
			r.readErr = err
		}
		close(r.ready)
	}()

	return nil
}

// Position returns the number of entries consumed so far and the total
// entry count of the chain.
func (r *Reader) Position() (pos, total int64) {
	return r.posEvents, r.numEvents
}

// Close stops the pump if it is still parked mid-chain and releases the
// tree reader and the chained files.
func (r *Reader) Close() error {
	var firstErr error
	if r.started {
		close(r.quit)
		<-r.pumpDone
		r.started = false
	}
	if r.scan != nil {
		if err := r.scan.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.scan = nil
	}
	if r.closer != nil {
		if err := r.closer(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.closer = nil
	}
	r.tree = nil
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeResource, "closing tree reader")
	}
	return nil
}

// Writer commits one tree entry per WriteEvent. The branch addresses are
// bound once at Open to a persistent flattened buffer; WriteEvent copies
// the argument into that buffer and fills the entry.
type Writer struct {
	f          *riofs.File
	tw         rtree.Writer
	row        event.FlatRow
	compressed bool
	path       string
}

// NewWriter creates an unopened analysis-tree writer. When compressed is
// true the file uses zlib compression, otherwise branch baskets are
// stored raw.
func NewWriter(compressed bool) *Writer {
	return &Writer{compressed: compressed}
}

// Open creates the destination file and the tree with the 26 flat
// branches bound to the persistent buffer.
func (w *Writer) Open(path string) error {
	var opts []riofs.FileOption
	if w.compressed {
		opts = append(opts, riofs.WithZlib(1))
	} else {
		opts = append(opts, riofs.WithoutCompression())
	}

	f, err := groot.Create(path, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating tree file").WithDetail("path", path)
	}

	vars := make([]rtree.WriteVar, 0, event.NumFlatColumns)
	vars = append(vars,
		rtree.WriteVar{Name: "B_FlightDistance", Value: &w.row.BFlightDistance},
		rtree.WriteVar{Name: "B_VertexChi2", Value: &w.row.BVertexChi2},
	)
	for i := range w.row.H {
		h := &w.row.H[i]
		vars = append(vars,
			rtree.WriteVar{Name: branchName(i, "PX"), Value: &h.PX},
			rtree.WriteVar{Name: branchName(i, "PY"), Value: &h.PY},
			rtree.WriteVar{Name: branchName(i, "PZ"), Value: &h.PZ},
			rtree.WriteVar{Name: branchName(i, "ProbK"), Value: &h.ProbK},
			rtree.WriteVar{Name: branchName(i, "ProbPi"), Value: &h.ProbPi},
			rtree.WriteVar{Name: branchName(i, "Charge"), Value: &h.Charge},
			rtree.WriteVar{Name: branchName(i, "isMuon"), Value: &h.IsMuon},
			rtree.WriteVar{Name: branchName(i, "IPChi2"), Value: &h.IPChi2},
		)
	}

	tw, err := rtree.NewWriter(f, TreeName, vars)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.ErrorTypeOpen, "creating tree writer").WithDetail("path", path)
	}

	w.f = f
	w.tw = tw
	w.path = path
	return nil
}

// WriteEvent copies evt into the bound buffer and commits one entry.
func (w *Writer) WriteEvent(evt *event.Event) error {
	if w.tw == nil {
		return errors.New(errors.ErrorTypeInternal, "tree writer not opened")
	}

	w.row.FromEvent(evt)
	if _, err := w.tw.Write(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEncode, "filling tree entry").WithDetail("path", w.path)
	}
	return nil
}

// Close flushes the tree and closes the file, in that order.
func (w *Writer) Close() error {
	var firstErr error
	if w.tw != nil {
		if err := w.tw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.tw = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.f = nil
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ErrorTypeResource, "closing tree writer")
	}
	return nil
}

func init() {
	_ = format.RegisterReader(format.Root, func(format.Options) (format.Reader, error) {
		return NewReader(), nil
	})
	_ = format.RegisterWriter(format.Root, func(opts format.Options) (format.Writer, error) {
		return NewWriter(opts.Compressed), nil
	})
}
