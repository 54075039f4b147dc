// Package journal persists the cell events seen by the proxy so that a
// session can be replayed offline against fresh documents.
package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"nbconcat/internal/concat"
	"nbconcat/internal/protocol"
)

// Current schema version - increment when Record format changes
const schemaVersion uint16 = 1

var (
	// ErrSchema reports a record written by an incompatible version.
	ErrSchema = errors.New("journal schema mismatch")
	// ErrUnknownKind reports a record whose kind cannot be decoded.
	ErrUnknownKind = errors.New("unknown journal record kind")
)

// Kind tags the event stored in a Record.
type Kind uint8

const (
	KindOpen Kind = iota + 1
	KindChange
	KindClose
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindChange:
		return "change"
	case KindClose:
		return "close"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Record is one journaled event. Exactly one payload field is set.
type Record struct {
	Schema  uint16                                `msgpack:"v"`
	Seq     uint64                                `msgpack:"seq"`
	Time    time.Time                             `msgpack:"t"`
	Kind    Kind                                  `msgpack:"k"`
	Open    *protocol.DidOpenTextDocumentParams   `msgpack:"open,omitempty"`
	Change  *protocol.DidChangeTextDocumentParams `msgpack:"change,omitempty"`
	Close   *protocol.DidCloseTextDocumentParams  `msgpack:"close,omitempty"`
	Refresh *protocol.RefreshNotebookParams       `msgpack:"refresh,omitempty"`
}

// NewRecord wraps ev.
func NewRecord(ev concat.Event) (Record, error) {
	rec := Record{Schema: schemaVersion}
	switch ev := ev.(type) {
	case concat.OpenEvent:
		p := protocol.DidOpenTextDocumentParams(ev)
		rec.Kind, rec.Open = KindOpen, &p
	case concat.ChangeEvent:
		p := protocol.DidChangeTextDocumentParams(ev)
		rec.Kind, rec.Change = KindChange, &p
	case concat.CloseEvent:
		p := protocol.DidCloseTextDocumentParams(ev)
		rec.Kind, rec.Close = KindClose, &p
	case concat.RefreshEvent:
		p := protocol.RefreshNotebookParams(ev)
		rec.Kind, rec.Refresh = KindRefresh, &p
	default:
		return Record{}, fmt.Errorf("%w: %T", ErrUnknownKind, ev)
	}
	return rec, nil
}

// Event returns the stored event.
func (r Record) Event() (concat.Event, error) {
	if r.Schema != schemaVersion {
		return nil, fmt.Errorf("%w: record %d has schema %d, want %d", ErrSchema, r.Seq, r.Schema, schemaVersion)
	}
	switch {
	case r.Kind == KindOpen && r.Open != nil:
		return concat.OpenEvent(*r.Open), nil
	case r.Kind == KindChange && r.Change != nil:
		return concat.ChangeEvent(*r.Change), nil
	case r.Kind == KindClose && r.Close != nil:
		return concat.CloseEvent(*r.Close), nil
	case r.Kind == KindRefresh && r.Refresh != nil:
		return concat.RefreshEvent(*r.Refresh), nil
	default:
		return nil, fmt.Errorf("%w: record %d kind %s", ErrUnknownKind, r.Seq, r.Kind)
	}
}

// Writer appends records to a stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	closer io.Closer
	seq    uint64
	now    func() time.Time
}

// NewWriter writes records to w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{
		buf: buf,
		enc: msgpack.NewEncoder(buf),
		now: time.Now,
	}
}

// Create opens path for appending and returns a writer on it.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Record appends ev and flushes it.
func (w *Writer) Record(ev concat.Event) error {
	rec, err := NewRecord(ev)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	rec.Seq = w.seq
	rec.Time = w.now().UTC()
	if err := w.enc.Encode(&rec); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close flushes and closes the underlying file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.buf.Flush()
	if w.closer != nil {
		if closeErr := w.closer.Close(); err == nil {
			err = closeErr
		}
		w.closer = nil
	}
	return err
}

// Reader decodes records in order.
type Reader struct {
	dec *msgpack.Decoder
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ReadAll decodes every record in r.
func ReadAll(r io.Reader) ([]Record, error) {
	reader := NewReader(r)
	var out []Record
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// ReadFile decodes the journal stored at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}
