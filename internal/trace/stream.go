package trace

import (
	"io"
	"sync"
)

// Stream writes each admitted event to w as it arrives.
type Stream struct {
	gate
	mu     sync.Mutex
	w      io.Writer
	format Format
}

// NewStream creates a Stream. FormatAuto is written as text.
func NewStream(w io.Writer, level Level, format Format) *Stream {
	if format == FormatAuto {
		format = FormatText
	}
	return &Stream{gate: gate{level: level}, w: w, format: format}
}

// Emit writes ev. Write errors are ignored so that a broken sink never
// stops the proxy.
func (t *Stream) Emit(ev *Event) {
	if !t.admits(ev) {
		return
	}
	data := FormatEvent(ev, t.format)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.w.Write(data) //nolint:errcheck
}

// Flush flushes w when it buffers.
func (t *Stream) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if flusher, ok := t.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close flushes and closes w when it is closable.
func (t *Stream) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if closer, ok := t.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
