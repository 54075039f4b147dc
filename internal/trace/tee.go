package trace

import (
	"errors"
	"io"
)

// Tee sends every event to several tracers.
type Tee struct {
	gate
	tracers []Tracer
}

// NewTee creates a Tee. Each tracer still applies its own level.
func NewTee(level Level, tracers ...Tracer) *Tee {
	return &Tee{gate: gate{level: level}, tracers: tracers}
}

func (t *Tee) Emit(ev *Event) {
	for _, tr := range t.tracers {
		tr.Emit(ev)
	}
}

func (t *Tee) Flush() error {
	errs := make([]error, 0, len(t.tracers))
	for _, tr := range t.tracers {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

func (t *Tee) Close() error {
	errs := make([]error, 0, len(t.tracers))
	for _, tr := range t.tracers {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

// RingOf returns the Ring inside t, if any.
func RingOf(t Tracer) (*Ring, bool) {
	switch t := t.(type) {
	case *Ring:
		return t, true
	case *Tee:
		for _, tr := range t.tracers {
			if r, ok := RingOf(tr); ok {
				return r, true
			}
		}
	}
	return nil, false
}

// DumpRecent writes the last n events kept by t to w as text. It reports
// whether t keeps events at all.
func DumpRecent(t Tracer, w io.Writer, n int) bool {
	r, ok := RingOf(t)
	if !ok {
		return false
	}
	_ = r.Dump(w, FormatText, n)
	return true
}
