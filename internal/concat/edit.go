package concat

import (
	"fmt"
	"strconv"
	"strings"

	"nbconcat/internal/pragma"
	"nbconcat/internal/protocol"
	"nbconcat/internal/trace"
)

type bias uint8

const (
	biasLeft bias = iota
	biasRight
)

// HandleChange applies edits to one fragment and returns the equivalent edits
// on the synthetic document. Changes for unknown fragments or with a version
// that does not advance are dropped.
func (d *Document) HandleChange(params protocol.DidChangeTextDocumentParams) *protocol.DidChangeTextDocumentParams {
	uri := params.TextDocument.URI
	c, ok := d.byURI[uri]
	if !ok {
		trace.Point(d.tracer, trace.ScopeDocument, "change.unknown", uri)
		return nil
	}
	if params.TextDocument.Version <= c.frag.Version {
		trace.Point(d.tracer, trace.ScopeDocument, "change.stale",
			fmt.Sprintf("%s v%d <= v%d", uri, params.TextDocument.Version, c.frag.Version))
		return nil
	}
	sp := trace.Begin(d.tracer, trace.ScopeDocument, "change", 0)
	changes := make([]protocol.TextDocumentContentChangeEvent, 0, len(params.ContentChanges))
	for _, change := range params.ContentChanges {
		changes = append(changes, d.applyChange(c, change, sp.ID()))
	}
	c.frag.Version = params.TextDocument.Version
	sp.WithExtra("changes", strconv.Itoa(len(changes))).End(uri)
	if len(changes) == 0 {
		return nil
	}
	return d.emit(changes)
}

func (d *Document) applyChange(c *cell, change protocol.TextDocumentContentChangeEvent, parent uint64) protocol.TextDocumentContentChangeEvent {
	f := c.frag
	start, end := 0, len(f.Text())
	if change.Range != nil {
		start = d.mustOffset(c, change.Range.Start)
		end = d.mustOffset(c, change.Range.End)
		if end < start {
			panic(fmt.Errorf("concat: change range %d:%d-%d:%d in %s ends before it starts",
				change.Range.Start.Line, change.Range.Start.Character,
				change.Range.End.Line, change.Range.End.Character, f.URI))
		}
	}

	oldSpans := c.spans
	oldText := pragma.Join(oldSpans)
	f.Apply(start, end, change.Text)
	newSpans := d.CreateSpans(f.URI, f.Text()+"\n", c.start, 0)
	newText := pragma.Join(newSpans)

	from, to, text, narrow := translate(oldSpans, oldText, newText, start, end, change.Text, c.start)
	mode := "narrow"
	if !narrow {
		mode = "cell"
	}
	sp := trace.Begin(d.tracer, trace.ScopeEdit, "translate", parent)
	sp.WithExtra("mode", mode).WithExtra("from", strconv.Itoa(from)).WithExtra("to", strconv.Itoa(to))

	r := protocol.Range{Start: d.text.PositionAt(from), End: d.text.PositionAt(to)}
	d.text = d.text.Splice(from, to, text)

	delta := len(newText) - len(oldText)
	c.spans = newSpans
	c.end = c.start + len(newText)
	for _, next := range d.cells[c.idx+1:] {
		next.start += delta
		next.end += delta
		for i := range next.spans {
			next.spans[i] = next.spans[i].Shift(delta)
		}
	}
	sp.End(f.URI)
	return protocol.TextDocumentContentChangeEvent{Range: &r, Text: text}
}

// mustOffset resolves a fragment position. Lines outside the fragment are a
// contract violation by the editor.
func (d *Document) mustOffset(c *cell, pos protocol.Position) int {
	off, err := c.frag.OffsetAt(pos)
	if err != nil {
		panic(fmt.Errorf("concat: change position in %s: %w", c.frag.URI, err))
	}
	return off
}

// translate finds the smallest synthetic edit turning oldText into newText.
// A raw edit of [start,end) maps to a synthetic edit of the same text when an
// annotation did not appear or disappear around it; otherwise the whole cell
// is replaced. base is the synthetic offset of oldText.
func translate(oldSpans []pragma.Span, oldText, newText string, start, end int, inserted string, base int) (from, to int, text string, narrow bool) {
	for _, b := range [...]bias{biasLeft, biasRight} {
		s, ok := syntheticOffset(oldSpans, start, b)
		if !ok {
			continue
		}
		e, ok := syntheticOffset(oldSpans, end, b)
		if !ok || e < s {
			continue
		}
		if spliceEquals(oldText, s-base, e-base, inserted, newText) {
			return s, e, inserted, true
		}
	}
	return base, base + len(oldText), newText, false
}

// spliceEquals reports whether old[:s]+ins+old[e:] == want.
func spliceEquals(old string, s, e int, ins, want string) bool {
	if len(old)-(e-s)+len(ins) != len(want) {
		return false
	}
	return strings.HasPrefix(want, old[:s]) &&
		strings.HasPrefix(want[s:], ins) &&
		want[s+len(ins):] == old[e:]
}

// syntheticOffset maps a raw fragment offset to a synthetic one. A raw offset
// on the boundary of an annotation belongs to the verbatim span before it
// with biasLeft and to the one after it with biasRight.
func syntheticOffset(spans []pragma.Span, real int, b bias) (int, bool) {
	found, off := false, 0
	for _, s := range spans {
		if s.Kind != pragma.KindVerbatim {
			continue
		}
		if real < s.RealOffset || real > s.RealOffset+s.Len() {
			continue
		}
		found, off = true, s.Start+real-s.RealOffset
		if b == biasLeft {
			break
		}
	}
	return off, found
}
