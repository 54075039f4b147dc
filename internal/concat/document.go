// Package concat presents the open cells of one notebook as a single
// synthetic document. Every cell event is translated into the incremental
// change it causes on that document, and positions can be mapped in both
// directions between the document and the cells.
package concat

import (
	"errors"
	"fmt"
	"strconv"

	"nbconcat/internal/fragment"
	"nbconcat/internal/nburi"
	"nbconcat/internal/pragma"
	"nbconcat/internal/protocol"
	"nbconcat/internal/source"
	"nbconcat/internal/trace"
)

var (
	// ErrNotFound reports a fragment URI that is not open in the document.
	ErrNotFound = errors.New("fragment not open")
	// ErrInvalidArgument reports a position outside the document or fragment.
	ErrInvalidArgument = errors.New("invalid argument")
)

// HeaderFunc computes the header text for a document from its first cell.
type HeaderFunc func(uri string) string

// EmptyHeader produces no header.
func EmptyHeader(string) string { return "" }

// Options configures a Document.
type Options struct {
	// Header is required. It is evaluated once, when the first cell opens.
	Header HeaderFunc
	// DisableTypeIgnore turns off pragma annotation.
	DisableTypeIgnore bool
	// LanguageID is the language cells must have to be included. Interactive
	// input fragments are accepted regardless.
	LanguageID string
	Tracer     trace.Tracer
}

// DefaultOptions returns options for a python document without a header.
func DefaultOptions() Options {
	return Options{
		Header:     EmptyHeader,
		LanguageID: nburi.PythonLanguage,
		Tracer:     trace.Nop,
	}
}

// cell is the placement of one fragment in the synthetic text.
type cell struct {
	frag  *fragment.Fragment
	idx   int
	start int
	end   int
	spans []pragma.Span
}

// Document is the concatenated view of one notebook's cells. It is not safe
// for concurrent use.
type Document struct {
	uri      string
	language string
	headerFn HeaderFunc
	header   string
	computed bool
	rewriter *pragma.Rewriter
	tracer   trace.Tracer

	registry *fragment.Registry
	cells    []*cell
	byURI    map[string]*cell
	text     *source.Buffer
	version  int
}

// New creates an empty document published under uri.
func New(uri string, opts Options) *Document {
	if opts.Header == nil {
		panic("concat: Options.Header is required")
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	return &Document{
		uri:      uri,
		language: opts.LanguageID,
		headerFn: opts.Header,
		rewriter: pragma.NewRewriter(opts.DisableTypeIgnore),
		tracer:   opts.Tracer,
		registry: fragment.NewRegistry(),
		byURI:    make(map[string]*cell),
		text:     source.NewBuffer(""),
	}
}

// URI returns the identifier of the synthetic document.
func (d *Document) URI() string { return d.uri }

// Version returns the version of the last emitted change.
func (d *Document) Version() int { return d.version }

// Text returns the full synthetic text.
func (d *Document) Text() string { return d.text.Content }

// LineCount returns the number of text lines in the synthetic document.
func (d *Document) LineCount() int { return d.text.TextLineCount() }

// LineAt returns synthetic line n without its terminator.
func (d *Document) LineAt(n int) (string, error) {
	if n < 0 || n >= d.LineCount() {
		return "", fmt.Errorf("%w: line %d of %d", ErrInvalidArgument, n, d.LineCount())
	}
	return d.text.Line(n)
}

// LanguageID returns the language of the first fragment, or "" when no
// fragment is open.
func (d *Document) LanguageID() string {
	all := d.registry.All()
	if len(all) == 0 {
		return ""
	}
	return all[0].LanguageID
}

// Cells returns the fragment URIs in concatenation order.
func (d *Document) Cells() []string {
	out := make([]string, 0, len(d.cells))
	for _, c := range d.cells {
		out = append(out, c.frag.URI)
	}
	return out
}

// Fragment returns an open fragment.
func (d *Document) Fragment(uri string) (*fragment.Fragment, bool) {
	return d.registry.Get(uri)
}

// Empty reports whether no fragment is open.
func (d *Document) Empty() bool { return d.registry.Len() == 0 }

// Header returns the computed header, or "" before the first cell opened.
func (d *Document) Header() string { return d.header }

// Spans returns a copy of the spans of an open fragment.
func (d *Document) Spans(uri string) ([]pragma.Span, error) {
	c, ok := d.byURI[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return append([]pragma.Span(nil), c.spans...), nil
}

// CreateSpans builds the spans for a fragment placed at synthetic offset
// start. A non-input fragment placed at offset zero carries the header.
func (d *Document) CreateSpans(uri, text string, start, realStart int) []pragma.Span {
	var spans []pragma.Span
	if start == 0 && d.header != "" && !nburi.IsInputCell(uri) {
		h := d.rewriter.Rewrite(d.header + "\n")
		spans = append(spans, pragma.Span{
			Kind:       pragma.KindHeader,
			Text:       h,
			Start:      0,
			End:        len(h),
			RealOffset: pragma.NoRealOffset,
		})
		start = len(h)
	}
	return append(spans, d.rewriter.Spans(text, start, realStart)...)
}

func (d *Document) accepts(item protocol.TextDocumentItem) bool {
	if nburi.IsInputCell(item.URI) {
		return true
	}
	return d.language == "" || item.LanguageID == d.language
}

func (d *Document) ensureHeader(uri string) {
	if d.computed {
		return
	}
	d.header = d.headerFn(uri)
	d.computed = true
}

// rebuild recomputes every cell placement and the synthetic text.
func (d *Document) rebuild() {
	sp := trace.Begin(d.tracer, trace.ScopeDocument, "rebuild", 0)
	all := d.registry.All()
	d.cells = make([]*cell, 0, len(all))
	d.byURI = make(map[string]*cell, len(all))
	var content []byte
	offset := 0
	for i, f := range all {
		spans := d.CreateSpans(f.URI, f.Text()+"\n", offset, 0)
		c := &cell{frag: f, idx: i, start: offset, spans: spans}
		for _, s := range spans {
			content = append(content, s.Text...)
		}
		offset = len(content)
		c.end = offset
		d.cells = append(d.cells, c)
		d.byURI[f.URI] = c
	}
	d.text = source.NewBuffer(string(content))
	sp.WithExtra("cells", strconv.Itoa(len(all))).WithExtra("bytes", strconv.Itoa(len(content))).End(d.uri)
}

func (d *Document) emit(changes []protocol.TextDocumentContentChangeEvent) *protocol.DidChangeTextDocumentParams {
	d.version++
	return &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			URI:     d.uri,
			Version: d.version,
		},
		ContentChanges: changes,
	}
}

// HandleOpen adds a fragment. Fragments of another language are ignored.
func (d *Document) HandleOpen(params protocol.DidOpenTextDocumentParams) *protocol.DidChangeTextDocumentParams {
	item := params.TextDocument
	if !d.accepts(item) {
		trace.Point(d.tracer, trace.ScopeDocument, "open.skip", item.URI+" "+item.LanguageID)
		return nil
	}
	d.ensureHeader(item.URI)
	old := d.text
	d.registry.Open(item)
	d.rebuild()
	return d.emitDiff(old)
}

// HandleClose removes a fragment. Unknown fragments are ignored.
func (d *Document) HandleClose(params protocol.DidCloseTextDocumentParams) *protocol.DidChangeTextDocumentParams {
	old := d.text
	if !d.registry.Close(params.TextDocument.URI) {
		trace.Point(d.tracer, trace.ScopeDocument, "close.skip", params.TextDocument.URI)
		return nil
	}
	d.rebuild()
	return d.emitDiff(old)
}

// HandleRefresh replaces the fragment set with a fresh snapshot and emits a
// full document replacement.
func (d *Document) HandleRefresh(params protocol.RefreshNotebookParams) *protocol.DidChangeTextDocumentParams {
	items := make([]protocol.TextDocumentItem, 0, len(params.Cells))
	for _, item := range params.Cells {
		if d.accepts(item) {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		d.ensureHeader(items[0].URI)
	}
	d.registry.Replace(items)
	d.rebuild()
	return d.emit([]protocol.TextDocumentContentChangeEvent{{Text: d.text.Content}})
}

// emitDiff describes the move from old to the current text as one change.
func (d *Document) emitDiff(old *source.Buffer) *protocol.DidChangeTextDocumentParams {
	start, oldEnd, newEnd, ok := lineDiff(old.Content, d.text.Content)
	if !ok {
		return nil
	}
	r := protocol.Range{Start: old.PositionAt(start), End: old.PositionAt(oldEnd)}
	return d.emit([]protocol.TextDocumentContentChangeEvent{{
		Range: &r,
		Text:  d.text.Content[start:newEnd],
	}})
}
