// Package notebook routes cell events to one concatenated document per
// notebook and turns the resulting changes into notifications for the
// analysis backend.
package notebook

import (
	"fmt"
	"sort"

	"nbconcat/internal/concat"
	"nbconcat/internal/nburi"
	"nbconcat/internal/protocol"
	"nbconcat/internal/trace"
)

// Backend notification methods.
const (
	MethodDidOpen   = "textDocument/didOpen"
	MethodDidChange = "textDocument/didChange"
	MethodDidClose  = "textDocument/didClose"
)

// Notification is one message to send to the backend.
type Notification struct {
	Method string
	Params any
}

// Options configures the documents created by a Converter.
type Options struct {
	Header            concat.HeaderFunc
	DisableTypeIgnore bool
	LanguageID        string
	Tracer            trace.Tracer
}

type entry struct {
	key  string
	doc  *concat.Document
	open bool
}

// Converter owns the concatenated documents. It is not safe for concurrent
// use.
type Converter struct {
	opts  Options
	byKey map[string]*entry
	byURI map[string]*entry
}

// NewConverter creates a converter with no open notebooks.
func NewConverter(opts Options) *Converter {
	if opts.Header == nil {
		opts.Header = concat.EmptyHeader
	}
	if opts.LanguageID == "" {
		opts.LanguageID = nburi.PythonLanguage
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	return &Converter{
		opts:  opts,
		byKey: make(map[string]*entry),
		byURI: make(map[string]*entry),
	}
}

func (c *Converter) entryFor(key string) *entry {
	if e, ok := c.byKey[key]; ok {
		return e
	}
	uri := nburi.ConcatURI(key)
	e := &entry{
		key: key,
		doc: concat.New(uri, concat.Options{
			Header:            c.opts.Header,
			DisableTypeIgnore: c.opts.DisableTypeIgnore,
			LanguageID:        c.opts.LanguageID,
			Tracer:            c.opts.Tracer,
		}),
	}
	c.byKey[key] = e
	c.byURI[uri] = e
	trace.Point(c.opts.Tracer, trace.ScopeNotebook, "notebook.new", key)
	return e
}

func (c *Converter) drop(e *entry) {
	delete(c.byKey, e.key)
	delete(c.byURI, e.doc.URI())
	trace.Point(c.opts.Tracer, trace.ScopeNotebook, "notebook.drop", e.key)
}

// routeKey returns the notebook an event belongs to.
func routeKey(ev concat.Event) string {
	if r, ok := ev.(concat.RefreshEvent); ok {
		if r.Notebook != "" {
			return nburi.NotebookKey(r.Notebook)
		}
		if len(r.Cells) > 0 {
			return nburi.NotebookKey(r.Cells[0].URI)
		}
		return ""
	}
	uri := concat.EventURI(ev)
	if !nburi.IsNotebookCell(uri) {
		return ""
	}
	return nburi.NotebookKey(uri)
}

// Handle applies one cell event and returns the backend notifications it
// causes. Events for documents that are not notebook cells are ignored.
func (c *Converter) Handle(ev concat.Event) []Notification {
	key := routeKey(ev)
	if key == "" {
		trace.Point(c.opts.Tracer, trace.ScopeNotebook, "event.skip", fmt.Sprintf("%T", ev))
		return nil
	}
	e, ok := c.byKey[key]
	if !ok {
		if _, closing := ev.(concat.CloseEvent); closing {
			return nil
		}
		e = c.entryFor(key)
	}
	change := e.doc.Handle(ev)
	doc := e.doc

	switch {
	case !e.open && !doc.Empty():
		e.open = true
		return []Notification{{
			Method: MethodDidOpen,
			Params: protocol.DidOpenTextDocumentParams{TextDocument: protocol.TextDocumentItem{
				URI:        doc.URI(),
				LanguageID: c.opts.LanguageID,
				Version:    doc.Version(),
				Text:       doc.Text(),
			}},
		}}
	case doc.Empty():
		c.drop(e)
		if !e.open {
			return nil
		}
		return []Notification{{
			Method: MethodDidClose,
			Params: protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI()}},
		}}
	case change != nil:
		return []Notification{{Method: MethodDidChange, Params: *change}}
	}
	return nil
}

// Document returns the concatenated document of a notebook.
func (c *Converter) Document(key string) (*concat.Document, bool) {
	e, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	return e.doc, true
}

// DocumentFor returns the concatenated document a cell belongs to.
func (c *Converter) DocumentFor(cellURI string) (*concat.Document, bool) {
	return c.Document(nburi.NotebookKey(cellURI))
}

// Notebooks returns the keys of all open notebooks, sorted.
func (c *Converter) Notebooks() []string {
	keys := make([]string, 0, len(c.byKey))
	for k := range c.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsConcatURI reports whether uri names one of the synthetic documents.
func (c *Converter) IsConcatURI(uri string) bool {
	_, ok := c.byURI[uri]
	return ok
}

// ConcatLocation maps a cell location into its synthetic document.
func (c *Converter) ConcatLocation(loc protocol.Location) (protocol.Location, error) {
	doc, ok := c.DocumentFor(loc.URI)
	if !ok {
		return protocol.Location{}, fmt.Errorf("%w: %s", concat.ErrNotFound, loc.URI)
	}
	r, err := doc.ConcatRangeAt(loc)
	if err != nil {
		return protocol.Location{}, err
	}
	return protocol.Location{URI: doc.URI(), Range: r}, nil
}

// NotebookLocation maps a location in a synthetic document back to a cell.
// Locations in other documents are returned unchanged.
func (c *Converter) NotebookLocation(loc protocol.Location) (protocol.Location, error) {
	e, ok := c.byURI[loc.URI]
	if !ok {
		return loc, nil
	}
	return e.doc.NotebookLocationOfRange(loc.Range)
}

// MapDiagnostics splits diagnostics published for a synthetic document into
// one publication per cell. Every open cell gets an entry so that stale
// diagnostics are cleared. Diagnostics starting in the header are dropped.
// The second result is false when params is not about a synthetic document.
func (c *Converter) MapDiagnostics(params protocol.PublishDiagnosticsParams) ([]protocol.PublishDiagnosticsParams, bool) {
	e, ok := c.byURI[params.URI]
	if !ok {
		return nil, false
	}
	doc := e.doc
	sp := trace.Begin(c.opts.Tracer, trace.ScopeNotebook, "diagnostics", 0)
	perCell := make(map[string][]protocol.Diagnostic)
	dropped := 0
	for _, diag := range params.Diagnostics {
		if diag.Range.Start.Line < doc.HeaderLines() {
			dropped++
			continue
		}
		loc, err := doc.NotebookLocationOfRange(diag.Range)
		if err != nil || loc.URI == "" {
			dropped++
			continue
		}
		diag.Range = loc.Range
		perCell[loc.URI] = append(perCell[loc.URI], diag)
	}
	cells := doc.Cells()
	out := make([]protocol.PublishDiagnosticsParams, 0, len(cells))
	for _, uri := range cells {
		diags := perCell[uri]
		if diags == nil {
			diags = []protocol.Diagnostic{}
		}
		out = append(out, protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: diags})
	}
	sp.WithExtra("dropped", fmt.Sprint(dropped)).End(params.URI)
	return out, true
}
