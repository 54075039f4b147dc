// Package fragment tracks the ordered set of open notebook fragments and
// their line indexed text.
package fragment

import (
	"fmt"

	"nbconcat/internal/nburi"
	"nbconcat/internal/protocol"
	"nbconcat/internal/source"
)

// Fragment is one open cell or the interactive input box.
type Fragment struct {
	URI        string
	LanguageID string
	Version    int
	Input      bool
	buf        *source.Buffer
}

// Text returns the raw fragment text.
func (f *Fragment) Text() string {
	return f.buf.Content
}

// LineCount returns the number of addressable lines.
func (f *Fragment) LineCount() int {
	return f.buf.LineCount()
}

// LineAt returns line n without its terminator.
func (f *Fragment) LineAt(n int) (string, error) {
	return f.buf.Line(n)
}

// OffsetAt converts a fragment-local position into a raw byte offset.
func (f *Fragment) OffsetAt(pos protocol.Position) (int, error) {
	return f.buf.OffsetAt(pos)
}

// PositionAt converts a raw byte offset into a fragment-local position.
func (f *Fragment) PositionAt(offset int) protocol.Position {
	return f.buf.PositionAt(offset)
}

// Apply replaces text[start:end] with text.
func (f *Fragment) Apply(start, end int, text string) {
	f.buf = f.buf.Splice(start, end, text)
}

func (f *Fragment) setText(text string) {
	f.buf = source.NewBuffer(text)
}

// Registry keeps fragments in concatenation order. The input fragment, when
// present, is always last.
type Registry struct {
	order []*Fragment
	index map[string]*Fragment
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		order: make([]*Fragment, 0),
		index: make(map[string]*Fragment),
	}
}

// Open inserts a fragment. Reopening an open URI replaces its content and
// bumps its version; the returned flag reports that case.
func (r *Registry) Open(item protocol.TextDocumentItem) (*Fragment, bool) {
	if f, ok := r.index[item.URI]; ok {
		f.LanguageID = item.LanguageID
		f.Version = max(item.Version, f.Version+1)
		f.setText(item.Text)
		return f, true
	}
	f := newFragment(item)
	r.index[f.URI] = f
	if f.Input {
		r.order = append(r.order, f)
		return f, false
	}
	pos := len(r.order)
	if pos > 0 && r.order[pos-1].Input {
		pos--
	}
	r.order = append(r.order, nil)
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = f
	return f, false
}

func newFragment(item protocol.TextDocumentItem) *Fragment {
	return &Fragment{
		URI:        item.URI,
		LanguageID: item.LanguageID,
		Version:    item.Version,
		Input:      nburi.IsInputCell(item.URI),
		buf:        source.NewBuffer(item.Text),
	}
}

// Close removes a fragment. Unknown URIs are ignored.
func (r *Registry) Close(uri string) bool {
	f, ok := r.index[uri]
	if !ok {
		return false
	}
	delete(r.index, uri)
	for i, cur := range r.order {
		if cur == f {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get looks up an open fragment.
func (r *Registry) Get(uri string) (*Fragment, bool) {
	f, ok := r.index[uri]
	return f, ok
}

// All returns the fragments in concatenation order. The slice is shared and
// must not be modified.
func (r *Registry) All() []*Fragment {
	return r.order
}

// Len returns the number of open fragments.
func (r *Registry) Len() int {
	return len(r.order)
}

// Replace installs a new order from a refresh snapshot. An input fragment
// that the snapshot does not mention is kept, still last.
func (r *Registry) Replace(items []protocol.TextDocumentItem) {
	var input *Fragment
	for _, f := range r.order {
		if f.Input {
			input = f
		}
	}
	r.order = make([]*Fragment, 0, len(items)+1)
	r.index = make(map[string]*Fragment, len(items)+1)
	for _, item := range items {
		if _, dup := r.index[item.URI]; dup {
			panic(fmt.Errorf("refresh lists %s twice", item.URI))
		}
		f := newFragment(item)
		if f.Input {
			input = f
			continue
		}
		r.index[f.URI] = f
		r.order = append(r.order, f)
	}
	if input != nil {
		r.index[input.URI] = input
		r.order = append(r.order, input)
	}
}
