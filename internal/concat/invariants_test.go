package concat

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"nbconcat/internal/protocol"
)

// rebuiltText opens the current fragments of d in a fresh document.
func rebuiltText(t *testing.T, d *Document, disable bool) string {
	t.Helper()
	items := make([]protocol.TextDocumentItem, 0)
	for _, uri := range d.Cells() {
		f, _ := d.Fragment(uri)
		items = append(items, protocol.TextDocumentItem{URI: f.URI, LanguageID: f.LanguageID, Version: f.Version, Text: f.Text()})
	}
	return newTestDoc(t, disable, items...).Text()
}

func checkRoundTrip(t *testing.T, d *Document) {
	t.Helper()
	for _, uri := range d.Cells() {
		f, _ := d.Fragment(uri)
		text := f.Text()
		offsets := make([]int, 0, len(text)+1)
		for i := range text {
			offsets = append(offsets, i)
		}
		offsets = append(offsets, len(text))
		for _, off := range offsets {
			p := f.PositionAt(off)
			cp := mustConcatPosition(t, d, protocol.Location{URI: uri, Range: protocol.EmptyRange(p)})
			back := mustNotebookLocation(t, d, cp)
			if back.URI != uri || back.Range.Start != p {
				t.Fatalf("round trip of %s %+v gave %s %+v", uri, p, back.URI, back.Range.Start)
			}
		}
	}
}

func TestRandomEditsMatchRebuild(t *testing.T) {
	pieces := []string{"", "x", "%", "!", "await ", "await f()", "\n", "\n%m\n", "é", "𝄞", "  ", "print(1)"}
	for _, disable := range []bool{false, true} {
		rng := rand.New(rand.NewSource(7))
		d := newTestDoc(t, disable,
			pyCell(0, "await print(1)"),
			pyCell(1, "%foo = 2", "print(foo)"),
			pyCell(2, "x = 1"),
			inputCell("!ls", "p."),
		)
		uris := d.Cells()
		for step := 0; step < 300; step++ {
			uri := uris[rng.Intn(len(uris))]
			f, _ := d.Fragment(uri)
			text := f.Text()
			a, b := rng.Intn(len(text)+1), rng.Intn(len(text)+1)
			if a > b {
				a, b = b, a
			}
			start, end := f.PositionAt(a), f.PositionAt(b)
			applyEdit(t, d, uri, start.Line, start.Character, end.Line, end.Character, pieces[rng.Intn(len(pieces))])
			if want := rebuiltText(t, d, disable); d.Text() != want {
				t.Fatalf("step %d: incremental text %q differs from rebuild %q", step, d.Text(), want)
			}
			if disable && strings.Contains(d.Text(), "# type: ignore") {
				t.Fatalf("step %d: annotation with type ignore disabled", step)
			}
			checkRoundTrip(t, d)
		}
	}
}

func TestAnnotationsDoNotChangeLineCount(t *testing.T) {
	on := newTestDoc(t, false, magicCells()...)
	off := newTestDoc(t, true, magicCells()...)
	if on.LineCount() != off.LineCount() {
		t.Fatalf("line counts differ: %d vs %d", on.LineCount(), off.LineCount())
	}
	if strings.ReplaceAll(on.Text(), " # type: ignore", "") != off.Text() {
		t.Fatalf("stripping annotations should give the plain text")
	}
}

func TestMultipleContentChangesApplyInOrder(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "a = 1"), pyCell(1, "b = 2"))
	before := d.Text()
	r1 := protocol.Range{Start: pos(0, 0), End: pos(0, 1)}
	r2 := protocol.Range{Start: pos(0, 4), End: pos(0, 4)}
	out := d.HandleChange(protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{URI: cellURI(0), Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{
			{Range: &r1, Text: "%x"},
			{Range: &r2, Text: "y"},
		},
	})
	if out == nil || len(out.ContentChanges) != 2 {
		t.Fatalf("expected two changes, got %+v", out)
	}
	checkReplay(t, before, out, d.Text())
	if got := mustLine(t, d, 2); got != "%x =y 1 # type: ignore" {
		t.Fatalf("line 2 = %q", got)
	}
}

func TestFullTextChange(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "a = 1"), pyCell(1, "b = 2"))
	before := d.Text()
	out := d.HandleChange(protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{URI: cellURI(0), Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "!pip list\nz"}},
	})
	if out == nil {
		t.Fatal("expected a change")
	}
	checkReplay(t, before, out, d.Text())
	if got := mustLine(t, d, 2); got != "!pip list # type: ignore" {
		t.Fatalf("line 2 = %q", got)
	}
	if got := mustLine(t, d, 4); got != "b = 2" {
		t.Fatalf("line 4 = %q", got)
	}
}

func TestDroppedChanges(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "a = 1"))
	v := d.Version()
	r := protocol.Range{Start: pos(0, 0), End: pos(0, 0)}
	stale := d.HandleChange(protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{URI: cellURI(0), Version: 1},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Range: &r, Text: "x"}},
	})
	if stale != nil {
		t.Fatalf("stale change should be dropped, got %+v", stale)
	}
	unknown := d.HandleChange(protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{URI: cellURI(9), Version: 5},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Range: &r, Text: "x"}},
	})
	if unknown != nil {
		t.Fatalf("change for an unknown cell should be dropped, got %+v", unknown)
	}
	if d.Version() != v || mustLine(t, d, 2) != "a = 1" {
		t.Fatal("dropped changes must not touch the document")
	}
}

func TestOpenCloseEmitLineChanges(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "a = 1"), pyCell(2, "c = 3"))

	before := d.Text()
	out := d.HandleOpen(protocol.DidOpenTextDocumentParams{TextDocument: pyCell(1, "%b")})
	if out == nil {
		t.Fatal("expected a change for open")
	}
	checkReplay(t, before, out, d.Text())
	// appended at the end of the order, after cell 2
	if got := mustLine(t, d, 4); got != "%b # type: ignore" {
		t.Fatalf("line 4 = %q", got)
	}

	before = d.Text()
	out = d.HandleClose(protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: cellURI(0)}})
	if out == nil {
		t.Fatal("expected a change for close")
	}
	checkReplay(t, before, out, d.Text())
	if want := headerText + "\nc = 3\n%b # type: ignore\n"; d.Text() != want {
		t.Fatalf("text = %q, want %q", d.Text(), want)
	}

	if out := d.HandleClose(protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: cellURI(0)}}); out != nil {
		t.Fatalf("closing twice should be a no-op, got %+v", out)
	}
	if out := d.HandleOpen(protocol.DidOpenTextDocumentParams{TextDocument: mdCell(5, "# title")}); out != nil {
		t.Fatalf("markdown open should be ignored, got %+v", out)
	}
}

func TestCloseLastCellEmptiesDocument(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "a = 1"))
	before := d.Text()
	out := d.HandleClose(protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: cellURI(0)}})
	checkReplay(t, before, out, "")
	if !d.Empty() || d.LineCount() != 0 || d.LanguageID() != "" {
		t.Fatalf("expected an empty document, got %q", d.Text())
	}
	l, err := d.NotebookLocationAt(pos(0, 0))
	if err != nil {
		t.Fatalf("NotebookLocationAt: %v", err)
	}
	if l != (protocol.Location{}) {
		t.Fatalf("expected the zero location, got %+v", l)
	}
}

func TestReopenReplacesContent(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "a = 1"), pyCell(1, "b = 2"))
	before := d.Text()
	item := pyCell(0, "a = 10")
	out := d.HandleOpen(protocol.DidOpenTextDocumentParams{TextDocument: item})
	checkReplay(t, before, out, d.Text())
	if got := mustLine(t, d, 2); got != "a = 10" {
		t.Fatalf("line 2 = %q", got)
	}
	if cells := d.Cells(); len(cells) != 2 || cells[0] != cellURI(0) {
		t.Fatalf("reopen should keep the order, got %v", cells)
	}
}

func TestQueryErrors(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "a = 1"))
	if _, err := d.LineAt(3); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("LineAt past the end: %v", err)
	}
	if _, err := d.LineAt(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("LineAt(-1): %v", err)
	}
	if _, err := d.NotebookLocationAt(pos(9, 0)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NotebookLocationAt past the end: %v", err)
	}
	// the position just past the final newline is the end of the document
	l := mustNotebookLocation(t, d, pos(3, 0))
	if l.URI != cellURI(0) || l.Range.Start != pos(0, 5) {
		t.Fatalf("unexpected end location %+v", l)
	}
	if _, err := d.ConcatPositionAt(loc(cellURI(7), 0, 0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ConcatPositionAt unknown: %v", err)
	}
	if _, err := d.Spans(cellURI(7)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Spans unknown: %v", err)
	}
}

func TestLocationOfRange(t *testing.T) {
	d := newTestDoc(t, false, pyCell(0, "%cd /tmp", "x = 1"), pyCell(1, "y = 2"))
	l, err := d.NotebookLocationOfRange(protocol.Range{Start: pos(2, 1), End: pos(2, 20)})
	if err != nil {
		t.Fatalf("NotebookLocationOfRange: %v", err)
	}
	if l.URI != cellURI(0) || l.Range.Start != pos(0, 1) || l.Range.End != pos(0, 8) {
		t.Fatalf("unexpected location %+v", l)
	}
	// an end in the next cell clamps to the end of the first one
	l, err = d.NotebookLocationOfRange(protocol.Range{Start: pos(3, 0), End: pos(4, 2)})
	if err != nil {
		t.Fatalf("NotebookLocationOfRange: %v", err)
	}
	if l.URI != cellURI(0) || l.Range.Start != pos(1, 0) || l.Range.End != pos(1, 5) {
		t.Fatalf("unexpected clamped location %+v", l)
	}
	r, err := d.ConcatRangeAt(protocol.Location{URI: cellURI(1), Range: protocol.Range{Start: pos(0, 0), End: pos(0, 5)}})
	if err != nil {
		t.Fatalf("ConcatRangeAt: %v", err)
	}
	if r.Start != pos(4, 0) || r.End != pos(4, 5) {
		t.Fatalf("unexpected concat range %+v", r)
	}
}

func TestContractViolationsPanic(t *testing.T) {
	cases := map[string]protocol.Range{
		"reversed":     {Start: pos(0, 3), End: pos(0, 1)},
		"line too far": {Start: pos(0, 0), End: pos(5, 0)},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			d := newTestDoc(t, false, pyCell(0, "a = 1"))
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			d.HandleChange(protocol.DidChangeTextDocumentParams{
				TextDocument:   protocol.VersionedTextDocumentIdentifier{URI: cellURI(0), Version: 2},
				ContentChanges: []protocol.TextDocumentContentChangeEvent{{Range: &r, Text: "x"}},
			})
		})
	}
}

func TestHandleDispatch(t *testing.T) {
	d := newTestDoc(t, false)
	events := []Event{
		OpenEvent{TextDocument: pyCell(0, "a")},
		OpenEvent{TextDocument: pyCell(1, "b")},
		CloseEvent{TextDocument: protocol.TextDocumentIdentifier{URI: cellURI(0)}},
		RefreshEvent{Cells: []protocol.TextDocumentItem{pyCell(1, "bb"), pyCell(2, "c")}},
	}
	text := ""
	for _, ev := range events {
		out := d.Handle(ev)
		if out == nil {
			t.Fatalf("no change for %T", ev)
		}
		text = replay(t, text, out)
	}
	if text != d.Text() || d.Text() != headerText+"\nbb\nc\n" {
		t.Fatalf("replayed %q, document %q", text, d.Text())
	}
	if EventURI(OpenEvent{TextDocument: pyCell(3, "")}) != cellURI(3) || EventURI(RefreshEvent{}) != "" {
		t.Fatal("unexpected event uri")
	}
}
