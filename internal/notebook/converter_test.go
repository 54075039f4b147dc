package notebook

import (
	"errors"
	"testing"

	"nbconcat/internal/concat"
	"nbconcat/internal/protocol"
)

const (
	cell0 = "vscode-notebook-cell:/w/test.ipynb#c0"
	cell1 = "vscode-notebook-cell:/w/test.ipynb#c1"
	other = "vscode-notebook-cell:/w/other.ipynb#c0"
	input = "vscode-interactive-input:/w/test.ipynb"
)

func open(uri, text string) concat.Event {
	return concat.OpenEvent{TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "python", Version: 1, Text: text}}
}

func closeEv(uri string) concat.Event {
	return concat.CloseEvent{TextDocument: protocol.TextDocumentIdentifier{URI: uri}}
}

func newConverter() *Converter {
	return NewConverter(Options{Header: IPythonHeader})
}

func single(t *testing.T, out []Notification, method string) Notification {
	t.Helper()
	if len(out) != 1 {
		t.Fatalf("expected 1 notification, got %d: %+v", len(out), out)
	}
	if out[0].Method != method {
		t.Fatalf("expected %s, got %s", method, out[0].Method)
	}
	return out[0]
}

func TestConverterLifecycle(t *testing.T) {
	c := newConverter()
	n := single(t, c.Handle(open(cell0, "x = 1")), MethodDidOpen)
	params := n.Params.(protocol.DidOpenTextDocumentParams)
	if params.TextDocument.URI != "file:///w/_NotebookConcat_test.py" {
		t.Fatalf("unexpected synthetic uri %q", params.TextDocument.URI)
	}
	if params.TextDocument.Text != IPythonHeaderText+"\nx = 1\n" {
		t.Fatalf("unexpected text %q", params.TextDocument.Text)
	}

	n = single(t, c.Handle(open(cell1, "%ls")), MethodDidChange)
	change := n.Params.(protocol.DidChangeTextDocumentParams)
	if change.ContentChanges[0].Text != "%ls # type: ignore\n" {
		t.Fatalf("unexpected change %+v", change.ContentChanges[0])
	}
	if change.TextDocument.Version <= params.TextDocument.Version {
		t.Fatalf("version did not advance: %d", change.TextDocument.Version)
	}

	single(t, c.Handle(open(other, "y")), MethodDidOpen)
	if keys := c.Notebooks(); len(keys) != 2 || keys[0] != "/w/other.ipynb" || keys[1] != "/w/test.ipynb" {
		t.Fatalf("unexpected notebooks %v", keys)
	}

	single(t, c.Handle(closeEv(cell0)), MethodDidChange)
	n = single(t, c.Handle(closeEv(cell1)), MethodDidClose)
	if n.Params.(protocol.DidCloseTextDocumentParams).TextDocument.URI != params.TextDocument.URI {
		t.Fatalf("unexpected close %+v", n.Params)
	}
	if _, ok := c.Document("/w/test.ipynb"); ok {
		t.Fatal("closed notebook should be dropped")
	}
	if out := c.Handle(closeEv(cell1)); out != nil {
		t.Fatalf("closing an unknown cell should be silent, got %+v", out)
	}
}

func TestConverterIgnoresForeignDocuments(t *testing.T) {
	c := newConverter()
	if out := c.Handle(open("file:///w/script.py", "x")); out != nil {
		t.Fatalf("plain files must not be routed, got %+v", out)
	}
	md := concat.OpenEvent{TextDocument: protocol.TextDocumentItem{URI: cell0, LanguageID: "markdown", Version: 1, Text: "# t"}}
	if out := c.Handle(md); out != nil {
		t.Fatalf("markdown cells must not open a document, got %+v", out)
	}
	if len(c.Notebooks()) != 0 {
		t.Fatalf("expected no notebooks, got %v", c.Notebooks())
	}
}

func TestConverterInteractiveInputJoinsWindow(t *testing.T) {
	c := newConverter()
	c.Handle(open(input, "p."))
	c.Handle(open(cell0, "print(1)"))
	doc, ok := c.DocumentFor(input)
	if !ok {
		t.Fatal("expected document for input box")
	}
	if cells := doc.Cells(); len(cells) != 2 || cells[1] != input {
		t.Fatalf("input box should be last, got %v", cells)
	}
}

func TestConverterNumberedInputJoinsWindow(t *testing.T) {
	const (
		window = "vscode-notebook-cell:/w/Interactive-2.interactive#c0"
		box    = "vscode-interactive-input:/w/InteractiveInput-2"
	)
	c := newConverter()
	c.Handle(open(window, "a = 1"))
	c.Handle(open(box, "a."))
	if got := c.Notebooks(); len(got) != 1 {
		t.Fatalf("expected one notebook, got %v", got)
	}
	doc, ok := c.DocumentFor(box)
	if !ok {
		t.Fatal("expected document for input box")
	}
	if doc.URI() != "file:///w/_NotebookConcat_Interactive-2.py" {
		t.Fatalf("unexpected synthetic uri %q", doc.URI())
	}
	if cells := doc.Cells(); len(cells) != 2 || cells[1] != box {
		t.Fatalf("input box should be last, got %v", cells)
	}
}

func TestConverterRefresh(t *testing.T) {
	c := newConverter()
	c.Handle(open(cell0, "a"))
	c.Handle(open(cell1, "b"))
	out := c.Handle(concat.RefreshEvent{
		Notebook: "vscode-notebook:/w/test.ipynb",
		Cells: []protocol.TextDocumentItem{
			{URI: cell1, LanguageID: "python", Version: 2, Text: "b"},
			{URI: cell0, LanguageID: "python", Version: 2, Text: "a"},
		},
	})
	n := single(t, out, MethodDidChange)
	change := n.Params.(protocol.DidChangeTextDocumentParams)
	if change.ContentChanges[0].Range != nil || change.ContentChanges[0].Text != IPythonHeaderText+"\nb\na\n" {
		t.Fatalf("unexpected refresh change %+v", change.ContentChanges[0])
	}
}

func TestMapDiagnostics(t *testing.T) {
	c := newConverter()
	c.Handle(open(cell0, "%cd /tmp\nx = 1"))
	c.Handle(open(cell1, "y = z"))
	doc, _ := c.DocumentFor(cell0)

	diag := func(sl, sc, el, ec int, msg string) protocol.Diagnostic {
		return protocol.Diagnostic{
			Range:   protocol.Range{Start: protocol.Position{Line: sl, Character: sc}, End: protocol.Position{Line: el, Character: ec}},
			Message: msg,
		}
	}
	out, ok := c.MapDiagnostics(protocol.PublishDiagnosticsParams{
		URI: doc.URI(),
		Diagnostics: []protocol.Diagnostic{
			diag(0, 0, 0, 6, "header"),
			diag(2, 0, 2, 20, "magic"),
			diag(4, 4, 4, 5, "undefined z"),
		},
	})
	if !ok {
		t.Fatal("expected synthetic document to be recognized")
	}
	if len(out) != 2 {
		t.Fatalf("expected one publication per cell, got %d", len(out))
	}
	if out[0].URI != cell0 || len(out[0].Diagnostics) != 1 || out[0].Diagnostics[0].Message != "magic" {
		t.Fatalf("unexpected cell 0 diagnostics %+v", out[0])
	}
	if r := out[0].Diagnostics[0].Range; r.Start.Line != 0 || r.Start.Character != 0 || r.End.Character != 8 {
		t.Fatalf("unexpected mapped range %+v", r)
	}
	if out[1].URI != cell1 || len(out[1].Diagnostics) != 1 {
		t.Fatalf("unexpected cell 1 diagnostics %+v", out[1])
	}
	if r := out[1].Diagnostics[0].Range; r.Start.Line != 0 || r.Start.Character != 4 || r.End.Character != 5 {
		t.Fatalf("unexpected mapped range %+v", r)
	}

	if _, ok := c.MapDiagnostics(protocol.PublishDiagnosticsParams{URI: "file:///w/script.py"}); ok {
		t.Fatal("foreign documents must pass through")
	}
}

func TestLocationMapping(t *testing.T) {
	c := newConverter()
	c.Handle(open(cell0, "a = 1"))
	c.Handle(open(cell1, "b = 2"))
	loc, err := c.ConcatLocation(protocol.Location{URI: cell1, Range: protocol.EmptyRange(protocol.Position{Line: 0, Character: 2})})
	if err != nil {
		t.Fatalf("ConcatLocation: %v", err)
	}
	if loc.Range.Start != (protocol.Position{Line: 3, Character: 2}) || !c.IsConcatURI(loc.URI) {
		t.Fatalf("unexpected concat location %+v", loc)
	}
	back, err := c.NotebookLocation(loc)
	if err != nil {
		t.Fatalf("NotebookLocation: %v", err)
	}
	if back.URI != cell1 || back.Range.Start != (protocol.Position{Line: 0, Character: 2}) {
		t.Fatalf("unexpected notebook location %+v", back)
	}
	if _, err := c.ConcatLocation(protocol.Location{URI: other}); !errors.Is(err, concat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHeaderPresets(t *testing.T) {
	h, err := HeaderPreset("IPython")
	if err != nil || h("x") != IPythonHeaderText {
		t.Fatalf("ipython preset: %v", err)
	}
	h, err = HeaderPreset("")
	if err != nil || h("x") != "" {
		t.Fatalf("empty preset: %v", err)
	}
	if _, err := HeaderPreset("bogus"); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
	if LiteralHeader("import os\n")("x") != "import os" {
		t.Fatal("literal header should drop the trailing newline")
	}
}
