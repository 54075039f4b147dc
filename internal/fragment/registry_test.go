package fragment

import (
	"testing"

	"nbconcat/internal/protocol"
)

func item(uri, text string) protocol.TextDocumentItem {
	return protocol.TextDocumentItem{URI: uri, LanguageID: "python", Version: 1, Text: text}
}

func uris(r *Registry) []string {
	out := make([]string, 0, r.Len())
	for _, f := range r.All() {
		out = append(out, f.URI)
	}
	return out
}

func sameOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

const (
	cellA = "vscode-notebook-cell:/w/1.interactive#a"
	cellB = "vscode-notebook-cell:/w/1.interactive#b"
	input = "vscode-interactive-input:/w/1.interactive"
)

func TestOpenKeepsInputLast(t *testing.T) {
	r := NewRegistry()
	r.Open(item(cellA, "a"))
	r.Open(item(input, "in"))
	r.Open(item(cellB, "b"))
	sameOrder(t, uris(r), []string{cellA, cellB, input})
	f, ok := r.Get(input)
	if !ok || !f.Input {
		t.Fatal("expected input fragment to be flagged")
	}
}

func TestReopenReplacesAndBumpsVersion(t *testing.T) {
	r := NewRegistry()
	r.Open(item(cellA, "a"))
	f, reopened := r.Open(item(cellA, "changed"))
	if !reopened {
		t.Fatal("expected reopen to be reported")
	}
	if f.Text() != "changed" {
		t.Fatalf("unexpected text %q", f.Text())
	}
	if f.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", f.Version)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 fragment, got %d", r.Len())
	}
}

func TestCloseUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Open(item(cellA, "a"))
	if r.Close(cellB) {
		t.Fatal("closing an unknown fragment should report false")
	}
	if !r.Close(cellA) {
		t.Fatal("expected close to succeed")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	if _, ok := r.Get(cellA); ok {
		t.Fatal("closed fragment is still indexed")
	}
}

func TestReplaceReordersAndKeepsInput(t *testing.T) {
	r := NewRegistry()
	r.Open(item(cellA, "a"))
	r.Open(item(cellB, "b"))
	r.Open(item(input, "in"))
	r.Replace([]protocol.TextDocumentItem{item(cellB, "b2"), item(cellA, "a2")})
	sameOrder(t, uris(r), []string{cellB, cellA, input})
	f, _ := r.Get(cellB)
	if f.Text() != "b2" {
		t.Fatalf("unexpected text %q", f.Text())
	}
}

func TestFragmentEdits(t *testing.T) {
	r := NewRegistry()
	f, _ := r.Open(item(cellA, "foo = 2\nprint(foo)"))
	start, err := f.OffsetAt(protocol.Position{Line: 1, Character: 6})
	if err != nil {
		t.Fatalf("OffsetAt: %v", err)
	}
	end, err := f.OffsetAt(protocol.Position{Line: 1, Character: 9})
	if err != nil {
		t.Fatalf("OffsetAt: %v", err)
	}
	f.Apply(start, end, "bar")
	line, err := f.LineAt(1)
	if err != nil {
		t.Fatalf("LineAt: %v", err)
	}
	if line != "print(bar)" {
		t.Fatalf("unexpected line %q", line)
	}
	if f.LineCount() != 2 {
		t.Fatalf("unexpected line count %d", f.LineCount())
	}
}

func TestFragmentInsertPastEndOfCRLFLine(t *testing.T) {
	r := NewRegistry()
	f, _ := r.Open(item(cellA, "a\r\nb"))
	off, err := f.OffsetAt(protocol.Position{Line: 0, Character: 99})
	if err != nil {
		t.Fatalf("OffsetAt: %v", err)
	}
	f.Apply(off, off, "x")
	if f.Text() != "ax\r\nb" {
		t.Fatalf("unexpected text %q", f.Text())
	}
}
