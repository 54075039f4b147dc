package source

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf16"

	"nbconcat/internal/protocol"
)

func positionForOffsetUTF16(text string, offset int) protocol.Position {
	line := strings.Count(text[:offset], "\n")
	lineStart := strings.LastIndex(text[:offset], "\n") + 1
	units := 0
	for _, r := range text[lineStart:offset] {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		units += n
	}
	return protocol.Position{Line: line, Character: units}
}

func TestBufferLineIndex(t *testing.T) {
	b := NewBuffer("a\nb\n")
	expected := []uint32{1, 3}
	if len(b.LineIdx) != len(expected) {
		t.Fatalf("Expected LineIdx length %d, got %d", len(expected), len(b.LineIdx))
	}
	for i, val := range expected {
		if b.LineIdx[i] != val {
			t.Errorf("Expected LineIdx[%d] = %d, got %d", i, val, b.LineIdx[i])
		}
	}
	if got := b.LineCount(); got != 3 {
		t.Fatalf("LineCount = %d, want 3", got)
	}
	if got := b.TextLineCount(); got != 2 {
		t.Fatalf("TextLineCount = %d, want 2", got)
	}
	if got := NewBuffer("").TextLineCount(); got != 0 {
		t.Fatalf("empty TextLineCount = %d, want 0", got)
	}
	if got := NewBuffer("x").TextLineCount(); got != 1 {
		t.Fatalf("unterminated TextLineCount = %d, want 1", got)
	}
}

func TestBufferUTF16RoundTrip(t *testing.T) {
	src := strings.Join([]string{
		"x = 1",
		"s = \"é🙂\"; n = foo()",
		"",
		"print(n)",
	}, "\n")
	b := NewBuffer(src)
	for off := 0; off <= len(src); off++ {
		if off < len(src) && !utf8Boundary(src, off) {
			continue
		}
		want := positionForOffsetUTF16(src, off)
		got := b.PositionAt(off)
		if got != want {
			t.Fatalf("PositionAt(%d) = %+v, want %+v", off, got, want)
		}
		back, err := b.OffsetAt(got)
		if err != nil {
			t.Fatalf("OffsetAt(%+v): %v", got, err)
		}
		if back != off {
			t.Fatalf("OffsetAt(PositionAt(%d)) = %d", off, back)
		}
	}
}

func utf8Boundary(s string, off int) bool {
	return s[off]&0xC0 != 0x80
}

func TestBufferOffsetAtClampsCharacter(t *testing.T) {
	b := NewBuffer("abc\nde")
	off, err := b.OffsetAt(protocol.Position{Line: 0, Character: 99})
	if err != nil {
		t.Fatalf("OffsetAt: %v", err)
	}
	if off != 3 {
		t.Fatalf("expected clamp to 3, got %d", off)
	}
	if _, err := b.OffsetAt(protocol.Position{Line: 2, Character: 0}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := b.OffsetAt(protocol.Position{Line: -1}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for negative line, got %v", err)
	}
}

func TestBufferOffsetAtStopsBeforeCR(t *testing.T) {
	b := NewBuffer("a\r\nb")
	off, err := b.OffsetAt(protocol.Position{Line: 0, Character: 99})
	if err != nil {
		t.Fatalf("OffsetAt: %v", err)
	}
	if off != 1 {
		t.Fatalf("expected clamp before the CR at 1, got %d", off)
	}
	if got := b.Splice(off, off, "x").Content; got != "ax\r\nb" {
		t.Fatalf("unexpected insert result %q", got)
	}
}

func TestBufferLineStripsCR(t *testing.T) {
	b := NewBuffer("one\r\ntwo")
	line, err := b.Line(0)
	if err != nil {
		t.Fatalf("Line: %v", err)
	}
	if line != "one" {
		t.Fatalf("expected %q, got %q", "one", line)
	}
	if _, err := b.Line(2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestBufferSplice(t *testing.T) {
	b := NewBuffer("foo = 2\nprint(foo)")
	next := b.Splice(0, 0, "bar")
	if next.Content != "barfoo = 2\nprint(foo)" {
		t.Fatalf("unexpected content %q", next.Content)
	}
	if b.Content != "foo = 2\nprint(foo)" {
		t.Fatal("splice must not modify the receiver")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for inverted splice")
		}
	}()
	b.Splice(3, 1, "")
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("a\r\nb\n")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected lines %q", got)
	}
	if SplitLines("") != nil {
		t.Fatal("expected nil for empty text")
	}
}
