package source

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"fortio.org/safecast"

	"nbconcat/internal/protocol"
)

// ErrOutOfRange reports a position or line outside of a buffer.
var ErrOutOfRange = errors.New("position out of range")

const maxUint32 = ^uint32(0)

// Buffer is an immutable text with a line index. Positions are expressed in
// UTF-16 code units per line, offsets in bytes.
type Buffer struct {
	Content string
	LineIdx []uint32 // byte offsets of every '\n'
}

// NewBuffer indexes content.
func NewBuffer(content string) *Buffer {
	return &Buffer{
		Content: content,
		LineIdx: buildLineIndex(content),
	}
}

// Len returns the content length in bytes.
func (b *Buffer) Len() int {
	return len(b.Content)
}

// LineCount returns the number of addressable lines. A trailing newline opens
// one more, empty, line.
func (b *Buffer) LineCount() int {
	return len(b.LineIdx) + 1
}

// TextLineCount returns the number of text lines, not counting the empty line
// after a final newline. The empty buffer has no lines.
func (b *Buffer) TextLineCount() int {
	if len(b.Content) == 0 {
		return 0
	}
	if b.Content[len(b.Content)-1] == '\n' {
		return len(b.LineIdx)
	}
	return len(b.LineIdx) + 1
}

// LineStart returns the byte offset where line starts.
func (b *Buffer) LineStart(line int) int {
	if line <= 0 {
		return 0
	}
	if line > len(b.LineIdx) {
		return len(b.Content)
	}
	return int(b.LineIdx[line-1]) + 1
}

// LineEnd returns the byte offset of the newline ending line, or the content
// length for the last line.
func (b *Buffer) LineEnd(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(b.LineIdx) {
		return len(b.Content)
	}
	return int(b.LineIdx[line])
}

// Line returns the text of line without its terminator.
func (b *Buffer) Line(line int) (string, error) {
	if line < 0 || line >= b.LineCount() {
		return "", fmt.Errorf("%w: line %d of %d", ErrOutOfRange, line, b.LineCount())
	}
	text := b.Content[b.LineStart(line):b.LineEnd(line)]
	if n := len(text); n > 0 && text[n-1] == '\r' {
		text = text[:n-1]
	}
	return text, nil
}

// OffsetAt converts pos into a byte offset. Characters past the end of a line
// clamp to the line end; lines past the end of the buffer are an error.
func (b *Buffer) OffsetAt(pos protocol.Position) (int, error) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, fmt.Errorf("%w: negative position %d:%d", ErrOutOfRange, pos.Line, pos.Character)
	}
	if pos.Line >= b.LineCount() {
		return 0, fmt.Errorf("%w: line %d of %d", ErrOutOfRange, pos.Line, b.LineCount())
	}
	start := b.LineStart(pos.Line)
	end := b.LineEnd(pos.Line)
	if end > start && b.Content[end-1] == '\r' {
		end--
	}
	units := 0
	off := start
	for off < end {
		r, size := utf8.DecodeRuneInString(b.Content[off:end])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		off += size
		if units == pos.Character {
			break
		}
	}
	return off, nil
}

// PositionAt converts a byte offset into a position. Offsets are clamped to
// the buffer.
func (b *Buffer) PositionAt(offset int) protocol.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(b.Content) {
		offset = len(b.Content)
	}
	target := safeUint32(offset)
	lineIdx := b.LineIdx
	line := sort.Search(len(lineIdx), func(i int) bool { return lineIdx[i] >= target })
	lineStart := b.LineStart(line)
	units := 0
	for off := lineStart; off < offset; {
		r, size := utf8.DecodeRuneInString(b.Content[off:offset])
		if off+size > offset {
			break
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		off += size
	}
	return protocol.Position{Line: line, Character: units}
}

// End returns the position just past the last character.
func (b *Buffer) End() protocol.Position {
	return b.PositionAt(len(b.Content))
}

// Splice returns a new buffer with content[start:end] replaced by text.
func (b *Buffer) Splice(start, end int, text string) *Buffer {
	if start < 0 || end < start || end > len(b.Content) {
		panic(fmt.Errorf("splice [%d,%d) outside buffer of %d bytes", start, end, len(b.Content)))
	}
	return NewBuffer(b.Content[:start] + text + b.Content[end:])
}

func safeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return maxUint32
	}
	return v
}
