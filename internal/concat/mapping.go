package concat

import (
	"fmt"
	"sort"
	"strings"

	"nbconcat/internal/pragma"
	"nbconcat/internal/protocol"
)

// NotebookLocationAt maps a synthetic position to the fragment position it
// came from. Positions inside an annotation resolve to the end of the
// annotated line; positions inside the header resolve to the start of the
// first fragment. With no fragment open the zero Location is returned.
func (d *Document) NotebookLocationAt(pos protocol.Position) (protocol.Location, error) {
	off, err := d.text.OffsetAt(pos)
	if err != nil {
		return protocol.Location{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	c, real, ok := d.locate(off)
	if !ok {
		return protocol.Location{}, nil
	}
	return protocol.Location{
		URI:   c.frag.URI,
		Range: protocol.EmptyRange(c.frag.PositionAt(real)),
	}, nil
}

// NotebookLocationOfRange maps a synthetic range to a fragment range. The
// fragment is the one holding the start; an end beyond that fragment is
// clamped to its last character.
func (d *Document) NotebookLocationOfRange(r protocol.Range) (protocol.Location, error) {
	startOff, err := d.text.OffsetAt(r.Start)
	if err != nil {
		return protocol.Location{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	endOff, err := d.text.OffsetAt(r.End)
	if err != nil {
		return protocol.Location{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if endOff < startOff {
		return protocol.Location{}, fmt.Errorf("%w: range ends before it starts", ErrInvalidArgument)
	}
	c, startReal, ok := d.locate(startOff)
	if !ok {
		return protocol.Location{}, nil
	}
	endReal := len(c.frag.Text())
	if endOff < c.end {
		endReal = c.realOffsetAt(endOff)
	}
	endReal = max(endReal, startReal)
	return protocol.Location{
		URI: c.frag.URI,
		Range: protocol.Range{
			Start: c.frag.PositionAt(startReal),
			End:   c.frag.PositionAt(endReal),
		},
	}, nil
}

// ConcatPositionAt maps a fragment position to the synthetic document.
func (d *Document) ConcatPositionAt(loc protocol.Location) (protocol.Position, error) {
	c, ok := d.byURI[loc.URI]
	if !ok {
		return protocol.Position{}, fmt.Errorf("%w: %s", ErrNotFound, loc.URI)
	}
	real, err := c.frag.OffsetAt(loc.Range.Start)
	if err != nil {
		return protocol.Position{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	off, _ := syntheticOffset(c.spans, real, biasLeft)
	return d.text.PositionAt(off), nil
}

// ConcatRangeAt maps a fragment range to the synthetic document. The end is
// placed after any annotation that directly follows it.
func (d *Document) ConcatRangeAt(loc protocol.Location) (protocol.Range, error) {
	start, err := d.ConcatPositionAt(loc)
	if err != nil {
		return protocol.Range{}, err
	}
	c := d.byURI[loc.URI]
	real, err := c.frag.OffsetAt(loc.Range.End)
	if err != nil {
		return protocol.Range{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	off, _ := syntheticOffset(c.spans, real, biasLeft)
	return protocol.Range{Start: start, End: d.text.PositionAt(off)}, nil
}

// locate finds the cell holding synthetic offset off and the raw offset it
// corresponds to. The end of the document belongs to the last cell.
func (d *Document) locate(off int) (*cell, int, bool) {
	if len(d.cells) == 0 {
		return nil, 0, false
	}
	i := sort.Search(len(d.cells), func(i int) bool { return d.cells[i].end > off })
	if i == len(d.cells) {
		c := d.cells[i-1]
		return c, len(c.frag.Text()), true
	}
	c := d.cells[i]
	return c, c.realOffsetAt(off), true
}

// realOffsetAt maps a synthetic offset inside the cell to a raw offset.
func (c *cell) realOffsetAt(off int) int {
	size := len(c.frag.Text())
	j := sort.Search(len(c.spans), func(j int) bool { return c.spans[j].End > off })
	if j == len(c.spans) {
		return size
	}
	s := c.spans[j]
	switch s.Kind {
	case pragma.KindHeader:
		return 0
	case pragma.KindAnnotation:
		if j > 0 && c.spans[j-1].Kind == pragma.KindVerbatim {
			prev := c.spans[j-1]
			return prev.RealOffset + prev.Len()
		}
		return 0
	}
	return min(s.RealOffset+off-s.Start, size)
}

// HeaderLines returns the number of synthetic lines taken by the header.
func (d *Document) HeaderLines() int {
	if len(d.cells) == 0 || len(d.cells[0].spans) == 0 {
		return 0
	}
	first := d.cells[0].spans[0]
	if first.Kind != pragma.KindHeader {
		return 0
	}
	return strings.Count(first.Text, "\n")
}
