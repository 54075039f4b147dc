// Package pragma rewrites interpreter-only lines (shell escapes, magics and
// top-level await) so that a standard-syntax analyzer accepts them, and
// describes the rewritten text as an ordered list of spans.
package pragma

import "strings"

// TypeIgnore is appended to every line that needs rewriting.
const TypeIgnore = " # type: ignore"

// NoRealOffset marks spans whose text does not exist in the fragment.
const NoRealOffset = -1

// Kind tells where the text of a span comes from.
type Kind uint8

const (
	// KindVerbatim is fragment text copied unchanged.
	KindVerbatim Kind = iota
	// KindAnnotation is an injected suffix with no fragment counterpart.
	KindAnnotation
	// KindHeader is the synthesized document header.
	KindHeader
)

func (k Kind) String() string {
	switch k {
	case KindVerbatim:
		return "verbatim"
	case KindAnnotation:
		return "annotation"
	case KindHeader:
		return "header"
	default:
		return "unknown"
	}
}

// Span is one contiguous run of synthetic text. Start and End are offsets in
// the synthetic stream; RealOffset is the matching offset in the fragment's
// raw text, or NoRealOffset for injected text.
type Span struct {
	Kind       Kind
	Text       string
	Start      int
	End        int
	RealOffset int
}

// Len returns the length of the span text in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

// Injected reports whether the span has no fragment counterpart.
func (s Span) Injected() bool {
	return s.Kind != KindVerbatim
}

// Shift moves the synthetic offsets of s by delta.
func (s Span) Shift(delta int) Span {
	s.Start += delta
	s.End += delta
	return s
}

// Rewriter decides which lines receive the annotation.
type Rewriter struct {
	disabled bool
}

// NewRewriter returns a rewriter. With disabled set it never annotates and
// every fragment becomes a single verbatim span.
func NewRewriter(disabled bool) *Rewriter {
	return &Rewriter{disabled: disabled}
}

// Disabled reports whether annotation is turned off.
func (r *Rewriter) Disabled() bool {
	return r == nil || r.disabled
}

// NeedsAnnotation reports whether a single physical line (without its
// terminator) must be annotated.
func (r *Rewriter) NeedsAnnotation(line string) bool {
	if r.Disabled() {
		return false
	}
	return isPragmaLine(line)
}

func isPragmaLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '%', '!':
		return true
	}
	return isAwaitLine(trimmed)
}

// isAwaitLine matches "await" followed by whitespace and an expression.
func isAwaitLine(trimmed string) bool {
	rest, ok := strings.CutPrefix(trimmed, "await")
	if !ok || rest == "" {
		return false
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		return false
	}
	return strings.TrimLeft(rest, " \t\r") != ""
}

// Spans splits text into verbatim and annotation spans. The first span starts
// at synthetic offset start; verbatim spans carry the raw offset realStart
// plus their position in text. Only newline terminated lines are annotated.
func (r *Rewriter) Spans(text string, start, realStart int) []Span {
	spans := make([]Span, 0, 1)
	offset := start
	emit := func(kind Kind, s string, real int) {
		if s == "" {
			return
		}
		spans = append(spans, Span{
			Kind:       kind,
			Text:       s,
			Start:      offset,
			End:        offset + len(s),
			RealOffset: real,
		})
		offset += len(s)
	}

	verbatimFrom := 0
	if !r.Disabled() {
		lineStart := 0
		for lineStart < len(text) {
			nl := strings.IndexByte(text[lineStart:], '\n')
			if nl < 0 {
				break
			}
			lineEnd := lineStart + nl
			contentEnd := lineEnd
			if contentEnd > lineStart && text[contentEnd-1] == '\r' {
				contentEnd--
			}
			if isPragmaLine(text[lineStart:contentEnd]) {
				emit(KindVerbatim, text[verbatimFrom:contentEnd], realStart+verbatimFrom)
				emit(KindAnnotation, TypeIgnore, NoRealOffset)
				verbatimFrom = contentEnd
			}
			lineStart = lineEnd + 1
		}
	}
	emit(KindVerbatim, text[verbatimFrom:], realStart+verbatimFrom)
	return spans
}

// Rewrite returns the rewritten text of a fragment.
func (r *Rewriter) Rewrite(text string) string {
	return Join(r.Spans(text, 0, 0))
}

// Join concatenates the text of spans.
func Join(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}
