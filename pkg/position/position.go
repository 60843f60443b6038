package position

import (
	"fmt"
	"strings"
)

// Place is a line/character pair. Lines and characters are zero-based.
// Characters count bytes within the line, not UTF-16 code units as the LSP
// wire format does; non-ASCII text shifts columns between the two. Every
// layer of the pipeline shares the byte convention.
type Place struct {
	Line      int
	Character int
}

type Range struct {
	Start Place
	End   Place
}

// RawPosition represents a span of text anchored at a byte offset in some
// source document.
type RawPosition struct {
	// Offset is the byte offset in the source text
	Offset int
	// Text is the actual text at this position
	Text string
}

func NewBasicPosition(text string, offset int) RawPosition {
	return RawPosition{Text: text, Offset: offset}
}

// ID returns a unique identifier for this position based on offset and text
func (p RawPosition) ID() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}

func (p RawPosition) Length() int {
	return len(p.Text)
}

func (p RawPosition) End() int {
	return p.Offset + len(p.Text)
}

// Contains reports whether the byte offset falls inside this span. The end
// offset is exclusive except for zero-length spans, which contain only their
// own anchor.
func (p RawPosition) Contains(offset int) bool {
	if p.Length() == 0 {
		return offset == p.Offset
	}
	return offset >= p.Offset && offset < p.End()
}

// ContainsSpan reports whether other is fully inside this span.
func (p RawPosition) ContainsSpan(other RawPosition) bool {
	return other.Offset >= p.Offset && other.End() <= p.End()
}

func (p RawPosition) HasRangeOverlapWith(other RawPosition) bool {
	if p.Length() == 0 {
		return other.Offset <= p.Offset && p.Offset <= other.End()
	}
	if other.Length() == 0 {
		return p.Offset <= other.Offset && other.Offset <= p.End()
	}
	return other.Offset < p.End() && other.End() > p.Offset
}

// PlaceAt calculates the zero-based line and character of a byte offset
// within text.
func PlaceAt(offset int, text string) Place {
	if offset > len(text) {
		offset = len(text)
	}
	line := 0
	lastNewline := -1
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			line++
			lastNewline = i
		}
	}
	return Place{Line: line, Character: offset - lastNewline - 1}
}

// OffsetAt is the inverse of PlaceAt. A place past the end of its line
// clamps to the line end.
func OffsetAt(place Place, text string) int {
	lines := strings.Split(text, "\n")
	if place.Line >= len(lines) {
		return len(text)
	}
	offset := 0
	for i := 0; i < place.Line; i++ {
		offset += len(lines[i]) + 1
	}
	char := place.Character
	if char > len(lines[place.Line]) {
		char = len(lines[place.Line])
	}
	return offset + char
}

// GetRange expands the span into line/character coordinates within text.
func (p RawPosition) GetRange(text string) Range {
	return Range{
		Start: PlaceAt(p.Offset, text),
		End:   PlaceAt(p.End(), text),
	}
}

func (p RawPosition) String() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}
