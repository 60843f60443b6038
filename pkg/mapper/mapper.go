// Package mapper translates between virtual-document offsets and
// original-file coordinates. Engine results anchored in the synthesized
// document come back through MapRange/MapPoint; cursor positions go the
// other way through VirtualOffset before a point query is issued.
package mapper

import (
	"github.com/braidlang/braidls/pkg/blocks"
	"github.com/braidlang/braidls/pkg/position"
	"github.com/braidlang/braidls/pkg/synth"
)

// Mapper binds one synthesized document to the regions it was built from.
type Mapper struct {
	script *blocks.Region
	markup *blocks.Region
	m      *synth.PositionMap
	// scriptLen is the length of the verbatim script prefix of the virtual
	// document; offsets below it belong to the user's own script text.
	scriptLen int
}

func New(file *blocks.File, res *synth.Result) *Mapper {
	return &Mapper{
		script:    file.Script,
		markup:    file.Markup,
		m:         res.Map,
		scriptLen: len(file.ScriptText()),
	}
}

// MapRange projects a virtual-document span into original-file coordinates.
//
// A span inside the script prefix maps straight into the script region: the
// prefix is the user's script verbatim. A span inside a position-map entry
// maps into the markup region through that entry. Anything else originates
// from synthesized scaffolding and is dropped (false); surfacing it would
// point at nonsensical locations.
func (mp *Mapper) MapRange(virtualStart, length int) (position.Range, bool) {
	if mp.script != nil && virtualStart < mp.scriptLen {
		end := virtualStart + length
		if end > mp.scriptLen {
			end = mp.scriptLen
		}
		return position.Range{
			Start: Project(position.PlaceAt(virtualStart, mp.script.Text), mp.script),
			End:   Project(position.PlaceAt(end, mp.script.Text), mp.script),
		}, true
	}

	entry, ok := mp.m.EntryAt(virtualStart)
	if !ok || mp.markup == nil {
		return position.Range{}, false
	}

	end := virtualStart + length
	if end > entry.Virtual.End() {
		end = entry.Virtual.End()
	}

	startOff := entry.OriginalSpan.Offset + (virtualStart - entry.Virtual.Offset)
	endOff := entry.OriginalSpan.Offset + (end - entry.Virtual.Offset)

	return position.Range{
		Start: Project(position.PlaceAt(startOff, mp.markup.Text), mp.markup),
		End:   Project(position.PlaceAt(endOff, mp.markup.Text), mp.markup),
	}, true
}

// MapPoint projects a single virtual offset.
func (mp *Mapper) MapPoint(virtualOffset int) (position.Place, bool) {
	rng, ok := mp.MapRange(virtualOffset, 0)
	if !ok {
		return position.Place{}, false
	}
	return rng.Start, true
}

// VirtualOffset is the forward direction: it takes a cursor position in
// full-document coordinates and locates the corresponding offset in the
// virtual document. false means the cursor sits on plain markup (or plain
// style) with no script expression under it; the caller falls back to
// markup-only assistance.
func (mp *Mapper) VirtualOffset(place position.Place) (int, bool) {
	if mp.script != nil {
		if off, ok := regionOffset(place, mp.script); ok && off <= mp.scriptLen {
			return off, true
		}
	}

	if mp.markup == nil {
		return 0, false
	}
	off, ok := regionOffset(place, mp.markup)
	if !ok {
		return 0, false
	}
	entry, ok := mp.m.EntryAtOriginal(off)
	if !ok {
		return 0, false
	}
	return entry.Virtual.Offset + (off - entry.OriginalSpan.Offset), true
}

// InMarkup reports whether the cursor falls inside the markup region at
// all, mapped or not.
func (mp *Mapper) InMarkup(place position.Place) bool {
	_, ok := mp.MarkupOffset(place)
	return ok
}

// MarkupOffset resolves a full-document cursor to a byte offset in the
// markup region's text, directive or not.
func (mp *Mapper) MarkupOffset(place position.Place) (int, bool) {
	if mp.markup == nil {
		return 0, false
	}
	return regionOffset(place, mp.markup)
}

// Project lifts a region-relative place into full-document coordinates:
// the region's content starts on the line after its label (StartLine is the
// 1-based label line, so it equals the 0-based index of the first content
// line), and every line was dedented by Indent columns.
func Project(p position.Place, region *blocks.Region) position.Place {
	return position.Place{
		Line:      region.StartLine + p.Line,
		Character: p.Character + region.Indent,
	}
}

// regionOffset inverts Project and resolves the region-relative place
// to a byte offset in the region text. false when the place lies outside
// the region's lines or inside its stripped indentation.
func regionOffset(place position.Place, region *blocks.Region) (int, bool) {
	line := place.Line - region.StartLine
	char := place.Character - region.Indent
	if line < 0 || char < 0 {
		return 0, false
	}
	lineCount := 1
	for i := 0; i < len(region.Text); i++ {
		if region.Text[i] == '\n' {
			lineCount++
		}
	}
	if line >= lineCount {
		return 0, false
	}
	return position.OffsetAt(position.Place{Line: line, Character: char}, region.Text), true
}
