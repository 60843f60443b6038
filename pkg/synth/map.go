package synth

import (
	"github.com/braidlang/braidls/pkg/position"
)

// Entry pairs one re-emitted expression's span in the virtual document with
// its origin in the markup region.
type Entry struct {
	// Expr is the reproduced expression text.
	Expr string
	// Original is the expression's line/column anchor in the markup region.
	Original position.Place
	// OriginalSpan is the same origin as a byte span in the markup region.
	OriginalSpan position.RawPosition
	// Virtual is the expression's byte span in the synthesized document.
	Virtual position.RawPosition
}

// PositionMap is the table of Entry values for one synthesized document.
// Entries are ordered by ascending virtual offset and never overlap in the
// virtual document: every expression occupies its own emitted statement.
//
// Lookup is range containment only. There is deliberately no lookup by
// expression text: repeated expression text would make it ambiguous.
type PositionMap struct {
	entries []Entry
}

func (m *PositionMap) add(e Entry) {
	m.entries = append(m.entries, e)
}

// Len returns the number of entries.
func (m *PositionMap) Len() int {
	return len(m.entries)
}

// Entries returns the entries in virtual-document order.
func (m *PositionMap) Entries() []Entry {
	return m.entries
}

// EntryAt finds the entry whose virtual range contains the given virtual
// offset. Offsets that fall on synthesized scaffolding (braces, keywords,
// parentheses) belong to no entry and return false.
func (m *PositionMap) EntryAt(virtualOffset int) (*Entry, bool) {
	for i := range m.entries {
		if m.entries[i].Virtual.Contains(virtualOffset) {
			return &m.entries[i], true
		}
	}
	return nil, false
}

// EntryAtOriginal finds the entry whose markup-region span contains the
// given markup offset. This is the forward direction used to seed point
// queries; false means the cursor is on plain markup with no script
// expression under it.
func (m *PositionMap) EntryAtOriginal(markupOffset int) (*Entry, bool) {
	for i := range m.entries {
		if m.entries[i].OriginalSpan.Contains(markupOffset) {
			return &m.entries[i], true
		}
	}
	return nil, false
}
