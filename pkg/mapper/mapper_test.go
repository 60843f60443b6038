package mapper_test

import (
	"strings"
	"testing"

	"github.com/braidlang/braidls/pkg/blocks"
	"github.com/braidlang/braidls/pkg/directive"
	"github.com/braidlang/braidls/pkg/mapper"
	"github.com/braidlang/braidls/pkg/position"
	"github.com/braidlang/braidls/pkg/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `script:
    let count: number = 0;

html:
    <div>${count + 1}</div>
`

func buildMapper(t *testing.T, src string) (*mapper.Mapper, *synth.Result, *blocks.File) {
	t.Helper()
	file := blocks.Extract(src)
	require.NotNil(t, file.Markup)

	nodes, err := directive.Parse(file.Markup)
	require.NoError(t, err)

	res := synth.Synthesize(file.ScriptText(), file.Markup.Text, nodes)
	return mapper.New(file, res), res, file
}

func TestMapRange_DiagnosticCoversExpression(t *testing.T) {
	mp, res, _ := buildMapper(t, doc)
	require.Equal(t, 1, res.Map.Len())
	entry := res.Map.Entries()[0]

	rng, ok := mp.MapRange(entry.Virtual.Offset, entry.Virtual.Length())
	require.True(t, ok)

	// The markup line `    <div>${count + 1}</div>` is document line 4
	// (0-based); `count + 1` starts after the 4-column indent plus
	// `<div>${`, i.e. character 11.
	assert.Equal(t, 4, rng.Start.Line)
	assert.Equal(t, 11, rng.Start.Character)
	assert.Equal(t, 4, rng.End.Line)
	assert.Equal(t, 11+len("count + 1"), rng.End.Character)

	lines := strings.Split(doc, "\n")
	assert.Equal(t, "count + 1", lines[rng.Start.Line][rng.Start.Character:rng.End.Character],
		"mapped range must cover exactly the expression text in the source")
}

func TestMapRange_ScriptPrefixMapsToScriptRegion(t *testing.T) {
	mp, _, file := buildMapper(t, doc)

	// `count` inside the script declaration.
	off := strings.Index(file.Script.Text, "count")
	rng, ok := mp.MapRange(off, len("count"))
	require.True(t, ok)

	assert.Equal(t, 1, rng.Start.Line)
	assert.Equal(t, 8, rng.Start.Character)

	lines := strings.Split(doc, "\n")
	assert.Equal(t, "count", lines[rng.Start.Line][rng.Start.Character:rng.End.Character])
}

func TestMapRange_ScaffoldingIsDropped(t *testing.T) {
	mp, res, file := buildMapper(t, doc)
	entry := res.Map.Entries()[0]

	// An offset past the entry (the emitted `);` scaffolding) belongs to
	// no entry and must be dropped, not mis-located.
	scaffolding := entry.Virtual.End() + 1
	require.Greater(t, scaffolding, len(file.ScriptText()))
	_, ok := mp.MapRange(scaffolding, 1)
	assert.False(t, ok)
}

func TestMapPoint_IdentityRoundTrip(t *testing.T) {
	mp, res, _ := buildMapper(t, doc)

	// Translating every entry's virtual anchor must land exactly on its
	// original position.
	for _, entry := range res.Map.Entries() {
		place, ok := mp.MapPoint(entry.Virtual.Offset)
		require.True(t, ok)

		back, ok := mp.VirtualOffset(place)
		require.True(t, ok)
		assert.Equal(t, entry.Virtual.Offset, back, "entry %q", entry.Expr)
	}
}

func TestVirtualOffset_CursorInExpression(t *testing.T) {
	mp, res, _ := buildMapper(t, doc)
	entry := res.Map.Entries()[0]

	// Cursor on the `+` of `count + 1`: line 4, character 11+6.
	off, ok := mp.VirtualOffset(position.Place{Line: 4, Character: 17})
	require.True(t, ok)
	assert.Equal(t, entry.Virtual.Offset+6, off)
}

func TestVirtualOffset_PlainMarkupDeclines(t *testing.T) {
	mp, _, _ := buildMapper(t, doc)

	// Cursor on `<div>` is markup, not an expression: the mapper declines
	// and the caller falls back to markup-only assistance.
	_, ok := mp.VirtualOffset(position.Place{Line: 4, Character: 5})
	assert.False(t, ok)
	assert.True(t, mp.InMarkup(position.Place{Line: 4, Character: 5}))
}

func TestVirtualOffset_CursorInScript(t *testing.T) {
	mp, _, file := buildMapper(t, doc)

	off, ok := mp.VirtualOffset(position.Place{Line: 1, Character: 8})
	require.True(t, ok)
	assert.Equal(t, strings.Index(file.Script.Text, "count"), off)
}

func TestMapper_LoopBindingHover(t *testing.T) {
	src := `script:
    let items: number[] = [1, 2, 3];

html:
    <li :for="item of items">${item.toFixed(2)}</li>
`
	mp, res, _ := buildMapper(t, src)

	var binding *synth.Entry
	for i, e := range res.Map.Entries() {
		if e.Expr == "item" {
			binding = &res.Map.Entries()[i]
			break
		}
	}
	require.NotNil(t, binding, "loop binding must have a map entry")

	// Hover over `item` in the clause: line 4, the binding's column.
	place, ok := mp.MapPoint(binding.Virtual.Offset)
	require.True(t, ok)

	lines := strings.Split(src, "\n")
	assert.Equal(t, "item", lines[place.Line][place.Character:place.Character+4])

	off, ok := mp.VirtualOffset(place)
	require.True(t, ok)
	assert.Equal(t, binding.Virtual.Offset, off)
}
