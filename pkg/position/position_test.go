package position_test

import (
	"testing"

	"github.com/braidlang/braidls/pkg/position"
	"github.com/stretchr/testify/assert"
)

func TestPlaceAt(t *testing.T) {
	text := "first line\nsecond line\nthird"

	tests := []struct {
		name   string
		offset int
		want   position.Place
	}{
		{name: "start of document", offset: 0, want: position.Place{Line: 0, Character: 0}},
		{name: "middle of first line", offset: 6, want: position.Place{Line: 0, Character: 6}},
		{name: "start of second line", offset: 11, want: position.Place{Line: 1, Character: 0}},
		{name: "middle of second line", offset: 18, want: position.Place{Line: 1, Character: 7}},
		{name: "last line", offset: 25, want: position.Place{Line: 2, Character: 2}},
		{name: "past end clamps", offset: 1000, want: position.Place{Line: 2, Character: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, position.PlaceAt(tt.offset, text))
		})
	}
}

func TestPlaceAt_CountsBytes(t *testing.T) {
	// Characters are byte columns, not UTF-16 code units: "é" is two bytes.
	text := "café:\nok"

	place := position.PlaceAt(len("café"), text)
	assert.Equal(t, position.Place{Line: 0, Character: 5}, place)
	assert.Equal(t, len("café"), position.OffsetAt(place, text))
}

func TestOffsetAt_RoundTrip(t *testing.T) {
	text := "let count = 0;\nlet name = \"x\";\n"
	for offset := 0; offset <= len(text); offset++ {
		place := position.PlaceAt(offset, text)
		assert.Equal(t, offset, position.OffsetAt(place, text), "offset %d", offset)
	}
}

func TestRawPosition_Contains(t *testing.T) {
	pos := position.NewBasicPosition("count + 1", 10)

	assert.True(t, pos.Contains(10))
	assert.True(t, pos.Contains(18))
	assert.False(t, pos.Contains(19), "end offset is exclusive")
	assert.False(t, pos.Contains(9))

	empty := position.NewBasicPosition("", 5)
	assert.True(t, empty.Contains(5))
	assert.False(t, empty.Contains(6))
}

func TestRawPosition_ContainsSpan(t *testing.T) {
	outer := position.NewBasicPosition("item of items", 4)
	inner := position.NewBasicPosition("item", 4)
	other := position.NewBasicPosition("items", 20)

	assert.True(t, outer.ContainsSpan(inner))
	assert.True(t, outer.ContainsSpan(outer))
	assert.False(t, outer.ContainsSpan(other))
	assert.False(t, inner.ContainsSpan(outer))
}

func TestRawPosition_HasRangeOverlapWith(t *testing.T) {
	a := position.NewBasicPosition("abcd", 0)
	b := position.NewBasicPosition("cdef", 2)
	c := position.NewBasicPosition("gh", 6)

	assert.True(t, a.HasRangeOverlapWith(b))
	assert.True(t, b.HasRangeOverlapWith(a))
	assert.False(t, a.HasRangeOverlapWith(c))

	cursor := position.NewBasicPosition("", 3)
	assert.True(t, cursor.HasRangeOverlapWith(a))
	assert.True(t, cursor.HasRangeOverlapWith(b))
	assert.False(t, cursor.HasRangeOverlapWith(c))
}

func TestRawPosition_GetRange(t *testing.T) {
	text := "hello\nworld wide\n"
	pos := position.NewBasicPosition("world", 6)

	rng := pos.GetRange(text)
	assert.Equal(t, position.Place{Line: 1, Character: 0}, rng.Start)
	assert.Equal(t, position.Place{Line: 1, Character: 5}, rng.End)
}
