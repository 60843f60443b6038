package directive_test

import (
	"testing"

	"github.com/braidlang/braidls/pkg/directive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInductionClause(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		wantNormalized string
		wantBindings   []string
		wantIterable   string
		wantErr        bool
	}{
		{
			name:           "bare pattern",
			value:          "item of items",
			wantNormalized: "let item of items",
			wantBindings:   []string{"item"},
			wantIterable:   "items",
		},
		{
			name:           "explicit let",
			value:          "let item of items",
			wantNormalized: "let item of items",
			wantBindings:   []string{"item"},
			wantIterable:   "items",
		},
		{
			name:           "const keyword",
			value:          "const row of rows",
			wantNormalized: "let row of rows",
			wantBindings:   []string{"row"},
			wantIterable:   "rows",
		},
		{
			name:           "array destructuring",
			value:          "[a, b] of xs",
			wantNormalized: "let [a, b] of xs",
			wantBindings:   []string{"a", "b"},
			wantIterable:   "xs",
		},
		{
			name:           "object destructuring",
			value:          "{name, age} of people",
			wantNormalized: "let {name, age} of people",
			wantBindings:   []string{"name", "age"},
			wantIterable:   "people",
		},
		{
			name:           "complex iterable",
			value:          "x of items.filter(i => i.ok)",
			wantNormalized: "let x of items.filter(i => i.ok)",
			wantBindings:   []string{"x"},
			wantIterable:   "items.filter(i => i.ok)",
		},
		{
			name:    "missing of",
			value:   "item in items",
			wantErr: true,
		},
		{
			name:    "missing iterable",
			value:   "item of ",
			wantErr: true,
		},
		{
			name:    "empty",
			value:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, err := directive.ParseInductionClause(tt.value, 0)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantNormalized, clause.Normalized)
			assert.Equal(t, tt.wantIterable, clause.Iterable)

			var names []string
			for _, b := range clause.Bindings {
				names = append(names, b.Name)
			}
			assert.Equal(t, tt.wantBindings, names)
		})
	}
}

func TestParseInductionClause_BindingSpans(t *testing.T) {
	// Every identifier in a destructuring pattern must address its own
	// span, not just the clause as a whole.
	clause, err := directive.ParseInductionClause("[a, b] of xs", 50)
	require.NoError(t, err)
	require.Len(t, clause.Bindings, 2)

	assert.Equal(t, "a", clause.Bindings[0].Name)
	assert.Equal(t, 51, clause.Bindings[0].Span.Offset)
	assert.Equal(t, "b", clause.Bindings[1].Name)
	assert.Equal(t, 54, clause.Bindings[1].Span.Offset)

	assert.Equal(t, "xs", clause.IterableSpan.Text)
	assert.Equal(t, 60, clause.IterableSpan.Offset)
}

func TestParseInductionClause_LetKeywordSpans(t *testing.T) {
	clause, err := directive.ParseInductionClause("let item of items", 10)
	require.NoError(t, err)
	require.Len(t, clause.Bindings, 1)

	// "let " is 4 bytes, so the binding starts at base+4.
	assert.Equal(t, 14, clause.Bindings[0].Span.Offset)
	assert.Equal(t, "item", clause.Bindings[0].Span.Text)
}
