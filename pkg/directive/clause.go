package directive

import (
	"strings"

	"github.com/braidlang/braidls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// InductionClause is the parsed pattern-and-iterable pair of a `:for`
// directive, e.g. `item of items` or `let [a, b] of pairs`.
type InductionClause struct {
	// Normalized always carries an explicit `let`, so a bare pattern
	// introduces fresh bindings instead of capturing an outer variable of
	// the same name when the clause is re-emitted.
	Normalized string
	// Pattern is the declaration pattern without the keyword.
	Pattern string
	// PatternSpan is the pattern's location in the markup region.
	PatternSpan position.RawPosition
	// Iterable is the expression after `of`.
	Iterable string
	// IterableSpan is the iterable's location in the markup region.
	IterableSpan position.RawPosition
	// Bindings hold one entry per identifier declared by the pattern.
	Bindings []Binding
}

// ParseInductionClause parses a `:for` attribute value. base is the value's
// offset within the markup region and anchors every reported span. Both
// `pattern of iterable` and `let pattern of iterable` are accepted.
func ParseInductionClause(value string, base int) (*InductionClause, error) {
	ofStart, ofEnd, ok := findOfSeparator(value)
	if !ok {
		return nil, errors.New("missing `of` separator")
	}

	patternPart := value[:ofStart]
	iterable := strings.TrimSpace(value[ofEnd:])
	if iterable == "" {
		return nil, errors.New("missing iterable expression")
	}
	iterOff := ofEnd + strings.Index(value[ofEnd:], iterable)

	pattern := patternPart
	patternOff := 0
	for _, kw := range []string{"let ", "const ", "var "} {
		if strings.HasPrefix(strings.TrimLeft(pattern, " \t"), kw) {
			lead := len(pattern) - len(strings.TrimLeft(pattern, " \t"))
			patternOff = lead + len(kw)
			pattern = pattern[patternOff:]
			break
		}
	}
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return nil, errors.New("missing loop pattern")
	}
	patternOff += strings.Index(pattern, trimmed)
	pattern = trimmed

	bindings := extractBindings(pattern, base+patternOff)
	if len(bindings) == 0 {
		return nil, errors.Errorf("no bindings in pattern %q", pattern)
	}

	return &InductionClause{
		Normalized:   "let " + pattern + " of " + iterable,
		Pattern:      pattern,
		PatternSpan:  position.RawPosition{Offset: base + patternOff, Text: pattern},
		Iterable:     iterable,
		IterableSpan: position.RawPosition{Offset: base + iterOff, Text: iterable},
		Bindings:     bindings,
	}, nil
}

// findOfSeparator locates the top-level ` of ` keyword, skipping any that
// fall inside brackets or string literals of the pattern.
func findOfSeparator(value string) (start, end int, ok bool) {
	depth := 0
	var quote byte

	for i := 0; i+4 <= len(value); i++ {
		c := value[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
		case ' ', '\t':
			if depth == 0 && strings.HasPrefix(value[i:], " of ") {
				return i, i + 4, true
			}
		}
	}
	return 0, 0, false
}

// extractBindings pulls each declared identifier out of a pattern. For a
// plain identifier that is the pattern itself; for destructuring patterns
// (`[a, b]`, `{x, y}`) every named element gets its own binding with its own
// span, because hover and definition must address the identifiers
// individually.
func extractBindings(pattern string, base int) []Binding {
	if !strings.HasPrefix(pattern, "[") && !strings.HasPrefix(pattern, "{") {
		name := strings.TrimSpace(pattern)
		if !isIdentifier(name) {
			return nil
		}
		off := strings.Index(pattern, name)
		return []Binding{{Name: name, Span: position.RawPosition{Offset: base + off, Text: name}}}
	}

	var bindings []Binding
	i := 1
	for i < len(pattern) {
		// Skip separators and rest markers.
		for i < len(pattern) && (pattern[i] == ' ' || pattern[i] == '\t' || pattern[i] == ',' || pattern[i] == '.') {
			i++
		}
		start := i
		for i < len(pattern) && isIdentifierByte(pattern[i], i > start) {
			i++
		}
		if i > start {
			name := pattern[start:i]
			bindings = append(bindings, Binding{
				Name: name,
				Span: position.RawPosition{Offset: base + start, Text: name},
			})
		} else {
			i++
		}
	}
	return bindings
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentifierByte(s[i], i > 0) {
			return false
		}
	}
	return true
}

func isIdentifierByte(c byte, rest bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '$':
		return true
	case c >= '0' && c <= '9':
		return rest
	}
	return false
}
