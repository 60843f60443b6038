package directive

import (
	"strings"

	"github.com/braidlang/braidls/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// ScanInterpolations finds every `${...}` expression in text and returns the
// span of each expression body (the text between the braces). Offsets are
// relative to the markup region: base is added to every span, so callers can
// pass a text fragment together with its region offset.
//
// Boundary detection is a real bracket-depth scan, not a regex: nested
// braces, string literals containing `}`, and template literals with their
// own `${}` nesting all resolve to the correct closing brace.
func ScanInterpolations(text string, base int) ([]position.RawPosition, error) {
	var spans []position.RawPosition
	var errs error

	i := 0
	for {
		start := strings.Index(text[i:], "${")
		if start < 0 {
			break
		}
		start += i
		body := start + 2

		end, ok := scanExpression(text, body)
		if !ok {
			errs = errors.Join(errs, errors.Errorf("unterminated interpolation at offset %d", base+start))
			break
		}

		spans = append(spans, position.RawPosition{
			Offset: base + body,
			Text:   text[body:end],
		})
		i = end + 1
	}

	return spans, errs
}

// scanExpression consumes an expression starting at offset from (just past
// the opening `${`) and returns the offset of the matching `}`.
func scanExpression(text string, from int) (int, bool) {
	type state int
	const (
		code state = iota
		singleQuote
		doubleQuote
		backtick
	)

	// Template literals can nest whole expressions, so the scanner keeps a
	// stack of states rather than a single mode flag.
	stack := []state{code}
	depth := []int{0}

	for i := from; i < len(text); i++ {
		c := text[i]
		top := stack[len(stack)-1]

		switch top {
		case code:
			switch c {
			case '{':
				depth[len(depth)-1]++
			case '}':
				if depth[len(depth)-1] == 0 {
					if len(stack) == 1 {
						return i, true
					}
					// End of a `${` nested inside a template literal.
					stack = stack[:len(stack)-1]
					depth = depth[:len(depth)-1]
					continue
				}
				depth[len(depth)-1]--
			case '\'':
				stack = append(stack, singleQuote)
			case '"':
				stack = append(stack, doubleQuote)
			case '`':
				stack = append(stack, backtick)
			}

		case singleQuote, doubleQuote:
			if c == '\\' {
				i++
				continue
			}
			if (top == singleQuote && c == '\'') || (top == doubleQuote && c == '"') {
				stack = stack[:len(stack)-1]
			}

		case backtick:
			if c == '\\' {
				i++
				continue
			}
			if c == '`' {
				stack = stack[:len(stack)-1]
				continue
			}
			if c == '$' && i+1 < len(text) && text[i+1] == '{' {
				stack = append(stack, code)
				depth = append(depth, 0)
				i++
			}
		}
	}

	return 0, false
}
