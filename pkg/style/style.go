// Package style is the style-region sub-service: it lexes the region into
// rules, offers the stylesheet's class names as completions for markup
// class attributes, and flags selectors that match nothing in the markup.
package style

import (
	"strings"

	"github.com/braidlang/braidls/pkg/blocks"
	"github.com/braidlang/braidls/pkg/markup"
	"github.com/braidlang/braidls/pkg/position"
	"github.com/ericchiang/css"
)

// Rule is one selector block of the style region.
type Rule struct {
	Selector string
	// Span covers the selector text within the style region.
	Span position.RawPosition
}

// Rules lexes the style region into its rules. The scan only needs
// selector boundaries, so it tracks brace depth and nothing else; malformed
// trailing text yields no rule rather than an error.
func Rules(region *blocks.Region) []Rule {
	if region == nil {
		return nil
	}

	var rules []Rule
	text := region.Text
	depth := 0
	selStart := 0

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if depth == 0 {
				raw := text[selStart:i]
				sel := strings.TrimSpace(raw)
				if sel != "" {
					off := selStart + strings.Index(raw, sel)
					rules = append(rules, Rule{
						Selector: sel,
						Span:     position.RawPosition{Offset: off, Text: sel},
					})
				}
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 {
				selStart = i + 1
			}
		}
	}

	return rules
}

// ClassCompletions returns the stylesheet's class names, for completion
// inside a markup class attribute.
func ClassCompletions(region *blocks.Region) []string {
	var names []string
	seen := map[string]bool{}
	for _, rule := range Rules(region) {
		for _, name := range classNamesInSelector(rule.Selector) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func classNamesInSelector(sel string) []string {
	var names []string
	for i := 0; i < len(sel); i++ {
		if sel[i] != '.' {
			continue
		}
		j := i + 1
		for j < len(sel) && (isNameByte(sel[j])) {
			j++
		}
		if j > i+1 {
			names = append(names, sel[i+1:j])
		}
		i = j - 1
	}
	return names
}

func isNameByte(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Hint flags one selector that matches no element in the markup.
type Hint struct {
	Rule    Rule
	Message string
}

// UnusedSelectorHints matches every rule's selector against the markup
// element tree and reports the ones that select nothing. Selectors the css
// parser does not understand (pseudo-classes and the like) are skipped, not
// reported: absence of proof is not unusedness.
func UnusedSelectorHints(styleRegion, markupRegion *blocks.Region) []Hint {
	if styleRegion == nil || markupRegion == nil {
		return nil
	}

	root, err := markup.ParseTree(markupRegion.Text)
	if err != nil {
		return nil
	}

	var hints []Hint
	for _, rule := range Rules(styleRegion) {
		sel, err := css.Parse(rule.Selector)
		if err != nil {
			continue
		}
		if len(sel.Select(root)) == 0 {
			hints = append(hints, Hint{
				Rule:    rule,
				Message: "selector matches no element in the html block",
			})
		}
	}
	return hints
}
