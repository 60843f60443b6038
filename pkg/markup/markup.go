// Package markup is the non-expression assistance fallback: element and
// attribute completions for cursor positions that map to no script
// expression. It is deliberately small; full markup semantics are out of
// scope for the bridge.
package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Item is one markup completion.
type Item struct {
	Label      string
	Kind       ItemKind
	InsertText string
	Detail     string
}

type ItemKind int

const (
	ItemElement ItemKind = iota
	ItemAttribute
	ItemDirective
)

var commonElements = []string{
	"a", "button", "div", "form", "h1", "h2", "h3", "img", "input",
	"label", "li", "nav", "ol", "option", "p", "section", "select",
	"span", "table", "td", "textarea", "th", "tr", "ul",
}

var commonAttributes = []string{
	"class", "id", "href", "src", "style", "title", "type", "value",
	"name", "placeholder", "alt",
}

// directiveAttributes are the Braid binding forms; they are offered in
// attribute position so users discover the embedded-expression syntax.
var directiveAttributes = []Item{
	{Label: ":for", Kind: ItemDirective, InsertText: `:for="item of items"`, Detail: "loop directive"},
	{Label: ":if", Kind: ItemDirective, InsertText: `:if="condition"`, Detail: "conditional directive"},
	{Label: "@click", Kind: ItemDirective, InsertText: `@click="handler()"`, Detail: "event binding"},
}

// CompletionsAt returns completions for a cursor at offset within the
// markup region's text. Inside a start tag it offers attributes and
// directives; elsewhere it offers elements.
func CompletionsAt(text string, offset int) []Item {
	if offset > len(text) {
		offset = len(text)
	}

	if insideStartTag(text, offset) {
		items := make([]Item, 0, len(commonAttributes)+len(directiveAttributes))
		for _, a := range commonAttributes {
			items = append(items, Item{Label: a, Kind: ItemAttribute, InsertText: a + `=""`})
		}
		items = append(items, directiveAttributes...)
		return items
	}

	items := make([]Item, 0, len(commonElements))
	for _, e := range commonElements {
		items = append(items, Item{Label: e, Kind: ItemElement, InsertText: e})
	}
	return items
}

// insideStartTag reports whether offset falls after a `<name` but before
// the closing `>`.
func insideStartTag(text string, offset int) bool {
	open := strings.LastIndexByte(text[:offset], '<')
	if open < 0 {
		return false
	}
	if close := strings.IndexByte(text[open:offset], '>'); close >= 0 {
		return false
	}
	// Closing tags and comments take no attributes.
	rest := text[open:]
	return !strings.HasPrefix(rest, "</") && !strings.HasPrefix(rest, "<!--")
}

// ParseTree parses the markup region into an element tree for structural
// queries (selector matching, class collection).
func ParseTree(text string) (*html.Node, error) {
	return html.Parse(strings.NewReader(text))
}

// ClassNames collects every class attribute value in the tree, split on
// whitespace, deduplicated in document order.
func ClassNames(root *html.Node) []string {
	var names []string
	seen := map[string]bool{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key != "class" {
					continue
				}
				for _, name := range strings.Fields(attr.Val) {
					if !seen[name] {
						seen[name] = true
						names = append(names, name)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return names
}
