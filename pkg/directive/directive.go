// Package directive parses the markup region of a Braid file into a tree of
// embedded-expression nodes: interpolations, loop blocks, conditional blocks,
// and attribute/event bindings. Every node keeps its exact byte span within
// the markup region so engine results can be projected back onto the source.
package directive

import (
	"sort"

	"github.com/braidlang/braidls/pkg/position"
)

// Kind is the closed set of directive node variants.
type Kind int

const (
	// KindExpr is a bare expression: an interpolation or a bound
	// attribute/event value.
	KindExpr Kind = iota
	// KindLoop is a `:for` block with an induction clause and children.
	KindLoop
	// KindCond is an `:if` block with a condition and children.
	KindCond
)

func (k Kind) String() string {
	switch k {
	case KindExpr:
		return "expr"
	case KindLoop:
		return "loop"
	case KindCond:
		return "cond"
	}
	return "unknown"
}

// Binding is one identifier declared by a loop's induction clause. A
// destructuring pattern contributes one Binding per name so that hover and
// definition can address each identifier's own span.
type Binding struct {
	Name string
	// Span is the identifier's location within the markup region.
	Span position.RawPosition
}

// Node is one parsed directive.
type Node struct {
	Kind Kind

	// Expr is the node's expression text: the interpolation or binding
	// value for KindExpr, the normalized induction clause for KindLoop,
	// and the condition for KindCond.
	Expr string

	// Span is the node's extent within the markup region. Expression nodes
	// span exactly their expression text; loop and conditional nodes span
	// the whole element that carries the directive, which is what makes
	// span containment define the tree shape.
	Span position.RawPosition

	// ClauseSpan is the span of the raw attribute value that carries the
	// induction clause or condition. Zero for expression nodes.
	ClauseSpan position.RawPosition

	// Bindings are the loop's declared identifiers. Empty unless KindLoop.
	Bindings []Binding

	// Clause is the parsed induction clause. Nil unless KindLoop.
	Clause *InductionClause

	Children []*Node
}

// Walk visits n and its descendants depth-first in document order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// sortTree orders every sibling list by ascending start offset so that
// re-emission order always equals document order.
func sortTree(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Span.Offset < nodes[j].Span.Offset
	})
	for _, n := range nodes {
		sortTree(n.Children)
	}
}
