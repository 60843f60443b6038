// Package synth builds the virtual script document: the original script
// block verbatim, followed by one synthesized statement per directive node.
// Loops and conditionals are re-emitted as genuine `for`/`if` constructs so
// the analysis engine's scope and narrowing rules apply exactly as they
// would in a hand-written script; hover on a loop variable and narrowing
// inside a conditional depend on this.
package synth

import (
	"strings"

	"github.com/braidlang/braidls/pkg/directive"
	"github.com/braidlang/braidls/pkg/position"
)

// Result is one synthesized document together with its position map.
type Result struct {
	Content string
	Map     *PositionMap
}

const indentUnit = "    "

// Synthesize emits the virtual script document for one file. script is the
// script region's text (may be empty), markup is the markup region's text
// (used to express original anchors as line/column), nodes is the directive
// tree in document order.
//
// When nodes is empty the content is the script verbatim and the map is
// empty: a file without directives adds nothing.
func Synthesize(script string, markup string, nodes []*directive.Node) *Result {
	res := &Result{Map: &PositionMap{}}

	if len(nodes) == 0 {
		res.Content = script
		return res
	}

	e := &emitter{markup: markup, m: res.Map}
	e.b.WriteString(script)
	if script != "" && !strings.HasSuffix(script, "\n") {
		e.b.WriteByte('\n')
	}
	for _, n := range nodes {
		e.emit(n, 0)
	}

	res.Content = e.b.String()
	return res
}

type emitter struct {
	b      strings.Builder
	markup string
	m      *PositionMap
}

func (e *emitter) emit(n *directive.Node, depth int) {
	indent := strings.Repeat(indentUnit, depth)

	switch n.Kind {
	case directive.KindExpr:
		// `(expr);` keeps any leading object literal or comma expression
		// parsing as an expression statement.
		start := e.b.Len() + len(indent) + 1
		e.b.WriteString(indent + "(" + n.Expr + ");\n")
		e.record(n.Expr, n.Span, start)

	case directive.KindLoop:
		clauseStart := e.b.Len() + len(indent) + len("for (")
		e.b.WriteString(indent + "for (" + n.Expr + ") {\n")
		e.recordLoopClause(n, clauseStart)
		for _, child := range n.Children {
			e.emit(child, depth+1)
		}
		e.b.WriteString(indent + "}\n")

	case directive.KindCond:
		condStart := e.b.Len() + len(indent) + len("if (")
		e.b.WriteString(indent + "if (" + n.Expr + ") {\n")
		e.record(n.Expr, n.ClauseSpan, condStart)
		for _, child := range n.Children {
			e.emit(child, depth+1)
		}
		e.b.WriteString(indent + "}\n")
	}
}

// recordLoopClause maps the pieces of a re-emitted induction clause back to
// their markup spans: each declared binding individually, and the iterable
// expression. The clause was normalized to `let <pattern> of <iterable>`,
// so pattern-relative offsets shift by the four bytes of "let ".
func (e *emitter) recordLoopClause(n *directive.Node, clauseStart int) {
	clause := n.Clause
	if clause == nil {
		// Hand-assembled node without clause details: map the whole
		// clause attribute as a single expression.
		e.record(n.Expr, n.ClauseSpan, clauseStart)
		return
	}

	patternStart := clauseStart + len("let ")
	for _, b := range clause.Bindings {
		rel := b.Span.Offset - clause.PatternSpan.Offset
		e.record(b.Name, b.Span, patternStart+rel)
	}

	iterStart := patternStart + len(clause.Pattern) + len(" of ")
	e.record(clause.Iterable, clause.IterableSpan, iterStart)
}

func (e *emitter) record(expr string, original position.RawPosition, virtualStart int) {
	e.m.add(Entry{
		Expr:         expr,
		Original:     position.PlaceAt(original.Offset, e.markup),
		OriginalSpan: original,
		Virtual:      position.RawPosition{Offset: virtualStart, Text: expr},
	})
}
