package directive

import (
	"io"
	"strings"

	"github.com/braidlang/braidls/pkg/blocks"
	"github.com/braidlang/braidls/pkg/position"
	"github.com/hashicorp/go-multierror"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html"
)

const (
	loopAttr = ":for"
	condAttr = ":if"
)

// voidElements never take an end tag, so any directive they carry closes
// with the start tag itself.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Parse consumes the markup region and returns the top-level directive
// nodes. A directive that fails its grammar check is skipped and recorded in
// the returned error; the remaining markup still parses. Parse never fails
// wholesale: (nil, nil) for a nil region, and a partial tree alongside a
// non-nil error for recoverable misses.
func Parse(region *blocks.Region) ([]*Node, error) {
	if region == nil {
		return nil, nil
	}

	p := &treeParser{text: region.Text}
	p.run()
	sortTree(p.roots)
	return p.roots, p.errs.ErrorOrNil()
}

// treeParser builds the containment tree while the tokenizer walks the
// markup. Open container nodes (loops, conditionals) live on a stack frame
// per open element; everything parsed while a container is open becomes its
// child.
type treeParser struct {
	text  string
	roots []*Node
	stack []*frame
	errs  *multierror.Error
}

type frame struct {
	tag string
	// opened are the container nodes this element carries, outermost
	// first (loop before conditional).
	opened []*Node
}

func (p *treeParser) run() {
	z := html.NewTokenizer(strings.NewReader(p.text))
	offset := 0

	for {
		tt := z.Next()
		raw := string(z.Raw())
		tokStart := offset
		offset += len(raw)

		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				// The tokenizer is lenient; anything it cannot lex is a
				// parse miss for the remainder, not a pipeline failure.
				p.errs = multierror.Append(p.errs, errors.Errorf("lexing markup at offset %d: %w", tokStart, err))
			}
			p.closeRemaining(len(p.text))
			return

		case html.TextToken:
			spans, err := ScanInterpolations(raw, tokStart)
			if err != nil {
				p.errs = multierror.Append(p.errs, err)
			}
			for _, span := range spans {
				p.append(&Node{Kind: KindExpr, Expr: span.Text, Span: span})
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tag := tagName(raw)
			f := &frame{tag: tag}
			// The frame goes on the stack before its attributes parse, so
			// a conditional on the same element nests inside the loop the
			// element just opened.
			p.stack = append(p.stack, f)
			p.handleAttrs(f, raw, tokStart)

			if tt == html.SelfClosingTagToken || voidElements[tag] {
				p.closeFrame(f, offset)
				p.stack = p.stack[:len(p.stack)-1]
			}

		case html.EndTagToken:
			p.closeTag(tagName(raw), offset)

		case html.CommentToken, html.DoctypeToken:
			// Interpolations inside comments are inert by contract.
		}
	}
}

// handleAttrs parses the start tag's attribute list and turns directive
// attributes into nodes. The loop container is always opened before the
// conditional so that loop scope is visible to the condition, regardless of
// attribute order; plain bindings attach inside whatever containers the
// element opened.
func (p *treeParser) handleAttrs(f *frame, raw string, tagStart int) {
	attrs := parseRawAttrs(raw, tagStart)

	var loop, cond *rawAttr
	var exprs []*rawAttr
	for i := range attrs {
		a := &attrs[i]
		switch {
		case a.Key == loopAttr:
			loop = a
		case a.Key == condAttr:
			cond = a
		case strings.HasPrefix(a.Key, ":") || strings.HasPrefix(a.Key, "@"):
			exprs = append(exprs, a)
		}
	}

	if loop != nil {
		node, err := p.newLoopNode(loop, tagStart)
		if err != nil {
			p.errs = multierror.Append(p.errs, err)
		} else {
			p.append(node)
			f.opened = append(f.opened, node)
		}
	}

	if cond != nil {
		if strings.TrimSpace(cond.Val) == "" {
			p.errs = multierror.Append(p.errs, errors.Errorf("empty :if condition at offset %d", cond.ValOff))
		} else {
			node := &Node{
				Kind:       KindCond,
				Expr:       cond.Val,
				Span:       position.RawPosition{Offset: tagStart},
				ClauseSpan: position.RawPosition{Offset: cond.ValOff, Text: cond.Val},
			}
			p.append(node)
			f.opened = append(f.opened, node)
		}
	}

	for _, a := range exprs {
		if strings.TrimSpace(a.Val) == "" {
			continue
		}
		p.append(&Node{
			Kind: KindExpr,
			Expr: a.Val,
			Span: position.RawPosition{Offset: a.ValOff, Text: a.Val},
		})
	}
}

func (p *treeParser) newLoopNode(attr *rawAttr, tagStart int) (*Node, error) {
	clause, err := ParseInductionClause(attr.Val, attr.ValOff)
	if err != nil {
		return nil, errors.Errorf("invalid :for clause at offset %d: %w", attr.ValOff, err)
	}
	return &Node{
		Kind:       KindLoop,
		Expr:       clause.Normalized,
		Span:       position.RawPosition{Offset: tagStart},
		ClauseSpan: position.RawPosition{Offset: attr.ValOff, Text: attr.Val},
		Bindings:   clause.Bindings,
		Clause:     clause,
	}, nil
}

// append attaches n to the innermost open container, or to the root list.
func (p *treeParser) append(n *Node) {
	if parent := p.innermost(); parent != nil {
		parent.Children = append(parent.Children, n)
		return
	}
	p.roots = append(p.roots, n)
}

func (p *treeParser) innermost() *Node {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if n := len(p.stack[i].opened); n > 0 {
			return p.stack[i].opened[n-1]
		}
	}
	return nil
}

func (p *treeParser) closeTag(tag string, end int) {
	// Find the matching open frame; unbalanced end tags are ignored, the
	// tokenizer already tolerates them.
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].tag != tag {
			continue
		}
		// Close everything the skipped (implicitly closed) frames opened.
		for j := len(p.stack) - 1; j >= i; j-- {
			p.closeFrame(p.stack[j], end)
		}
		p.stack = p.stack[:i]
		return
	}
}

func (p *treeParser) closeRemaining(end int) {
	for i := len(p.stack) - 1; i >= 0; i-- {
		p.closeFrame(p.stack[i], end)
	}
	p.stack = nil
}

// closeFrame finalizes the spans of the containers an element opened: each
// container's span covers the element from start tag through end tag.
func (p *treeParser) closeFrame(f *frame, end int) {
	for _, n := range f.opened {
		n.Span.Text = p.text[n.Span.Offset:end]
	}
}

func tagName(raw string) string {
	start := 1
	if start < len(raw) && raw[start] == '/' {
		start++
	}
	i := start
	for i < len(raw) && raw[i] != ' ' && raw[i] != '\t' && raw[i] != '\n' && raw[i] != '\r' && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	return strings.ToLower(raw[start:i])
}

// rawAttr is an attribute lexed straight from the start tag's raw bytes.
// The x/net/html tokenizer unescapes and lowercases attribute values and
// keys, which would corrupt spans, so directive attributes are re-lexed here
// with their exact offsets preserved.
type rawAttr struct {
	Key    string
	KeyOff int
	Val    string
	ValOff int
}

func parseRawAttrs(raw string, base int) []rawAttr {
	var attrs []rawAttr

	// Skip "<name".
	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '>' && raw[i] != '/' {
		i++
	}

	for i < len(raw) {
		for i < len(raw) && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}

		keyStart := i
		for i < len(raw) && !isSpace(raw[i]) && raw[i] != '=' && raw[i] != '>' && raw[i] != '/' {
			i++
		}
		attr := rawAttr{Key: strings.ToLower(raw[keyStart:i]), KeyOff: base + keyStart}

		for i < len(raw) && isSpace(raw[i]) {
			i++
		}
		if i < len(raw) && raw[i] == '=' {
			i++
			for i < len(raw) && isSpace(raw[i]) {
				i++
			}
			if i < len(raw) && (raw[i] == '"' || raw[i] == '\'') {
				quote := raw[i]
				i++
				valStart := i
				for i < len(raw) && raw[i] != quote {
					i++
				}
				attr.Val = raw[valStart:i]
				attr.ValOff = base + valStart
				if i < len(raw) {
					i++
				}
			} else {
				valStart := i
				for i < len(raw) && !isSpace(raw[i]) && raw[i] != '>' {
					i++
				}
				attr.Val = raw[valStart:i]
				attr.ValOff = base + valStart
			}
		}

		attrs = append(attrs, attr)
	}

	return attrs
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
