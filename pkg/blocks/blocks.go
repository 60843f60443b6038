// Package blocks splits a Braid source file into its three labeled regions.
//
// A Braid file is a sequence of labeled, indented blocks:
//
//	script:
//	    let count: number = 0;
//
//	html:
//	    <div>${count}</div>
//
//	style:
//	    div { color: red; }
//
// A label sits at column zero and the block runs until the next label or
// end of file. Indentation is stripped uniformly: the minimum leading
// whitespace across the block's non-blank lines is removed from every line,
// so mixed but internally consistent indentation still parses.
package blocks

import (
	"strings"
)

// Kind identifies one of the three region sub-languages.
type Kind int

const (
	Script Kind = iota
	Markup
	Style
)

func (k Kind) String() string {
	switch k {
	case Script:
		return "script"
	case Markup:
		return "html"
	case Style:
		return "style"
	}
	return "unknown"
}

// Region is one labeled block of a Braid file.
type Region struct {
	Kind Kind
	// Text is the block's content with the common indentation stripped.
	Text string
	// StartLine is the 1-based line number of the region's label. The
	// content begins on the following line.
	StartLine int
	// Indent is the number of columns stripped from every line.
	Indent int
}

// File holds the extracted regions of one Braid document. Any region may be
// nil; a file without a script or style block is still valid.
type File struct {
	Script *Region
	Markup *Region
	Style  *Region
}

// Region returns the region of the given kind, or nil.
func (f *File) Region(kind Kind) *Region {
	switch kind {
	case Script:
		return f.Script
	case Markup:
		return f.Markup
	case Style:
		return f.Style
	}
	return nil
}

// ScriptText returns the script region's text, or "" when the file has no
// script block.
func (f *File) ScriptText() string {
	if f.Script == nil {
		return ""
	}
	return f.Script.Text
}

var labels = map[string]Kind{
	"script:": Script,
	"html:":   Markup,
	"style:":  Style,
}

// Extract splits fullText into its labeled regions. It is a pure function:
// a malformed or absent label yields a nil region, never an error. Callers
// must treat a nil region as "nothing to analyze".
func Extract(fullText string) *File {
	lines := strings.Split(fullText, "\n")
	file := &File{}

	var current Kind
	var body []string
	startLine := 0
	open := false

	flush := func() {
		if !open {
			return
		}
		region := buildRegion(current, body, startLine)
		switch current {
		case Script:
			file.Script = region
		case Markup:
			file.Markup = region
		case Style:
			file.Style = region
		}
		open = false
		body = nil
	}

	for i, line := range lines {
		if kind, ok := labels[strings.TrimRight(line, " \t")]; ok && !isIndented(line) {
			flush()
			current = kind
			startLine = i + 1
			open = true
			continue
		}
		if open {
			body = append(body, line)
		}
	}
	flush()

	return file
}

func isIndented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

func buildRegion(kind Kind, body []string, startLine int) *Region {
	// Trailing blank lines belong to the gap before the next label, not to
	// the region.
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}

	indent := -1
	for _, line := range body {
		if strings.TrimSpace(line) == "" {
			continue
		}
		w := leadingWidth(line)
		if indent < 0 || w < indent {
			indent = w
		}
	}
	if indent < 0 {
		indent = 0
	}

	stripped := make([]string, len(body))
	for i, line := range body {
		if len(line) >= indent {
			stripped[i] = line[indent:]
		} else {
			stripped[i] = ""
		}
	}

	return &Region{
		Kind:      kind,
		Text:      strings.Join(stripped, "\n"),
		StartLine: startLine,
		Indent:    indent,
	}
}

func leadingWidth(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' {
			return i
		}
	}
	return len(line)
}
