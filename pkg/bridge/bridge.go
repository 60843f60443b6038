// Package bridge is the orchestration core of the language server. Each
// request runs the same pipeline from scratch: extract the document's
// regions, parse markup directives, synthesize the virtual script, and
// query the analysis engine through the virtual file store. Nothing is
// cached between requests; a request's fileContext is built from the
// content it was handed and dies with the request.
package bridge

import (
	"context"
	"strings"

	"github.com/braidlang/braidls/pkg/blocks"
	"github.com/braidlang/braidls/pkg/directive"
	"github.com/braidlang/braidls/pkg/engine"
	"github.com/braidlang/braidls/pkg/mapper"
	"github.com/braidlang/braidls/pkg/markup"
	"github.com/braidlang/braidls/pkg/position"
	"github.com/braidlang/braidls/pkg/style"
	"github.com/braidlang/braidls/pkg/synth"
	"github.com/braidlang/braidls/pkg/vfs"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Diagnostic source tags, surfaced to the editor.
const (
	SourceScript = "braid-script"
	SourceStyle  = "braid-style"
)

const virtualSuffix = ".virtual.ts"

// VirtualPath derives the engine-visible path for a document URI. The
// suffix gives the engine a script-dialect file it recognizes.
func VirtualPath(uri string) string {
	return uri + virtualSuffix
}

// SourceURI recovers the document URI a virtual path was derived from.
func SourceURI(virtualPath string) string {
	return strings.TrimSuffix(virtualPath, virtualSuffix)
}

// Bridge wires the pipeline stages to one engine and one virtual file
// store. It holds no per-document state.
type Bridge struct {
	engine engine.Service
	store  *vfs.Store
	fs     afero.Fs
}

// New builds a bridge. fs is used to read external declaration files when
// a definition points outside the virtual document; nil means the OS
// filesystem.
func New(svc engine.Service, store *vfs.Store, fs afero.Fs) *Bridge {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Bridge{engine: svc, store: store, fs: fs}
}

// Forget drops the durable virtual document for a closed URI.
func (b *Bridge) Forget(uri string) {
	b.store.Evict(VirtualPath(uri))
}

// fileContext is everything one request derives from the document text.
type fileContext struct {
	file   *blocks.File
	nodes  []*directive.Node
	result *synth.Result
	mapper *mapper.Mapper
}

func (b *Bridge) prepare(ctx context.Context, content string) *fileContext {
	file := blocks.Extract(content)

	nodes, err := directive.Parse(file.Markup)
	if err != nil {
		// Partial parse: the valid directives still synthesized, the bad
		// clauses skipped.
		zerolog.Ctx(ctx).Debug().Err(err).Msg("directive parse incomplete")
	}

	var markupText string
	if file.Markup != nil {
		markupText = file.Markup.Text
	}
	res := synth.Synthesize(file.ScriptText(), markupText, nodes)

	return &fileContext{
		file:   file,
		nodes:  nodes,
		result: res,
		mapper: mapper.New(file, res),
	}
}

// Diagnostic is one finding in original-file coordinates.
type Diagnostic struct {
	Range    position.Range
	Severity engine.Severity
	Message  string
	Code     string
	Source   string
}

// Diagnostics runs the full pipeline for a document and returns every
// finding that maps back to original coordinates. An engine failure is
// logged and degrades to the style-only findings; it never fails the
// request.
func (b *Bridge) Diagnostics(ctx context.Context, uri, content string) []Diagnostic {
	fc := b.prepare(ctx, content)
	vpath := VirtualPath(uri)
	b.store.Install(vpath, fc.result.Content)

	var out []Diagnostic

	diags, err := b.engine.Diagnostics(ctx, vpath)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("engine diagnostics failed")
	}
	for _, d := range diags {
		rng, ok := fc.mapper.MapRange(d.Start, d.Length)
		if !ok {
			// Anchored in synthesized scaffolding, not user text.
			zerolog.Ctx(ctx).Debug().
				Int("start", d.Start).
				Str("message", d.Message).
				Msg("dropping unmappable diagnostic")
			continue
		}
		out = append(out, Diagnostic{
			Range:    rng,
			Severity: d.Severity,
			Message:  d.Message,
			Code:     d.Code,
			Source:   SourceScript,
		})
	}

	for _, h := range style.UnusedSelectorHints(fc.file.Style, fc.file.Markup) {
		out = append(out, Diagnostic{
			Range:    regionRange(fc.file.Style, h.Rule.Span),
			Severity: engine.SeverityHint,
			Message:  h.Message,
			Source:   SourceStyle,
		})
	}

	return out
}

// Hover is quick info in original-file coordinates.
type Hover struct {
	Contents string
	Range    position.Range
}

// HoverAt answers a hover request. nil means there is nothing to show at
// this position.
func (b *Bridge) HoverAt(ctx context.Context, uri, content string, place position.Place) *Hover {
	fc := b.prepare(ctx, content)
	voff, ok := fc.mapper.VirtualOffset(place)
	if !ok {
		return nil
	}

	probe := b.store.InstallProbe(VirtualPath(uri), fc.result.Content)
	defer probe.Release()

	qi, err := b.engine.QuickInfoAt(ctx, probe.Path, voff)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("engine quick info failed")
		return nil
	}
	if qi == nil {
		return nil
	}

	rng, ok := fc.mapper.MapRange(qi.Start, qi.Length)
	if !ok {
		// The engine highlighted scaffolding; anchor at the cursor instead.
		rng = position.Range{Start: place, End: place}
	}
	return &Hover{Contents: qi.Contents, Range: rng}
}

// ResolveData rides on a completion item so the later resolve request can
// re-run the probe query without re-sending the whole list's details.
type ResolveData struct {
	VirtualPath string `json:"virtualPath"`
	Offset      int    `json:"offset"`
	EntryName   string `json:"entryName"`
}

// Completion is one completion entry, script- or markup-sourced.
type Completion struct {
	Label         string
	Kind          string
	Detail        string
	InsertText    string
	SortText      string
	Documentation string
	Data          *ResolveData
}

// CompletionsAt answers a completion request. A cursor inside a script
// expression (or the script block) asks the engine; anywhere else in the
// markup falls back to element, attribute, and class-name completions.
func (b *Bridge) CompletionsAt(ctx context.Context, uri, content string, place position.Place) []Completion {
	fc := b.prepare(ctx, content)

	voff, ok := fc.mapper.VirtualOffset(place)
	if !ok {
		return b.markupCompletions(fc, place)
	}

	probe := b.store.InstallProbe(VirtualPath(uri), fc.result.Content)
	defer probe.Release()

	items, err := b.engine.CompletionsAt(ctx, probe.Path, voff)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("engine completions failed")
		return nil
	}

	out := make([]Completion, 0, len(items))
	for _, it := range items {
		out = append(out, Completion{
			Label:      it.Name,
			Kind:       it.Kind,
			Detail:     it.Detail,
			InsertText: it.InsertText,
			SortText:   it.SortText,
			Data: &ResolveData{
				VirtualPath: VirtualPath(uri),
				Offset:      voff,
				EntryName:   it.Name,
			},
		})
	}
	return out
}

// ResolveCompletion fills in the documentation of a previously returned
// completion item. Items without resolve data pass through unchanged.
func (b *Bridge) ResolveCompletion(ctx context.Context, uri, content string, c Completion) Completion {
	if c.Data == nil || c.Documentation != "" {
		return c
	}
	if c.Data.VirtualPath != VirtualPath(uri) {
		// Stale data from an earlier document; nothing trustworthy to add.
		return c
	}

	fc := b.prepare(ctx, content)
	probe := b.store.InstallProbe(c.Data.VirtualPath, fc.result.Content)
	defer probe.Release()

	qi, err := b.engine.QuickInfoAt(ctx, probe.Path, c.Data.Offset)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("engine resolve failed")
		return c
	}
	if qi != nil {
		c.Documentation = qi.Contents
	}
	return c
}

// Location is a definition target in editor coordinates.
type Location struct {
	URI   string
	Range position.Range
}

// DefinitionAt answers a go-to-definition request. Targets inside the
// virtual document map back into this file; targets in external files
// (library declarations) are read off disk to turn the engine's byte
// offsets into line and character.
func (b *Bridge) DefinitionAt(ctx context.Context, uri, content string, place position.Place) []Location {
	fc := b.prepare(ctx, content)
	voff, ok := fc.mapper.VirtualOffset(place)
	if !ok {
		return nil
	}

	probe := b.store.InstallProbe(VirtualPath(uri), fc.result.Content)
	defer probe.Release()

	locs, err := b.engine.DefinitionAt(ctx, probe.Path, voff)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("engine definition failed")
		return nil
	}

	var out []Location
	for _, loc := range locs {
		if loc.Path == probe.Path || loc.Path == VirtualPath(uri) {
			rng, ok := fc.mapper.MapRange(loc.Start, loc.Length)
			if !ok {
				continue
			}
			out = append(out, Location{URI: uri, Range: rng})
			continue
		}
		out = append(out, Location{URI: loc.Path, Range: b.externalRange(ctx, loc)})
	}
	return out
}

// externalRange converts an external file's byte offsets to a range by
// reading the file. Unreadable files get a zero range, which editors treat
// as the top of the file.
func (b *Bridge) externalRange(ctx context.Context, loc engine.DefinitionLocation) position.Range {
	data, err := afero.ReadFile(b.fs, loc.Path)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("path", loc.Path).Msg("definition target unreadable")
		return position.Range{}
	}
	text := string(data)
	return position.Range{
		Start: position.PlaceAt(loc.Start, text),
		End:   position.PlaceAt(loc.Start+loc.Length, text),
	}
}

func (b *Bridge) markupCompletions(fc *fileContext, place position.Place) []Completion {
	off, ok := fc.mapper.MarkupOffset(place)
	if !ok {
		return nil
	}

	var out []Completion
	if inClassAttribute(fc.file.Markup.Text, off) {
		for _, name := range style.ClassCompletions(fc.file.Style) {
			out = append(out, Completion{Label: name, Kind: "class", InsertText: name})
		}
	}
	for _, it := range markup.CompletionsAt(fc.file.Markup.Text, off) {
		out = append(out, Completion{
			Label:      it.Label,
			Kind:       markupKind(it.Kind),
			Detail:     it.Detail,
			InsertText: it.InsertText,
		})
	}
	return out
}

func markupKind(k markup.ItemKind) string {
	switch k {
	case markup.ItemAttribute:
		return "attribute"
	case markup.ItemDirective:
		return "directive"
	default:
		return "element"
	}
}

// inClassAttribute reports whether offset sits inside the quoted value of
// a class attribute.
func inClassAttribute(text string, offset int) bool {
	if offset > len(text) {
		offset = len(text)
	}
	const marker = `class="`
	last := -1
	for i := 0; i+len(marker) <= offset; i++ {
		if text[i:i+len(marker)] == marker {
			last = i + len(marker)
		}
	}
	if last < 0 {
		return false
	}
	for i := last; i < offset; i++ {
		if text[i] == '"' {
			return false
		}
	}
	return true
}

// regionRange projects a region-relative span into full-document
// coordinates.
func regionRange(region *blocks.Region, span position.RawPosition) position.Range {
	return position.Range{
		Start: mapper.Project(position.PlaceAt(span.Offset, region.Text), region),
		End:   mapper.Project(position.PlaceAt(span.End(), region.Text), region),
	}
}
