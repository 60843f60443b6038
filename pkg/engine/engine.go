// Package engine defines the boundary to the script-analysis engine. The
// engine is a black box to the bridge: it sees virtual documents through a
// snapshot provider keyed by path+version, and answers diagnostics,
// completion, quick-info, and definition queries anchored in virtual
// offsets. Everything position-related on this interface is a byte offset
// into the virtual document; projection into original-file coordinates is
// the Result Mapper's job, not the engine's.
package engine

import (
	"context"
)

// Severity mirrors the LSP diagnostic severity scale.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// Diagnostic is one engine finding, anchored in the virtual document.
type Diagnostic struct {
	Start    int      `json:"start"`
	Length   int      `json:"length"`
	Message  string   `json:"message"`
	Code     string   `json:"code,omitempty"`
	Severity Severity `json:"severity"`
}

// CompletionItem is one engine completion entry.
type CompletionItem struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	SortText   string `json:"sortText,omitempty"`
	InsertText string `json:"insertText,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// QuickInfo is the engine's hover payload for one virtual offset.
type QuickInfo struct {
	Contents string `json:"contents"`
	Start    int    `json:"start"`
	Length   int    `json:"length"`
}

// DefinitionLocation points at a declaration, either inside a virtual
// document or in an external declaration file.
type DefinitionLocation struct {
	Path   string `json:"path"`
	Start  int    `json:"start"`
	Length int    `json:"length"`
}

// Service is the script-analysis engine as the bridge consumes it.
type Service interface {
	Diagnostics(ctx context.Context, path string) ([]Diagnostic, error)
	CompletionsAt(ctx context.Context, path string, offset int) ([]CompletionItem, error)
	QuickInfoAt(ctx context.Context, path string, offset int) (*QuickInfo, error)
	DefinitionAt(ctx context.Context, path string, offset int) ([]DefinitionLocation, error)
}

// SnapshotProvider hands the engine the current content and version of a
// virtual document. Version equality is the engine's cache-validity signal.
type SnapshotProvider interface {
	Snapshot(path string) (content string, version int, ok bool)
}

// EvictObservable is a snapshot provider that announces evictions. The
// client uses it to drop per-path sync state and to tell the engine the
// document is gone; a provider without it would leak one engine-side
// document copy per released probe.
type EvictObservable interface {
	Observe(fn func(path string))
}
