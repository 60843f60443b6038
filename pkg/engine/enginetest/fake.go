// Package enginetest provides a scripted engine for bridge and server
// tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/braidlang/braidls/pkg/engine"
)

// Fake is an engine.Service whose answers are set up by the test. It
// records every queried path so tests can assert which virtual document the
// bridge actually analyzed.
type Fake struct {
	mu sync.Mutex

	DiagnosticsResult []engine.Diagnostic
	CompletionsResult []engine.CompletionItem
	QuickInfoResult   *engine.QuickInfo
	DefinitionResult  []engine.DefinitionLocation
	Err               error

	// Snapshots, when set, lets the fake capture the content of every
	// document it is queried about.
	Snapshots engine.SnapshotProvider

	queried       []string
	queriedBodies []string
	offsets       []int
}

var _ engine.Service = (*Fake)(nil)

func (f *Fake) record(path string, offset int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, path)
	f.offsets = append(f.offsets, offset)
	if f.Snapshots != nil {
		content, _, _ := f.Snapshots.Snapshot(path)
		f.queriedBodies = append(f.queriedBodies, content)
	}
}

// QueriedPaths returns every path the fake was asked about, in order.
func (f *Fake) QueriedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

// QueriedContents returns the snapshot content of each queried path, when
// Snapshots is set.
func (f *Fake) QueriedContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queriedBodies...)
}

// QueriedOffsets returns the offset of each point query (-1 for
// diagnostics).
func (f *Fake) QueriedOffsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets...)
}

func (f *Fake) Diagnostics(ctx context.Context, path string) ([]engine.Diagnostic, error) {
	f.record(path, -1)
	return f.DiagnosticsResult, f.Err
}

func (f *Fake) CompletionsAt(ctx context.Context, path string, offset int) ([]engine.CompletionItem, error) {
	f.record(path, offset)
	return f.CompletionsResult, f.Err
}

func (f *Fake) QuickInfoAt(ctx context.Context, path string, offset int) (*engine.QuickInfo, error) {
	f.record(path, offset)
	return f.QuickInfoResult, f.Err
}

func (f *Fake) DefinitionAt(ctx context.Context, path string, offset int) ([]engine.DefinitionLocation, error) {
	f.record(path, offset)
	return f.DefinitionResult, f.Err
}
