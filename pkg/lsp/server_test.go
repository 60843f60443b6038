package lsp_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/braidlang/braidls/pkg/blocks"
	"github.com/braidlang/braidls/pkg/directive"
	"github.com/braidlang/braidls/pkg/engine"
	"github.com/braidlang/braidls/pkg/engine/enginetest"
	"github.com/braidlang/braidls/pkg/lsp"
	"github.com/braidlang/braidls/pkg/lsp/protocol"
	"github.com/braidlang/braidls/pkg/synth"
	"github.com/braidlang/braidls/pkg/vfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURI = protocol.DocumentURI("file:///app/counter.braid")

var testDoc = strings.Join([]string{
	"script:",
	"    let count: number = 0;",
	"html:",
	`    <p>${count + 1}</p>`,
}, "\n")

type fakeClient struct {
	mu        sync.Mutex
	published []*protocol.PublishDiagnosticsParams
	logged    []*protocol.LogMessageParams
}

func (f *fakeClient) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, params)
	return nil
}

func (f *fakeClient) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, params)
	return nil
}

func (f *fakeClient) lastPublished(t *testing.T) *protocol.PublishDiagnosticsParams {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.published)
	return f.published[len(f.published)-1]
}

func virtualFor(t *testing.T, doc string) string {
	t.Helper()
	file := blocks.Extract(doc)
	nodes, err := directive.Parse(file.Markup)
	require.NoError(t, err)
	var markupText string
	if file.Markup != nil {
		markupText = file.Markup.Text
	}
	return synth.Synthesize(file.ScriptText(), markupText, nodes).Content
}

func newTestServer(t *testing.T, fake *enginetest.Fake) (*lsp.Server, *fakeClient) {
	t.Helper()
	store := vfs.NewStore()
	fake.Snapshots = store
	server := lsp.NewServer(context.Background(), fake, store, afero.NewMemMapFs())
	client := &fakeClient{}
	server.SetCallbackClient(client)
	return server, client
}

func open(t *testing.T, server *lsp.Server, uri protocol.DocumentURI, content string) {
	t.Helper()
	err := server.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: "braid",
			Version:    1,
			Text:       content,
		},
	})
	require.NoError(t, err)
}

func TestInitialize(t *testing.T) {
	server, _ := newTestServer(t, &enginetest.Fake{})

	result, err := server.Initialize(context.Background(), &protocol.InitializeParams{
		RootURI: "file:///app",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Capabilities.TextDocumentSync)
	assert.True(t, result.Capabilities.TextDocumentSync.OpenClose)
	assert.Equal(t, protocol.SyncIncremental, result.Capabilities.TextDocumentSync.Change)
	assert.True(t, result.Capabilities.HoverProvider)
	assert.True(t, result.Capabilities.DefinitionProvider)
	require.NotNil(t, result.Capabilities.CompletionProvider)
	assert.True(t, result.Capabilities.CompletionProvider.ResolveProvider)
	assert.Equal(t, "braidls", result.ServerInfo.Name)
}

func TestDidOpen_PublishesDiagnostics(t *testing.T) {
	virtual := virtualFor(t, testDoc)
	exprOff := strings.Index(virtual, "count + 1")
	require.GreaterOrEqual(t, exprOff, 0)

	fake := &enginetest.Fake{
		DiagnosticsResult: []engine.Diagnostic{
			{Start: exprOff, Length: len("count + 1"), Message: "no overload matches", Severity: engine.SeverityError},
		},
	}
	server, client := newTestServer(t, fake)

	open(t, server, testURI, testDoc)

	pub := client.lastPublished(t)
	assert.Equal(t, testURI, pub.URI)
	require.Len(t, pub.Diagnostics, 1)

	d := pub.Diagnostics[0]
	assert.Equal(t, "no overload matches", d.Message)
	assert.Equal(t, protocol.SeverityError, d.Severity)

	// The finding lands on `count + 1` inside the interpolation, in
	// full-document coordinates.
	line := uint32(3)
	char := uint32(strings.Index(`    <p>${count + 1}</p>`, "count"))
	assert.Equal(t, protocol.Position{Line: line, Character: char}, d.Range.Start)
	assert.Equal(t, protocol.Position{Line: line, Character: char + uint32(len("count + 1"))}, d.Range.End)
}

func TestDidChange_IncrementalSplice(t *testing.T) {
	server, client := newTestServer(t, &enginetest.Fake{})
	open(t, server, testURI, testDoc)

	// Replace `count + 1` with `count + 2` through a ranged edit.
	line := uint32(3)
	char := uint32(strings.Index(`    <p>${count + 1}</p>`, "1"))
	err := server.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI},
			Version:                2,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{
			{
				Range: &protocol.Range{
					Start: protocol.Position{Line: line, Character: char},
					End:   protocol.Position{Line: line, Character: char + 1},
				},
				Text: "2",
			},
		},
	})
	require.NoError(t, err)

	doc, ok := server.Documents().GetOpen(testURI)
	require.True(t, ok)
	assert.Contains(t, doc.Content, "${count + 2}")
	assert.Equal(t, int32(2), doc.Version)

	// didOpen and didChange both published.
	assert.Len(t, client.published, 2)
}

func TestDidChange_FullReplace(t *testing.T) {
	server, _ := newTestServer(t, &enginetest.Fake{})
	open(t, server, testURI, testDoc)

	replacement := "script:\n    let x = 1;\n"
	err := server.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI},
			Version:                2,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: replacement}},
	})
	require.NoError(t, err)

	doc, ok := server.Documents().GetOpen(testURI)
	require.True(t, ok)
	assert.Equal(t, replacement, doc.Content)
}

func TestDidClose_ClearsDiagnostics(t *testing.T) {
	server, client := newTestServer(t, &enginetest.Fake{})
	open(t, server, testURI, testDoc)

	err := server.DidClose(context.Background(), &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)

	pub := client.lastPublished(t)
	assert.Equal(t, testURI, pub.URI)
	assert.Empty(t, pub.Diagnostics)

	_, ok := server.Documents().GetOpen(testURI)
	assert.False(t, ok)
}

func TestHover(t *testing.T) {
	virtual := virtualFor(t, testDoc)
	stmtOff := strings.Index(virtual, "(count + 1);")
	require.GreaterOrEqual(t, stmtOff, 0)

	fake := &enginetest.Fake{
		QuickInfoResult: &engine.QuickInfo{
			Contents: "let count: number",
			Start:    stmtOff + 1,
			Length:   len("count"),
		},
	}
	server, _ := newTestServer(t, fake)
	open(t, server, testURI, testDoc)

	char := uint32(strings.Index(`    <p>${count + 1}</p>`, "count"))
	hov, err := server.Hover(context.Background(), &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
			Position:     protocol.Position{Line: 3, Character: char},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, hov)

	assert.Equal(t, "markdown", hov.Contents.Kind)
	assert.Equal(t, "let count: number", hov.Contents.Value)
	require.NotNil(t, hov.Range)
	assert.Equal(t, protocol.Position{Line: 3, Character: char}, hov.Range.Start)
}

func TestHover_NothingToShow(t *testing.T) {
	server, _ := newTestServer(t, &enginetest.Fake{})
	open(t, server, testURI, testDoc)

	// Plain markup, no expression under the cursor.
	hov, err := server.Hover(context.Background(), &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
			Position:     protocol.Position{Line: 3, Character: 5},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, hov)
}

func TestCompletionAndResolve(t *testing.T) {
	fake := &enginetest.Fake{
		CompletionsResult: []engine.CompletionItem{
			{Name: "count", Kind: "variable", SortText: "11"},
		},
		QuickInfoResult: &engine.QuickInfo{Contents: "let count: number"},
	}
	server, _ := newTestServer(t, fake)
	open(t, server, testURI, testDoc)

	char := uint32(strings.Index(`    <p>${count + 1}</p>`, "count"))
	list, err := server.Completion(context.Background(), &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
			Position:     protocol.Position{Line: 3, Character: char},
		},
	})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	item := list.Items[0]
	assert.Equal(t, "count", item.Label)
	assert.Equal(t, protocol.CompletionItemKindVariable, item.Kind)
	require.NotEmpty(t, item.Data)

	resolved, err := server.ResolveCompletionItem(context.Background(), &item)
	require.NoError(t, err)
	require.NotNil(t, resolved.Documentation)
	assert.Equal(t, "let count: number", resolved.Documentation.Value)
}

func TestDefinition(t *testing.T) {
	virtual := virtualFor(t, testDoc)
	declOff := strings.Index(virtual, "count")
	require.GreaterOrEqual(t, declOff, 0)

	fake := &enginetest.Fake{
		DefinitionResult: []engine.DefinitionLocation{
			{Path: string(testURI) + ".virtual.ts", Start: declOff, Length: len("count")},
		},
	}
	server, _ := newTestServer(t, fake)
	open(t, server, testURI, testDoc)

	char := uint32(strings.Index(`    <p>${count + 1}</p>`, "count"))
	locs, err := server.Definition(context.Background(), &protocol.DefinitionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
			Position:     protocol.Position{Line: 3, Character: char},
		},
	})
	require.NoError(t, err)
	require.Len(t, locs, 1)

	assert.Equal(t, testURI, locs[0].URI)
	// Declaration site in the script block.
	assert.Equal(t, protocol.Position{Line: 1, Character: 8}, locs[0].Range.Start)
}

func TestShutdown(t *testing.T) {
	server, _ := newTestServer(t, &enginetest.Fake{})
	assert.NoError(t, server.Shutdown(context.Background()))
}

// blockingEngine parks every point query until its context is canceled, so
// a test can overlap an edit with an in-flight query.
type blockingEngine struct {
	started chan struct{}
	once    sync.Once
}

func (e *blockingEngine) Diagnostics(ctx context.Context, path string) ([]engine.Diagnostic, error) {
	return nil, nil
}

func (e *blockingEngine) CompletionsAt(ctx context.Context, path string, offset int) ([]engine.CompletionItem, error) {
	return nil, nil
}

func (e *blockingEngine) QuickInfoAt(ctx context.Context, path string, offset int) (*engine.QuickInfo, error) {
	e.once.Do(func() { close(e.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *blockingEngine) DefinitionAt(ctx context.Context, path string, offset int) ([]engine.DefinitionLocation, error) {
	return nil, nil
}

func TestDidChange_CancelsInFlightQuery(t *testing.T) {
	eng := &blockingEngine{started: make(chan struct{})}
	server := lsp.NewServer(context.Background(), eng, vfs.NewStore(), afero.NewMemMapFs())
	server.SetCallbackClient(&fakeClient{})
	open(t, server, testURI, testDoc)

	char := uint32(strings.Index(`    <p>${count + 1}</p>`, "count"))
	done := make(chan *protocol.Hover, 1)
	go func() {
		hov, _ := server.Hover(context.Background(), &protocol.HoverParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{
				TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
				Position:     protocol.Position{Line: 3, Character: char},
			},
		})
		done <- hov
	}()

	// Wait for the query to reach the engine, then edit the document out
	// from under it.
	<-eng.started
	err := server.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI},
			Version:                2,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "script:\n    let x = 1;\n"}},
	})
	require.NoError(t, err)

	select {
	case hov := <-done:
		assert.Nil(t, hov, "a superseded query degrades to no result")
	case <-time.After(2 * time.Second):
		t.Fatal("hover did not unblock after the document changed")
	}
}
