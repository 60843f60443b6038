// Package lsp serves the Language Server Protocol over JSON-RPC, mapping
// each editor request onto the bridge pipeline.
package lsp

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/braidlang/braidls/pkg/bridge"
	"github.com/braidlang/braidls/pkg/engine"
	"github.com/braidlang/braidls/pkg/lsp/protocol"
	"github.com/braidlang/braidls/pkg/position"
	"github.com/braidlang/braidls/pkg/vfs"
	"github.com/creachadair/jrpc2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"gopkg.in/fsnotify.v1"
)

// Server is one LSP session.
type Server struct {
	// Document management
	documents *DocumentManager
	bridge    *bridge.Bridge
	engine    engine.Service

	// Workspace management
	workspace          string
	workspaceFSWatcher *fsnotify.Watcher

	// Server state
	initialized bool
	shutdown    bool

	// Server identification
	id string

	// Context management: one cancel func per document, so an edit
	// cancels the queries running against the document's previous text.
	cancelFuncs *sync.Map // map[string]context.CancelFunc

	// LSP client for notifications
	callbackClient protocol.Client
}

// NewServer wires a session around one analysis engine and one virtual
// file store. fs backs document reads for files the editor never opened;
// nil means the OS filesystem.
func NewServer(ctx context.Context, svc engine.Service, store *vfs.Store, fs afero.Fs) *Server {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Server{
		id:          xid.New().String(),
		documents:   NewDocumentManager(fs),
		bridge:      bridge.New(svc, store, fs),
		engine:      svc,
		cancelFuncs: &sync.Map{},
	}
}

func (s *Server) SetCallbackClient(client protocol.Client) {
	s.callbackClient = client
}

func (s *Server) Documents() *DocumentManager {
	return s.documents
}

// BuildServerInstance binds this server to a jrpc2 instance and wires the
// push channel back for publishDiagnostics.
func (s *Server) BuildServerInstance(ctx context.Context, opts *jrpc2.ServerOptions) *protocol.ServerInstance {
	instance := protocol.NewServerInstance(ctx, s, opts)
	s.SetCallbackClient(instance.Callback())
	return instance
}

func (s *Server) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("server_id", s.id).Msg("initializing server")

	if params.RootURI != "" {
		s.workspace = params.RootURI.Path()
	}
	s.initialized = true

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.SyncIncremental,
				Save:      &protocol.SaveOptions{IncludeText: true},
			},
			HoverProvider: true,
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{".", ":", "@", "{", `"`},
				ResolveProvider:   true,
			},
			DefinitionProvider: true,
		},
		ServerInfo: &protocol.ServerInfo{Name: "braidls"},
	}, nil
}

func (s *Server) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("server initialized")

	if err := s.startWorkspaceWatcher(ctx); err != nil {
		// The watcher only keeps closed-file state fresh; the session
		// works without it.
		logger.Warn().Err(err).Msg("workspace watcher unavailable")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown = true

	var errs error
	if s.workspaceFSWatcher != nil {
		errs = multierr.Append(errs, s.workspaceFSWatcher.Close())
		s.workspaceFSWatcher = nil
	}
	if closer, ok := s.engine.(io.Closer); ok {
		errs = multierr.Append(errs, closer.Close())
	}
	return errs
}

func (s *Server) Exit(ctx context.Context) error {
	return nil
}

// startWorkspaceWatcher evicts stale virtual documents when braid files
// change outside the editor (generators, branch switches).
func (s *Server) startWorkspaceWatcher(ctx context.Context) error {
	if s.workspace == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating workspace watcher: %w", err)
	}
	if err := watcher.Add(s.workspace); err != nil {
		watcher.Close()
		return errors.Errorf("watching %s: %w", s.workspace, err)
	}
	s.workspaceFSWatcher = watcher

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".braid") {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				uri := "file://" + ev.Name
				if _, open := s.documents.GetOpen(protocol.DocumentURI(uri)); open {
					continue
				}
				zerolog.Ctx(ctx).Debug().Str("path", ev.Name).Msg("file changed outside editor, dropping virtual document")
				s.bridge.Forget(uri)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zerolog.Ctx(ctx).Warn().Err(werr).Msg("workspace watcher error")
			}
		}
	}()

	return nil
}

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Msg("document opened")

	doc := &Document{
		URI:        string(params.TextDocument.URI),
		LanguageID: params.TextDocument.LanguageID,
		Version:    params.TextDocument.Version,
		Content:    params.TextDocument.Text,
	}
	s.documents.Store(params.TextDocument.URI, doc)

	return s.publishDiagnostics(ctx, params.TextDocument.URI, doc.Content)
}

func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Msg("document changed")

	if len(params.ContentChanges) == 0 {
		return nil
	}

	doc, ok := s.documents.GetOpen(params.TextDocument.URI)
	if !ok {
		return errors.Errorf("document not found: %s", params.TextDocument.URI)
	}

	// The document moved on; anything still computing against the old
	// text answers a question nobody is asking.
	if cancel, ok := s.cancelFuncs.Load(string(params.TextDocument.URI)); ok {
		cancel.(context.CancelFunc)()
	}

	doc.Version = params.TextDocument.Version
	for _, change := range params.ContentChanges {
		if change.Range == nil {
			doc.Content = change.Text
		} else {
			doc.Content = spliceRange(doc.Content, change.Range, change.Text)
		}
	}
	s.documents.Store(params.TextDocument.URI, doc)

	return s.publishDiagnostics(ctx, params.TextDocument.URI, doc.Content)
}

func spliceRange(content string, rng *protocol.Range, text string) string {
	start := position.OffsetAt(toPlace(rng.Start), content)
	end := position.OffsetAt(toPlace(rng.End), content)
	return content[:start] + text + content[end:]
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Msg("document closed")

	uri := string(params.TextDocument.URI)
	s.documents.Delete(params.TextDocument.URI)
	s.bridge.Forget(uri)

	// Cancel anything still running against the document and drop its
	// scope entry; closed documents must not accumulate in the map.
	if cancel, ok := s.cancelFuncs.LoadAndDelete(uri); ok {
		cancel.(context.CancelFunc)()
	}

	// Clear stale squiggles in the editor.
	if s.callbackClient != nil {
		return s.callbackClient.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
			URI:         params.TextDocument.URI,
			Diagnostics: []protocol.Diagnostic{},
		})
	}
	return nil
}

func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("uri", string(params.TextDocument.URI)).Msg("document saved")

	doc, ok := s.documents.GetOpen(params.TextDocument.URI)
	if !ok {
		return errors.Errorf("document not found: %s", params.TextDocument.URI)
	}

	if params.Text != nil {
		doc.Content = *params.Text
		s.documents.Store(params.TextDocument.URI, doc)
	}

	return s.publishDiagnostics(ctx, params.TextDocument.URI, doc.Content)
}

func (s *Server) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := string(params.TextDocument.URI)
	doc, ok := s.documents.Get(params.TextDocument.URI)
	if !ok {
		return nil, errors.Errorf("document not found: %s", uri)
	}

	ctx, done := s.requestScope(ctx, uri)
	defer done()

	hov := s.bridge.HoverAt(ctx, uri, doc.Content, toPlace(params.Position))
	if hov == nil {
		return nil, nil
	}

	rng := toProtocolRange(hov.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: "markdown", Value: hov.Contents},
		Range:    &rng,
	}, nil
}

func (s *Server) Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	uri := string(params.TextDocument.URI)
	doc, ok := s.documents.Get(params.TextDocument.URI)
	if !ok {
		return nil, errors.Errorf("document not found: %s", uri)
	}

	ctx, done := s.requestScope(ctx, uri)
	defer done()

	completions := s.bridge.CompletionsAt(ctx, uri, doc.Content, toPlace(params.Position))

	items := make([]protocol.CompletionItem, 0, len(completions))
	for _, c := range completions {
		item := protocol.CompletionItem{
			Label:      c.Label,
			Kind:       completionKind(c.Kind),
			Detail:     c.Detail,
			SortText:   c.SortText,
			InsertText: c.InsertText,
		}
		if c.Data != nil {
			data, err := json.Marshal(c.Data)
			if err != nil {
				return nil, errors.Errorf("marshaling resolve data: %w", err)
			}
			item.Data = data
		}
		items = append(items, item)
	}

	return &protocol.CompletionList{Items: protocol.NonNilSlice(items)}, nil
}

func (s *Server) ResolveCompletionItem(ctx context.Context, params *protocol.CompletionItem) (*protocol.CompletionItem, error) {
	if len(params.Data) == 0 {
		return params, nil
	}

	var data bridge.ResolveData
	if err := json.Unmarshal(params.Data, &data); err != nil {
		return nil, errors.Errorf("unmarshaling resolve data: %w", err)
	}

	uri := bridge.SourceURI(data.VirtualPath)
	doc, ok := s.documents.Get(protocol.DocumentURI(uri))
	if !ok {
		// Document gone since the list was computed; the unresolved item
		// is still valid.
		return params, nil
	}

	resolved := s.bridge.ResolveCompletion(ctx, uri, doc.Content, bridge.Completion{
		Label: params.Label,
		Data:  &data,
	})
	if resolved.Documentation != "" {
		params.Documentation = &protocol.MarkupContent{Kind: "markdown", Value: resolved.Documentation}
	}
	return params, nil
}

func (s *Server) Definition(ctx context.Context, params *protocol.DefinitionParams) ([]protocol.Location, error) {
	uri := string(params.TextDocument.URI)
	doc, ok := s.documents.Get(params.TextDocument.URI)
	if !ok {
		return nil, errors.Errorf("document not found: %s", uri)
	}

	ctx, done := s.requestScope(ctx, uri)
	defer done()

	locs := s.bridge.DefinitionAt(ctx, uri, doc.Content, toPlace(params.Position))

	out := make([]protocol.Location, 0, len(locs))
	for _, loc := range locs {
		target := loc.URI
		if !strings.Contains(target, "://") {
			target = "file://" + target
		}
		out = append(out, protocol.Location{
			URI:   protocol.DocumentURI(target),
			Range: toProtocolRange(loc.Range),
		})
	}
	return out, nil
}

// requestScope derives a per-request context that a later edit to the
// same document cancels.
func (s *Server) requestScope(ctx context.Context, uri string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFuncs.Store(uri, cancel)
	return ctx, cancel
}

func (s *Server) publishDiagnostics(ctx context.Context, uri protocol.DocumentURI, content string) error {
	diags := s.bridge.Diagnostics(ctx, string(uri), content)

	items := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		items = append(items, protocol.Diagnostic{
			Range:    toProtocolRange(d.Range),
			Severity: protocol.DiagnosticSeverity(d.Severity),
			Code:     d.Code,
			Source:   d.Source,
			Message:  d.Message,
		})
	}

	if s.callbackClient == nil {
		zerolog.Ctx(ctx).Warn().Msg("no callback client, skipping publish diagnostics")
		return nil
	}

	return s.callbackClient.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: protocol.NonNilSlice(items),
	})
}

// toPlace adopts the wire position's character count as a byte column.
// The two agree on ASCII text; editors sending UTF-16 columns for
// non-ASCII lines will land slightly off.
func toPlace(p protocol.Position) position.Place {
	return position.Place{Line: int(p.Line), Character: int(p.Character)}
}

func toPosition(p position.Place) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

func toProtocolRange(r position.Range) protocol.Range {
	return protocol.Range{Start: toPosition(r.Start), End: toPosition(r.End)}
}

func completionKind(kind string) protocol.CompletionItemKind {
	switch kind {
	case "variable", "var", "let", "const", "local var":
		return protocol.CompletionItemKindVariable
	case "function":
		return protocol.CompletionItemKindFunction
	case "method":
		return protocol.CompletionItemKindMethod
	case "property", "getter", "setter":
		return protocol.CompletionItemKindProperty
	case "field":
		return protocol.CompletionItemKindField
	case "module":
		return protocol.CompletionItemKindModule
	case "keyword", "directive":
		return protocol.CompletionItemKindKeyword
	case "class":
		return protocol.CompletionItemKindClass
	case "attribute":
		return protocol.CompletionItemKindField
	case "element":
		return protocol.CompletionItemKindValue
	default:
		return protocol.CompletionItemKindText
	}
}
