package protocol

import (
	"context"
	"io"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/rs/zerolog"
)

var RequestCancelledError = &jrpc2.Error{Code: -32800, Message: "JSON RPC cancelled"}

// Server is the set of LSP requests braidls answers. Everything else the
// client may send is rejected by jrpc2 as method-not-found, which clients
// treat as "unsupported".
type Server interface {
	Initialize(ctx context.Context, params *InitializeParams) (*InitializeResult, error)
	Initialized(ctx context.Context, params *InitializedParams) error
	Shutdown(ctx context.Context) error
	Exit(ctx context.Context) error

	DidOpen(ctx context.Context, params *DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params *DidChangeTextDocumentParams) error
	DidClose(ctx context.Context, params *DidCloseTextDocumentParams) error
	DidSave(ctx context.Context, params *DidSaveTextDocumentParams) error

	Hover(ctx context.Context, params *HoverParams) (*Hover, error)
	Completion(ctx context.Context, params *CompletionParams) (*CompletionList, error)
	ResolveCompletionItem(ctx context.Context, params *CompletionItem) (*CompletionItem, error)
	Definition(ctx context.Context, params *DefinitionParams) ([]Location, error)
}

// Client is the server-to-client direction: notifications pushed over the
// same connection.
type Client interface {
	PublishDiagnostics(ctx context.Context, params *PublishDiagnosticsParams) error
	LogMessage(ctx context.Context, params *LogMessageParams) error
}

func newParseError(err error) *jrpc2.Error {
	return &jrpc2.Error{
		Code:    -32700, // Parse error
		Message: err.Error(),
	}
}

func createHandler[T any, O any](method func(ctx context.Context, params *T) (O, error)) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, newParseError(err)
		}

		result, err := method(ctx, &params)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

func createEmptyResultHandler[T any](method func(ctx context.Context, params *T) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)
		var params T
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, newParseError(err)
		}

		return nil, method(ctx, &params)
	})
}

func createEmptyHandler(method func(ctx context.Context) error) handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		ctx = ApplyRequestToZerolog(ctx, r)

		return nil, method(ctx)
	})
}

// cancelHandler swallows $/cancelRequest: cancellation of in-flight work
// is driven by the server's own per-document contexts, not by request id.
func cancelHandler() handler.Func {
	return handler.New(func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		var params CancelParams
		if err := r.UnmarshalParams(&params); err != nil {
			return nil, newParseError(err)
		}
		zerolog.Ctx(ctx).Trace().Interface("id", params.ID).Msg("cancel request acknowledged")
		return nil, nil
	})
}

func buildServerDispatchMap(server Server) handler.Map {
	return handler.Map{
		"initialize":  createHandler(server.Initialize),
		"initialized": createEmptyResultHandler(server.Initialized),
		"shutdown":    createEmptyHandler(server.Shutdown),
		"exit":        createEmptyHandler(server.Exit),

		"textDocument/didOpen":   createEmptyResultHandler(server.DidOpen),
		"textDocument/didChange": createEmptyResultHandler(server.DidChange),
		"textDocument/didClose":  createEmptyResultHandler(server.DidClose),
		"textDocument/didSave":   createEmptyResultHandler(server.DidSave),

		"textDocument/hover":      createHandler(server.Hover),
		"textDocument/completion": createHandler(server.Completion),
		"completionItem/resolve":  createHandler(server.ResolveCompletionItem),
		"textDocument/definition": createHandler(server.Definition),

		"$/cancelRequest": cancelHandler(),
	}
}

func ApplyRequestToZerolog(ctx context.Context, req *jrpc2.Request) context.Context {
	return zerolog.Ctx(ctx).With().
		Str("rpc_method", req.Method()).
		Str("rpc_id", req.ID()).
		Logger().WithContext(ctx)
}

// CallbackClient pushes server-initiated notifications to the editor over
// the serving connection. Requires AllowPush on the server options.
type CallbackClient struct {
	server *jrpc2.Server
}

var _ Client = (*CallbackClient)(nil)

func (c *CallbackClient) PublishDiagnostics(ctx context.Context, params *PublishDiagnosticsParams) error {
	return c.server.Notify(ctx, "textDocument/publishDiagnostics", params)
}

func (c *CallbackClient) LogMessage(ctx context.Context, params *LogMessageParams) error {
	return c.server.Notify(ctx, "window/logMessage", params)
}

// NewServerServer binds a Server to a jrpc2 server and returns it together
// with the callback channel for pushes. The jrpc2 request contexts inherit
// ctx, so the server's logger flows into every handler.
func NewServerServer(ctx context.Context, server Server, opts *jrpc2.ServerOptions) (*jrpc2.Server, *CallbackClient) {
	methods := buildServerDispatchMap(server)
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}

	opts.AllowPush = true
	opts.NewContext = func() context.Context {
		return ctx
	}

	result := jrpc2.NewServer(methods, opts)

	return result, &CallbackClient{server: result}
}

// ServerInstance is one bound server plus its push channel.
type ServerInstance struct {
	server   *jrpc2.Server
	callback *CallbackClient
}

func NewServerInstance(ctx context.Context, server Server, opts *jrpc2.ServerOptions) *ServerInstance {
	srv, cb := NewServerServer(ctx, server, opts)
	return &ServerInstance{server: srv, callback: cb}
}

func (si *ServerInstance) Callback() *CallbackClient {
	return si.callback
}

// StartAndWait serves LSP-framed JSON-RPC on the given stream until the
// client disconnects.
func (si *ServerInstance) StartAndWait(in io.Reader, out io.Writer) error {
	si.server.Start(channel.LSP(in, nopWriteCloser{out}))
	return si.server.Wait()
}

// nopWriteCloser adapts an io.Writer to the io.WriteCloser that
// channel.LSP requires; Close is a no-op so the caller keeps ownership
// of the underlying stream.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func NonNilSlice[T any](x []T) []T {
	if x == nil {
		return []T{}
	}
	return x
}
