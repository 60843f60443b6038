package engine

import (
	"context"
	"os/exec"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Client talks to an external analysis-engine process over JSON-RPC on its
// stdio, LSP-framed. Before every query it syncs the target document's
// snapshot; the engine caches by path+version, so an unchanged version costs
// one short notification and no content transfer. When the snapshot
// provider announces evictions, the client forgets the path and tells the
// engine to drop its copy, so probes do not pile up on either side.
type Client struct {
	rpc       *jrpc2.Client
	snapshots SnapshotProvider
	ctx       context.Context

	mu     sync.Mutex
	synced map[string]int // path -> last version pushed
}

var _ Service = (*Client)(nil)

// NewClient spawns cmd and connects to it. The command is expected to speak
// the engine protocol on its stdin/stdout until the context is canceled.
func NewClient(ctx context.Context, cmd *exec.Cmd, snapshots SnapshotProvider) (*Client, error) {
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Errorf("getting stdout pipe: %w", err)
	}
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Errorf("getting stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Errorf("starting engine %q: %w", cmd.Path, err)
	}

	return NewChannelClient(ctx, channel.LSP(out, in), snapshots), nil
}

// NewChannelClient connects to an engine on an existing channel.
func NewChannelClient(ctx context.Context, ch channel.Channel, snapshots SnapshotProvider) *Client {
	copts := &jrpc2.ClientOptions{
		Logger: func(msg string) {
			zerolog.Ctx(ctx).Trace().Msgf("engine rpc: %s", msg)
		},
	}

	c := &Client{
		rpc:       jrpc2.NewClient(ch, copts),
		snapshots: snapshots,
		ctx:       ctx,
		synced:    make(map[string]int),
	}
	if o, ok := snapshots.(EvictObservable); ok {
		o.Observe(c.released)
	}
	return c
}

// released runs when the snapshot provider evicts a path. It drops the sync
// record, so a later reinstall under the same path is re-announced even if
// the fresh version counter happens to collide with the old one, and it
// tells the engine to forget its copy of the document.
func (c *Client) released(path string) {
	c.mu.Lock()
	_, announced := c.synced[path]
	delete(c.synced, path)
	c.mu.Unlock()

	if !announced {
		return
	}
	if err := c.rpc.Notify(c.ctx, "script/release", &pathParams{Path: path}); err != nil {
		zerolog.Ctx(c.ctx).Debug().Err(err).Str("path", path).Msg("release notification failed")
	}
}

// Close tears the RPC channel down; the engine process exits on EOF.
func (c *Client) Close() error {
	return c.rpc.Close()
}

type syncParams struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
	Content string `json:"content,omitempty"`
}

// sync pushes the document snapshot if the engine has not seen this version
// yet.
func (c *Client) sync(ctx context.Context, path string) error {
	content, version, ok := c.snapshots.Snapshot(path)
	if !ok {
		return errors.Errorf("no snapshot for %s", path)
	}

	c.mu.Lock()
	seen, have := c.synced[path]
	c.mu.Unlock()
	if have && seen == version {
		return nil
	}

	if err := c.rpc.Notify(ctx, "script/sync", &syncParams{Path: path, Version: version, Content: content}); err != nil {
		return errors.Errorf("syncing %s@%d: %w", path, version, err)
	}

	c.mu.Lock()
	c.synced[path] = version
	c.mu.Unlock()
	return nil
}

func call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var out T
	if err := c.rpc.CallResult(ctx, method, params, &out); err != nil {
		return out, errors.Errorf("calling %s: %w", method, err)
	}
	return out, nil
}

type pathParams struct {
	Path string `json:"path"`
}

type offsetParams struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
}

func (c *Client) Diagnostics(ctx context.Context, path string) ([]Diagnostic, error) {
	if err := c.sync(ctx, path); err != nil {
		return nil, err
	}
	return call[[]Diagnostic](ctx, c, "script/diagnostics", &pathParams{Path: path})
}

func (c *Client) CompletionsAt(ctx context.Context, path string, offset int) ([]CompletionItem, error) {
	if err := c.sync(ctx, path); err != nil {
		return nil, err
	}
	return call[[]CompletionItem](ctx, c, "script/completionsAt", &offsetParams{Path: path, Offset: offset})
}

func (c *Client) QuickInfoAt(ctx context.Context, path string, offset int) (*QuickInfo, error) {
	if err := c.sync(ctx, path); err != nil {
		return nil, err
	}
	return call[*QuickInfo](ctx, c, "script/quickInfoAt", &offsetParams{Path: path, Offset: offset})
}

func (c *Client) DefinitionAt(ctx context.Context, path string, offset int) ([]DefinitionLocation, error) {
	if err := c.sync(ctx, path); err != nil {
		return nil, err
	}
	return call[[]DefinitionLocation](ctx, c, "script/definitionAt", &offsetParams{Path: path, Offset: offset})
}
