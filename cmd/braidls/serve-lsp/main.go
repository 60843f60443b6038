package serve_lsp

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/braidlang/braidls/pkg/engine"
	"github.com/braidlang/braidls/pkg/lsp"
	"github.com/braidlang/braidls/pkg/vfs"
	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	debug     bool
	engineCmd string
}

func NewServeLSPCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server",
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.engineCmd, "engine-cmd", "braid-analyzer --stdio", "command line of the script analysis engine")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context())
	}

	return cmd
}

type RPCLogger struct {
}

func (me *RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Info().Str("rpc_params", req.ParamString()).Str("rpc_id", req.ID()).Str("rpc_method", req.Method()).Msg("client request")
}

func (me *RPCLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	zerolog.Ctx(ctx).Info().Str("rpc_params", res.ResultString()).Str("rpc_id", res.ID()).Msg("server response")
}

func (me *Handler) Run(ctx context.Context) error {
	level := zerolog.InfoLevel
	if me.debug {
		level = zerolog.TraceLevel
	}

	// stdout carries the protocol; logs go to stderr.
	logger := zerolog.New(os.Stderr).With().
		Str("component", "braidls").
		Timestamp().
		Logger().
		Level(level)
	ctx = logger.WithContext(ctx)

	parts := strings.Fields(me.engineCmd)
	if len(parts) == 0 {
		return errors.New("engine-cmd must not be empty")
	}

	store := vfs.NewStore()

	engineProc := exec.CommandContext(ctx, parts[0], parts[1:]...)
	engineProc.Stderr = os.Stderr
	client, err := engine.NewClient(ctx, engineProc, store)
	if err != nil {
		return errors.Errorf("starting analysis engine: %w", err)
	}

	server := lsp.NewServer(ctx, client, store, nil)

	opts := &jrpc2.ServerOptions{
		RPCLog: &RPCLogger{},
		// One in-flight request; probes make concurrency safe, but the
		// engine subprocess is strictly request-response anyway.
		Concurrency: 1,
	}

	instance := server.BuildServerInstance(ctx, opts)

	// Serve the editor on stdin/stdout until it disconnects.
	if err := instance.StartAndWait(os.Stdin, os.Stdout); err != nil {
		return errors.Errorf("error running language server: %w", err)
	}

	return nil
}
