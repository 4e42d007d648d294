package cli

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/mcncl/river-ls/internal/lsp"
	"github.com/mcncl/river-ls/internal/source"
)

type stdio struct {
	in  io.Reader
	out io.Writer
}

func (s stdio) Read(p []byte) (n int, err error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (n int, err error) { return s.out.Write(p) }

// Close releases the input so the connection's read loop ends.
func (s stdio) Close() error {
	if c, ok := s.in.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// serve runs the language server until the client exits or the process is
// interrupted.
func (a *app) serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.newStore(a.newCache())
	if err != nil {
		return err
	}
	defer store.Close()

	server := lsp.NewServer(store, a.logger,
		lsp.WithSettings(a.opts.Settings()),
		lsp.WithVersion(version))

	var rw io.ReadWriteCloser = stdio{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
	stream := jsonrpc2.NewStream(rw)
	conn := jsonrpc2.NewConn(stream)

	// Set the connection in the server so it can send notifications
	server.SetConnection(conn)

	if a.opts.Watch {
		go a.watch(ctx, func() {
			store.Reload(server.Settings().SchemaVersion)
		})
	}

	a.logger.Info("Serving on stdio",
		zap.String("version", version),
		zap.String("source", a.opts.Source))

	conn.Go(ctx, server.Handler())
	select {
	case <-conn.Done():
	case <-ctx.Done():
		_ = conn.Close()
		<-conn.Done()
	}

	if err := conn.Err(); err != nil && ctx.Err() == nil {
		a.logger.Debug("Connection closed", zap.Error(err))
	}
	return nil
}

func (a *app) watch(ctx context.Context, reload func()) {
	a.logger.Info("Watching documentation", zap.String("dir", a.opts.DocsDir))
	if err := source.Watch(ctx, a.opts.DocsDir, source.DefaultDebounce, a.logger, reload); err != nil {
		a.logger.Error("Watching documentation failed", zap.String("dir", a.opts.DocsDir), zap.Error(err))
	}
}
