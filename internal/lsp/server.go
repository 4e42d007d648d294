// Package lsp serves River completions over the language server protocol.
package lsp

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/mcncl/river-ls/internal/config"
	"github.com/mcncl/river-ls/internal/registry"
)

const (
	serverName = "river-ls"

	riverExt        = ".river"
	riverLanguageID = "river"

	// settingsSection is the workspace configuration section of the server.
	settingsSection = "riverLanguageServer"
)

// Schemas is the schema snapshot source the server reads from.
type Schemas interface {
	Snapshot() *registry.Snapshot
	RebuildAsync(version string) <-chan error
}

type Server struct {
	conn   jsonrpc2.Conn
	client protocol.Client
	logger *zap.Logger

	documentManager    *DocumentManager
	completionProvider *CompletionProvider
	schemas            Schemas

	mu       sync.RWMutex
	settings config.Settings

	version      string
	shuttingDown atomic.Bool
}

// Option customizes a Server.
type Option func(*Server)

// WithSettings sets the settings used until the host sends its own.
func WithSettings(settings config.Settings) Option {
	return func(s *Server) { s.settings = settings }
}

// WithVersion sets the version reported to the client.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// NewServer creates a server answering from schemas. The connection is
// attached later with SetConnection.
func NewServer(schemas Schemas, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:             logger,
		documentManager:    NewDocumentManager(),
		completionProvider: NewCompletionProvider(logger),
		schemas:            schemas,
		settings:           config.DefaultSettings(),
		version:            "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetConnection attaches the client connection used for notifications.
func (s *Server) SetConnection(conn jsonrpc2.Conn) {
	s.conn = conn
	s.client = protocol.ClientDispatcher(conn, s.logger)
}

func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// Settings returns the current host settings.
func (s *Server) Settings() config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Server) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	fields := []zap.Field{}
	if params.ClientInfo != nil {
		fields = append(fields, zap.String("client", params.ClientInfo.Name), zap.String("clientVersion", params.ClientInfo.Version))
	}
	s.logger.Info("Initializing river-ls server", fields...)

	if raw := initializationConfig(params.InitializationOptions); raw != nil {
		s.applySettings(ctx, raw)
	}
	settings := s.Settings()
	s.logger.Info("Using schema version",
		zap.String("version", settings.SchemaVersion),
		zap.Stringer("verbosity", settings.Verbosity))
	s.schemas.RebuildAsync(settings.SchemaVersion)

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider:   true,
				TriggerCharacters: []string{"{", "\n"},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: s.version,
		},
	}, nil
}

// initializationConfig returns the "config" member of the initialization
// options as raw JSON.
func initializationConfig(options any) []byte {
	if options == nil {
		return nil
	}
	data, err := json.Marshal(options)
	if err != nil {
		return nil
	}
	var wrapper struct {
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil
	}
	return wrapper.Config
}

func (s *Server) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	s.logger.Info("Server initialized")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Server shutting down")
	s.shuttingDown.Store(true)
	return nil
}

func (s *Server) Exit(ctx context.Context) error {
	s.logger.Info("Server exiting")
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	if !isRiverDocument(doc.URI, string(doc.LanguageID)) {
		s.logger.Debug("Ignoring non-River document", zap.String("uri", string(doc.URI)))
		return nil
	}
	s.logger.Debug("Document opened", zap.String("uri", string(doc.URI)), zap.Int32("version", doc.Version))
	s.documentManager.OpenDocument(doc.URI, doc.Version, doc.Text)
	return nil
}

func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	if _, open := s.documentManager.GetDocument(params.TextDocument.URI); !open && !isRiverDocument(params.TextDocument.URI, "") {
		return nil
	}

	// Full sync: the last change holds the whole document.
	lastChange := params.ContentChanges[len(params.ContentChanges)-1]
	s.documentManager.UpdateDocument(params.TextDocument.URI, params.TextDocument.Version, lastChange.Text)
	return nil
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.logger.Debug("Document closed", zap.String("uri", string(params.TextDocument.URI)))
	s.documentManager.CloseDocument(params.TextDocument.URI)
	return nil
}

// Completion returns the completions at the cursor. Until the first schema
// snapshot is published the list is empty and marked incomplete, so the
// client asks again.
func (s *Server) Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	snapshot := s.schemas.Snapshot()
	if snapshot == nil {
		s.logger.Debug("Completion requested before schema is ready")
		return &protocol.CompletionList{IsIncomplete: true, Items: []protocol.CompletionItem{}}, nil
	}

	posCtx, err := s.documentManager.GetContentAtPosition(params.TextDocument.URI, params.Position)
	if err != nil {
		s.logger.Debug("No completion context", zap.String("uri", string(params.TextDocument.URI)), zap.Error(err))
		return &protocol.CompletionList{Items: []protocol.CompletionItem{}}, nil
	}

	items := s.completionProvider.GetCompletions(posCtx, snapshot.Registry, s.Settings().Verbosity)
	return &protocol.CompletionList{Items: items}, nil
}

// ResolveCompletionItem adds component documentation to a top-level item.
func (s *Server) ResolveCompletionItem(ctx context.Context, item *protocol.CompletionItem) (*protocol.CompletionItem, error) {
	snapshot := s.schemas.Snapshot()
	if snapshot == nil {
		return item, nil
	}
	resolved := s.completionProvider.Resolve(*item, snapshot.Registry)
	return &resolved, nil
}

// DidChangeConfiguration applies the riverLanguageServer settings section.
// Invalid settings are reported and ignored; a new schema version starts a
// rebuild.
func (s *Server) DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	raw := settingsSectionOf(params.Settings)
	if raw == nil {
		return nil
	}

	previous := s.Settings()
	if !s.applySettings(ctx, raw) {
		return nil
	}

	current := s.Settings()
	if current.SchemaVersion != previous.SchemaVersion {
		s.logger.Info("Schema version changed",
			zap.String("from", previous.SchemaVersion),
			zap.String("to", current.SchemaVersion))
		s.schemas.RebuildAsync(current.SchemaVersion)
	}
	return nil
}

func settingsSectionOf(settings any) []byte {
	if settings == nil {
		return nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil
	}
	return wrapper[settingsSection]
}

// applySettings validates raw and swaps it in. Rejected settings keep the
// previous values and are reported to the user.
func (s *Server) applySettings(ctx context.Context, raw []byte) bool {
	s.mu.Lock()
	next, err := s.settings.Apply(raw)
	if err == nil {
		s.settings = next
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Rejected settings", zap.ByteString("settings", raw), zap.Error(err))
		s.showMessage(ctx, protocol.MessageTypeError, "river-ls: "+err.Error())
		return false
	}
	return true
}

func (s *Server) showMessage(ctx context.Context, kind protocol.MessageType, message string) {
	if s.client == nil {
		return
	}
	// Notifications are sent from the handler goroutine; do not block it.
	go func() {
		if err := s.client.ShowMessage(context.WithoutCancel(ctx), &protocol.ShowMessageParams{Type: kind, Message: message}); err != nil {
			s.logger.Debug("Failed to show message", zap.Error(err))
		}
	}()
}

// isRiverDocument reports whether a document should be served: a file with
// the .river extension, or any document the client labels as River.
func isRiverDocument(docURI protocol.DocumentURI, languageID string) bool {
	if strings.EqualFold(languageID, riverLanguageID) {
		return true
	}
	u := uri.URI(docURI)
	if strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return strings.EqualFold(filepath.Ext(u.Filename()), riverExt)
	}
	return strings.HasSuffix(strings.ToLower(string(u)), riverExt)
}

func (s *Server) Handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		s.logger.Debug("Received method", zap.String("method", req.Method()))

		if s.shuttingDown.Load() && req.Method() != "exit" {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server is shutting down"))
		}

		switch req.Method() {
		case "initialize":
			var params protocol.InitializeParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return replyParseError(ctx, reply, err)
			}
			result, err := s.Initialize(ctx, &params)
			return reply(ctx, result, err)

		case "initialized":
			var params protocol.InitializedParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return replyParseError(ctx, reply, err)
			}
			return reply(ctx, nil, s.Initialized(ctx, &params))

		case "shutdown":
			return reply(ctx, nil, s.Shutdown(ctx))

		case "exit":
			if err := s.Exit(ctx); err != nil {
				s.logger.Debug("Failed to close connection", zap.Error(err))
			}
			return nil

		case "textDocument/didOpen":
			var params protocol.DidOpenTextDocumentParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return replyParseError(ctx, reply, err)
			}
			return reply(ctx, nil, s.DidOpen(ctx, &params))

		case "textDocument/didChange":
			var params protocol.DidChangeTextDocumentParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return replyParseError(ctx, reply, err)
			}
			return reply(ctx, nil, s.DidChange(ctx, &params))

		case "textDocument/didClose":
			var params protocol.DidCloseTextDocumentParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return replyParseError(ctx, reply, err)
			}
			return reply(ctx, nil, s.DidClose(ctx, &params))

		case "textDocument/completion":
			var params protocol.CompletionParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return replyParseError(ctx, reply, err)
			}
			result, err := s.Completion(ctx, &params)
			return reply(ctx, result, err)

		case "completionItem/resolve":
			var item protocol.CompletionItem
			if err := json.Unmarshal(req.Params(), &item); err != nil {
				return replyParseError(ctx, reply, err)
			}
			result, err := s.ResolveCompletionItem(ctx, &item)
			return reply(ctx, result, err)

		case "workspace/didChangeConfiguration":
			var params protocol.DidChangeConfigurationParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return replyParseError(ctx, reply, err)
			}
			return reply(ctx, nil, s.DidChangeConfiguration(ctx, &params))

		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	}
}

func replyParseError(ctx context.Context, reply jsonrpc2.Replier, err error) error {
	return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.ParseError, err.Error()))
}
