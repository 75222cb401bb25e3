package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/ToFut/Tredy-sub001/internal/observability"
	"github.com/ToFut/Tredy-sub001/internal/tracing"
	"github.com/ToFut/Tredy-sub001/pkg/invocation"
	"github.com/ToFut/Tredy-sub001/pkg/multiaction"
	"github.com/ToFut/Tredy-sub001/pkg/provider"
	"github.com/ToFut/Tredy-sub001/pkg/runtime"
)

const invocationPathPrefix = "/api/agent-invocation/"

// SessionOptions configures the runtime session built per connection
type SessionOptions struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemPrompt    string
	MaxTurns        int
	Introspection   bool
	FeedbackGate    bool
	FeedbackTimeout time.Duration
}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Store    *invocation.Store
	Registry *WorkspaceRegistry
	Provider provider.CompletionProvider
	Tools    *runtime.ToolRegistry
	Session  SessionOptions
	Logger   zerolog.Logger
}

// Server accepts one persistent connection per invocation and drives a
// runtime session for each. It is the sole writer of the invocation's
// closed flag: every disconnect path funnels into the store's
// background close.
type Server struct {
	host     string
	port     int
	store    *invocation.Store
	registry *WorkspaceRegistry
	provider provider.CompletionProvider
	tools    *runtime.ToolRegistry
	session  SessionOptions
	logger   zerolog.Logger

	server   *http.Server
	upgrader websocket.Upgrader

	rootCtx    context.Context
	rootCancel context.CancelFunc

	shutdownMu     sync.RWMutex
	isShuttingDown bool

	connsMu sync.Mutex
	conns   map[*Conn]bool

	sessions     sync.WaitGroup
	openSessions atomic.Int64
}

// NewServer creates a gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("invocation store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("workspace registry is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("completion provider is required")
	}
	if cfg.Tools == nil {
		cfg.Tools = runtime.NewToolRegistry()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	return &Server{
		host:       cfg.Host,
		port:       cfg.Port,
		store:      cfg.Store,
		registry:   cfg.Registry,
		provider:   cfg.Provider,
		tools:      cfg.Tools,
		session:    cfg.Session,
		logger:     cfg.Logger,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		conns:      make(map[*Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Start begins serving; it does not block
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(invocationPathPrefix, s.handleInvocation)
	mux.HandleFunc("/api/agent-invocation", s.handleCreateInvocation)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting session gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server, aborting open sessions
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down session gateway")
	s.rootCancel()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, abandoning open sessions")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Session gateway stopped")
	return nil
}

// handleCreateInvocation opens a new invocation record over plain HTTP
func (s *Server) handleCreateInvocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Prompt      string `json:"prompt"`
		WorkspaceID string `json:"workspaceId"`
		UserID      string `json:"userId"`
		ThreadID    string `json:"threadId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	inv, err := s.store.Create(r.Context(), req.Prompt, req.WorkspaceID, invocation.CreateOptions{
		UserID:   req.UserID,
		ThreadID: req.ThreadID,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(inv)
}

// handleInvocation upgrades the connection and runs the session for
// one invocation uuid.
func (s *Server) handleInvocation(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	uuid := strings.TrimPrefix(r.URL.Path, invocationPathPrefix)
	if uuid == "" || strings.Contains(uuid, "/") {
		http.Error(w, "invalid invocation id", http.StatusBadRequest)
		return
	}

	inv, err := s.store.Get(r.Context(), invocation.Criteria{UUID: uuid})
	if err != nil {
		if errors.Is(err, invocation.ErrNotFound) {
			http.Error(w, "invocation not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to load invocation", http.StatusInternalServerError)
		}
		return
	}
	if inv.Closed {
		http.Error(w, "invocation is closed", http.StatusGone)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	conn := NewConn(clientID, ws, s.logger)

	s.connsMu.Lock()
	s.conns[conn] = true
	s.connsMu.Unlock()

	s.sessions.Add(1)
	go s.runSession(inv, conn, ws)
}

// runSession owns one connection's full lifecycle: registration, the
// runtime turn loop, the inbound read loop, and teardown.
func (s *Server) runSession(inv *invocation.Invocation, conn *Conn, ws *websocket.Conn) {
	defer s.sessions.Done()

	logger := s.logger.With().
		Str("invocation_id", inv.UUID).
		Str("workspace_id", inv.WorkspaceID).
		Logger()

	s.registry.Register(inv.WorkspaceID, conn)
	observability.SetOpenInvocations(int(s.openSessions.Add(1)))

	defer func() {
		observability.SetOpenInvocations(int(s.openSessions.Add(-1)))
		s.registry.Unregister(inv.WorkspaceID, conn)
		conn.Close()
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		s.store.Close(inv.UUID)
		logger.Info().Msg("Connection torn down")
	}()

	guard := multiaction.NewGuard(nil, logger)

	sess, err := runtime.NewSession(inv, runtime.Config{
		Provider:        s.provider,
		Tools:           s.tools,
		Emitter:         conn,
		Guard:           guard,
		Logger:          s.logger,
		Model:           s.session.Model,
		Temperature:     s.session.Temperature,
		MaxTokens:       s.session.MaxTokens,
		SystemPrompt:    s.session.SystemPrompt,
		MaxTurns:        s.session.MaxTurns,
		Introspection:   s.session.Introspection,
		FeedbackGate:    s.session.FeedbackGate,
		FeedbackTimeout: s.session.FeedbackTimeout,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create runtime session")
		conn.Emit(runtime.Event{Type: runtime.EventFailure, Content: "failed to start session"})
		return
	}

	conn.Emit(runtime.Event{Type: runtime.EventInitConnection, Content: inv.UUID})
	logger.Info().Msg("Client connected")

	// The turn loop runs beside the read loop; whichever finishes
	// first closes the socket and unblocks the other.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer conn.Close()

		ctx := tracing.NewInvocationContext(s.rootCtx, inv.UUID, inv.WorkspaceID)
		result, err := sess.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Runtime session failed")
			conn.Emit(runtime.Event{Type: runtime.EventFailure, Content: err.Error()})
			return
		}
		if result.Response != "" && !result.Aborted {
			conn.Emit(runtime.Event{Type: runtime.EventStatusResponse, Content: result.Response})
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("Websocket read error")
			}
			break
		}

		_, content := parseInbound(raw)

		// A suspended turn gets first claim on the message; only
		// unconsumed messages are scanned for bail commands.
		if sess.OfferFeedback(content) {
			continue
		}
		if runtime.IsBailCommand(content) {
			logger.Info().Str("command", content).Msg("Bail command received")
			sess.Abort()
			break
		}
	}

	sess.Abort()
	<-runDone
}
