package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/gemchat/internal/config"
	"github.com/harun/gemchat/internal/observability"
	"github.com/harun/gemchat/internal/tracing"
	"github.com/harun/gemchat/pkg/chat"
	"github.com/harun/gemchat/pkg/render"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const maxFrameSize = 64 * 1024

// Server serves the chat page and one websocket per browser tab.
type Server struct {
	addr              string
	provider          chat.CompletionProvider
	requestTimeout    time.Duration
	requestsPerMinute int
	shutdownTimeout   time.Duration
	ui                config.UIConfig
	page              *pageRenderer
	renderer          *render.Renderer
	server            *http.Server
	listener          net.Listener
	upgrader          websocket.Upgrader
	clients           *ClientRegistry
	router            *RPCRouter
	broadcaster       *EventBroadcaster
	logger            zerolog.Logger

	baseCtx        context.Context
	cancelBase     context.CancelFunc
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	connWG         sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host              string
	Port              int
	Provider          chat.CompletionProvider
	RequestTimeout    time.Duration
	RequestsPerMinute int
	ShutdownTimeout   time.Duration
	UI                config.UIConfig
	Renderer          *render.Renderer
	Logger            zerolog.Logger
}

// NewServer creates a new Server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("completion provider is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = chat.DefaultTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.New()
	}
	if cfg.UI.PageTitle == "" {
		cfg.UI = config.DefaultConfig().UI
	}

	page, err := newPageRenderer()
	if err != nil {
		return nil, err
	}

	clients := NewClientRegistry()
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		provider:          cfg.Provider,
		requestTimeout:    cfg.RequestTimeout,
		requestsPerMinute: cfg.RequestsPerMinute,
		shutdownTimeout:   cfg.ShutdownTimeout,
		ui:                cfg.UI,
		page:              page,
		renderer:          cfg.Renderer,
		clients:           clients,
		router:            NewRPCRouter(),
		broadcaster:       NewEventBroadcaster(clients, cfg.Logger),
		logger:            cfg.Logger.With().Str("component", "gateway").Logger(),
		baseCtx:           baseCtx,
		cancelBase:        cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}

	s.registerBuiltinMethods()
	observability.EnsureRegistered()

	return s, nil
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Listen binds the listen address. ListenAndServe calls it when needed.
func (s *Server) Listen() error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ListenAndServe serves until Stop is called. It returns nil after a clean stop.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv, ln := s.server, s.listener
	s.shutdownMu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting chat server")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("chat server error: %w", err)
	}
	return nil
}

// Stop notifies clients, waits for running exchanges, then closes everything.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.isShuttingDown = true
	srv, ln := s.server, s.listener
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat server")

	s.broadcaster.Broadcast(EventServerShutdown, map[string]interface{}{
		"message": "Server is shutting down",
	})

	waitCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if waitGroup(waitCtx, &s.inFlightReqs) {
		s.logger.Info().Msg("All in-flight exchanges completed")
	} else {
		s.logger.Warn().Msg("Shutdown timeout reached, cancelling exchanges")
	}
	s.cancelBase()

	for _, client := range s.clients.GetAll() {
		_ = client.Conn.Close()
	}

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("failed to shutdown server: %w", err)
		}
	} else if ln != nil {
		_ = ln.Close()
	}

	if !waitGroup(ctx, &s.connWG) {
		s.logger.Warn().Msg("Connections still open after shutdown")
	}

	s.logger.Info().Msg("Chat server stopped")
	return shutdownErr
}

// waitGroup waits for wg or ctx. On timeout the waiter goroutine exits once
// the counter drains, which Stop forces by cancelling baseCtx.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// beginRequest registers an in-flight request unless Stop has begun.
// The check and the Add share the lock Stop takes before it waits.
func (s *Server) beginRequest() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.shuttingDown() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   status,
		"provider": s.provider.Name(),
		"clients":  s.clients.Count(),
	})
}

// handleWebSocket upgrades a browser tab and starts its runtime instance.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxFrameSize)

	clientID, err := gonanoid.New()
	if err != nil {
		clientID = tracing.NewTraceID()
	}

	mgr, err := chat.NewManager(chat.Config{
		Provider: s.provider,
		Timeout:  s.requestTimeout,
		Logger:   s.logger.With().Str("clientId", clientID).Logger(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create chat manager")
		_ = conn.Close()
		return
	}

	now := time.Now()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		RateLimiter:  NewClientRateLimiter(s.requestsPerMinute),
		Chat:         mgr,
	}
	client.Session = mgr.GetOrCreateSession()

	s.clients.Add(client)
	s.logger.Info().
		Str("clientId", clientID).
		Str("session_id", client.Session.ID()).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	s.sendEvent(client, EventSessionReady, map[string]interface{}{
		"session_id": client.Session.ID(),
		"provider":   s.provider.Name(),
		"methods":    s.router.GetMethods(),
		"messages":   []MessageView{},
	})

	s.connWG.Add(1)
	go s.handleClient(client)
}

// handleClient reads frames one at a time; the next frame waits for the current exchange.
func (s *Server) handleClient(client *Client) {
	defer s.connWG.Done()
	defer func() {
		_ = client.Conn.Close()
		s.clients.Remove(client.ID)
		client.Chat.Close()
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("clientId", client.ID).Msg("WebSocket closed")
			}
			return
		}

		s.clients.UpdateActivity(client.ID)
		s.handleMessage(client, message)
	}
}

// handleMessage handles a single frame from a client
func (s *Server) handleMessage(client *Client, message []byte) {
	req, err := s.router.ParseRequest(message)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			s.sendError(client, "", rpcErr)
		} else {
			s.sendError(client, "", &RPCError{Code: ParseError, Message: err.Error()})
		}
		return
	}

	if !s.beginRequest() {
		s.sendError(client, req.ID, &RPCError{Code: ShuttingDown, Message: "server is shutting down"})
		return
	}
	defer s.inFlightReqs.Done()

	allowed, reason := client.RateLimiter.CheckRequestAllowed()
	if !allowed {
		code := RateLimitExceeded
		if reason == reasonTooConcurrent {
			code = TooManyConcurrent
		}
		requests, inFlight := client.RateLimiter.GetStats()
		s.logger.Debug().
			Str("clientId", client.ID).
			Str("reason", reason).
			Int("requests", requests).
			Int("in_flight", inFlight).
			Msg("Request rejected")
		observability.RecordRateLimited()
		s.sendError(client, req.ID, &RPCError{Code: code, Message: reason})
		return
	}

	client.RateLimiter.RecordRequestStart()
	defer client.RateLimiter.RecordRequestEnd()

	ctx := tracing.WithClientID(s.baseCtx, client.ID)
	ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	ctx = tracing.WithSessionID(ctx, client.Session.ID())

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("request_id", req.ID).
		Str("method", req.Method).
		Msg("Handling request")

	response := s.router.RouteRequest(ctx, client, req)
	if err := client.WriteJSON(response); err != nil {
		logger.Error().
			Err(err).
			Str("request_id", req.ID).
			Msg("Failed to send response")
	}
}

// sendError sends an error response to a client
func (s *Server) sendError(client *Client, requestID string, rpcErr *RPCError) {
	if err := client.WriteJSON(errorResponse(requestID, rpcErr)); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error response")
	}
}

// Broadcast sends an event to every connected client
func (s *Server) Broadcast(event string, data interface{}) int {
	return s.broadcaster.Broadcast(event, data)
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.GetConnectedClients()
}

// sameOrigin accepts requests without an Origin header and those whose origin host matches.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originHost(origin) == r.Host
}
