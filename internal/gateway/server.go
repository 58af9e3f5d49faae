// Package gateway serves colloquy clients over HTTP and WebSocket. Clients
// answer a connect challenge with their credentials, then call RPC methods
// with req frames and receive res and event frames.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/discussion"
	"github.com/soyeahso/colloquy/internal/hooks"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/soyeahso/colloquy/internal/version"
)

// ErrClientClosed is returned when writing to a connection that is gone.
var ErrClientClosed = errors.New("client connection closed")

const (
	maxPayload       = 4 * 1024 * 1024
	handshakeTimeout = 10 * time.Second
	handlerTimeout   = 5 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

// Server is the colloquy gateway.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string

	// mu guards configRaw, which config.set edits in place.
	mu        sync.RWMutex
	configRaw map[string]any

	// discussions is optional; its methods answer "unavailable" without it.
	discussions   *discussion.Service
	personalities PersonalitySelector
	search        Searcher
	hooks         *hooks.Manager

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithConfigRaw exposes raw, the parsed config file, to config.get and
// config.set.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) { s.configRaw = raw }
}

// WithHooks reports gateway and client lifecycle events to hm.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithClients registers connections in reg instead of a private registry.
// The discussion service emits through the same registry.
func WithClients(reg *ClientRegistry) ServerOption {
	return func(s *Server) { s.clients = reg }
}

// WithDiscussions serves the discussion methods from svc.
func WithDiscussions(svc *discussion.Service) ServerOption {
	return func(s *Server) { s.discussions = svc }
}

// PersonalitySelector switches the active personality.
type PersonalitySelector interface {
	Select(index int) error
}

// WithPersonalities lets config.set change personalities.active live.
func WithPersonalities(sel PersonalitySelector) ServerOption {
	return func(s *Server) { s.personalities = sel }
}

// WithSearch enables GET /api/discussions/search.
func WithSearch(search Searcher) ServerOption {
	return func(s *Server) { s.search = search }
}

// New builds a gateway for cfg. Nothing listens until Start.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		configRaw:   make(map[string]any),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clients == nil {
		s.clients = NewClientRegistry(log.Sub("clients"))
	}
	s.registerRPCHandlers()
	return s
}

// checkWebSocketOrigin allows requests without an Origin header, which
// come from non-browser clients, and browsers from an allowed origin.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers the handler for an RPC method, replacing any earlier one.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods lists the registered RPC methods in sorted order.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// Clients returns the registry of connected clients.
func (s *Server) Clients() *ClientRegistry {
	return s.clients
}

// resolveBindAddr turns gateway.bind into a listen address. Unknown modes
// fall back to loopback.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	gw := s.cfg.Gateway
	if !gw.TLS.Enabled {
		if gw.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled, credentials will be transmitted in cleartext")
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(gw.TLS.CertPath, gw.TLS.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	s.log.Info().Str("cert", gw.TLS.CertPath).Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves until ctx is cancelled, then disconnects every client and
// shuts the HTTP server down.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)
	ln, err := s.listen(addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("auth", s.auth.Mode).
		Strs("methods", s.Methods()).
		Msg("gateway listening")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdown() {
	s.log.Info().Int("clients", s.clients.Count()).Msg("gateway shutting down")
	s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.clients.CloseAll()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown incomplete")
	}
}

// Addr is the configured listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Uptime is the time since Start, or zero before it.
func (s *Server) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// handleWebSocket upgrades the request, runs the handshake and then serves
// the connection until it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rejecting connection after repeated auth failures")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, params, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.attach(r.Context(), client, params)
	defer s.detach(r.Context(), client)
	s.readLoop(r.Context(), client)
}

// attach makes client reachable for events and opens its discussion session.
func (s *Server) attach(ctx context.Context, client *Client, params ConnectParams) {
	s.clients.Add(client)
	if s.discussions != nil {
		s.discussions.Connect(client.ConnID, params.Language)
	}
	s.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventClientConnected, map[string]any{
		"connId":   client.ConnID,
		"clientId": params.Client.ID,
		"language": params.Language,
	})
}

func (s *Server) detach(ctx context.Context, client *Client) {
	s.clients.Remove(client.ConnID)
	if s.discussions != nil {
		s.discussions.Disconnect(client.ConnID)
	}
	client.Close()
	s.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventClientDisconnected, map[string]any{
		"connId": client.ConnID,
	})
}

// handshake sends connect.challenge, reads the connect request, checks its
// credentials and answers with HelloOK. Every failure is answered with an
// error response before the connection is dropped.
func (s *Server) handshake(conn *websocket.Conn) (*Client, ConnectParams, error) {
	var params ConnectParams
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, params, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, params, fmt.Errorf("sending challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, params, fmt.Errorf("reading connect: %w", err)
	}

	reject := func(code, message string) (*Client, ConnectParams, error) {
		rejectAndClose(conn, frame.ID, code, message)
		return nil, params, fmt.Errorf("%s: %s", code, message)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		return reject("protocol_error", "expected connect request")
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return reject("invalid_params", "invalid connect params")
	}
	if !supportsProtocol(params) {
		return reject("protocol_mismatch", fmt.Sprintf("server speaks protocol %d", ProtocolVersion))
	}
	auth := Authorize(s.auth, params.Auth)
	if !auth.OK {
		return reject("unauthorized", auth.Reason)
	}

	client := newClient(conn, params.Client, auth)
	resp, err := NewResponse(frame.ID, s.hello(client))
	if err != nil {
		return nil, params, err
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, params, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", auth.Method).
		Str("language", params.Language).
		Msg("client authenticated")
	return client, params, nil
}

// supportsProtocol accepts ranges containing ProtocolVersion. Zero bounds
// are treated as open.
func supportsProtocol(p ConnectParams) bool {
	if p.MinProtocol != 0 && p.MinProtocol > ProtocolVersion {
		return false
	}
	return p.MaxProtocol == 0 || p.MaxProtocol >= ProtocolVersion
}

func (s *Server) hello(client *Client) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{Methods: s.Methods(), Events: serverEvents},
		Policy:   ServerPolicy{MaxPayload: maxPayload},
	}
}

// readLoop handles the client's requests one at a time, so each client
// sees the events and response of a request before those of the next.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			return
		case err != nil:
			s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			return
		case frame.Type != FrameTypeRequest:
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
		default:
			s.dispatch(ctx, client, frame)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, "method_not_found", "unknown method: "+frame.Method)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	handler(&RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s})
}

func rejectAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, code, message))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
