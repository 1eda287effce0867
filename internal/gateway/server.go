// Package gateway serves the web chat: a WebSocket endpoint that carries
// dialogue events and actions, plus health and status endpoints.
package gateway

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/hooks"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/version"
)

// ChannelID prefixes the user ids of web chat users.
const ChannelID = "web"

var ErrClientClosed = errors.New("client connection closed")

// SessionCounter reports the number of dialogue sessions.
type SessionCounter interface {
	Sessions() int
}

// StatusReporter reports the status of every messaging channel.
type StatusReporter interface {
	Status() []domain.ChannelStatus
}

// Server is the web chat HTTP + WebSocket server. It implements
// domain.Channel.
type Server struct {
	cfg      config.GatewayConfig
	token    string
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	build    version.Build
	eventSeq atomic.Int64

	sessions SessionCounter
	channels StatusReporter
	hooks    *hooks.Manager

	mu      sync.RWMutex
	handler func(ev domain.Event)
	running bool
	lastErr string
	addr    string

	startedAt  time.Time
	httpServer *http.Server

	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithSessions sets the session counter reported by /status.
func WithSessions(sc SessionCounter) ServerOption {
	return func(s *Server) {
		s.sessions = sc
	}
}

// WithChannels sets the channel status source reported by /status.
func WithChannels(sr StatusReporter) ServerOption {
	return func(s *Server) {
		s.channels = sr
	}
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a new gateway server.
func New(cfg config.GatewayConfig, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		token:       cfg.Auth.Token,
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		build:       version.Current(),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	return s
}

func (s *Server) ID() string { return ChannelID }

func (s *Server) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{Buttons: true, Documents: true, Delete: true}
}

func (s *Server) OnEvent(handler func(ev domain.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Status returns the current runtime status.
func (s *Server) Status() domain.ChannelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: ChannelID,
		Connected: s.running && s.clients.Count() > 0,
		Running:   s.running,
		LastError: s.lastErr,
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// resolveBindAddr maps the bind mode to a listen address. Unknown modes
// fall back to loopback.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan":
		host = "0.0.0.0"
	case "custom":
		host = cmp.Or(cfg.CustomBindHost, "0.0.0.0")
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// listen binds the configured address, wrapping it in TLS when enabled.
func (s *Server) listen() (net.Listener, error) {
	addr := resolveBindAddr(s.cfg)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if !s.cfg.TLS.Enabled {
		if s.cfg.Bind != "" && s.cfg.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled, the token travels in cleartext")
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	s.log.Info().Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves the web chat until ctx is done. Cancelling ctx closes every
// socket and shuts the HTTP server down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		s.setErr(err)
		return err
	}
	bound := ln.Addr().String()

	httpServer := &http.Server{
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.httpServer = httpServer
	s.running = true
	s.lastErr = ""
	s.addr = bound
	s.mu.Unlock()

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go s.authLimiter.run(limiterCtx)

	s.log.Info().Str("addr", bound).Str("bind", s.cfg.Bind).Strs("methods", s.Methods()).Msg("web chat listening")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": bound})

	stopWatch := context.AfterFunc(ctx, func() {
		s.log.Info().Msg("shutting down web chat")
		bg := context.WithoutCancel(ctx)
		s.emit(bg, hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		httpServer.Shutdown(shutdownCtx)
	})
	defer stopWatch()

	err = httpServer.Serve(ln)
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.setErr(err)
		return err
	}
	return nil
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

// Stop closes all connections and the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()

	s.clients.CloseAll()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// Addr returns the bound listen address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

// Send pushes an action as a chat.action event to every connection of the
// web user.
func (s *Server) Send(_ context.Context, native string, action domain.Action) error {
	targets := s.clients.ForNative(native)
	if len(targets) == 0 {
		return fmt.Errorf("web: no connection for %s", native)
	}

	var errs []error
	for _, c := range targets {
		if err := c.SendEvent(EventChatAction, action, s.eventSeq.Add(1)); err != nil {
			errs = append(errs, fmt.Errorf("conn %s: %w", c.ConnID, err))
		}
	}
	// one live tab is enough
	if len(errs) == len(targets) {
		return errors.Join(errs...)
	}
	return nil
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		var rej *rejection
		if errors.As(err, &rej) {
			rej.send(conn)
		}
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(client)
}

const handshakeTimeout = 10 * time.Second

// rejection is a handshake failure the peer is told about before the
// socket closes.
type rejection struct {
	reqID string
	shape ErrorShape
	cause error
}

func reject(reqID, code, message string, cause error) *rejection {
	return &rejection{reqID: reqID, shape: ErrorShape{Code: code, Message: message}, cause: cause}
}

func (r *rejection) Error() string {
	if r.cause != nil {
		return r.shape.Code + ": " + r.cause.Error()
	}
	return r.shape.Code + ": " + r.shape.Message
}

func (r *rejection) Unwrap() error { return r.cause }

func (r *rejection) send(conn *websocket.Conn) {
	conn.WriteJSON(NewErrorResponse(r.reqID, r.shape))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, r.shape.Message))
}

// handshake runs challenge, connect and hello on a fresh socket. The peer
// has handshakeTimeout to answer the challenge with a valid connect
// request.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	params, err := s.acceptConnect(frame)
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client)
	resp, err := NewResponse(frame.ID, s.hello(client))
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("user", client.Native()).
		Str("clientVersion", params.Client.Version).
		Msg("web client authenticated")
	return client, nil
}

// acceptConnect checks that frame is a connect request this server can
// serve and whose token matches.
func (s *Server) acceptConnect(frame Frame) (ConnectParams, error) {
	var params ConnectParams
	if frame.Type != FrameTypeRequest || frame.Method != MethodConnect {
		return params, reject(frame.ID, "protocol_error", "expected connect request",
			fmt.Errorf("got type=%s method=%s", frame.Type, frame.Method))
	}
	if err := frame.DecodeParams(&params); err != nil {
		return params, reject(frame.ID, "invalid_params", "invalid connect params", err)
	}
	if params.MinProtocol > ProtocolVersion {
		return params, reject(frame.ID, "protocol_error", "unsupported protocol version",
			fmt.Errorf("client requires protocol %d", params.MinProtocol))
	}
	if res := Authorize(s.token, params.Auth); !res.OK {
		return params, reject(frame.ID, "unauthorized", res.Reason, nil)
	}
	return params, nil
}

func (s *Server) hello(client *Client) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.build.Version,
			Commit:  s.build.Commit,
			ConnID:  client.ConnID,
			UserID:  domain.NewUserID(ChannelID, client.Native()),
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventChallenge, EventChatAction},
		},
		Policy: ServerPolicy{
			MaxPayload:     maxPayload,
			TickIntervalMs: 30000,
		},
	}
}

// readLoop serves request frames from an authenticated client until the
// socket fails or closes.
func (s *Server) readLoop(client *Client) {
	for {
		frame, err := client.ReadFrame()
		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			s.log.Debug().Str("connId", client.ConnID).Msg("web client closed connection")
			return
		case err != nil:
			s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			return
		case frame.Type != FrameTypeRequest:
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		handler, ok := s.handlers[frame.Method]
		if !ok {
			client.RespondError(frame.ID, ErrorShape{
				Code:    "method_not_found",
				Message: "unknown method: " + frame.Method,
			})
			continue
		}
		handler(&RequestContext{Client: client, Frame: frame, Server: s})
	}
}
