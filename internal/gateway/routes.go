package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/soyeahso/scoutbot/internal/domain"
)

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(echoRequestID)
	r.Use(loggingMiddleware(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/ws", s.handleWebSocket)
	r.NotFound(handleNotFound)
	return r
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle(MethodHealth, s.rpcHealth)
	s.Handle(MethodChannelsStatus, s.rpcChannelsStatus)
	s.Handle(MethodChatEvent, s.rpcChatEvent)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.build.Version,
		Clients: s.clients.Count(),
	})
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	rc.Respond(s.snapshot())
}

// rpcChatEvent decodes one user interaction and hands it to the event
// handler. The response only acknowledges receipt; replies arrive as
// chat.action events.
func (s *Server) rpcChatEvent(rc *RequestContext) {
	var p ChatEventParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	ev, err := p.Event(domain.NewUserID(ChannelID, rc.Client.Native()))
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	ev.DisplayName = rc.Client.Info.DisplayName

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		rc.RespondError("unavailable", "chat is not available")
		return
	}

	handler(ev)
	rc.Respond(map[string]any{"accepted": true, "userId": ev.UserID})
}
