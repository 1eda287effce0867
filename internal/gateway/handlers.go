package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/scoutbot/internal/domain"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version  string                 `json:"version"`
	Uptime   string                 `json:"uptime"`
	Sessions int                    `json:"sessions"`
	Clients  int                    `json:"clients"`
	WebUsers int                    `json:"webUsers"`
	Channels []domain.ChannelStatus `json:"channels"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth exposes only the liveness status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStatus reports sessions and channels. It requires the gateway token
// as a bearer token.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if res := Authorize(s.token, &ConnectAuth{Token: token}); !res.OK {
		s.authLimiter.recordFailure(r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": res.Reason})
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() StatusResponse {
	resp := StatusResponse{
		Version:  s.build.Version,
		Clients:  s.clients.Count(),
		WebUsers: s.clients.Users(),
		Channels: []domain.ChannelStatus{},
	}
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()
	if !startedAt.IsZero() {
		resp.Uptime = time.Since(startedAt).Round(time.Second).String()
	}
	if s.sessions != nil {
		resp.Sessions = s.sessions.Sessions()
	}
	if s.channels != nil {
		resp.Channels = s.channels.Status()
	} else {
		resp.Channels = append(resp.Channels, s.Status())
	}
	return resp
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	return rc.Frame.DecodeParams(target)
}
