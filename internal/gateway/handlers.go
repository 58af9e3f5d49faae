package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthResponse answers GET /health and the health method. The public
// endpoint only reports Status.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	Sessions int    `json:"sessions,omitempty"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "no route for "+r.URL.Path)
}

// RequestHandler serves one RPC method.
type RequestHandler func(rc *RequestContext)

// RequestContext is a single RPC call in flight.
type RequestContext struct {
	// Ctx ends with the connection, on server shutdown, or after the
	// handler timeout.
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond answers the call with payload.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.logSendFailure(err)
	}
}

// RespondError fails the call with code and a human readable message.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, code, message); err != nil {
		rc.logSendFailure(err)
	}
}

func (rc *RequestContext) logSendFailure(err error) {
	rc.Server.log.Warn().
		Err(err).
		Str("method", rc.Frame.Method).
		Str("connId", rc.Client.ConnID).
		Msg("could not answer request")
}

// Params decodes the call's params into target. Absent params leave target
// untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(rc.Frame.Params, target); err != nil {
		return fmt.Errorf("invalid params for %s: %w", rc.Frame.Method, err)
	}
	return nil
}
