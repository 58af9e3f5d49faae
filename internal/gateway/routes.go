package gateway

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/discussion"
	"github.com/soyeahso/colloquy/internal/domain"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"currentLanguage",
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.allowedOrigins",
	"logging",
	"llm.model",
	"llm.maxTokens",
	"llm.temperature",
	"personalities",
	"audio",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// Router builds the HTTP routes of the gateway.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(cors(s.cfg.Gateway.AllowedOrigins))
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(api chi.Router) {
		api.Use(requireAuth(s.auth))
		api.Get("/discussions", s.apiListDiscussions)
		api.Get("/discussions/search", s.apiSearchDiscussions)
		api.Get("/discussions/{id}/messages", s.apiDiscussionMessages)
	})

	r.NotFound(handleNotFound)
	return r
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("new_discussion", s.rpcNewDiscussion)
	s.Handle("load_discussion", s.rpcLoadDiscussion)
	s.Handle("language.set", s.rpcLanguageSet)
	s.Handle("discussion.list", s.rpcDiscussionList)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Clients:  s.clients.Count(),
		UptimeMs: s.Uptime().Milliseconds(),
	}
	if s.discussions != nil {
		resp.Sessions = s.discussions.Sessions()
	}
	rc.Respond(resp)
}

type configGetParams struct {
	Key string `json:"key"`
}

// configPath validates an RPC config key. It responds with the error itself
// and returns false when the key is unusable.
func configPath(rc *RequestContext, key string) ([]string, bool) {
	if key == "" {
		rc.RespondError("invalid_params", "key is required")
		return nil, false
	}
	if !isAllowedConfigPath(key) {
		rc.RespondError("forbidden", "access denied for config path: "+key)
		return nil, false
	}
	path, err := config.ParseConfigPath(key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return nil, false
	}
	return path, true
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	path, ok := configPath(rc, p.Key)
	if !ok {
		return
	}

	s.mu.RLock()
	val, found := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()

	if !found {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	path, ok := configPath(rc, p.Key)
	if !ok {
		return
	}

	value, err := s.applySetting(p.Key, p.Value)
	switch {
	case errors.Is(err, errNotLive):
		rc.RespondError("forbidden", err.Error())
		return
	case err != nil:
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = config.SetValueAtPath(s.configRaw, path, value)
	s.mu.Unlock()
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": value})
}

var errNotLive = errors.New("cannot be changed while the gateway is running")

// applySetting pushes live-editable keys into the running services and
// returns the value to record. Personality keys other than
// personalities.active are refused since nothing would reload them.
func (s *Server) applySetting(key string, value any) (any, error) {
	switch {
	case key == "personalities.active":
		return s.selectPersonality(value)
	case key == "personalities" || strings.HasPrefix(key, "personalities."):
		return nil, fmt.Errorf("%s %w", key, errNotLive)
	}

	str, ok := value.(string)
	if !ok || s.discussions == nil {
		return value, nil
	}
	settings := s.discussions.Settings()
	switch key {
	case "currentLanguage":
		settings.Language = str
	case "llm.model":
		settings.Model = str
	default:
		return value, nil
	}
	s.discussions.SetSettings(settings)
	s.log.Info().Str("key", key).Str("value", str).Msg("setting updated")
	return value, nil
}

func (s *Server) selectPersonality(value any) (any, error) {
	if s.personalities == nil {
		return nil, fmt.Errorf("personalities.active %w", errNotLive)
	}

	var index int
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("personality index must be an integer, got %v", v)
		}
		index = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("personality index must be an integer, got %q", v)
		}
		index = n
	default:
		return nil, fmt.Errorf("personality index must be an integer, got %T", value)
	}

	if err := s.personalities.Select(index); err != nil {
		return nil, err
	}
	s.log.Info().Int("index", index).Msg("active personality changed")
	return index, nil
}

// discussionError maps service errors to response codes.
func discussionError(rc *RequestContext, err error) {
	switch {
	case errors.Is(err, domain.ErrNoPersonality):
		rc.RespondError("no_personality", "Please select a personality first")
	case errors.Is(err, domain.ErrDiscussionNotFound):
		rc.RespondError("not_found", err.Error())
	default:
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Str("connId", rc.Client.ConnID).Msg("discussion request failed")
		rc.RespondError("discussion_error", err.Error())
	}
}

func (s *Server) requireDiscussions(rc *RequestContext) bool {
	if s.discussions == nil {
		rc.RespondError("unavailable", "discussions are not configured")
		return false
	}
	return true
}

func (s *Server) rpcNewDiscussion(rc *RequestContext) {
	if !s.requireDiscussions(rc) {
		return
	}
	var p NewDiscussionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	res, err := s.discussions.NewDiscussion(rc.Ctx, rc.Client.ConnID, p.Title)
	if err != nil {
		discussionError(rc, err)
		return
	}

	out := NewDiscussionResult{
		ID:          domain.NoDiscussion,
		Outcome:     res.Outcome.String(),
		Language:    res.Language,
		PackCreated: res.PackCreated,
		Tokens:      res.Tokens.Ptr(),
	}
	if res.Outcome == discussion.OutcomeWelcomed {
		out.ID = res.Discussion.ID
		out.Audio = res.Audio.Status.String()
	}
	rc.Respond(out)
}

func (s *Server) rpcLoadDiscussion(rc *RequestContext) {
	if !s.requireDiscussions(rc) {
		return
	}
	var p LoadDiscussionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	records, err := s.discussions.LoadDiscussion(rc.Ctx, rc.Client.ConnID, p.ID)
	if err != nil {
		discussionError(rc, err)
		return
	}
	resp := map[string]any{"count": len(records)}
	if d, ok := s.discussions.ActiveDiscussion(rc.Client.ConnID); ok {
		resp["id"] = d.ID
	}
	rc.Respond(resp)
}

func (s *Server) rpcLanguageSet(rc *RequestContext) {
	if !s.requireDiscussions(rc) {
		return
	}
	var p LanguageParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	lang := s.discussions.SetLanguage(rc.Client.ConnID, p.Language)
	rc.Respond(map[string]any{"language": lang})
}

func (s *Server) rpcDiscussionList(rc *RequestContext) {
	if !s.requireDiscussions(rc) {
		return
	}
	list, err := s.discussions.List(rc.Ctx)
	if err != nil {
		discussionError(rc, err)
		return
	}
	if list == nil {
		list = []domain.Discussion{}
	}
	rc.Respond(map[string]any{"discussions": list})
}
