package config

import (
	"fmt"
	"slices"
)

// ValidationIssue is one bad value, addressed by its config key path.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return v.Path + ": " + v.Message
}

type issueList []ValidationIssue

func (l *issueList) addf(path, format string, args ...any) {
	*l = append(*l, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// oneOf flags val unless it is empty or among allowed.
func (l *issueList) oneOf(path, val string, allowed ...string) {
	if val != "" && !slices.Contains(allowed, val) {
		l.addf(path, "must be one of %v, got %q", allowed, val)
	}
}

// Validate reports every problem in cfg, or nil when there is none.
func Validate(cfg *Config) []ValidationIssue {
	var issues issueList

	gw := cfg.Gateway
	if gw.Port < 0 || gw.Port > 65535 {
		issues.addf("gateway.port", "port must be 0-65535, got %d", gw.Port)
	}
	issues.oneOf("gateway.bind", gw.Bind, "auto", "lan", "loopback", "custom")
	issues.oneOf("gateway.auth.mode", gw.Auth.Mode, "token", "password")
	if gw.TLS.Enabled && (gw.TLS.CertPath == "" || gw.TLS.KeyPath == "") {
		issues.addf("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	issues.oneOf("logging.level", cfg.Logging.Level, "silent", "fatal", "error", "warn", "info", "debug", "trace")
	issues.oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, "pretty", "json")
	issues.oneOf("store.driver", cfg.Store.Driver, "sqlite", "memory")

	issues.oneOf("llm.binding", cfg.LLM.Binding, "ollama", "none")
	if cfg.LLM.Binding == "ollama" && cfg.LLM.Endpoint == "" {
		issues.addf("llm.endpoint", "required when binding is ollama")
	}
	if cfg.LLM.MaxTokens < 0 {
		issues.addf("llm.maxTokens", "must not be negative, got %d", cfg.LLM.MaxTokens)
	}

	if p := cfg.Personalities; len(p.List) > 0 && (p.Active < -1 || p.Active >= len(p.List)) {
		issues.addf("personalities.active", "must be -1 or an index into personalities.list (0-%d), got %d",
			len(p.List)-1, p.Active)
	}

	if cfg.Audio.Enabled && cfg.Audio.Player == "" {
		issues.addf("audio.player", "required when audio is enabled")
	}

	if len(issues) == 0 {
		return nil
	}
	return issues
}
