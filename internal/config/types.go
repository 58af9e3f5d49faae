package config

// Config is the root configuration for colloquy.
type Config struct {
	// CurrentLanguage is the language clients are spoken to in unless they
	// override it per session. Empty means "whatever the personality speaks".
	CurrentLanguage string              `yaml:"currentLanguage,omitempty"`
	Gateway         GatewayConfig       `yaml:"gateway,omitempty"`
	Logging         LoggingConfig       `yaml:"logging,omitempty"`
	Store           StoreConfig         `yaml:"store,omitempty"`
	LLM             LLMConfig           `yaml:"llm,omitempty"`
	Personalities   PersonalitiesConfig `yaml:"personalities,omitempty"`
	Audio           AudioConfig         `yaml:"audio,omitempty"`
	Hooks           HooksConfig         `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// StoreConfig selects the discussion database.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // defaults to <data>/discussions.db
}

// LLMConfig selects the generation backend ("binding") and model.
type LLMConfig struct {
	Binding     string   `yaml:"binding,omitempty"` // "ollama" | "none"
	Endpoint    string   `yaml:"endpoint,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	APIKey      string   `yaml:"apiKey,omitempty"`
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	TimeoutSec  int      `yaml:"timeoutSec,omitempty"`
}

// PersonalitiesConfig lists mounted personalities and which one is active.
// Entries are paths relative to Dir, e.g. "generic/lollms".
type PersonalitiesConfig struct {
	Dir    string   `yaml:"dir,omitempty"`
	List   []string `yaml:"list,omitempty"`
	Active int      `yaml:"active"`
}

// AudioConfig controls local welcome-sample playback.
type AudioConfig struct {
	Enabled bool     `yaml:"enabled,omitempty"`
	Player  string   `yaml:"player,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig declares shell commands run on lifecycle events.
type HooksConfig struct {
	DiscussionCreated   []HookEntry `yaml:"discussionCreated,omitempty"`
	DiscussionLoaded    []HookEntry `yaml:"discussionLoaded,omitempty"`
	MessageAdded        []HookEntry `yaml:"messageAdded,omitempty"`
	LanguagePackCreated []HookEntry `yaml:"languagePackCreated,omitempty"`
	GatewayStart        []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop         []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// ActivePersonality returns the personality reference selected by
// personalities.active, or false when nothing is selected.
func (c Config) ActivePersonality() (string, bool) {
	p := c.Personalities
	if p.Active < 0 || p.Active >= len(p.List) {
		return "", false
	}
	return p.List[p.Active], true
}
