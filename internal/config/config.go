// Package config loads, validates and edits colloquy configuration.
package config

// ConfigError is a problem with the config file itself or a key path into it.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config: " + e.Message }

// DefaultPort is where the gateway listens unless told otherwise.
const DefaultPort = 9600

// Defaults is the configuration of a fresh install.
func Defaults() Config {
	var cfg Config

	cfg.Gateway.Port = DefaultPort
	cfg.Gateway.Bind = "loopback"
	cfg.Gateway.Auth.Mode = "token"

	cfg.Logging.Level = "info"
	cfg.Logging.ConsoleStyle = "pretty"

	cfg.Store.Driver = "sqlite"

	cfg.LLM.Binding = "ollama"
	cfg.LLM.Endpoint = "http://localhost:11434"
	cfg.LLM.TimeoutSec = 120

	cfg.Audio.Enabled = true
	cfg.Audio.Player = "ffplay"
	cfg.Audio.Args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
	return cfg
}
