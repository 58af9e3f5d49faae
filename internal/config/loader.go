package config

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${NAME} references. References to unset
// variables are kept verbatim so a missing secret is visible in validation.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return ref
	})
}

// Load reads the YAML file at path over the defaults, then applies
// COLLOQUY_* overrides and ${ENV} references in credential fields. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
		applyDefaults(&cfg)
	}

	applyEnvOverrides(&cfg)
	for _, secret := range []*string{&cfg.Gateway.Auth.Token, &cfg.Gateway.Auth.Password, &cfg.LLM.APIKey} {
		*secret = expandEnvVars(*secret)
	}
	return cfg, nil
}

// LoadRaw reads the config file as a plain map for key-path edits. A
// missing or empty file yields an empty map.
func LoadRaw(path string) (map[string]any, error) {
	raw := map[string]any{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes raw as YAML. The file is replaced atomically so a crash
// never leaves a truncated config behind.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// applyDefaults restores defaults for fields a file set to empty values.
func applyDefaults(cfg *Config) {
	d := Defaults()
	cfg.Gateway.Port = cmp.Or(cfg.Gateway.Port, d.Gateway.Port)
	cfg.Gateway.Bind = cmp.Or(cfg.Gateway.Bind, d.Gateway.Bind)
	cfg.Gateway.Auth.Mode = cmp.Or(cfg.Gateway.Auth.Mode, d.Gateway.Auth.Mode)
	cfg.Logging.Level = cmp.Or(cfg.Logging.Level, d.Logging.Level)
	cfg.Logging.ConsoleStyle = cmp.Or(cfg.Logging.ConsoleStyle, d.Logging.ConsoleStyle)
	cfg.Store.Driver = cmp.Or(cfg.Store.Driver, d.Store.Driver)
	cfg.LLM.Binding = cmp.Or(cfg.LLM.Binding, d.LLM.Binding)
	cfg.LLM.Endpoint = cmp.Or(cfg.LLM.Endpoint, d.LLM.Endpoint)
	cfg.LLM.TimeoutSec = cmp.Or(cfg.LLM.TimeoutSec, d.LLM.TimeoutSec)
	cfg.Audio.Player = cmp.Or(cfg.Audio.Player, d.Audio.Player)
	if cfg.Audio.Args == nil {
		cfg.Audio.Args = d.Audio.Args
	}
}

// envOverrides maps COLLOQUY_* variables onto config fields.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"COLLOQUY_GATEWAY_PORT", func(cfg *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}},
	{"COLLOQUY_GATEWAY_BIND", func(cfg *Config, v string) { cfg.Gateway.Bind = v }},
	{"COLLOQUY_LOG_LEVEL", func(cfg *Config, v string) { cfg.Logging.Level = strings.ToLower(v) }},
	{"COLLOQUY_LANGUAGE", func(cfg *Config, v string) { cfg.CurrentLanguage = v }},
	{"COLLOQUY_LLM_ENDPOINT", func(cfg *Config, v string) { cfg.LLM.Endpoint = v }},
	{"COLLOQUY_LLM_MODEL", func(cfg *Config, v string) { cfg.LLM.Model = v }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}
