package config

import (
	"os"
	"path/filepath"
)

// Paths are the filesystem locations colloquy reads and writes. Everything
// lives under Base, which is ~/.colloquy unless COLLOQUY_HOME says otherwise.
type Paths struct {
	Base          string
	Config        string // config.yaml
	Data          string // data/, holds the discussion database
	Logs          string
	Personalities string // installed personalities, <category>/<name>/
	LanguagePacks string // generated per-language personality variants
}

// PathsAt lays out the standard tree under base.
func PathsAt(base string) Paths {
	at := func(elem ...string) string {
		return filepath.Join(append([]string{base}, elem...)...)
	}
	return Paths{
		Base:          base,
		Config:        at("config.yaml"),
		Data:          at("data"),
		Logs:          at("logs"),
		Personalities: at("personalities"),
		LanguagePacks: at("configs", "personalities"),
	}
}

// ResolvePaths locates Base from COLLOQUY_HOME or the user's home directory.
func ResolvePaths() (Paths, error) {
	if base := os.Getenv("COLLOQUY_HOME"); base != "" {
		return PathsAt(base), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, err
	}
	return PathsAt(filepath.Join(home, ".colloquy")), nil
}

// EnsureDirs creates the directory tree, leaving existing directories alone.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs, p.Personalities, p.LanguagePacks} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath is store.path, or data/discussions.db when unset.
func (p Paths) DatabasePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "discussions.db")
}

// PersonalitiesDir is personalities.dir, or the installed tree when unset.
func (p Paths) PersonalitiesDir(cfg PersonalitiesConfig) string {
	if cfg.Dir != "" {
		return cfg.Dir
	}
	return p.Personalities
}
