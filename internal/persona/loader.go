// Package persona loads personalities from disk and manages their
// per-language translation packs.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soyeahso/colloquy/internal/domain"
)

// ConfigFile is the personality descriptor inside a personality directory.
const ConfigFile = "config.yaml"

// WelcomeAudioDir is where welcome samples live, relative to the personality directory.
var WelcomeAudioDir = filepath.Join("audio", "welcome")

type fileConfig struct {
	Name                       string `yaml:"name"`
	Language                   string `yaml:"language"`
	WelcomeMessage             string `yaml:"welcome_message"`
	Conditioning               string `yaml:"personality_conditioning"`
	IncludeWelcomeInDiscussion *bool  `yaml:"include_welcome_message_in_discussion"`
}

// LoadDir reads the personality stored in dir. ref is the reference the
// personality was selected by and is kept on the result.
func LoadDir(ref, dir string) (*domain.Personality, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("reading personality %q: %w", ref, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing personality %q: %w", ref, err)
	}

	name := strings.TrimSpace(fc.Name)
	if name == "" {
		name = filepath.Base(dir)
	}

	p := &domain.Personality{
		Ref:                        ref,
		Name:                       name,
		Language:                   fc.Language,
		WelcomeMessage:             fc.WelcomeMessage,
		Conditioning:               fc.Conditioning,
		IncludeWelcomeInDiscussion: true,
		Dir:                        dir,
	}
	if fc.IncludeWelcomeInDiscussion != nil {
		p.IncludeWelcomeInDiscussion = *fc.IncludeWelcomeInDiscussion
	}

	audio := filepath.Join(dir, WelcomeAudioDir)
	if info, err := os.Stat(audio); err == nil && info.IsDir() {
		p.WelcomeAudioDir = audio
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking welcome audio for %q: %w", ref, err)
	}

	return p, nil
}

// Load resolves ref against root and loads it. References are slash
// separated paths relative to root, e.g. "generic/lollms".
func Load(root, ref string) (*domain.Personality, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid personality reference %q", ref)
	}
	return LoadDir(ref, filepath.Join(root, clean))
}
