package persona

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/soyeahso/colloquy/internal/hooks"
	"github.com/soyeahso/colloquy/internal/logging"
)

// ErrNoTranslator is returned by Resolve for a missing pack when no
// translator is configured. Existing packs are still served.
var ErrNoTranslator = errors.New("no translator configured")

// Pack is a personality's conditioning and welcome message in one language.
type Pack struct {
	// The key keeps the spelling used by existing pack files.
	Conditioning   string `yaml:"conditionning"`
	WelcomeMessage string `yaml:"welcome_message"`
}

// Resolution is the outcome of LanguagePacks.Resolve.
type Resolution struct {
	Pack Pack
	Path string
	// Created is true when this call generated and wrote the pack.
	Created bool
}

// MissNotifier is told when a pack has to be generated. Begin is called
// before translation starts and End after it finished, successfully or not.
type MissNotifier interface {
	Begin(p *domain.Personality, language string)
	End()
}

// LanguagePacks is a file cache of translated personality texts keyed by
// (personality name, language). Each pack is generated at most once; concurrent
// requests for the same missing pack share one generation.
type LanguagePacks struct {
	dir        string
	translator Translator
	hooks      *hooks.Manager
	log        *logging.Logger
	group      singleflight.Group
}

// NewLanguagePacks creates a pack cache rooted at dir.
func NewLanguagePacks(dir string, translator Translator, hm *hooks.Manager, log *logging.Logger) *LanguagePacks {
	return &LanguagePacks{
		dir:        dir,
		translator: translator,
		hooks:      hm,
		log:        log.Sub("langpack"),
	}
}

// Path returns the pack file location for a personality and language.
func (l *LanguagePacks) Path(p *domain.Personality, language string) string {
	return filepath.Join(l.dir, p.Name, "languages_"+domain.NormalizeLanguage(language)+".yaml")
}

// Resolve returns the pack for p in language, generating and writing it if
// the file does not exist yet. notify may be nil and is only used by the
// caller that performs the generation.
func (l *LanguagePacks) Resolve(ctx context.Context, p *domain.Personality, language string, notify MissNotifier) (Resolution, error) {
	lang := domain.NormalizeLanguage(language)
	if lang == "" {
		return Resolution{}, fmt.Errorf("resolving language pack for %q: empty language", p.Name)
	}
	path := l.Path(p, lang)

	var leader bool
	ch := l.group.DoChan(path, func() (any, error) {
		leader = true
		pack, err := readPack(path)
		if err == nil {
			return Resolution{Pack: pack, Path: path}, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return l.create(ctx, p, lang, path, notify)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Resolution{}, res.Err
		}
		r := res.Val.(Resolution)
		// Callers that joined another caller's generation did not create the pack.
		r.Created = r.Created && leader
		return r, nil
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

func (l *LanguagePacks) create(ctx context.Context, p *domain.Personality, lang, path string, notify MissNotifier) (Resolution, error) {
	if l.translator == nil {
		return Resolution{}, fmt.Errorf("language pack %s/%s missing: %w", p.Name, lang, ErrNoTranslator)
	}

	if notify != nil {
		notify.Begin(p, lang)
		defer notify.End()
	}

	l.log.Info().Str("personality", p.Name).Str("language", lang).Msg("generating language pack")

	cond, err := l.translator.Translate(ctx, strings.ReplaceAll(p.Conditioning, systemMarker, ""), lang)
	if err != nil {
		return Resolution{}, fmt.Errorf("translating conditioning: %w", err)
	}
	welcome, err := l.translator.Translate(ctx, p.WelcomeMessage, lang)
	if err != nil {
		return Resolution{}, fmt.Errorf("translating welcome message: %w", err)
	}

	pack := Pack{Conditioning: systemMarker + " " + cond, WelcomeMessage: welcome}
	if err := writePack(path, pack); err != nil {
		return Resolution{}, err
	}

	l.log.Info().Str("path", path).Msg("language pack written")
	l.hooks.Emit(context.WithoutCancel(ctx), hooks.EventLanguagePackCreated, map[string]any{
		"personality": p.Name,
		"language":    lang,
		"path":        path,
	})

	return Resolution{Pack: pack, Path: path, Created: true}, nil
}

func readPack(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return Pack{}, fmt.Errorf("parsing language pack %s: %w", path, err)
	}
	return pack, nil
}

// writePack writes through a temporary file and a rename so readers never
// observe a partial pack.
func writePack(path string, pack Pack) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating language pack directory: %w", err)
	}

	data, err := yaml.Marshal(pack)
	if err != nil {
		return fmt.Errorf("encoding language pack: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing language pack: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("installing language pack: %w", err)
	}
	return nil
}
