package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/colloquy/internal/audio"
	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/discussion"
	"github.com/soyeahso/colloquy/internal/gateway"
	"github.com/soyeahso/colloquy/internal/hooks"
	"github.com/soyeahso/colloquy/internal/llm"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/soyeahso/colloquy/internal/persona"
	"github.com/soyeahso/colloquy/internal/session"
	"github.com/soyeahso/colloquy/internal/store"
)

// app holds everything the serve command wires together.
type app struct {
	cfg      config.Config
	hooks    *hooks.Manager
	db       *store.DB // nil for the memory driver
	store    discussion.Store
	search   gateway.Searcher
	llm      *llm.Registry
	selector *persona.Selector
	packs    *persona.LanguagePacks
	player   *audio.Player
	clients  *gateway.ClientRegistry
	service  *discussion.Service
	log      *logging.Logger
}

func openStore(cfg config.StoreConfig, p config.Paths, log *logging.Logger) (discussion.Store, *store.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return discussion.NewMemoryStore(), nil, nil
	case "", "sqlite":
		db, err := store.Open(p.DatabasePath(cfg), log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening discussion database: %w", err)
		}
		return store.NewSQLiteDiscussionStore(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildApp constructs the discussion service and its collaborators from cfg.
func buildApp(cfg config.Config, p config.Paths, log *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	a.hooks = hooks.NewManager(log)
	if n := hooks.RegisterConfig(a.hooks, cfg.Hooks); n > 0 {
		log.Info().Int("count", n).Msg("config hooks registered")
	}

	st, db, err := openStore(cfg.Store, p, log)
	if err != nil {
		return nil, err
	}
	a.store, a.db = st, db
	if sq, ok := st.(*store.SQLiteDiscussionStore); ok {
		a.search = sq
	}

	a.llm = llm.NewRegistryFromConfig(cfg.LLM, log)
	generator, err := a.llm.Resolve(cfg.LLM.Model)
	if err != nil {
		log.Warn().Err(err).Msg("no generation backend, translation disabled")
		generator = nil
	}

	a.selector = persona.NewSelector(p.PersonalitiesDir(cfg.Personalities), cfg.Personalities, log)
	a.player = audio.NewPlayer(cfg.Audio, log)
	a.clients = gateway.NewClientRegistry(log.Sub("clients"))

	deps := discussion.Deps{
		Sessions:      session.NewRegistry(),
		Store:         a.store,
		Personalities: a.selector,
		Audio:         a.player,
		Generator:     generator,
		Transport:     a.clients,
		Hooks:         a.hooks,
		Log:           log,
	}
	// Packs are read even without a generator; only misses need one.
	var translator persona.Translator
	if generator != nil {
		translator = &persona.LLMTranslator{
			Client:      generator,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		}
	}
	a.packs = persona.NewLanguagePacks(p.LanguagePacks, translator, a.hooks, log)
	deps.Packs = a.packs

	a.service = discussion.NewService(deps, discussion.Settings{
		Language: cfg.CurrentLanguage,
		Binding:  cfg.LLM.Binding,
		Model:    cfg.LLM.Model,
	})
	return a, nil
}

// server returns a gateway serving a's discussion service.
func (a *app) server(raw map[string]any) *gateway.Server {
	opts := []gateway.ServerOption{
		gateway.WithConfigRaw(raw),
		gateway.WithHooks(a.hooks),
		gateway.WithClients(a.clients),
		gateway.WithDiscussions(a.service),
		gateway.WithPersonalities(a.selector),
	}
	if a.search != nil {
		opts = append(opts, gateway.WithSearch(a.search))
	}
	return gateway.New(a.cfg, a.log, opts...)
}

// Close stops audio playback, waits for running hooks and closes the
// database.
func (a *app) Close() error {
	a.hooks.Wait()
	if err := a.player.Close(); err != nil {
		a.log.Warn().Err(err).Msg("stopping audio players")
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
