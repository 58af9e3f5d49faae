package discussion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/colloquy/internal/audio"
	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/soyeahso/colloquy/internal/hooks"
	"github.com/soyeahso/colloquy/internal/llm"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/soyeahso/colloquy/internal/persona"
	"github.com/soyeahso/colloquy/internal/session"
)

// Outbound event names.
const (
	EventDiscussionCreated = "discussion_created"
	EventDiscussion        = "discussion"
	EventNotification      = "notification"
	EventShowBlocking      = "show_blocking_message"
	EventHideBlocking      = "hide_blocking_message"
)

// DefaultTitle is used when a discussion is created implicitly.
const DefaultTitle = "untitled"

// ErrNoPersonality is returned by NewDiscussion when no personality is selected.
var ErrNoPersonality = domain.ErrNoPersonality

// Transport delivers named events to one connected client.
type Transport interface {
	EmitTo(clientID, event string, payload any) error
}

// PersonalitySource yields the active personality.
type PersonalitySource interface {
	Active() (*domain.Personality, bool)
}

// PackResolver returns a personality's texts translated into a language.
type PackResolver interface {
	Resolve(ctx context.Context, p *domain.Personality, language string, notify persona.MissNotifier) (persona.Resolution, error)
}

// WelcomePlayer plays a personality's welcome sample.
type WelcomePlayer interface {
	PlayWelcome(ctx context.Context, dir string) audio.Result
}

// Settings are the configuration values the handlers read on every call.
type Settings struct {
	// Language is the default language clients are addressed in.
	Language string
	// Binding and Model are recorded on generated messages.
	Binding string
	Model   string
}

// Deps are the collaborators of a Service. Sessions, Store, Personalities and
// Transport are required.
type Deps struct {
	Sessions      *session.Registry
	Store         Store
	Personalities PersonalitySource
	Packs         PackResolver
	Audio         WelcomePlayer
	// Generator is asked for token counts. It may be nil.
	Generator llm.Client
	Transport Transport
	Hooks     *hooks.Manager
	Log       *logging.Logger
}

// Outcome names how NewDiscussion finished.
type Outcome int

const (
	// OutcomeWelcomed means a discussion was created and the welcome message appended.
	OutcomeWelcomed Outcome = iota + 1
	// OutcomeNoWelcome means a discussion was created but the personality has
	// no welcome message; the client was told about the zero id.
	OutcomeNoWelcome
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWelcomed:
		return "welcomed"
	case OutcomeNoWelcome:
		return "no_welcome"
	default:
		return "unknown"
	}
}

// NewResult describes what NewDiscussion did.
type NewResult struct {
	Outcome    Outcome
	Discussion *domain.Discussion
	// Welcome is the appended welcome message, nil for OutcomeNoWelcome.
	Welcome *domain.Message
	// Language is the language the welcome message was delivered in.
	Language    string
	PackCreated bool
	Audio       audio.Result
	Tokens      llm.TokenCount
}

// Service runs the discussion handlers for connected clients.
type Service struct {
	sessions  *session.Registry
	store     Store
	personas  PersonalitySource
	packs     PackResolver
	audio     WelcomePlayer
	generator llm.Client
	transport Transport
	hooks     *hooks.Manager
	log       *logging.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewService wires a Service.
func NewService(deps Deps, settings Settings) *Service {
	return &Service{
		sessions:  deps.Sessions,
		store:     deps.Store,
		personas:  deps.Personalities,
		packs:     deps.Packs,
		audio:     deps.Audio,
		generator: deps.Generator,
		transport: deps.Transport,
		hooks:     deps.Hooks,
		log:       deps.Log.Sub("discussion"),
		settings:  settings,
	}
}

// Settings returns the current settings.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the settings used by subsequent calls.
func (s *Service) SetSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// SetLanguage overrides the language for one client. An empty language
// reverts to the configured default. It returns the normalized language.
func (s *Service) SetLanguage(clientID, language string) string {
	lang := domain.NormalizeLanguage(language)
	_ = s.sessions.Update(clientID, func(st *session.State) error {
		st.Language = lang
		return nil
	})
	return lang
}

// Connect opens session state for a newly connected client. A non-empty
// language becomes the client's override.
func (s *Service) Connect(clientID, language string) {
	s.sessions.Open(clientID)
	if language != "" {
		s.SetLanguage(clientID, language)
	}
}

// Sessions returns the number of clients with session state.
func (s *Service) Sessions() int {
	return s.sessions.Count()
}

// Disconnect drops the client's session state.
func (s *Service) Disconnect(clientID string) {
	s.sessions.Remove(clientID)
}

// NewDiscussion creates a discussion for the client, welcomes it with the
// active personality's message and tells the client the new id.
func (s *Service) NewDiscussion(ctx context.Context, clientID, title string) (NewResult, error) {
	var result NewResult
	err := s.sessions.Update(clientID, func(st *session.State) error {
		var err error
		result, err = s.newDiscussion(ctx, st, title)
		return err
	})
	return result, err
}

func (s *Service) newDiscussion(ctx context.Context, st *session.State, title string) (NewResult, error) {
	p, ok := s.personas.Active()
	if !ok {
		s.log.Warn().Str("client", st.ClientID).Msg("new discussion requested without a personality")
		if err := s.transport.EmitTo(st.ClientID, EventNotification, map[string]any{
			"type":    "error",
			"message": "Please select a personality first",
		}); err != nil {
			return NewResult{}, errors.Join(ErrNoPersonality, err)
		}
		return NewResult{}, ErrNoPersonality
	}

	s.log.Info().Str("client", st.ClientID).Str("title", title).Msg("new discussion requested")

	d, err := s.store.Create(ctx, title)
	if err != nil {
		s.log.Warn().Err(err).Msg("creating discussion failed, falling back to the last one")
		last, lastErr := s.store.Last(ctx)
		if lastErr != nil {
			return NewResult{}, fmt.Errorf("creating discussion: %w", errors.Join(err, lastErr))
		}
		d = last
	}
	st.Discussion = d
	s.emitHook(ctx, hooks.EventDiscussionCreated, map[string]any{
		"clientId":     st.ClientID,
		"discussionId": d.ID,
		"title":        d.Title,
		"personality":  p.Ref,
	})

	if p.WelcomeMessage == "" {
		if err := s.transport.EmitTo(st.ClientID, EventDiscussionCreated, map[string]any{"id": domain.NoDiscussion}); err != nil {
			return NewResult{}, err
		}
		return NewResult{Outcome: OutcomeNoWelcome, Discussion: d}, nil
	}

	result := NewResult{Discussion: d, Audio: s.playWelcome(ctx, p)}

	settings := s.Settings()
	welcome, lang, created, err := s.welcomeText(ctx, st, p, settings)
	if err != nil {
		return NewResult{}, err
	}
	result.Language = lang
	result.PackCreated = created

	result.Tokens = llm.CountTokens(ctx, s.generator, welcome)
	if !result.Tokens.OK {
		s.log.Debug().Err(result.Tokens.Err).Msg("token count unavailable")
	}

	msgType := domain.MessageTypeFullInvisibleToAI
	if p.IncludeWelcomeInDiscussion {
		msgType = domain.MessageTypeFull
	}

	msg, err := s.store.AddMessage(ctx, domain.Message{
		DiscussionID:    d.ID,
		Type:            msgType,
		SenderType:      domain.SenderAI,
		Sender:          p.Name,
		Content:         welcome,
		Rank:            0,
		ParentMessageID: domain.NoParent,
		Binding:         settings.Binding,
		Model:           settings.Model,
		Personality:     p.Ref,
		NbTokens:        result.Tokens.Ptr(),
	})
	if err != nil {
		return NewResult{}, fmt.Errorf("adding welcome message: %w", err)
	}
	result.Welcome = &msg
	result.Outcome = OutcomeWelcomed

	s.emitHook(ctx, hooks.EventMessageAdded, map[string]any{
		"clientId":     st.ClientID,
		"discussionId": d.ID,
		"messageId":    msg.ID,
		"sender":       msg.Sender,
	})

	if err := s.transport.EmitTo(st.ClientID, EventDiscussionCreated, map[string]any{"id": d.ID}); err != nil {
		return NewResult{}, err
	}
	return result, nil
}

func (s *Service) playWelcome(ctx context.Context, p *domain.Personality) audio.Result {
	if s.audio == nil {
		return audio.Result{Status: audio.Unavailable}
	}
	res := s.audio.PlayWelcome(ctx, p.WelcomeAudioDir)
	if res.Err != nil {
		s.log.Debug().Err(res.Err).Str("status", res.Status.String()).Msg("welcome audio not played")
	}
	return res
}

// welcomeText returns the welcome message in the client's language and
// applies the matching conditioning to the session.
func (s *Service) welcomeText(ctx context.Context, st *session.State, p *domain.Personality, settings Settings) (text, lang string, created bool, err error) {
	lang = st.Language
	if lang == "" {
		lang = domain.NormalizeLanguage(settings.Language)
	}

	if lang == "" || lang == p.PrimaryLanguage() || s.packs == nil {
		st.Conditioning = p.Conditioning
		return p.WelcomeMessage, p.PrimaryLanguage(), false, nil
	}

	res, err := s.packs.Resolve(ctx, p, lang, &blockingNotifier{transport: s.transport, clientID: st.ClientID, log: s.log})
	if errors.Is(err, persona.ErrNoTranslator) {
		s.log.Warn().Str("personality", p.Name).Str("language", lang).
			Msg("no language pack and no generation backend, serving untranslated")
		st.Conditioning = p.Conditioning
		return p.WelcomeMessage, p.PrimaryLanguage(), false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("resolving %s language pack: %w", lang, err)
	}
	st.Conditioning = res.Pack.Conditioning
	return res.Pack.WelcomeMessage, lang, res.Created, nil
}

// LoadDiscussion makes the requested discussion the client's active one and
// sends the client its messages. With a nil id the active discussion is
// reloaded, or a new one is created when the client has none.
func (s *Service) LoadDiscussion(ctx context.Context, clientID string, id *int64) ([]domain.MessageRecord, error) {
	var records []domain.MessageRecord
	err := s.sessions.Update(clientID, func(st *session.State) error {
		d, err := s.resolveTarget(ctx, st, id)
		if err != nil {
			return err
		}
		st.Discussion = d

		msgs, err := s.store.Messages(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("loading messages: %w", err)
		}
		records = domain.Records(msgs)

		if err := s.transport.EmitTo(clientID, EventDiscussion, records); err != nil {
			return err
		}

		s.log.Info().Str("client", clientID).Int64("discussion", d.ID).Int("messages", len(records)).Msg("discussion loaded")
		s.emitHook(ctx, hooks.EventDiscussionLoaded, map[string]any{
			"clientId":     clientID,
			"discussionId": d.ID,
			"messages":     len(records),
		})
		return nil
	})
	return records, err
}

func (s *Service) resolveTarget(ctx context.Context, st *session.State, id *int64) (*domain.Discussion, error) {
	switch {
	case id != nil:
		return s.byID(ctx, *id)
	case st.Discussion != nil:
		return s.byID(ctx, st.Discussion.ID)
	default:
		d, err := s.store.Create(ctx, DefaultTitle)
		if err != nil {
			return nil, fmt.Errorf("creating discussion: %w", err)
		}
		s.emitHook(ctx, hooks.EventDiscussionCreated, map[string]any{
			"clientId":     st.ClientID,
			"discussionId": d.ID,
			"title":        d.Title,
		})
		return d, nil
	}
}

// byID returns a fresh handle for id. Unknown ids yield an empty handle so
// the client still ends up on the discussion it asked for.
func (s *Service) byID(ctx context.Context, id int64) (*domain.Discussion, error) {
	d, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrDiscussionNotFound) {
		return &domain.Discussion{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading discussion %d: %w", id, err)
	}
	return d, nil
}

// ActiveDiscussion returns the client's active discussion, if any.
func (s *Service) ActiveDiscussion(clientID string) (*domain.Discussion, bool) {
	st, ok := s.sessions.Snapshot(clientID)
	if !ok || st.Discussion == nil {
		return nil, false
	}
	d := *st.Discussion
	return &d, true
}

// Conditioning returns the conditioning prompt in effect for the client.
func (s *Service) Conditioning(clientID string) string {
	st, _ := s.sessions.Snapshot(clientID)
	return st.Conditioning
}

// Get returns a stored discussion.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Discussion, error) {
	return s.store.Get(ctx, id)
}

// List returns all stored discussions.
func (s *Service) List(ctx context.Context) ([]domain.Discussion, error) {
	return s.store.List(ctx)
}

// Messages returns the transport form of a discussion's messages.
func (s *Service) Messages(ctx context.Context, id int64) ([]domain.MessageRecord, error) {
	msgs, err := s.store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.Records(msgs), nil
}

func (s *Service) emitHook(ctx context.Context, event string, data map[string]any) {
	s.hooks.EmitAsync(context.WithoutCancel(ctx), event, data)
}

// blockingNotifier shows the client a blocking message while a language
// pack is generated.
type blockingNotifier struct {
	transport Transport
	clientID  string
	log       *logging.Logger
}

func (n *blockingNotifier) Begin(p *domain.Personality, language string) {
	msg := fmt.Sprintf("This is the first time this personality speaks %s\n"+
		"The personality is being reconditioned in that language.\n"+
		"This will be done just once. Next time, the personality will speak %s out of the box",
		language, language)
	if err := n.transport.EmitTo(n.clientID, EventShowBlocking, map[string]any{"message": msg}); err != nil {
		n.log.Warn().Err(err).Str("client", n.clientID).Msg("show blocking message failed")
	}
}

func (n *blockingNotifier) End() {
	if err := n.transport.EmitTo(n.clientID, EventHideBlocking, map[string]any{}); err != nil {
		n.log.Warn().Err(err).Str("client", n.clientID).Msg("hide blocking message failed")
	}
}
