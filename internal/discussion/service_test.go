package discussion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/soyeahso/colloquy/internal/audio"
	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/soyeahso/colloquy/internal/llm"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/soyeahso/colloquy/internal/persona"
	"github.com/soyeahso/colloquy/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type sentEvent struct {
	ClientID string
	Event    string
	Payload  any
}

type fakeTransport struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (f *fakeTransport) EmitTo(clientID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, sentEvent{clientID, event, payload})
	return nil
}

func (f *fakeTransport) named(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Event)
	}
	return out
}

type fixedPersonality struct{ p *domain.Personality }

func (f fixedPersonality) Active() (*domain.Personality, bool) { return f.p, f.p != nil }

type fakePlayer struct{ result audio.Result }

func (f fakePlayer) PlayWelcome(context.Context, string) audio.Result { return f.result }

// failingCreateStore fails Create but otherwise behaves like MemoryStore.
type failingCreateStore struct{ *MemoryStore }

func (failingCreateStore) Create(context.Context, string) (*domain.Discussion, error) {
	return nil, errors.New("disk full")
}

type fixture struct {
	svc       *Service
	store     *MemoryStore
	sessions  *session.Registry
	transport *fakeTransport
	gen       *llm.MockClient
	packs     *persona.LanguagePacks
	packDir   string
}

func lollms() *domain.Personality {
	return &domain.Personality{
		Ref:                        "generic/lollms",
		Name:                       "lollms",
		Language:                   "English",
		WelcomeMessage:             "Welcome! How can I help?",
		Conditioning:               "!@>system: Be helpful.",
		IncludeWelcomeInDiscussion: true,
	}
}

// translate tags the text it was asked to translate.
func translate(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	lines := strings.Split(req.Prompt, "\n")
	lang := strings.TrimSuffix(strings.TrimPrefix(lines[0], "!@>instruction: Translate the following text to "), ":")
	return &llm.CompletionResponse{Content: strings.ToUpper(lang[:2]) + "(" + strings.TrimSpace(lines[1]) + ")"}, nil
}

func newFixture(t *testing.T, p *domain.Personality, settings Settings) *fixture {
	t.Helper()
	log := logging.New(nil, "silent")
	f := &fixture{
		store:     NewMemoryStore(),
		sessions:  session.NewRegistry(),
		transport: &fakeTransport{},
		gen:       &llm.MockClient{ProviderName: "mock", CompleteFunc: translate},
		packDir:   t.TempDir(),
	}
	f.packs = persona.NewLanguagePacks(f.packDir, &persona.LLMTranslator{Client: f.gen}, nil, log)
	f.svc = NewService(Deps{
		Sessions:      f.sessions,
		Store:         f.store,
		Personalities: fixedPersonality{p},
		Packs:         f.packs,
		Audio:         fakePlayer{audio.Result{Status: audio.NoSample}},
		Generator:     f.gen,
		Transport:     f.transport,
		Log:           log,
	}, settings)
	return f
}

func eventID(t *testing.T, e sentEvent) int64 {
	t.Helper()
	payload, ok := e.Payload.(map[string]any)
	require.True(t, ok)
	id, ok := payload["id"].(int64)
	require.True(t, ok)
	return id
}

// --- NewDiscussion ---

func TestNewDiscussion_NoPersonality(t *testing.T) {
	f := newFixture(t, nil, Settings{})

	_, err := f.svc.NewDiscussion(context.Background(), "c1", "hello")
	require.ErrorIs(t, err, ErrNoPersonality)

	list, _ := f.store.List(context.Background())
	assert.Empty(t, list, "no discussion is created")
	assert.Empty(t, f.transport.named(EventDiscussionCreated))

	notes := f.transport.named(EventNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, "error", notes[0].Payload.(map[string]any)["type"])

	_, active := f.svc.ActiveDiscussion("c1")
	assert.False(t, active)
}

func TestNewDiscussion_EmptyWelcome(t *testing.T) {
	p := lollms()
	p.WelcomeMessage = ""
	f := newFixture(t, p, Settings{})

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "quiet")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoWelcome, res.Outcome)
	assert.Nil(t, res.Welcome)

	created := f.transport.named(EventDiscussionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, domain.NoDiscussion, eventID(t, created[0]))

	msgs, err := f.store.Messages(context.Background(), res.Discussion.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	d, ok := f.svc.ActiveDiscussion("c1")
	require.True(t, ok)
	assert.Equal(t, res.Discussion.ID, d.ID)
}

func TestNewDiscussion_SameLanguage(t *testing.T) {
	f := newFixture(t, lollms(), Settings{Language: "English", Binding: "ollama", Model: "mistral"})

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)
	assert.Equal(t, OutcomeWelcomed, res.Outcome)
	assert.False(t, res.PackCreated)
	assert.Zero(t, f.gen.Calls(), "no translation for the personality's own language")

	msgs, err := f.store.Messages(context.Background(), res.Discussion.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "Welcome! How can I help?", m.Content)
	assert.Equal(t, domain.MessageTypeFull, m.Type)
	assert.Equal(t, domain.SenderAI, m.SenderType)
	assert.Equal(t, "lollms", m.Sender)
	assert.Equal(t, 0, m.Rank)
	assert.Equal(t, domain.NoParent, m.ParentMessageID)
	assert.Equal(t, "ollama", m.Binding)
	assert.Equal(t, "mistral", m.Model)
	assert.Equal(t, "generic/lollms", m.Personality)
	require.NotNil(t, m.NbTokens)
	assert.Equal(t, 5, *m.NbTokens)

	created := f.transport.named(EventDiscussionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, res.Discussion.ID, eventID(t, created[0]))
	assert.Equal(t, "!@>system: Be helpful.", f.svc.Conditioning("c1"))
}

func TestNewDiscussion_NoLanguageConfigured(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)
	assert.Equal(t, "Welcome! How can I help?", res.Welcome.Content)
	assert.Zero(t, f.gen.Calls())
}

func TestNewDiscussion_InvisibleWelcome(t *testing.T) {
	p := lollms()
	p.IncludeWelcomeInDiscussion = false
	f := newFixture(t, p, Settings{})

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeFullInvisibleToAI, res.Welcome.Type)
}

func TestNewDiscussion_TranslatesOnMiss(t *testing.T) {
	f := newFixture(t, lollms(), Settings{Language: "French (France)"})

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)
	assert.True(t, res.PackCreated)
	assert.Equal(t, "french", res.Language)
	assert.Equal(t, 2, f.gen.Calls())

	path := filepath.Join(f.packDir, "lollms", "languages_french.yaml")
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "exactly one pack file is written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var pack map[string]string
	require.NoError(t, yaml.Unmarshal(data, &pack))
	assert.Equal(t, "!@>system: FR(Be helpful.)", pack["conditionning"])
	assert.Equal(t, "FR(Welcome! How can I help?)", pack["welcome_message"])

	assert.Equal(t, "FR(Welcome! How can I help?)", res.Welcome.Content)
	msgs, _ := f.store.Messages(context.Background(), res.Discussion.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "FR(Welcome! How can I help?)", msgs[0].Content)
	assert.Equal(t, "!@>system: FR(Be helpful.)", f.svc.Conditioning("c1"))

	assert.Equal(t, []string{EventShowBlocking, EventHideBlocking, EventDiscussionCreated}, f.transport.names())
}

func TestNewDiscussion_CacheHitSkipsGeneration(t *testing.T) {
	f := newFixture(t, lollms(), Settings{Language: "german"})

	path := filepath.Join(f.packDir, "lollms", "languages_german.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(
		"conditionning: '!@>system: Sei hilfreich.'\nwelcome_message: Willkommen!\n"), 0o644))

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)

	assert.Zero(t, f.gen.Calls(), "no generation on a cache hit")
	assert.False(t, res.PackCreated)
	assert.Equal(t, "Willkommen!", res.Welcome.Content)
	assert.Equal(t, "!@>system: Sei hilfreich.", f.svc.Conditioning("c1"))
	assert.Empty(t, f.transport.named(EventShowBlocking))
}

func TestNewDiscussion_MissWithoutTranslatorServesOriginal(t *testing.T) {
	f := newFixture(t, lollms(), Settings{Language: "german"})
	f.svc.packs = persona.NewLanguagePacks(f.packDir, nil, nil, logging.New(nil, "silent"))

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)

	assert.Equal(t, OutcomeWelcomed, res.Outcome)
	assert.False(t, res.PackCreated)
	assert.Equal(t, "english", res.Language)
	assert.Equal(t, "Welcome! How can I help?", res.Welcome.Content)
	assert.Equal(t, "!@>system: Be helpful.", f.svc.Conditioning("c1"))
	assert.Empty(t, f.transport.named(EventShowBlocking))
	assert.NoFileExists(t, filepath.Join(f.packDir, "lollms", "languages_german.yaml"))
}

func TestNewDiscussion_ClientLanguageOverride(t *testing.T) {
	f := newFixture(t, lollms(), Settings{Language: "english"})

	assert.Equal(t, "spanish", f.svc.SetLanguage("c1", "Spanish (Spain)"))
	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)
	assert.Equal(t, "SP(Welcome! How can I help?)", res.Welcome.Content)

	other, err := f.svc.NewDiscussion(context.Background(), "c2", "chat")
	require.NoError(t, err)
	assert.Equal(t, "Welcome! How can I help?", other.Welcome.Content)
}

func TestNewDiscussion_TranslationFailurePropagates(t *testing.T) {
	f := newFixture(t, lollms(), Settings{Language: "french"})
	f.gen.CompleteFunc = func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, &llm.ProviderError{Provider: "mock", Code: 503, Message: "busy"}
	}

	_, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, f.transport.named(EventDiscussionCreated))
}

func TestNewDiscussion_TokenCountUnavailable(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	f.svc.generator = llm.WithoutTokenizer(f.gen)

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)
	assert.False(t, res.Tokens.OK)
	assert.ErrorIs(t, res.Tokens.Err, llm.ErrTokenizerUnavailable)
	assert.Nil(t, res.Welcome.NbTokens)
}

func TestNewDiscussion_AudioResultRecorded(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	f.svc.audio = fakePlayer{audio.Result{Status: audio.Failed, Err: errors.New("no device")}}

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err, "audio failure is never fatal")
	assert.Equal(t, audio.Failed, res.Audio.Status)
	assert.Equal(t, OutcomeWelcomed, res.Outcome)

	f.svc.audio = nil
	res, err = f.svc.NewDiscussion(context.Background(), "c1", "chat")
	require.NoError(t, err)
	assert.Equal(t, audio.Unavailable, res.Audio.Status)
}

func TestNewDiscussion_CreateFailureFallsBackToLast(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	prev, err := f.store.Create(context.Background(), "previous")
	require.NoError(t, err)
	f.svc.store = failingCreateStore{f.store}

	res, err := f.svc.NewDiscussion(context.Background(), "c1", "new")
	require.NoError(t, err)
	assert.Equal(t, prev.ID, res.Discussion.ID)

	d, ok := f.svc.ActiveDiscussion("c1")
	require.True(t, ok)
	assert.Equal(t, prev.ID, d.ID)
}

func TestNewDiscussion_CreateFailureWithoutFallback(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	f.svc.store = failingCreateStore{f.store}

	_, err := f.svc.NewDiscussion(context.Background(), "c1", "new")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, ErrDiscussionNotFound)
}

func TestNewDiscussion_TransportFailurePropagates(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	f.transport.err = errors.New("socket closed")

	_, err := f.svc.NewDiscussion(context.Background(), "c1", "chat")
	assert.EqualError(t, err, "socket closed")
}

// --- LoadDiscussion ---

func TestLoadDiscussion_ExplicitID(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	ctx := context.Background()

	d, err := f.store.Create(ctx, "target")
	require.NoError(t, err)
	for _, c := range []string{"one", "two", "three"} {
		_, err := f.store.AddMessage(ctx, domain.Message{DiscussionID: d.ID, Content: c})
		require.NoError(t, err)
	}

	recs, err := f.svc.LoadDiscussion(ctx, "c1", &d.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "one", recs[0].Content)
	assert.Equal(t, "two", recs[1].Content)
	assert.Equal(t, "three", recs[2].Content)

	active, ok := f.svc.ActiveDiscussion("c1")
	require.True(t, ok)
	assert.Equal(t, d.ID, active.ID)

	sent := f.transport.named(EventDiscussion)
	require.Len(t, sent, 1)
	assert.Equal(t, recs, sent[0].Payload)
}

func TestLoadDiscussion_UnknownID(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	id := int64(4242)

	recs, err := f.svc.LoadDiscussion(context.Background(), "c1", &id)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs)

	active, ok := f.svc.ActiveDiscussion("c1")
	require.True(t, ok)
	assert.Equal(t, id, active.ID)
}

func TestLoadDiscussion_NoIDNoActiveCreates(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	ctx := context.Background()

	recs, err := f.svc.LoadDiscussion(ctx, "c1", nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	list, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DefaultTitle, list[0].Title)

	active, ok := f.svc.ActiveDiscussion("c1")
	require.True(t, ok)
	assert.Equal(t, list[0].ID, active.ID)
}

func TestLoadDiscussion_NoIDReloadsActive(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	ctx := context.Background()

	res, err := f.svc.NewDiscussion(ctx, "c1", "mine")
	require.NoError(t, err)

	// A message added elsewhere shows up on reload.
	_, err = f.store.AddMessage(ctx, domain.Message{DiscussionID: res.Discussion.ID, Content: "later"})
	require.NoError(t, err)

	recs, err := f.svc.LoadDiscussion(ctx, "c1", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, res.Welcome.ID, recs[0].ID)
	assert.Equal(t, "later", recs[1].Content)

	list, _ := f.store.List(ctx)
	assert.Len(t, list, 1, "no new discussion is created")
}

func TestLoadDiscussion_SwitchReplacesActive(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	ctx := context.Background()

	a, _ := f.store.Create(ctx, "a")
	b, _ := f.store.Create(ctx, "b")

	_, err := f.svc.LoadDiscussion(ctx, "c1", &a.ID)
	require.NoError(t, err)
	_, err = f.svc.LoadDiscussion(ctx, "c1", &b.ID)
	require.NoError(t, err)

	active, _ := f.svc.ActiveDiscussion("c1")
	assert.Equal(t, b.ID, active.ID)
	stored, _ := f.store.Get(ctx, a.ID)
	assert.Equal(t, "a", stored.Title)
}

func TestDisconnectDropsSession(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	_, err := f.svc.NewDiscussion(context.Background(), "c1", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, f.sessions.Count())

	f.svc.Disconnect("c1")
	assert.Equal(t, 0, f.sessions.Count())
}

func TestConnectAppliesLanguage(t *testing.T) {
	f := newFixture(t, lollms(), Settings{})
	f.svc.Connect("c1", "German (Austria)")
	f.svc.Connect("c2", "")
	assert.Equal(t, 2, f.svc.Sessions())

	st, ok := f.sessions.Snapshot("c1")
	require.True(t, ok)
	assert.Equal(t, "german", st.Language)
	st, _ = f.sessions.Snapshot("c2")
	assert.Empty(t, st.Language)
}

func TestConcurrentNewDiscussionsSameLanguage(t *testing.T) {
	f := newFixture(t, lollms(), Settings{Language: "italian"})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.NewDiscussion(context.Background(), "client-"+string(rune('a'+i)), "t")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, f.gen.Calls(), "the pack is generated once")
	list, _ := f.store.List(context.Background())
	assert.Len(t, list, 6)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "welcomed", OutcomeWelcomed.String())
	assert.Equal(t, "no_welcome", OutcomeNoWelcome.String())
}
