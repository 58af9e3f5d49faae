package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/soyeahso/colloquy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	hits  []store.SearchHit
	err   error
	query string
	limit int
}

func (f *fakeSearcher) Search(_ context.Context, query string, limit int) ([]store.SearchHit, error) {
	f.query, f.limit = query, limit
	return f.hits, f.err
}

func (e *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPIRequiresAuth(t *testing.T) {
	env := newTestEnv(t, lollms())

	resp, err := http.Get(env.ts.URL + "/api/discussions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIListDiscussions(t *testing.T) {
	env := newTestEnv(t, lollms())

	var empty map[string][]domain.Discussion
	assert.Equal(t, http.StatusOK, env.get(t, "/api/discussions", &empty))
	assert.NotNil(t, empty["discussions"])
	assert.Empty(t, empty["discussions"])

	ctx := context.Background()
	_, err := env.store.Create(ctx, "alpha")
	require.NoError(t, err)
	_, err = env.store.Create(ctx, "beta")
	require.NoError(t, err)

	var body map[string][]domain.Discussion
	assert.Equal(t, http.StatusOK, env.get(t, "/api/discussions", &body))
	assert.Len(t, body["discussions"], 2)
}

func TestAPIDiscussionMessages(t *testing.T) {
	env := newTestEnv(t, lollms())
	conn := env.dial(t, "")
	call(t, conn, "n1", "new_discussion", NewDiscussionParams{Title: "first"})

	var body struct {
		Discussion domain.Discussion      `json:"discussion"`
		Messages   []domain.MessageRecord `json:"messages"`
	}
	assert.Equal(t, http.StatusOK, env.get(t, "/api/discussions/1/messages", &body))
	assert.Equal(t, "first", body.Discussion.Title)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, int(domain.SenderAI), body.Messages[0].SenderType)
	assert.Equal(t, "generic/lollms", body.Messages[0].Personality)
}

func TestAPIDiscussionMessagesErrors(t *testing.T) {
	env := newTestEnv(t, lollms())

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/discussions/42/messages", nil))
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/discussions/abc/messages", nil))
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/discussions/0/messages", nil))
}

func TestAPISearch(t *testing.T) {
	search := &fakeSearcher{hits: []store.SearchHit{{DiscussionID: 1, MessageID: 3, Title: "trip", Snippet: "[paris] in spring"}}}
	env := newTestEnv(t, lollms(), WithSearch(search))

	var body struct {
		Query string            `json:"query"`
		Hits  []store.SearchHit `json:"hits"`
	}
	assert.Equal(t, http.StatusOK, env.get(t, "/api/discussions/search?q=paris&limit=5", &body))
	assert.Equal(t, "paris", body.Query)
	require.Len(t, body.Hits, 1)
	assert.Equal(t, "[paris] in spring", body.Hits[0].Snippet)
	assert.Equal(t, 5, search.limit)

	assert.Equal(t, http.StatusOK, env.get(t, "/api/discussions/search?q=x", nil))
	assert.Equal(t, defaultSearchLimit, search.limit)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/discussions/search", nil))
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/discussions/search?q=x&limit=-1", nil))

	search.err = errors.New("fts broken")
	assert.Equal(t, http.StatusInternalServerError, env.get(t, "/api/discussions/search?q=x", nil))
}

func TestAPISearchUnavailable(t *testing.T) {
	env := newTestEnv(t, lollms())
	assert.Equal(t, http.StatusNotImplemented, env.get(t, "/api/discussions/search?q=x", nil))
}
