package discussion

import (
	"context"
	"testing"
	"time"

	"github.com/soyeahso/colloquy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Last(ctx)
	assert.ErrorIs(t, err, ErrDiscussionNotFound)

	a, err := s.Create(ctx, "a")
	require.NoError(t, err)
	b, err := s.Create(ctx, "b")
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)

	last, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, last.ID)

	m1, err := s.AddMessage(ctx, domain.Message{DiscussionID: a.ID, Content: "first"})
	require.NoError(t, err)
	m2, err := s.AddMessage(ctx, domain.Message{DiscussionID: a.ID, Content: "second"})
	require.NoError(t, err)
	assert.Greater(t, m2.ID, m1.ID)

	_, err = s.AddMessage(ctx, domain.Message{DiscussionID: 99})
	assert.ErrorIs(t, err, ErrDiscussionNotFound)

	msgs, err := s.Messages(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)

	// Returned slices are copies.
	msgs[0].Content = "changed"
	again, _ := s.Messages(ctx, a.ID)
	assert.Equal(t, "first", again[0].Content)

	require.NoError(t, s.Rename(ctx, b.ID, "renamed"))
	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	require.NoError(t, s.Delete(ctx, a.ID))
	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrDiscussionNotFound)
	assert.ErrorIs(t, s.Delete(ctx, a.ID), ErrDiscussionNotFound)
	assert.ErrorIs(t, s.Rename(ctx, a.ID, "x"), ErrDiscussionNotFound)
}

func TestMemoryStore_ListOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, _ := s.Create(ctx, "a")
	b, _ := s.Create(ctx, "b")

	_, err := s.AddMessage(ctx, domain.Message{DiscussionID: a.ID, CreatedAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}
