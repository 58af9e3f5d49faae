// Package discussion implements the discussion lifecycle handlers: starting
// a new discussion with the active personality's welcome message and loading
// an existing one for a connected client.
package discussion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/colloquy/internal/domain"
)

// ErrDiscussionNotFound is returned by stores for unknown discussion ids.
var ErrDiscussionNotFound = domain.ErrDiscussionNotFound

// Store persists discussions and their messages.
type Store interface {
	Create(ctx context.Context, title string) (*domain.Discussion, error)
	Get(ctx context.Context, id int64) (*domain.Discussion, error)
	// Last returns the most recently created discussion.
	Last(ctx context.Context) (*domain.Discussion, error)
	AddMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	// Messages returns a discussion's messages in insertion order.
	Messages(ctx context.Context, discussionID int64) ([]domain.Message, error)
	List(ctx context.Context) ([]domain.Discussion, error)
	Rename(ctx context.Context, id int64, title string) error
	Delete(ctx context.Context, id int64) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu          sync.RWMutex
	discussions map[int64]*domain.Discussion
	messages    map[int64][]domain.Message
	nextID      int64
	nextMsgID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		discussions: make(map[int64]*domain.Discussion),
		messages:    make(map[int64][]domain.Message),
	}
}

func (s *MemoryStore) Create(_ context.Context, title string) (*domain.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now().UTC()
	d := &domain.Discussion{ID: s.nextID, Title: title, CreatedAt: now, UpdatedAt: now}
	s.discussions[d.ID] = d

	cp := *d
	return &cp, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*domain.Discussion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.discussions[id]
	if !ok {
		return nil, ErrDiscussionNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) Last(_ context.Context) (*domain.Discussion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.Discussion
	for _, d := range s.discussions {
		if last == nil || d.ID > last.ID {
			last = d
		}
	}
	if last == nil {
		return nil, ErrDiscussionNotFound
	}
	cp := *last
	return &cp, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[msg.DiscussionID]
	if !ok {
		return msg, ErrDiscussionNotFound
	}

	s.nextMsgID++
	msg.ID = s.nextMsgID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.DiscussionID] = append(s.messages[msg.DiscussionID], msg)
	d.UpdatedAt = msg.CreatedAt
	return msg, nil
}

func (s *MemoryStore) Messages(_ context.Context, discussionID int64) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.messages[discussionID]...), nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Discussion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Discussion, 0, len(s.discussions))
	for _, d := range s.discussions {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Rename(_ context.Context, id int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discussions[id]
	if !ok {
		return ErrDiscussionNotFound
	}
	d.Title = title
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.discussions[id]; !ok {
		return ErrDiscussionNotFound
	}
	delete(s.discussions, id)
	delete(s.messages, id)
	return nil
}
