package search

import (
	"context"
	"sort"
	"sync"

	"github.com/usersearch/go-services/internal/models"
	"github.com/usersearch/go-services/internal/users"
)

// Memory is an in-process users.Store used by unit tests and
// SEARCH_BACKEND=memory. Suggest follows the autocomplete analyzer rules.
type Memory struct {
	mu    sync.RWMutex
	store map[string]models.User
}

var _ users.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{store: make(map[string]models.User)}
}

func (m *Memory) EnsureIndex(ctx context.Context) error { return nil }

func (m *Memory) Put(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[u.Username] = *u
	return nil
}

func (m *Memory) Get(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[username]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) UpdateEmail(ctx context.Context, username, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[username]
	if !ok {
		return users.ErrNotFound
	}
	u.Email = email
	m.store[username] = u
	return nil
}

func (m *Memory) Delete(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[username]; !ok {
		return users.ErrNotFound
	}
	delete(m.store, username)
	return nil
}

// List returns users ordered by username.
func (m *Memory) List(ctx context.Context, limit int) ([]models.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.store))
	for id := range m.store {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]models.Hit, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Hit{ID: id, Details: m.store[id]})
	}
	return out, nil
}

func (m *Memory) Suggest(ctx context.Context, text string, limit int) ([]string, error) {
	q := queryTokens(text)
	if len(q) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cands []scored
	for id := range m.store {
		if s := score(id, q); s > 0 {
			cands = append(cands, scored{name: id, score: s})
		}
	}
	return rank(cands, limit), nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
