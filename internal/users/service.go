package users

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/usersearch/go-services/internal/models"
	"github.com/usersearch/go-services/pkg/logger"
	"github.com/usersearch/go-services/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// MaxResults caps list and autocomplete responses.
const MaxResults = 100

// cacheStripes is the number of invalidation generations usernames hash onto.
const cacheStripes = 256

// Service encapsulates user-related business logic
type Service struct {
	store Store
	cache Cache

	ensured     atomic.Bool
	ensureGroup singleflight.Group

	// cacheMu orders cache fills against invalidations. A fill is dropped when
	// its username's generation moved while the store read was in flight.
	cacheMu sync.Mutex
	gens    [cacheStripes]uint64
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

// SetCache enables read-through caching for Get. Safe to call with nil to disable.
func (s *Service) SetCache(c Cache) {
	s.cache = c
}

// ensureIndex runs Store.EnsureIndex until it first succeeds. Concurrent
// callers share one in-flight call, and each stops waiting when its own ctx
// ends. Failures are not remembered, so the next create or autocomplete retries.
func (s *Service) ensureIndex(ctx context.Context) error {
	if s.ensured.Load() {
		return nil
	}
	ch := s.ensureGroup.DoChan("ensure", func() (interface{}, error) {
		if s.ensured.Load() {
			return nil, nil
		}
		if err := s.store.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		s.ensured.Store(true)
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return fmt.Errorf("ensure index: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("ensure index: %w", res.Err)
		}
		return nil
	}
}

// EnsureIndex forces the index check, e.g. at startup.
func (s *Service) EnsureIndex(ctx context.Context) error {
	return s.ensureIndex(ctx)
}

// Create upserts u. An existing user with the same username is overwritten.
func (s *Service) Create(ctx context.Context, u *models.User) error {
	if err := s.ensureIndex(ctx); err != nil {
		return err
	}
	if err := s.store.Put(ctx, u); err != nil {
		return fmt.Errorf("create user %q: %w", u.Username, err)
	}
	s.invalidate(ctx, u.Username)
	return nil
}

// Get returns ErrNotFound when the user does not exist.
func (s *Service) Get(ctx context.Context, username string) (*models.User, error) {
	var gen uint64
	if s.cache != nil {
		gen = s.generation(username)
		u, err := s.cache.Get(ctx, username)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			logger.Warnf("user cache get %q: %v", username, err)
		case u != nil:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return u, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	u, err := s.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	if s.cache != nil {
		s.fill(ctx, username, u, gen)
	}
	return u, nil
}

// UpdateEmail changes the email of username. A missing user is not an error:
// the call succeeds and nothing is written.
func (s *Service) UpdateEmail(ctx context.Context, username, email string) error {
	err := s.store.UpdateEmail(ctx, username, email)
	s.invalidate(ctx, username)
	if errors.Is(err, ErrNotFound) {
		logger.Debugf("update of missing user %q ignored", username)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update user %q: %w", username, err)
	}
	return nil
}

// Delete removes username. A missing user is not an error.
func (s *Service) Delete(ctx context.Context, username string) error {
	err := s.store.Delete(ctx, username)
	s.invalidate(ctx, username)
	if errors.Is(err, ErrNotFound) {
		logger.Debugf("delete of missing user %q ignored", username)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete user %q: %w", username, err)
	}
	return nil
}

// List returns up to MaxResults users in the store's default order.
func (s *Service) List(ctx context.Context) ([]models.Hit, error) {
	hits, err := s.store.List(ctx, MaxResults)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return hits, nil
}

// AutoComplete returns usernames that start with text. No match is ErrNotFound.
func (s *Service) AutoComplete(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNotFound
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	names, err := s.store.Suggest(ctx, text, MaxResults)
	if err != nil {
		return nil, fmt.Errorf("autocomplete %q: %w", text, err)
	}
	if len(names) == 0 {
		return nil, ErrNotFound
	}
	return names, nil
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func stripe(username string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return int(h.Sum32() % cacheStripes)
}

func (s *Service) generation(username string) uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.gens[stripe(username)]
}

// fill caches u unless a write invalidated its username after gen was taken.
func (s *Service) fill(ctx context.Context, username string, u *models.User, gen uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.gens[stripe(username)] != gen {
		logger.Debugf("user cache fill %q skipped: invalidated during read", username)
		return
	}
	if err := s.cache.Set(ctx, u); err != nil {
		logger.Warnf("user cache set %q: %v", username, err)
	}
}

func (s *Service) invalidate(ctx context.Context, username string) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gens[stripe(username)]++
	if err := s.cache.Delete(ctx, username); err != nil {
		logger.Warnf("user cache delete %q: %v", username, err)
	}
}
