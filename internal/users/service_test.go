package users

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/usersearch/go-services/internal/models"
)

type fakeStore struct {
	ensureCalls int
	ensureErr   error
	docs        map[string]models.User
	getCalls    int
	suggest     []string
	failWith    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]models.User{}}
}

func (f *fakeStore) EnsureIndex(ctx context.Context) error {
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeStore) Put(ctx context.Context, u *models.User) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.docs[u.Username] = *u
	return nil
}

func (f *fakeStore) Get(ctx context.Context, username string) (*models.User, error) {
	f.getCalls++
	u, ok := f.docs[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) UpdateEmail(ctx context.Context, username, email string) error {
	if f.failWith != nil {
		return f.failWith
	}
	u, ok := f.docs[username]
	if !ok {
		return ErrNotFound
	}
	u.Email = email
	f.docs[username] = u
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, username string) error {
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.docs[username]; !ok {
		return ErrNotFound
	}
	delete(f.docs, username)
	return nil
}

func (f *fakeStore) List(ctx context.Context, limit int) ([]models.Hit, error) {
	out := []models.Hit{}
	for id, u := range f.docs {
		if len(out) == limit {
			break
		}
		out = append(out, models.Hit{ID: id, Details: u})
	}
	return out, nil
}

func (f *fakeStore) Suggest(ctx context.Context, text string, limit int) ([]string, error) {
	return f.suggest, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

type mapCache struct {
	m       map[string]models.User
	deletes int
}

func (c *mapCache) Get(ctx context.Context, username string) (*models.User, error) {
	u, ok := c.m[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (c *mapCache) Set(ctx context.Context, u *models.User) error {
	c.m[u.Username] = *u
	return nil
}

func (c *mapCache) Delete(ctx context.Context, username string) error {
	c.deletes++
	delete(c.m, username)
	return nil
}

func TestCreateGetOverwrite(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	if err := svc.Create(ctx, &models.User{Username: "alice01", Email: "a@x.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Create(ctx, &models.User{Username: "alice01", Email: "new@x.com"}); err != nil {
		t.Fatalf("second create should overwrite, got: %v", err)
	}
	u, err := svc.Get(ctx, "alice01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Email != "new@x.com" {
		t.Fatalf("email = %q, want overwritten value", u.Email)
	}
	if store.ensureCalls != 1 {
		t.Fatalf("EnsureIndex called %d times, want 1", store.ensureCalls)
	}
}

func TestEnsureIndexFailureIsRetried(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = ErrIndexMisconfigured
	svc := NewService(store)
	ctx := context.Background()

	err := svc.Create(ctx, &models.User{Username: "bob", Email: "b@x.com"})
	if !errors.Is(err, ErrIndexMisconfigured) {
		t.Fatalf("expected ErrIndexMisconfigured, got %v", err)
	}
	if _, ok := store.docs["bob"]; ok {
		t.Fatalf("document must not be written when the index check fails")
	}

	store.ensureErr = nil
	if err := svc.Create(ctx, &models.User{Username: "bob", Email: "b@x.com"}); err != nil {
		t.Fatalf("create after recovery: %v", err)
	}
	if store.ensureCalls != 2 {
		t.Fatalf("EnsureIndex called %d times, want 2", store.ensureCalls)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAndDeleteSuppressNotFound(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	if err := svc.UpdateEmail(ctx, "ghost", "g@x.com"); err != nil {
		t.Fatalf("update of missing user should succeed, got %v", err)
	}
	if _, err := svc.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update must not create the user, got %v", err)
	}
	if err := svc.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete of missing user should succeed, got %v", err)
	}
}

func TestUpdateAndDeletePropagateOtherErrors(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	svc := NewService(store)
	ctx := context.Background()

	if err := svc.UpdateEmail(ctx, "x", "y"); err == nil {
		t.Fatalf("expected engine error from update")
	}
	if err := svc.Delete(ctx, "x"); err == nil {
		t.Fatalf("expected engine error from delete")
	}
}

func TestAutoComplete(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	store.suggest = []string{"alice01", "alice02"}
	names, err := svc.AutoComplete(ctx, "ali")
	if err != nil {
		t.Fatalf("autocomplete: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v", names)
	}

	store.suggest = nil
	if _, err := svc.AutoComplete(ctx, "zz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for no hits, got %v", err)
	}
	if _, err := svc.AutoComplete(ctx, "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank text, got %v", err)
	}
	if store.ensureCalls != 1 {
		t.Fatalf("EnsureIndex called %d times, want 1", store.ensureCalls)
	}
}

func TestCacheReadThroughAndInvalidation(t *testing.T) {
	store := newFakeStore()
	cache := &mapCache{m: map[string]models.User{}}
	svc := NewService(store)
	svc.SetCache(cache)
	ctx := context.Background()

	if err := svc.Create(ctx, &models.User{Username: "carol", Email: "c@x.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Get(ctx, "carol"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := svc.Get(ctx, "carol"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if store.getCalls != 1 {
		t.Fatalf("store Get called %d times, want 1 (second served from cache)", store.getCalls)
	}

	if err := svc.UpdateEmail(ctx, "carol", "c2@x.com"); err != nil {
		t.Fatalf("update: %v", err)
	}
	u, err := svc.Get(ctx, "carol")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Email != "c2@x.com" {
		t.Fatalf("stale cached email %q after update", u.Email)
	}

	if err := svc.Delete(ctx, "carol"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "carol"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

// pausingGetStore hands back the stored document, then waits for release
// before returning it, so a write can land while the read is in flight.
type pausingGetStore struct {
	*fakeStore
	read    chan struct{}
	release chan struct{}
}

func (p *pausingGetStore) Get(ctx context.Context, username string) (*models.User, error) {
	u, err := p.fakeStore.Get(ctx, username)
	close(p.read)
	<-p.release
	return u, err
}

func TestCacheFillDroppedWhenUpdateRacesRead(t *testing.T) {
	store := &pausingGetStore{fakeStore: newFakeStore(), read: make(chan struct{}), release: make(chan struct{})}
	store.docs["carol"] = models.User{Username: "carol", Email: "old@x.com"}
	cache := &mapCache{m: map[string]models.User{}}
	svc := NewService(store)
	svc.SetCache(cache)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, "carol")
		done <- err
	}()
	<-store.read

	if err := svc.UpdateEmail(ctx, "carol", "new@x.com"); err != nil {
		t.Fatalf("update: %v", err)
	}
	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("get: %v", err)
	}

	if cached, ok := cache.m["carol"]; ok {
		t.Fatalf("cache holds %q read before the update", cached.Email)
	}
	store.read = make(chan struct{})
	store.release = make(chan struct{})
	close(store.release)
	u, err := svc.Get(ctx, "carol")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Email != "new@x.com" {
		t.Fatalf("email = %q, want new@x.com", u.Email)
	}
}

// gatedEnsureStore blocks EnsureIndex until gate is closed.
type gatedEnsureStore struct {
	*fakeStore
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedEnsureStore) EnsureIndex(ctx context.Context) error {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	<-g.gate
	return nil
}

func TestEnsureIndexSharedAndContextAware(t *testing.T) {
	store := &gatedEnsureStore{fakeStore: newFakeStore(), entered: make(chan struct{}), gate: make(chan struct{})}
	svc := NewService(store)

	first := make(chan error, 1)
	go func() { first <- svc.EnsureIndex(context.Background()) }()
	<-store.entered

	// waiters give up on their own deadline instead of queueing behind the slow call
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := svc.Create(ctx, &models.User{Username: "dave", Email: "d@x.com"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("waiter blocked for %s", time.Since(start))
	}
	if _, ok := store.docs["dave"]; ok {
		t.Fatalf("document written without an ensured index")
	}

	close(store.gate)
	if err := <-first; err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := svc.Create(context.Background(), &models.User{Username: "dave", Email: "d@x.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := store.calls.Load(); n != 1 {
		t.Fatalf("EnsureIndex called %d times, want 1", n)
	}
}
