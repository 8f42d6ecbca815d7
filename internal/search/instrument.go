package search

import (
	"context"
	"errors"
	"time"

	"github.com/usersearch/go-services/internal/models"
	"github.com/usersearch/go-services/internal/users"
	"github.com/usersearch/go-services/pkg/metrics"
)

// Instrumented wraps a users.Store and records call counts and latency.
type Instrumented struct {
	next users.Store
}

var _ users.Store = (*Instrumented)(nil)

func Instrument(next users.Store) *Instrumented {
	return &Instrumented{next: next}
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, users.ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.SearchRequests.WithLabelValues(op, outcome).Inc()
	metrics.SearchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Instrumented) EnsureIndex(ctx context.Context) (err error) {
	defer func(start time.Time) { observe("ensure_index", start, err) }(time.Now())
	return s.next.EnsureIndex(ctx)
}

func (s *Instrumented) Put(ctx context.Context, u *models.User) (err error) {
	defer func(start time.Time) { observe("put", start, err) }(time.Now())
	return s.next.Put(ctx, u)
}

func (s *Instrumented) Get(ctx context.Context, username string) (u *models.User, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())
	return s.next.Get(ctx, username)
}

func (s *Instrumented) UpdateEmail(ctx context.Context, username, email string) (err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())
	return s.next.UpdateEmail(ctx, username, email)
}

func (s *Instrumented) Delete(ctx context.Context, username string) (err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())
	return s.next.Delete(ctx, username)
}

func (s *Instrumented) List(ctx context.Context, limit int) (hits []models.Hit, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())
	return s.next.List(ctx, limit)
}

func (s *Instrumented) Suggest(ctx context.Context, text string, limit int) (names []string, err error) {
	defer func(start time.Time) { observe("suggest", start, err) }(time.Now())
	return s.next.Suggest(ctx, text, limit)
}

func (s *Instrumented) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { observe("ping", start, err) }(time.Now())
	return s.next.Ping(ctx)
}
