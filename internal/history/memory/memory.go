// Package memory is an in-process history store. Records are lost on restart.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/eduardocaminha/reporter-sub000/internal/history"
)

var _ history.Store = (*Store)(nil)

// Store keeps records in a slice guarded by a mutex.
type Store struct {
	mu      sync.Mutex
	records []history.Record
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{now: time.Now}
}

// Create implements [history.Store].
func (s *Store) Create(_ context.Context, r history.Record) (history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r = history.Prepare(r, s.now())
	s.records = append(s.records, clone(r))
	return r, nil
}

// ListRecent implements [history.Store].
func (s *Store) ListRecent(_ context.Context, limit int) ([]history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]history.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, clone(r))
	}
	slices.SortStableFunc(out, func(a, b history.Record) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return out[:min(len(out), history.ClampLimit(limit))], nil
}

// Patch implements [history.Store].
func (s *Store) Patch(_ context.Context, id string, p history.Patch) (history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records[i] = p.Apply(r)
			return clone(s.records[i]), nil
		}
	}
	return history.Record{}, history.ErrNotFound
}

// DeleteAll implements [history.Store].
func (s *Store) DeleteAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.records))
	s.records = nil
	return n, nil
}

// Ping implements [history.Store].
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [history.Store].
func (s *Store) Close() error { return nil }

func clone(r history.Record) history.Record {
	r.Suggestions = slices.Clone(r.Suggestions)
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	r.Report = copyText(r.Report)
	r.SoftError = copyText(r.SoftError)
	return r
}

func copyText(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}
