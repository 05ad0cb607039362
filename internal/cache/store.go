// Package cache holds the last known good measurement per key with a TTL,
// refreshed in the background so readers never block on network I/O.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// ErrNoData is returned by Get for a key that has never been populated.
var ErrNoData = errors.New("no data available")

// Key identifies one cached measurement: category plus station.
type Key struct {
	Category  domain.Category
	StationID string
}

// Entry is the reader-facing view of a cached value. State is computed at
// read time against the store's TTL: a value past its TTL is stale but
// usable, never evicted.
type Entry struct {
	Measurement domain.Measurement
	Source      domain.SourceInfo
	FetchedAt   time.Time
	Age         time.Duration
	State       domain.FreshState
	Failures    int
}

type stored struct {
	measurement domain.Measurement
	source      domain.SourceInfo
	fetchedAt   time.Time
	failures    int
}

// Store is the mutable shared state of the service. All mutation goes
// through the refresh path (Put/MarkFailures) under a single writer;
// readers copy under RLock, so a refresh in progress never exposes a
// partially updated value.
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clockwork.Clock
	entries map[Key]stored
}

// New creates a Store with the given TTL. Pass a fake clock in tests to
// drive state transitions deterministically.
func New(ttl time.Duration, clock clockwork.Clock) *Store {
	return &Store{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[Key]stored),
	}
}

// Put atomically replaces the value for the measurement's key and resets
// its freshness and failure count. The values map is copied so the caller
// cannot alias cached state.
func (s *Store) Put(cat domain.Category, m domain.Measurement, src domain.SourceInfo) {
	values := make(map[domain.Attribute]float64, len(m.Values))
	for k, v := range m.Values {
		values[k] = v
	}
	m.Values = values

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key{Category: cat, StationID: m.StationID}] = stored{
		measurement: m,
		source:      src,
		fetchedAt:   s.clock.Now(),
	}
}

// MarkFailures records a failed refresh for every key in the category.
// Previous values are retained, not evicted.
func (s *Store) MarkFailures(cat domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if k.Category == cat {
			e.failures++
			s.entries[k] = e
		}
	}
}

// Get returns the last known good value for a key. It never performs
// network I/O.
func (s *Store) Get(k Key) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[k]
	if !ok {
		return Entry{}, ErrNoData
	}
	return s.view(e), nil
}

// Snapshot returns a consistent copy of every entry, suitable for building
// a fact store. Readers of the snapshot never coordinate with the writer.
func (s *Store) Snapshot() map[Key]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = s.view(e)
	}
	return out
}

// StaleCount reports how many of a category's entries are past their TTL.
func (s *Store) StaleCount(cat domain.Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k, e := range s.entries {
		if k.Category == cat && s.clock.Since(e.fetchedAt) > s.ttl {
			n++
		}
	}
	return n
}

func (s *Store) view(e stored) Entry {
	age := s.clock.Since(e.fetchedAt)
	state := domain.StateFresh
	if age > s.ttl {
		state = domain.StateStale
	}
	return Entry{
		Measurement: e.measurement,
		Source:      e.source,
		FetchedAt:   e.fetchedAt,
		Age:         age,
		State:       state,
		Failures:    e.failures,
	}
}
