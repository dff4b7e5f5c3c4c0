package session

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"physics-tutor/api/internal/tutor"
)

type entry struct {
	sess tutor.Session
	seen time.Time
}

// Store holds one tutor.Session per key (Telegram chat id, web cookie id).
type Store[K comparable] struct {
	m   sync.Map // K -> entry
	n   atomic.Int64
	now func() time.Time
}

func NewStore[K comparable]() *Store[K] { return &Store[K]{now: time.Now} }

// NewStoreWithClock is NewStore with an injectable clock for idle tracking.
func NewStoreWithClock[K comparable](now func() time.Time) *Store[K] {
	return &Store[K]{now: now}
}

// Get returns the stored session or a fresh one awaiting a question.
func (s *Store[K]) Get(key K) tutor.Session {
	if sess, ok := s.Lookup(key); ok {
		return sess
	}
	return tutor.NewSession()
}

// Lookup returns the stored session and whether one exists.
func (s *Store[K]) Lookup(key K) (tutor.Session, bool) {
	if v, ok := s.m.Load(key); ok {
		return v.(entry).sess, true
	}
	return tutor.Session{}, false
}

// Put stores sess and marks key as seen now.
func (s *Store[K]) Put(key K, sess tutor.Session) {
	if _, loaded := s.m.Swap(key, entry{sess: sess, seen: s.now()}); !loaded {
		s.n.Add(1)
	}
}

// Delete drops the session and its memory.
func (s *Store[K]) Delete(key K) {
	if _, loaded := s.m.LoadAndDelete(key); loaded {
		s.n.Add(-1)
	}
}

func (s *Store[K]) Len() int { return int(s.n.Load()) }

// Sweep deletes sessions idle for longer than maxIdle (when > 0), then the least
// recently seen ones until at most maxEntries remain (when > 0). It returns the
// evicted keys.
func (s *Store[K]) Sweep(maxIdle time.Duration, maxEntries int) []K {
	type kv struct {
		key  K
		seen time.Time
	}
	now := s.now()
	var evicted []K
	var live []kv
	s.m.Range(func(k, v any) bool {
		key, e := k.(K), v.(entry)
		if maxIdle > 0 && now.Sub(e.seen) > maxIdle {
			evicted = append(evicted, key)
		} else {
			live = append(live, kv{key, e.seen})
		}
		return true
	})
	if maxEntries > 0 && len(live) > maxEntries {
		slices.SortFunc(live, func(a, b kv) int { return a.seen.Compare(b.seen) })
		for _, x := range live[:len(live)-maxEntries] {
			evicted = append(evicted, x.key)
		}
	}
	for _, k := range evicted {
		s.Delete(k)
	}
	return evicted
}
