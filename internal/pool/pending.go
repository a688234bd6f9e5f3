package pool

import (
	"sort"
	"sync"
	"time"

	"github.com/nexus-trading/launchwatch/internal/bus"
)

// Watch is a launch waiting for its AMM pool.
type Watch struct {
	Fact    bus.LaunchFact
	AddedAt time.Time
}

// PendingSet holds at most one watch per key. Every read-then-remove runs
// under the same lock, so a key can be claimed once.
type PendingSet struct {
	mu      sync.Mutex
	watches map[bus.WatchKey]Watch
}

func NewPendingSet() *PendingSet {
	return &PendingSet{watches: make(map[bus.WatchKey]Watch)}
}

// Add registers a watch for fact. It returns false when the key is already
// pending.
func (s *PendingSet) Add(fact bus.LaunchFact, now time.Time) bool {
	key := fact.WatchKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.watches[key]; exists {
		return false
	}
	s.watches[key] = Watch{Fact: fact, AddedAt: now}
	return true
}

// Claim removes and returns the watch for key.
func (s *PendingSet) Claim(key bus.WatchKey) (Watch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[key]
	if ok {
		delete(s.watches, key)
	}
	return w, ok
}

// Expire removes and returns every watch added more than ttl before now.
// A ttl of zero keeps watches forever.
func (s *PendingSet) Expire(now time.Time, ttl time.Duration) []Watch {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []Watch
	for key, w := range s.watches {
		if now.Sub(w.AddedAt) > ttl {
			expired = append(expired, w)
			delete(s.watches, key)
		}
	}
	return expired
}

func (s *PendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// Keys returns the pending keys in sorted order.
func (s *PendingSet) Keys() []bus.WatchKey {
	s.mu.Lock()
	keys := make([]bus.WatchKey, 0, len(s.watches))
	for k := range s.watches {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
