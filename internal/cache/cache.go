package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is an in-memory TTL cache. Entries are visible only while
// now < expiresAt and are evicted lazily on read.
type Store struct {
	entries sync.Map
	now     func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) Get(key string) (any, bool) {
	raw, ok := s.entries.Load(key)
	if !ok {
		return nil, false
	}
	e := raw.(*entry)
	if !s.now().Before(e.expiresAt) {
		s.entries.CompareAndDelete(key, raw)
		return nil, false
	}
	return e.value, true
}

func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		s.entries.Delete(key)
		return
	}
	s.entries.Store(key, &entry{value: value, expiresAt: s.now().Add(ttl)})
}

func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Prune deletes every expired entry and returns how many were removed.
func (s *Store) Prune() int {
	now := s.now()
	removed := 0
	s.entries.Range(func(key, raw any) bool {
		if !now.Before(raw.(*entry).expiresAt) && s.entries.CompareAndDelete(key, raw) {
			removed++
		}
		return true
	})
	return removed
}

// RunJanitor prunes expired entries every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune()
		}
	}
}

// Lookup returns the cached value for key when it is present and of type T.
func Lookup[T any](s *Store, key string) (T, bool) {
	var zero T
	raw, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func PriceKey(symbol string) string {
	return "price:" + symbol
}

func WalletKey(address string) string {
	return "wallet:" + strings.ToLower(address)
}

func PredictionKey(ticker, timeframe string) string {
	return "prediction:" + strings.ToLower(ticker) + ":" + timeframe
}
