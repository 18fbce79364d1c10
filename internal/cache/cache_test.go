package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New()
	s.now = clock.Now
	return s, clock
}

func TestSetThenGetReturnsValueUntilExpiry(t *testing.T) {
	s, clock := newTestStore()
	s.Set("k", "v", time.Minute)

	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	clock.Advance(59 * time.Second)
	_, ok = s.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = s.Get("k")
	assert.False(t, ok, "entry must be absent once now reaches expiry")
	assert.Equal(t, 0, s.Len(), "expired entry should be evicted on read")
}

func TestExpiredEntryCanBeOverwritten(t *testing.T) {
	s, clock := newTestStore()
	s.Set("k", 1, time.Second)
	clock.Advance(2 * time.Second)
	s.Set("k", 2, time.Second)

	got, ok := Lookup[int](s, "k")
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestLookupRejectsWrongType(t *testing.T) {
	s, _ := newTestStore()
	s.Set("k", "text", time.Minute)

	_, ok := Lookup[int](s, "k")
	assert.False(t, ok)
}

func TestNonPositiveTTLDoesNotStore(t *testing.T) {
	s, _ := newTestStore()
	s.Set("k", "v", 0)
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestPruneRemovesOnlyExpiredEntries(t *testing.T) {
	s, clock := newTestStore()
	s.Set("short", 1, time.Second)
	s.Set("long", 2, time.Hour)
	clock.Advance(time.Minute)

	assert.Equal(t, 1, s.Prune())
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("long")
	assert.True(t, ok)
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	s, _ := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestConcurrentAccessOnDifferentKeys(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := PriceKey(string(rune('A' + i)))
			s.Set(key, i, time.Minute)
			_, _ = s.Get(key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, s.Len())
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "price:S", PriceKey("S"))
	assert.Equal(t, "wallet:0xabcdef", WalletKey("0xABCDEF"))
	assert.Equal(t, "prediction:btc:5m", PredictionKey("BTC", "5m"))
}
