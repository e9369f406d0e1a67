package cache

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, capacity int64) (*Store, *fakeClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	s := NewStore(&StoreConfig{Capacity: capacity}, nil, logger)
	t.Cleanup(s.Close)

	clock := newFakeClock()
	s.now = clock.Now
	return s, clock
}

// payloadOfSize returns a string whose JSON encoding is exactly n bytes.
func payloadOfSize(n int) string {
	b := make([]byte, n-2) // JSON adds surrounding quotes
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestStore_PutGet(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	require.NoError(t, s.Put("user:1", "alice", 0))

	v, ok := s.Get("user:1")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestStore_GetMiss(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	_, ok := s.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, int64(1), s.Metrics().Misses)
}

func TestStore_TTLExpiry(t *testing.T) {
	s, clock := newTestStore(t, 1024)

	require.NoError(t, s.Put("feed:home", payloadOfSize(40), time.Minute))

	v, ok := s.Get("feed:home")
	require.True(t, ok)
	assert.Equal(t, payloadOfSize(40), v)

	clock.Advance(time.Minute + time.Second)

	_, ok = s.Get("feed:home")
	assert.False(t, ok, "expired entry must miss")

	// Expire-on-read removes the entry from accounting too.
	st := s.Stats()
	assert.Equal(t, 0, st.EntryCount)
	assert.Equal(t, int64(0), st.SizeBytes)
	assert.Equal(t, int64(1), s.Metrics().Expirations)
}

func TestStore_CapacityNeverExceeded(t *testing.T) {
	const capacity = 4096
	s, _ := newTestStore(t, capacity)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		size := 10 + rng.Intn(900)
		err := s.Put(fmt.Sprintf("k:%d", i), payloadOfSize(size), 0)
		if err != nil {
			require.ErrorIs(t, err, ErrCapacityUnavailable)
		}
		st := s.Stats()
		require.LessOrEqual(t, st.SizeBytes, int64(capacity),
			"live payload size exceeded capacity after put %d", i)
	}
}

func TestStore_EvictionPrefersLowScore(t *testing.T) {
	// Three 40-byte entries fill the store. a is read 10 times, b and c
	// once each, all at the same instant. Admitting d forces exactly one
	// eviction: the lowest-ranked of b and c, with the tie going to the
	// older entry b. a survives.
	s, clock := newTestStore(t, 120)

	require.NoError(t, s.Put("a", payloadOfSize(40), 0))
	clock.Advance(10 * time.Millisecond)
	require.NoError(t, s.Put("b", payloadOfSize(40), 0))
	clock.Advance(10 * time.Millisecond)
	require.NoError(t, s.Put("c", payloadOfSize(40), 0))

	for i := 0; i < 10; i++ {
		_, ok := s.Get("a")
		require.True(t, ok)
	}
	_, ok := s.Get("b")
	require.True(t, ok)
	_, ok = s.Get("c")
	require.True(t, ok)

	require.NoError(t, s.Put("d", payloadOfSize(40), 0))

	_, ok = s.Get("a")
	assert.True(t, ok, "frequently accessed entry must survive")
	_, ok = s.Get("d")
	assert.True(t, ok)

	_, bOK := s.Get("b")
	_, cOK := s.Get("c")
	assert.False(t, bOK, "tie broken by oldest createdAt")
	assert.True(t, cOK)
	assert.Equal(t, int64(1), s.Metrics().Evictions)
}

func TestStore_ReplaceExistingKey(t *testing.T) {
	s, _ := newTestStore(t, 100)

	require.NoError(t, s.Put("k", payloadOfSize(80), 0))
	require.NoError(t, s.Put("k", payloadOfSize(60), 0))

	st := s.Stats()
	assert.Equal(t, 1, st.EntryCount)
	assert.Equal(t, int64(60), st.SizeBytes)

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, payloadOfSize(60), v)
}

func TestStore_EntryLargerThanCapacity(t *testing.T) {
	s, _ := newTestStore(t, 50)

	err := s.Put("big", payloadOfSize(51), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityUnavailable))

	st := s.Stats()
	assert.Equal(t, 0, st.EntryCount)
}

func TestStore_EncodingFailed(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	err := s.Put("bad", make(chan int), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncodingFailed))
}

func TestStore_RemoveIdempotent(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	require.NoError(t, s.Put("k", "v", 0))
	s.Remove("k")
	s.Remove("k") // second remove is a no-op

	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, int64(0), s.Stats().SizeBytes)
}

func TestStore_JanitorPass(t *testing.T) {
	s, clock := newTestStore(t, 1024)

	require.NoError(t, s.Put("short:1", payloadOfSize(40), time.Minute))
	require.NoError(t, s.Put("short:2", payloadOfSize(40), time.Minute))
	require.NoError(t, s.Put("long:1", payloadOfSize(40), time.Hour))
	require.NoError(t, s.Put("forever", payloadOfSize(40), 0))

	clock.Advance(2 * time.Minute)

	report := s.RunJanitorPass()
	assert.Equal(t, 2, report.RemovedEntries)
	assert.Equal(t, int64(80), report.ReclaimedBytes)

	st := s.Stats()
	assert.Equal(t, 2, st.EntryCount)
	assert.Equal(t, int64(80), st.SizeBytes)

	// Nothing left to reclaim.
	report = s.RunJanitorPass()
	assert.Equal(t, 0, report.RemovedEntries)
}

func TestStore_ShrinkToAndRestore(t *testing.T) {
	s, _ := newTestStore(t, 200)

	require.NoError(t, s.Put("a", payloadOfSize(80), 0))
	require.NoError(t, s.Put("b", payloadOfSize(80), 0))

	s.ShrinkTo(100)

	st := s.Stats()
	assert.Equal(t, int64(100), st.Capacity)
	assert.LessOrEqual(t, st.SizeBytes, int64(100))
	assert.Equal(t, 1, st.EntryCount)

	// Shrunk capacity stays in force until told otherwise.
	err := s.Put("c", payloadOfSize(120), 0)
	require.ErrorIs(t, err, ErrCapacityUnavailable)

	s.RestoreCapacity()
	assert.Equal(t, int64(200), s.Stats().Capacity)
	require.NoError(t, s.Put("c", payloadOfSize(120), 0))
}

func TestStore_StatsUtilization(t *testing.T) {
	s, _ := newTestStore(t, 100)

	require.NoError(t, s.Put("k", payloadOfSize(50), 0))

	st := s.Stats()
	assert.InDelta(t, 0.5, st.UtilizationRatio, 0.001)
}

func TestStoreMetrics_HitRate(t *testing.T) {
	s, _ := newTestStore(t, 1024)

	require.NoError(t, s.Put("k", "v", 0))
	s.Get("k")
	s.Get("k")
	s.Get("nope")

	m := s.Metrics()
	assert.Equal(t, int64(2), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
	assert.InDelta(t, 2.0/3.0, m.HitRate(), 0.001)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(t, 1<<20)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d:k%d", g, i%20)
				_ = s.Put(key, i, 0)
				s.Get(key)
				if i%50 == 0 {
					s.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()

	st := s.Stats()
	assert.LessOrEqual(t, st.SizeBytes, int64(1<<20))
}
