package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/recordstore"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
)

type capturingRecorder struct {
	mu      sync.Mutex
	batches map[string][]*models.MergedRecord
}

func (r *capturingRecorder) Record(_ context.Context, searchID string, records []*models.MergedRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batches == nil {
		r.batches = make(map[string][]*models.MergedRecord)
	}
	r.batches[searchID] = append(r.batches[searchID], records...)
}

// twoOffices holds two unrelated seats, one of them with a PC that disagrees on the seat.
func twoOffices() *recordstore.MemoryClient {
	client := officeLedgers()
	client.Add(models.StoreSeat, rec(2, map[string]string{"SeatNo": "201", "PCNo": "PC2", "Floor": "4"}))
	client.Add(models.StorePC, rec(8, map[string]string{"PCNo": "PC2", "SeatNo": "202"}))
	return client
}

func keysOf(records []*models.MergedRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.IntegrationKey)
	}
	return out
}

func TestSessionFreshSearchReplaces(t *testing.T) {
	session := NewSession("s1", newEngine(twoOffices(), nil), nil, nil, testLogger())

	first, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	assert.NotEmpty(t, first.SearchID)
	assert.Equal(t, 1, first.Total)

	second, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "201"}})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Total)
	assert.NotEqual(t, first.SearchID, second.SearchID)
	assert.Equal(t, keysOf(second.Records), keysOf(session.Records()))
}

func TestSessionAppendDropsDisplayedKeys(t *testing.T) {
	session := NewSession("s1", newEngine(twoOffices(), nil), nil, nil, testLogger())

	_, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)

	again, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}, Append: true})
	require.NoError(t, err)
	assert.Empty(t, again.Records)
	assert.Equal(t, 1, again.Dropped)
	assert.Equal(t, 1, again.Total)

	more, err := session.Search(context.Background(), Request{Filter: models.Filter{"Floor": "4"}, Append: true})
	require.NoError(t, err)
	assert.Len(t, more.Records, 1)
	assert.Equal(t, 0, more.Dropped)
	assert.Equal(t, 2, more.Total)
	assert.Len(t, session.Records(), 2)
}

func TestSessionFailureKeepsDisplayedSet(t *testing.T) {
	client := &switchableClient{inner: twoOffices()}
	session := NewSession("s1", newEngine(client, nil), nil, nil, testLogger())

	_, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	before := keysOf(session.Records())

	client.failing.Store(true)
	for _, appendMode := range []bool{false, true} {
		_, err = session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "201"}, Append: appendMode})
		require.Error(t, err)
		assert.Equal(t, before, keysOf(session.Records()))
	}
}

func TestSessionEmptyFilter(t *testing.T) {
	client := twoOffices()
	session := NewSession("s1", newEngine(client, nil), nil, nil, testLogger())

	_, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	requests := len(client.Requests())

	_, err = session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": " "}})
	assert.ErrorIs(t, err, ErrEmptyFilter)
	assert.Len(t, client.Requests(), requests)
	assert.Len(t, session.Records(), 1)
}

func TestSessionNewSearchSupersedesRunningOne(t *testing.T) {
	client := &blockingClient{inner: twoOffices(), started: make(chan struct{})}
	session := NewSession("s1", newEngine(client, nil), nil, nil, testLogger())

	errCh := make(chan error, 1)
	go func() {
		_, err := session.Search(context.Background(), Request{Filter: models.Filter{"UserName": "sato"}})
		errCh <- err
	}()

	select {
	case <-client.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first search never reached the store")
	}

	result, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first search was not cancelled")
	}
	assert.Equal(t, keysOf(result.Records), keysOf(session.Records()))
}

func TestSessionCacheClearedOnFreshSearchOnly(t *testing.T) {
	cache := rowcache.NewMemory()
	session := NewSession("s1", newEngine(twoOffices(), nil), cache, nil, testLogger())
	ctx := context.Background()

	_, err := session.Search(ctx, Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	_, ok, _ := cache.Get(ctx, models.StorePC, "PC9")
	require.True(t, ok)

	_, err = session.Search(ctx, Request{Filter: models.Filter{"SeatNo": "201"}, Append: true})
	require.NoError(t, err)
	_, ok, _ = cache.Get(ctx, models.StorePC, "PC9")
	assert.True(t, ok, "append search must keep cached rows")
	_, ok, _ = cache.Get(ctx, models.StorePC, "PC2")
	assert.True(t, ok)

	_, err = session.Search(ctx, Request{Filter: models.Filter{"SeatNo": "201"}})
	require.NoError(t, err)
	_, ok, _ = cache.Get(ctx, models.StorePC, "PC9")
	assert.False(t, ok, "fresh search must clear cached rows")
}

func TestSessionRecordsFlaggedRecords(t *testing.T) {
	recorder := &capturingRecorder{}
	session := NewSession("s1", newEngine(twoOffices(), nil), nil, recorder, testLogger())

	clean, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	assert.NotContains(t, recorder.batches, clean.SearchID)

	flagged, err := session.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "201"}})
	require.NoError(t, err)
	require.Len(t, recorder.batches[flagged.SearchID], 1)
	assert.False(t, recorder.batches[flagged.SearchID][0].Consistency.Consistent)
}

func TestSessionsKeepSeparateCaches(t *testing.T) {
	client := &blockingClient{inner: twoOffices(), started: make(chan struct{})}
	registry := NewRegistry(newEngine(client, nil), rowcache.MemoryProvider(), nil, RegistryConfig{}, testLogger())
	ctx := context.Background()

	a, err := registry.Session("a")
	require.NoError(t, err)
	b, err := registry.Session("b")
	require.NoError(t, err)

	_, err = a.Search(ctx, Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	aCache := a.Cache().(*rowcache.Memory)
	require.Equal(t, 3, aCache.Stats().Size)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Search(ctx, Request{Filter: models.Filter{"UserName": "sato"}, Append: true})
		errCh <- err
	}()
	select {
	case <-client.started:
	case <-time.After(5 * time.Second):
		t.Fatal("search never reached the store")
	}

	_, err = b.Search(ctx, Request{Filter: models.Filter{"SeatNo": "201"}})
	require.NoError(t, err)

	assert.Equal(t, 3, aCache.Stats().Size, "a fresh search on one session must not clear another's rows")
	_, ok, _ := aCache.Get(ctx, models.StorePC, "PC9")
	assert.True(t, ok)
	_, ok, _ = b.Cache().Get(ctx, models.StorePC, "PC2")
	assert.True(t, ok)
	_, ok, _ = b.Cache().Get(ctx, models.StorePC, "PC9")
	assert.False(t, ok)

	a.Cancel()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("search was not cancelled")
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(newEngine(twoOffices(), nil), rowcache.MemoryProvider(), nil, RegistryConfig{}, testLogger())

	s, err := registry.Session("a")
	require.NoError(t, err)
	again, err := registry.Session("a")
	require.NoError(t, err)
	assert.Same(t, s, again)
	other, err := registry.Session("b")
	require.NoError(t, err)
	assert.NotSame(t, s, other)
	assert.NotSame(t, s.Cache(), other.Cache())
	assert.Equal(t, 2, registry.Len())

	_, ok := registry.Lookup("a")
	assert.True(t, ok)

	assert.True(t, registry.Close("a"))
	assert.False(t, registry.Close("a"))
	_, ok = registry.Lookup("a")
	assert.False(t, ok)

	generated := NewSession("", nil, nil, nil, testLogger())
	assert.NotEmpty(t, generated.ID)
}

// fakeClock is a settable time source.
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

func TestRegistryDropsIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	registry := NewRegistry(newEngine(twoOffices(), nil), rowcache.MemoryProvider(), nil, RegistryConfig{IdleTTL: time.Minute}, testLogger())
	registry.now = clock.Now

	a, err := registry.Session("a")
	require.NoError(t, err)
	_, err = a.Search(context.Background(), Request{Filter: models.Filter{"SeatNo": "101"}})
	require.NoError(t, err)
	aCache := a.Cache().(*rowcache.Memory)
	require.NotZero(t, aCache.Stats().Size)

	clock.Advance(30 * time.Second)
	_, err = registry.Session("b")
	require.NoError(t, err)
	_, ok := registry.Lookup("a")
	assert.True(t, ok)

	clock.Advance(45 * time.Second)
	_, err = registry.Session("c")
	require.NoError(t, err)

	_, ok = registry.Lookup("a")
	assert.False(t, ok)
	_, ok = registry.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, 2, registry.Len())
	assert.Zero(t, aCache.Stats().Size)
}

func TestRegistryCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	client := &blockingClient{inner: twoOffices(), started: make(chan struct{})}
	registry := NewRegistry(newEngine(client, nil), nil, nil, RegistryConfig{MaxSessions: 2}, testLogger())
	registry.now = clock.Now

	_, err := registry.Session("a")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = registry.Session("b")
	require.NoError(t, err)
	clock.Advance(time.Second)

	// a is the least recently used idle session
	_, err = registry.Session("c")
	require.NoError(t, err)
	_, ok := registry.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 2, registry.Len())

	b, _ := registry.Lookup("b")
	c, _ := registry.Lookup("c")
	errs := make(chan error, 2)
	for _, s := range []*Session{b, c} {
		go func(s *Session) {
			_, err := s.Search(context.Background(), Request{Filter: models.Filter{"UserName": "sato"}})
			errs <- err
		}(s)
	}
	require.Eventually(t, func() bool {
		_, bIdle := b.idleSince()
		_, cIdle := c.idleSince()
		return !bIdle && !cIdle
	}, 5*time.Second, 5*time.Millisecond)

	_, err = registry.Session("d")
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, registry.Len())

	b.Cancel()
	c.Cancel()
	for i := 0; i < 2; i++ {
		select {
		case <-errs:
		case <-time.After(5 * time.Second):
			t.Fatal("search was not cancelled")
		}
	}

	_, err = registry.Session("d")
	require.NoError(t, err)
}
