package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuminxx/simple-redger-sub000/pkg/catalog"
	"github.com/azuminxx/simple-redger-sub000/pkg/fetcher"
	"github.com/azuminxx/simple-redger-sub000/pkg/merging"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/recordstore"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func rec(id int64, fields map[string]string) recordstore.Record {
	return recordstore.Record{ID: id, Fields: fields}
}

// officeLedgers is a seat with its PC and extension; the PC agrees on the seat number.
func officeLedgers() *recordstore.MemoryClient {
	client := recordstore.NewMemoryClient()
	client.Add(models.StoreSeat, rec(1, map[string]string{"SeatNo": "101", "PCNo": "PC9", "ExtNo": "55", "Floor": "3"}))
	client.Add(models.StorePC, rec(7, map[string]string{"PCNo": "PC9", "SeatNo": "101", "HostName": "tok-09"}))
	client.Add(models.StoreExtension, rec(3, map[string]string{"ExtNo": "55", "PhoneType": "ip"}))
	return client
}

// switchableClient fails every request while failing is set.
type switchableClient struct {
	inner   recordstore.Client
	failing atomic.Bool
}

var errStoreDown = errors.New("store unavailable")

func (c *switchableClient) Query(ctx context.Context, req recordstore.Request) (*recordstore.Page, error) {
	if c.failing.Load() {
		return nil, errStoreDown
	}
	return c.inner.Query(ctx, req)
}

// blockingClient holds user store requests until their context ends.
type blockingClient struct {
	inner   recordstore.Client
	started chan struct{}
	once    sync.Once
}

func (c *blockingClient) Query(ctx context.Context, req recordstore.Request) (*recordstore.Page, error) {
	if req.Store == models.StoreUser {
		c.once.Do(func() { close(c.started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return c.inner.Query(ctx, req)
}

func newEngine(client recordstore.Client, cache rowcache.Cache) *Engine {
	logger := testLogger()
	cat := catalog.Default()
	fetch := fetcher.New(client, cat, cache, fetcher.DefaultConfig(), logger)
	return NewEngine(fetch, cat, merging.NewEngine(logger), Config{MaxConcurrentFetches: 4}, logger)
}

func TestRunSeatScenario(t *testing.T) {
	client := officeLedgers()
	records, err := newEngine(client, nil).Run(context.Background(), models.Filter{"SeatNo": "101"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 3, record.ContributorsCount)
	for _, store := range []models.Store{models.StoreSeat, models.StorePC, models.StoreExtension} {
		_, ok := record.Row(store)
		assert.True(t, ok, "missing %s row", store)
	}
	_, ok := record.Row(models.StoreUser)
	assert.False(t, ok)
	assert.True(t, record.Consistency.Consistent)
	assert.Equal(t, `SeatNo="101"|PCNo="PC9"|ExtNo="55"`, record.IntegrationKey)

	first := client.Requests()[0]
	assert.Equal(t, models.StoreSeat, first.Store)
	assert.Equal(t, `SeatNo = "101" order by $id asc limit 500 offset 0`, first.String())
	for _, req := range client.Requests() {
		assert.NotEqual(t, models.StoreUser, req.Store)
	}
}

func TestRunInconsistentSeatNumbers(t *testing.T) {
	client := recordstore.NewMemoryClient()
	client.Add(models.StoreSeat, rec(1, map[string]string{"SeatNo": "101", "PCNo": "PC9"}))
	client.Add(models.StorePC, rec(7, map[string]string{"PCNo": "PC9", "SeatNo": "102"}))

	records, err := newEngine(client, nil).Run(context.Background(), models.Filter{"SeatNo": "101"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, 2, record.ContributorsCount)
	assert.False(t, record.Consistency.Consistent)
	assert.Equal(t, []models.Observation{
		{Store: models.StoreSeat, Value: "101"},
		{Store: models.StorePC, Value: "102"},
	}, record.Consistency.Fields[models.FieldSeatNo])
}

func TestDiscoverSupplementaryStage(t *testing.T) {
	client := recordstore.NewMemoryClient()
	client.Add(models.StoreUser, rec(4, map[string]string{"UserId": "u1", "UserName": "Sato"}))
	client.Add(models.StorePC, rec(7, map[string]string{"PCNo": "PC5", "UserId": "u1", "SeatNo": "201"}))
	client.Add(models.StoreExtension, rec(3, map[string]string{"ExtNo": "77", "UserId": "u1"}))
	client.Add(models.StoreSeat, rec(1, map[string]string{"SeatNo": "201"}))

	discovery, err := newEngine(client, nil).Discover(context.Background(), models.Filter{"UserName": "sato"})
	require.NoError(t, err)

	assert.Equal(t, map[models.Store]bool{models.StoreUser: true}, discovery.Queried)
	require.Len(t, discovery.Rows[models.StoreSeat], 1)
	require.Len(t, discovery.Rows[models.StorePC], 1)
	require.Len(t, discovery.Rows[models.StoreExtension], 1)
	assert.Len(t, discovery.All(), 4)

	var seatQueries []string
	for _, req := range client.Requests() {
		if req.Store == models.StoreSeat {
			seatQueries = append(seatQueries, req.Query.String())
		}
	}
	assert.Equal(t, []string{`SeatNo in ("201") order by $id asc`}, seatQueries)
}

func TestDiscoverDeduplicatesRows(t *testing.T) {
	client := recordstore.NewMemoryClient()
	client.Add(models.StoreSeat, rec(1, map[string]string{"SeatNo": "101", "PCNo": "PC9", "Floor": "3"}))
	client.Add(models.StorePC, rec(7, map[string]string{"PCNo": "PC9", "SeatNo": "101"}))

	discovery, err := newEngine(client, nil).Discover(context.Background(), models.Filter{"SeatNo": "101"})
	require.NoError(t, err)
	// the PC row is found by both PCNo and SeatNo
	assert.Len(t, discovery.Rows[models.StorePC], 1)
}

func TestRunEmptyFilter(t *testing.T) {
	for _, filter := range []models.Filter{nil, {}, {"SeatNo": "  ", "Floor": ""}} {
		client := officeLedgers()
		_, err := newEngine(client, nil).Run(context.Background(), filter)
		assert.ErrorIs(t, err, ErrEmptyFilter)
		assert.True(t, IsUsageError(err))
		assert.Empty(t, client.Requests())
	}
}

func TestRunUnknownFilterField(t *testing.T) {
	client := officeLedgers()
	_, err := newEngine(client, nil).Run(context.Background(), models.Filter{"Colour": "red"})
	assert.ErrorIs(t, err, ErrUnknownFilterField)
	assert.True(t, IsUsageError(err))
	assert.Empty(t, client.Requests())
}

func TestRunStageError(t *testing.T) {
	client := &switchableClient{inner: officeLedgers()}
	client.failing.Store(true)

	_, err := newEngine(client, nil).Run(context.Background(), models.Filter{"SeatNo": "101"})
	require.Error(t, err)
	assert.False(t, IsUsageError(err))

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageDirect, stageErr.Stage)

	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, models.StoreSeat, fetchErr.Store)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestRunPopulatesCache(t *testing.T) {
	cache := rowcache.NewMemory()
	_, err := newEngine(officeLedgers(), cache).Run(context.Background(), models.Filter{"SeatNo": "101"})
	require.NoError(t, err)

	row, ok, err := cache.Get(context.Background(), models.StorePC, "PC9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-09", row.Fields["HostName"])
	assert.Equal(t, 3, cache.Stats().Size)
}
