package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/records"
)

type mapCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	generations map[string]uint64
	gets, sets  int
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte), generations: make(map[string]uint64)}
}

func (c *mapCache) Get(_ context.Context, userID, key string) ([]byte, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	data, ok := c.entries[userID+"/"+key]
	return data, c.generations[userID], ok
}

func (c *mapCache) Set(_ context.Context, userID, key string, gen uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if gen != c.generations[userID] {
		return
	}
	c.entries[userID+"/"+key] = data
}

func (c *mapCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	c.invalidated = append(c.invalidated, userID)
	for k := range c.entries {
		if len(k) > len(userID) && k[:len(userID)+1] == userID+"/" {
			delete(c.entries, k)
		}
	}
}

var errStoreDown = errors.New("firestore: deadline exceeded")

type brokenStore struct {
	*records.MemoryStore
}

type brokenDeposits struct {
	records.Collection[*records.Deposit]
}

func (brokenDeposits) List(context.Context, string) ([]*records.Deposit, error) {
	return nil, errStoreDown
}

func (s brokenStore) Deposits() records.Collection[*records.Deposit] {
	return brokenDeposits{s.MemoryStore.Deposits()}
}

// racingStore runs onList after the deposits are read, standing in for a
// write that lands while a dashboard is being built.
type racingStore struct {
	*records.MemoryStore
	onList func()
}

type racingDeposits struct {
	records.Collection[*records.Deposit]
	onList func()
}

func (r racingDeposits) List(ctx context.Context, userID string) ([]*records.Deposit, error) {
	out, err := r.Collection.List(ctx, userID)
	if r.onList != nil {
		r.onList()
	}
	return out, err
}

func (s racingStore) Deposits() records.Collection[*records.Deposit] {
	return racingDeposits{Collection: s.MemoryStore.Deposits(), onList: s.onList}
}

func seedStore(t *testing.T) *records.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := records.NewMemoryStore()
	at := testNow.Add(-3 * 24 * time.Hour)

	_, err := records.CreateOwned(ctx, store.Deposits(), "u1", &records.Deposit{FinancialRecord: records.FinancialRecord{
		Amount: d("1000"), Status: records.StatusCompleted, RequestedAt: at,
	}}, at)
	require.NoError(t, err)
	_, err = records.CreateOwned(ctx, store.Withdrawals(), "u1", &records.Withdrawal{FinancialRecord: records.FinancialRecord{
		Amount: d("250"), RequestedAt: at,
	}}, at)
	require.NoError(t, err)
	_, err = records.CreateOwned(ctx, store.TradePnL(), "u1", &records.TradePnLEntry{
		Date: "2024-03-14", Profit: d("80"), Loss: d("20"), TotalTrades: 4, WinningTrades: 3, LosingTrades: 1,
	}, at)
	require.NoError(t, err)
	// another user's records must never show up
	_, err = records.CreateOwned(ctx, store.Deposits(), "u2", &records.Deposit{FinancialRecord: records.FinancialRecord{
		Amount: d("99999"), RequestedAt: at,
	}}, at)
	require.NoError(t, err)
	return store
}

func newTestService(store records.Store, cache ResponseCache) *Service {
	svc := NewService(store, newTestAggregator(), cache)
	svc.SetClock(func() time.Time { return testNow })
	return svc
}

func TestServiceGetDashboard(t *testing.T) {
	svc := newTestService(seedStore(t), nil)

	resp, err := svc.GetDashboard(context.Background(), "u1", Query{Timeframes: []Timeframe{Timeframe1W}})
	require.NoError(t, err)
	require.Len(t, resp.Summaries, 1)

	s := resp.Summaries[0]
	assertDecimal(t, "1000", s.Deposits.Total)
	assertDecimal(t, "750", s.NetCashFlow)
	assertDecimal(t, "1000", s.SettledNetCashFlow)
	assertDecimal(t, "60", s.TradePnL.NetPnL)
	assert.Equal(t, 75.0, s.TradePnL.WinRate)
	assert.Equal(t, 1, resp.ProgressGrid.TradingDays)
}

func TestServiceUnknownUserGetsZeros(t *testing.T) {
	svc := newTestService(seedStore(t), nil)

	resp, err := svc.GetDashboard(context.Background(), "nobody", Query{})
	require.NoError(t, err)
	require.Len(t, resp.Summaries, 1)
	assert.Equal(t, Timeframe1M, resp.Summaries[0].Timeframe)
	assert.True(t, resp.Summaries[0].NetCashFlow.IsZero())
}

func TestServiceUpstreamFailure(t *testing.T) {
	svc := newTestService(brokenStore{records.NewMemoryStore()}, nil)

	resp, err := svc.GetDashboard(context.Background(), "u1", Query{})
	assert.Nil(t, resp)

	var upstream *UpstreamFetchError
	require.ErrorAs(t, err, &upstream)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, "load records", upstream.Op)
}

func TestServiceRejectsBadQueryBeforeFetching(t *testing.T) {
	svc := newTestService(brokenStore{records.NewMemoryStore()}, nil)

	_, err := svc.GetDashboard(context.Background(), "u1", Query{Timeframes: []Timeframe{TimeframeCustom}})
	var rangeErr *InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestServiceCaching(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	cache := newMapCache()
	svc := newTestService(store, cache)
	q := Query{Timeframes: []Timeframe{Timeframe1M}}

	first, err := svc.GetDashboard(ctx, "u1", q)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// a write that bypasses invalidation is not visible while cached
	_, err = records.CreateOwned(ctx, store.Deposits(), "u1", &records.Deposit{FinancialRecord: records.FinancialRecord{
		Amount: d("5"), RequestedAt: testNow,
	}}, testNow)
	require.NoError(t, err)

	cached, err := svc.GetDashboard(ctx, "u1", q)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.True(t, cached.Summaries[0].Deposits.Total.Equal(first.Summaries[0].Deposits.Total))

	svc.Invalidate(ctx, "u1")
	assert.Equal(t, []string{"u1"}, cache.invalidated)

	fresh, err := svc.GetDashboard(ctx, "u1", q)
	require.NoError(t, err)
	assertDecimal(t, "1005", fresh.Summaries[0].Deposits.Total)
	assert.Equal(t, 2, cache.sets)
}

func TestServiceCacheKeySeparatesQueries(t *testing.T) {
	svc := newTestService(records.NewMemoryStore(), nil)
	base := svc.cacheKey(Query{}, testNow)

	assert.Equal(t, base, svc.cacheKey(Query{Timeframes: []Timeframe{Timeframe1M}}, testNow))
	assert.NotEqual(t, base, svc.cacheKey(Query{Timeframes: []Timeframe{Timeframe1W}}, testNow))
	assert.NotEqual(t, base, svc.cacheKey(Query{Year: 2023}, testNow))
	assert.NotEqual(t, base, svc.cacheKey(Query{}, testNow.Add(24*time.Hour)))
	assert.NotEqual(t, base, svc.cacheKey(Query{Location: time.FixedZone("X", 3600)}, testNow))
}

func TestServiceDropsDashboardBuiltBeforeInvalidate(t *testing.T) {
	ctx := context.Background()
	mem := seedStore(t)
	cache := newMapCache()
	q := Query{Timeframes: []Timeframe{Timeframe1M}}

	var svc *Service
	store := &racingStore{MemoryStore: mem}
	store.onList = func() {
		store.onList = nil
		_, err := records.CreateOwned(ctx, mem.Deposits(), "u1", &records.Deposit{FinancialRecord: records.FinancialRecord{
			Amount: d("5"), RequestedAt: testNow,
		}}, testNow)
		require.NoError(t, err)
		svc.Invalidate(ctx, "u1")
	}
	svc = newTestService(store, cache)

	stale, err := svc.GetDashboard(ctx, "u1", q)
	require.NoError(t, err)
	assertDecimal(t, "1000", stale.Summaries[0].Deposits.Total)
	assert.Empty(t, cache.entries, "dashboard read before the write must not be cached")

	fresh, err := svc.GetDashboard(ctx, "u1", q)
	require.NoError(t, err)
	assertDecimal(t, "1005", fresh.Summaries[0].Deposits.Total)
	assert.Len(t, cache.entries, 1)
}

func TestServiceCacheHitKeepsBuildTime(t *testing.T) {
	tests := []struct {
		name      string
		later     time.Duration
		wantBuilt time.Time
	}{
		{name: "same day is served as built", later: 30 * time.Second, wantBuilt: testNow},
		{name: "next day is rebuilt", later: 13 * time.Hour, wantBuilt: testNow.Add(13 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(seedStore(t), newMapCache())
			q := Query{Timeframes: []Timeframe{Timeframe1D}}

			_, err := svc.GetDashboard(ctx, "u1", q)
			require.NoError(t, err)

			svc.SetClock(func() time.Time { return testNow.Add(tt.later) })
			resp, err := svc.GetDashboard(ctx, "u1", q)
			require.NoError(t, err)
			assert.True(t, tt.wantBuilt.Equal(resp.GeneratedAt), "generatedAt %v", resp.GeneratedAt)
			assert.True(t, tt.wantBuilt.Equal(resp.Summaries[0].End), "end %v", resp.Summaries[0].End)
		})
	}
}
