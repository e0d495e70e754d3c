package dashboard

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/records"
)

var (
	testNow           = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	testPlatformStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newTestAggregator() *Aggregator {
	return NewAggregator(Options{Location: time.UTC, PlatformStart: testPlatformStart})
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func deposit(amount string, status records.Status, at time.Time) records.Deposit {
	return records.Deposit{FinancialRecord: records.FinancialRecord{
		UserID: "u1", Amount: d(amount), Status: status, RequestedAt: at,
	}}
}

func withdrawal(amount string, status records.Status, at time.Time) records.Withdrawal {
	return records.Withdrawal{FinancialRecord: records.FinancialRecord{
		UserID: "u1", Amount: d(amount), Status: status, RequestedAt: at,
	}}
}

func trade(date, profit, loss string, total, won, lost int) records.TradePnLEntry {
	e := records.TradePnLEntry{
		UserID: "u1", Date: date, Profit: d(profit), Loss: d(loss),
		TotalTrades: total, WinningTrades: won, LosingTrades: lost,
	}
	e.NetPnL = e.Profit.Sub(e.Loss)
	return e
}

func TestSummarizeNetCashFlowScenario(t *testing.T) {
	agg := newTestAggregator()
	day0 := time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC)
	set := records.RecordSet{
		Deposits:    []records.Deposit{deposit("1000", records.StatusCompleted, day0)},
		Withdrawals: []records.Withdrawal{withdrawal("400", records.StatusCompleted, day0)},
	}

	w, err := ResolveWindow(TimeframeAll, testNow, nil, agg.Origin(set))
	require.NoError(t, err)
	s := agg.Summarize(set, w)

	assertDecimal(t, "600", s.NetCashFlow)
	assertDecimal(t, "1000", s.Deposits.Total)
	assertDecimal(t, "400", s.Withdrawals.Total)
	assert.Equal(t, 1, s.Deposits.Count)
	assert.Equal(t, 1, s.Withdrawals.Count)
}

func TestSummarizeTradeScenario(t *testing.T) {
	agg := newTestAggregator()
	set := records.RecordSet{TradePnL: []records.TradePnLEntry{
		trade("2024-03-10", "500", "0", 4, 1, 3),
		trade("2024-03-11", "0", "200", 3, 2, 1),
		trade("2024-03-12", "300", "100", 3, 0, 3),
	}}

	w, err := ResolveWindow(Timeframe1M, testNow, nil, time.Time{})
	require.NoError(t, err)
	s := agg.Summarize(set, w)

	assertDecimal(t, "800", s.TradePnL.TotalProfit)
	assertDecimal(t, "300", s.TradePnL.TotalLoss)
	assertDecimal(t, "500", s.TradePnL.NetPnL)
	assert.Equal(t, 10, s.TradePnL.TotalTrades)
	assert.Equal(t, 3, s.TradePnL.WinningTrades)
	assert.Equal(t, 7, s.TradePnL.LosingTrades)
	assert.Equal(t, 3, s.TradePnL.EntryCount)
	// from the trade counts, not from the sign of each entry
	assert.Equal(t, 30.0, s.TradePnL.WinRate)
}

func TestWinRate(t *testing.T) {
	tests := []struct {
		name       string
		won, total int
		want       float64
	}{
		{"no trades", 0, 0, 0},
		{"no trades but wins recorded", 5, 0, 0},
		{"all losses", 0, 7, 0},
		{"two thirds", 2, 3, 66.7},
		{"one third", 1, 3, 33.3},
		{"half rounds up", 1, 8, 12.5},
		{"tiny", 1, 2000, 0.1},
		{"all wins", 9, 9, 100},
		{"inconsistent counts clamp", 12, 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WinRate(tt.won, tt.total)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestSummarizeStatusBreakdown(t *testing.T) {
	agg := newTestAggregator()
	at := testNow.Add(-48 * time.Hour)
	set := records.RecordSet{
		Deposits: []records.Deposit{
			deposit("100", records.StatusPending, at),
			deposit("250", records.StatusCompleted, at),
			deposit("40", records.StatusFailed, at),
		},
		Withdrawals: []records.Withdrawal{
			withdrawal("50", records.StatusCompleted, at),
			withdrawal("30", records.StatusPending, at),
		},
	}
	w, err := ResolveWindow(Timeframe1W, testNow, nil, time.Time{})
	require.NoError(t, err)
	s := agg.Summarize(set, w)

	assertDecimal(t, "390", s.Deposits.Total)
	assertDecimal(t, "100", s.Deposits.PendingTotal)
	assertDecimal(t, "250", s.Deposits.CompletedTotal)
	assertDecimal(t, "40", s.Deposits.FailedTotal)
	assertDecimal(t, "80", s.Withdrawals.Total)
	assertDecimal(t, "310", s.NetCashFlow)
	assertDecimal(t, "200", s.SettledNetCashFlow)
}

func TestSummarizeWindowBoundaries(t *testing.T) {
	agg := newTestAggregator()
	w := Window{
		Timeframe: TimeframeCustom,
		Start:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	set := records.RecordSet{
		Deposits: []records.Deposit{
			deposit("1", records.StatusCompleted, w.Start),
			deposit("2", records.StatusCompleted, w.End),
			deposit("4", records.StatusCompleted, w.Start.Add(-time.Nanosecond)),
			deposit("8", records.StatusCompleted, w.End.Add(time.Nanosecond)),
		},
		TradePnL: []records.TradePnLEntry{
			trade("2024-03-01", "10", "0", 1, 1, 0), // day starts before w.Start
			trade("2024-03-02", "20", "0", 1, 1, 0),
			trade("2024-03-10", "40", "0", 1, 1, 0),
			trade("2024-03-11", "80", "0", 1, 1, 0),
		},
	}

	s := agg.Summarize(set, w)
	assertDecimal(t, "3", s.Deposits.Total)
	assert.Equal(t, 2, s.Deposits.Count)
	assertDecimal(t, "60", s.TradePnL.NetPnL)
	assert.Equal(t, 2, s.TradePnL.EntryCount)
}

func TestRollingWindowsDateTradesLikeDeposits(t *testing.T) {
	agg := newTestAggregator()
	yesterday := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	set := records.RecordSet{
		Deposits: []records.Deposit{deposit("50", records.StatusCompleted, yesterday)},
		TradePnL: []records.TradePnLEntry{
			trade("2024-03-14", "100", "0", 1, 1, 0),
			trade("2024-03-15", "7", "0", 1, 1, 0),
			trade("2024-03-08", "30", "0", 1, 1, 0),
			trade("2024-03-09", "11", "0", 1, 1, 0),
		},
	}

	tests := []struct {
		tf       Timeframe
		deposits string
		net      string
		entries  int
	}{
		{Timeframe1D, "0", "7", 1},
		{Timeframe1W, "50", "118", 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.tf), func(t *testing.T) {
			w, err := ResolveWindow(tt.tf, testNow, nil, time.Time{})
			require.NoError(t, err)
			s := agg.Summarize(set, w)
			assertDecimal(t, tt.deposits, s.Deposits.Total)
			assertDecimal(t, tt.net, s.TradePnL.NetPnL)
			assert.Equal(t, tt.entries, s.TradePnL.EntryCount)
		})
	}
}

func TestSummarizeSkipsUndatedRecords(t *testing.T) {
	agg := newTestAggregator()
	set := records.RecordSet{
		Deposits:    []records.Deposit{deposit("100", records.StatusCompleted, time.Time{}), deposit("5", records.StatusCompleted, testNow)},
		Withdrawals: []records.Withdrawal{withdrawal("7", records.StatusPending, time.Time{})},
		TradePnL: []records.TradePnLEntry{
			trade("", "1", "0", 1, 1, 0),
			trade("yesterday", "1", "0", 1, 1, 0),
			trade("2024-03-15", "3", "1", 2, 1, 1),
		},
	}
	w, err := ResolveWindow(Timeframe1D, testNow, nil, time.Time{})
	require.NoError(t, err)
	s := agg.Summarize(set, w)

	assert.Equal(t, 4, s.SkippedCount)
	assertDecimal(t, "5", s.Deposits.Total)
	assertDecimal(t, "0", s.Withdrawals.Total)
	assertDecimal(t, "2", s.TradePnL.NetPnL)
}

func TestSummarizeEmpty(t *testing.T) {
	agg := newTestAggregator()
	w, err := ResolveWindow(TimeframeAll, testNow, nil, time.Time{})
	require.NoError(t, err)
	s := agg.Summarize(records.RecordSet{}, w)

	assert.True(t, s.NetCashFlow.IsZero())
	assert.True(t, s.TradePnL.NetPnL.IsZero())
	assert.Equal(t, 0.0, s.TradePnL.WinRate)
	assert.NotNil(t, s.Daily)
	assert.Empty(t, s.Daily)
	assert.Zero(t, s.SkippedCount)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"netCashFlow":0`)
	assert.Contains(t, string(data), `"daily":[]`)
}

func TestSummarizeDailySeries(t *testing.T) {
	agg := newTestAggregator()
	set := records.RecordSet{TradePnL: []records.TradePnLEntry{
		trade("2024-03-12", "0", "50", 1, 0, 1),
		trade("2024-03-10", "100", "0", 1, 1, 0),
		trade("2024-03-10", "20", "0", 1, 1, 0),
	}}
	w, err := ResolveWindow(Timeframe1W, testNow, nil, time.Time{})
	require.NoError(t, err)
	s := agg.Summarize(set, w)

	require.Len(t, s.Daily, 2)
	assert.Equal(t, "2024-03-10", s.Daily[0].Date)
	assertDecimal(t, "120", s.Daily[0].NetPnL)
	assertDecimal(t, "120", s.Daily[0].Cumulative)
	assert.Equal(t, "2024-03-12", s.Daily[1].Date)
	assertDecimal(t, "-50", s.Daily[1].NetPnL)
	assertDecimal(t, "70", s.Daily[1].Cumulative)
}

func randomRecordSet(r *rand.Rand, n int) records.RecordSet {
	statuses := []records.Status{records.StatusPending, records.StatusCompleted, records.StatusFailed}
	var set records.RecordSet
	for i := 0; i < n; i++ {
		at := testNow.Add(-time.Duration(r.Int63n(int64(400 * 24 * time.Hour))))
		if r.Intn(20) == 0 {
			at = time.Time{}
		}
		set.Deposits = append(set.Deposits, records.Deposit{FinancialRecord: records.FinancialRecord{
			Amount: decimal.New(r.Int63n(1_000_000), -2), Status: statuses[r.Intn(3)], RequestedAt: at,
		}})
		set.Withdrawals = append(set.Withdrawals, records.Withdrawal{FinancialRecord: records.FinancialRecord{
			Amount: decimal.New(r.Int63n(500_000), -2), Status: statuses[r.Intn(3)], RequestedAt: at.Add(time.Hour),
		}})
		total := r.Intn(20)
		won := 0
		if total > 0 {
			won = r.Intn(total + 1)
		}
		date := testNow.AddDate(0, 0, -r.Intn(400)).Format(records.DayLayout)
		set.TradePnL = append(set.TradePnL, trade(date,
			decimal.New(r.Int63n(100_000), -2).String(),
			decimal.New(r.Int63n(100_000), -2).String(),
			total, won, total-won))
	}
	return set
}

func shuffled(r *rand.Rand, set records.RecordSet) records.RecordSet {
	out := records.RecordSet{
		Deposits:    append([]records.Deposit(nil), set.Deposits...),
		Withdrawals: append([]records.Withdrawal(nil), set.Withdrawals...),
		TradePnL:    append([]records.TradePnLEntry(nil), set.TradePnL...),
	}
	r.Shuffle(len(out.Deposits), func(i, j int) { out.Deposits[i], out.Deposits[j] = out.Deposits[j], out.Deposits[i] })
	r.Shuffle(len(out.Withdrawals), func(i, j int) { out.Withdrawals[i], out.Withdrawals[j] = out.Withdrawals[j], out.Withdrawals[i] })
	r.Shuffle(len(out.TradePnL), func(i, j int) { out.TradePnL[i], out.TradePnL[j] = out.TradePnL[j], out.TradePnL[i] })
	return out
}

func TestSummarizePureAndOrderIndependent(t *testing.T) {
	agg := newTestAggregator()
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		set := randomRecordSet(r, 1+r.Intn(60))
		for _, tf := range []Timeframe{Timeframe1D, Timeframe1W, Timeframe1M, Timeframe1Y, TimeframeAll} {
			w, err := ResolveWindow(tf, testNow, nil, agg.Origin(set))
			require.NoError(t, err)

			first, err := json.Marshal(agg.Summarize(set, w))
			require.NoError(t, err)
			second, err := json.Marshal(agg.Summarize(set, w))
			require.NoError(t, err)
			reordered, err := json.Marshal(agg.Summarize(shuffled(r, set), w))
			require.NoError(t, err)

			assert.Equal(t, string(first), string(second), "round %d %s: not idempotent", round, tf)
			assert.Equal(t, string(first), string(reordered), "round %d %s: order dependent", round, tf)

			s := agg.Summarize(set, w)
			assert.True(t, s.NetCashFlow.Equal(s.Deposits.Total.Sub(s.Withdrawals.Total)))
			assert.True(t, s.TradePnL.NetPnL.Equal(s.TradePnL.TotalProfit.Sub(s.TradePnL.TotalLoss)))
			assert.GreaterOrEqual(t, s.TradePnL.WinRate, 0.0)
			assert.LessOrEqual(t, s.TradePnL.WinRate, 100.0)
			if s.TradePnL.TotalTrades == 0 {
				assert.Equal(t, 0.0, s.TradePnL.WinRate)
			}
		}
	}
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	agg := newTestAggregator()
	set := records.RecordSet{TradePnL: []records.TradePnLEntry{trade("2024-03-14", "10", "4", 1, 1, 0)}}
	before, err := json.Marshal(set)
	require.NoError(t, err)

	w, err := ResolveWindow(Timeframe1W, testNow, nil, time.Time{})
	require.NoError(t, err)
	agg.Summarize(set, w)

	after, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestOrigin(t *testing.T) {
	agg := newTestAggregator()
	assert.Equal(t, testPlatformStart, agg.Origin(records.RecordSet{}))

	early := time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC)
	set := records.RecordSet{
		Deposits: []records.Deposit{deposit("1", records.StatusPending, early), deposit("1", records.StatusPending, time.Time{})},
		TradePnL: []records.TradePnLEntry{trade("2019-08-01", "1", "0", 1, 1, 0)},
	}
	assert.Equal(t, early, agg.Origin(set))

	set.TradePnL = append(set.TradePnL, trade("2018-01-02", "1", "0", 1, 1, 0))
	assert.Equal(t, time.Date(2018, 1, 2, 0, 0, 0, 0, time.UTC), agg.Origin(set))

	noStart := NewAggregator(Options{})
	assert.True(t, noStart.Origin(records.RecordSet{}).IsZero())
}

func TestBuild(t *testing.T) {
	agg := newTestAggregator()
	set := records.RecordSet{
		Deposits:    []records.Deposit{deposit("1000", records.StatusCompleted, testNow.Add(-40*24*time.Hour))},
		Withdrawals: []records.Withdrawal{withdrawal("100", records.StatusPending, testNow.Add(-2*24*time.Hour))},
		TradePnL:    []records.TradePnLEntry{trade("2024-03-14", "250", "50", 5, 3, 2)},
		Wallets: []records.Wallet{
			{Name: "Spot", Balance: d("120.5"), Currency: "USD"},
			{Name: "Cold", Balance: d("0.25"), Currency: "BTC"},
			{Name: "Bank", Balance: d("79.5"), Currency: "USD"},
		},
		TradeRules: []records.TradeRule{
			{Title: "Stop loss", Active: true, CheckIns: []string{"2024-03-14", "2024-03-15"}},
			{Title: "Journal", Active: true, CheckIns: []string{"2024-03-14"}},
			{Title: "Old", Active: false},
		},
	}

	resp, err := agg.Build(set, Query{}, testNow)
	require.NoError(t, err)
	require.Len(t, resp.Summaries, 1)
	assert.Equal(t, Timeframe1M, resp.Summaries[0].Timeframe)
	assertDecimal(t, "-100", resp.Summaries[0].NetCashFlow)
	assertDecimal(t, "200", resp.Summaries[0].TradePnL.NetPnL)
	assert.Equal(t, "UTC", resp.Timezone)
	assert.Equal(t, 2024, resp.ProgressGrid.Year)
	assert.Len(t, resp.ProgressGrid.Days, 75)

	assert.Equal(t, 3, resp.Wallets.Count)
	assertDecimal(t, "200.25", resp.Wallets.TotalBalance)
	assertDecimal(t, "200", resp.Wallets.ByCurrency["USD"])
	assertDecimal(t, "0.25", resp.Wallets.ByCurrency["BTC"])
	assert.Equal(t, RuleSummary{Total: 3, Active: 2, CheckedToday: 1}, resp.Rules)

	resp, err = agg.Build(set, Query{Timeframes: []Timeframe{Timeframe1W, TimeframeAll, Timeframe1W}}, testNow)
	require.NoError(t, err)
	require.Len(t, resp.Summaries, 2)
	assert.Equal(t, Timeframe1W, resp.Summaries[0].Timeframe)
	assert.Equal(t, TimeframeAll, resp.Summaries[1].Timeframe)
	assertDecimal(t, "900", resp.Summaries[1].NetCashFlow)
	assert.Equal(t, testPlatformStart, resp.Summaries[1].Start)
}

func TestBuildRejectsBadQueries(t *testing.T) {
	agg := newTestAggregator()
	var rangeErr *InvalidRangeError

	_, err := agg.Build(records.RecordSet{}, Query{Timeframes: []Timeframe{TimeframeCustom}}, testNow)
	assert.ErrorAs(t, err, &rangeErr)

	_, err = agg.Build(records.RecordSet{}, Query{Timeframes: []Timeframe{TimeframeCustom}, Custom: &DateRange{
		Start: testNow, End: testNow.Add(-time.Hour),
	}}, testNow)
	assert.ErrorAs(t, err, &rangeErr)

	resp, err := agg.Build(records.RecordSet{}, Query{Year: 12}, testNow)
	assert.ErrorAs(t, err, &rangeErr)
	assert.Nil(t, resp, "no partial result on error")
}

func TestBuildZeroRecords(t *testing.T) {
	resp, err := newTestAggregator().Build(records.RecordSet{}, Query{Timeframes: []Timeframe{Timeframe1D, TimeframeAll}}, testNow)
	require.NoError(t, err)
	require.Len(t, resp.Summaries, 2)
	for _, s := range resp.Summaries {
		assert.True(t, s.NetCashFlow.IsZero())
		assert.Zero(t, s.Deposits.Count)
	}
	assert.Zero(t, resp.ProgressGrid.TradingDays)
	assert.True(t, resp.ProgressGrid.TotalPnL.IsZero())
	assert.Zero(t, resp.Wallets.Count)
}

func TestBuildWithQueryLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	agg := newTestAggregator()
	// 2024-03-15T20:00Z is already 2024-03-16 in Tokyo
	now := time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC)
	set := records.RecordSet{TradePnL: []records.TradePnLEntry{trade("2024-03-16", "10", "0", 1, 1, 0)}}

	utc, err := agg.Build(set, Query{}, now)
	require.NoError(t, err)
	assert.Zero(t, utc.ProgressGrid.TradingDays)

	jst, err := agg.Build(set, Query{Location: tokyo}, now)
	require.NoError(t, err)
	assert.Equal(t, "JST", jst.Timezone)
	assert.Equal(t, 1, jst.ProgressGrid.TradingDays)
	assert.Equal(t, "2024-03-16", jst.ProgressGrid.End)
}

func TestInvalidRangeErrorMessage(t *testing.T) {
	err := error(&InvalidRangeError{Timeframe: "CUSTOM", Reason: "customStartDate is after customEndDate"})
	assert.Equal(t, `invalid range for timeframe "CUSTOM": customStartDate is after customEndDate`, err.Error())

	var target *InvalidRangeError
	assert.True(t, errors.As(err, &target))
}
