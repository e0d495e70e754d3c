package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/records"
)

var hundred = decimal.NewFromInt(100)

// Summarize computes the totals for every record whose canonical date lies
// in w. Deposits and withdrawals are dated by requestedAt. A trade entry is
// dated by the start of its calendar day in the aggregator's zone, so a 1D
// window never reaches back into yesterday's entry.
//
// Records without a usable date are left out of every sum and counted in
// SkippedCount. The result does not depend on input order.
func (a *Aggregator) Summarize(set records.RecordSet, w Window) TimeframeSummary {
	s := TimeframeSummary{
		Timeframe: w.Timeframe,
		Start:     w.Start,
		End:       w.End,
		Daily:     []DailyPoint{},
	}

	for i := range set.Deposits {
		if a.addCashFlow(&s.Deposits, &set.Deposits[i].FinancialRecord, w) {
			s.SkippedCount++
		}
	}
	for i := range set.Withdrawals {
		if a.addCashFlow(&s.Withdrawals, &set.Withdrawals[i].FinancialRecord, w) {
			s.SkippedCount++
		}
	}

	byDay := make(map[string]decimal.Decimal)
	for i := range set.TradePnL {
		e := &set.TradePnL[i]
		dayStart, ok := a.tradeDay(e.Date)
		if !ok {
			s.SkippedCount++
			continue
		}
		if !w.Contains(dayStart) {
			continue
		}

		t := &s.TradePnL
		t.EntryCount++
		t.TotalProfit = t.TotalProfit.Add(e.Profit.Abs())
		t.TotalLoss = t.TotalLoss.Add(e.Loss.Abs())
		t.TotalTrades += e.TotalTrades
		t.WinningTrades += e.WinningTrades
		t.LosingTrades += e.LosingTrades

		key := dayStart.Format(records.DayLayout)
		byDay[key] = byDay[key].Add(entryNet(e))
	}

	s.TradePnL.NetPnL = s.TradePnL.TotalProfit.Sub(s.TradePnL.TotalLoss)
	s.TradePnL.WinRate = WinRate(s.TradePnL.WinningTrades, s.TradePnL.TotalTrades)
	s.NetCashFlow = s.Deposits.Total.Sub(s.Withdrawals.Total)
	s.SettledNetCashFlow = s.Deposits.CompletedTotal.Sub(s.Withdrawals.CompletedTotal)
	s.Daily = cumulativeSeries(byDay)

	return s
}

// addCashFlow adds r to sum when it falls in w. It returns true when r has
// no requestedAt and was skipped.
func (a *Aggregator) addCashFlow(sum *CashFlowSummary, r *records.FinancialRecord, w Window) bool {
	if r.RequestedAt.IsZero() {
		return true
	}
	if !w.Contains(r.RequestedAt) {
		return false
	}

	sum.Count++
	sum.Total = sum.Total.Add(r.Amount)
	switch r.Status {
	case records.StatusPending:
		sum.PendingTotal = sum.PendingTotal.Add(r.Amount)
	case records.StatusCompleted:
		sum.CompletedTotal = sum.CompletedTotal.Add(r.Amount)
	case records.StatusFailed:
		sum.FailedTotal = sum.FailedTotal.Add(r.Amount)
	}
	return false
}

// WinRate is winning/total as a percentage with one decimal, 0 when total
// is not positive, clamped to [0, 100].
func WinRate(winning, total int) float64 {
	if total <= 0 || winning <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(winning)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(1)
	if rate.GreaterThan(hundred) {
		rate = hundred
	}
	return rate.InexactFloat64()
}

// entryNet is the signed result of one trade entry. Profit and loss are
// sign-normalized so the value always equals profit - loss of the totals.
func entryNet(e *records.TradePnLEntry) decimal.Decimal {
	return e.Profit.Abs().Sub(e.Loss.Abs())
}

// tradeDay parses a trade entry's calendar day as midnight in the
// aggregator's zone.
func (a *Aggregator) tradeDay(date string) (time.Time, bool) {
	if date == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(records.DayLayout, date, a.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func cumulativeSeries(byDay map[string]decimal.Decimal) []DailyPoint {
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	points := make([]DailyPoint, 0, len(days))
	running := decimal.Zero
	for _, d := range days {
		running = running.Add(byDay[d])
		points = append(points, DailyPoint{Date: d, NetPnL: byDay[d], Cumulative: running})
	}
	return points
}
