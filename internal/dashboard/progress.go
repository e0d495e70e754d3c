package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/records"
)

// MaxLevel bounds the intensity scale in both directions.
const MaxLevel = 4

// DefaultThresholds are the |pnl| cut points for levels 1 through 4.
var DefaultThresholds = []float64{0, 100, 500, 1000}

// Intensity buckets pnl into [-MaxLevel, MaxLevel]. The magnitude is the
// number of thresholds |pnl| exceeds and the sign follows pnl, so the
// mapping is monotonic in magnitude and Intensity(-x) == -Intensity(x).
// thresholds must be ascending.
func Intensity(pnl decimal.Decimal, thresholds []decimal.Decimal) int {
	if pnl.IsZero() {
		return 0
	}
	mag := pnl.Abs()
	level := 0
	for _, th := range thresholds {
		if !mag.GreaterThan(th) {
			break
		}
		level++
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	if pnl.IsNegative() {
		return -level
	}
	return level
}

func toThresholds(values []float64) []decimal.Decimal {
	if len(values) == 0 {
		values = DefaultThresholds
	}
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.NewFromFloat(v).Abs())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

// YearWindow is the span the progress grid covers for year: from
// max(Jan 1, platform start) through min(Dec 31, today) in the aggregator's
// zone. ok is false when that span is empty.
func (a *Aggregator) YearWindow(year int, now time.Time) (w Window, ok bool) {
	first := time.Date(year, time.January, 1, 0, 0, 0, 0, a.loc)
	if !a.platformStart.IsZero() {
		if ps := startOfDay(a.platformStart.In(a.loc)); ps.After(first) {
			first = ps
		}
	}
	last := time.Date(year, time.December, 31, 0, 0, 0, 0, a.loc)
	if today := startOfDay(now.In(a.loc)); today.Before(last) {
		last = today
	}
	if first.After(last) {
		return Window{}, false
	}
	return Window{Timeframe: TimeframeCustom, Start: first, End: endOfDay(last)}, true
}

// BuildProgressGrid produces one ProgressDay per calendar day of the year
// window, ascending, with no gaps. Days with entries carry the summed net
// P&L; the rest are zero with HasData false.
func (a *Aggregator) BuildProgressGrid(entries []records.TradePnLEntry, year int, now time.Time) ProgressGrid {
	grid := ProgressGrid{Year: year, Days: []ProgressDay{}, TotalPnL: decimal.Zero}

	w, ok := a.YearWindow(year, now)
	if !ok {
		return grid
	}

	sums := make(map[string]decimal.Decimal)
	for i := range entries {
		dayStart, ok := a.tradeDay(entries[i].Date)
		if !ok || !w.Contains(dayStart) {
			continue
		}
		key := dayStart.Format(records.DayLayout)
		sums[key] = sums[key].Add(entryNet(&entries[i]))
	}

	grid.Start = w.Start.Format(records.DayLayout)
	grid.End = w.End.Format(records.DayLayout)

	for d := w.Start; !d.After(w.End); d = nextDay(d) {
		key := d.Format(records.DayLayout)
		pd := ProgressDay{Date: key, PnL: decimal.Zero}
		if pnl, has := sums[key]; has {
			pd.PnL = pnl
			pd.HasData = true
			pd.Level = Intensity(pnl, a.thresholds)
			grid.TradingDays++
			grid.TotalPnL = grid.TotalPnL.Add(pnl)
		}
		grid.Days = append(grid.Days, pd)
	}
	return grid
}

func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
