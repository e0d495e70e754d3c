package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/records"
)

// Options configures an Aggregator. Zero values fall back to UTC, no
// platform start, DefaultThresholds and 1M.
type Options struct {
	Location         *time.Location
	PlatformStart    time.Time
	Thresholds       []float64
	DefaultTimeframe Timeframe
}

// Aggregator is the pure dashboard computation. It holds only immutable
// configuration and is safe for concurrent use.
type Aggregator struct {
	loc              *time.Location
	platformStart    time.Time
	thresholds       []decimal.Decimal
	defaultTimeframe Timeframe
}

// NewAggregator creates an aggregator from opts.
func NewAggregator(opts Options) *Aggregator {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	tf := opts.DefaultTimeframe
	if tf == "" {
		tf = Timeframe1M
	}
	return &Aggregator{
		loc:              loc,
		platformStart:    opts.PlatformStart,
		thresholds:       toThresholds(opts.Thresholds),
		defaultTimeframe: tf,
	}
}

// Location is the zone calendar days are evaluated in.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// DefaultTimeframe is summarized when a query names no timeframe.
func (a *Aggregator) DefaultTimeframe() Timeframe {
	return a.defaultTimeframe
}

// Level is Intensity with the aggregator's configured thresholds.
func (a *Aggregator) Level(pnl decimal.Decimal) int {
	return Intensity(pnl, a.thresholds)
}

func (a *Aggregator) withLocation(loc *time.Location) *Aggregator {
	if loc == nil || loc == a.loc {
		return a
	}
	c := *a
	c.loc = loc
	return &c
}

// Origin is where the ALL window starts: the earlier of the platform start
// and the user's first dated record. Zero when neither is known.
func (a *Aggregator) Origin(set records.RecordSet) time.Time {
	origin := a.platformStart
	earlier := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if origin.IsZero() || t.Before(origin) {
			origin = t
		}
	}
	for i := range set.Deposits {
		earlier(set.Deposits[i].RequestedAt)
	}
	for i := range set.Withdrawals {
		earlier(set.Withdrawals[i].RequestedAt)
	}
	for i := range set.TradePnL {
		if t, ok := a.tradeDay(set.TradePnL[i].Date); ok {
			earlier(t)
		}
	}
	return origin
}

// Validate checks q without touching any records, so malformed queries
// fail before the store is read.
func (a *Aggregator) Validate(q Query, now time.Time) error {
	if q.Year != 0 && (q.Year < 1970 || q.Year > 9999) {
		return &InvalidRangeError{Reason: "year must be between 1970 and 9999"}
	}
	for _, tf := range uniqueTimeframes(q.Timeframes, a.defaultTimeframe) {
		if _, err := ResolveWindow(tf, now, q.Custom, time.Time{}); err != nil {
			return err
		}
	}
	return nil
}

// Build computes the full dashboard for one user's records: a summary per
// requested timeframe in request order, the progress grid for q.Year, and
// wallet and rule summaries.
func (a *Aggregator) Build(set records.RecordSet, q Query, now time.Time) (*Response, error) {
	agg := a.withLocation(q.Location)

	if err := agg.Validate(q, now); err != nil {
		return nil, err
	}
	year := q.Year
	if year == 0 {
		year = now.In(agg.loc).Year()
	}

	origin := agg.Origin(set)
	timeframes := uniqueTimeframes(q.Timeframes, agg.defaultTimeframe)
	summaries := make([]TimeframeSummary, 0, len(timeframes))
	for _, tf := range timeframes {
		w, err := ResolveWindow(tf, now, q.Custom, origin)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, agg.Summarize(set, w))
	}

	return &Response{
		GeneratedAt:  now,
		Timezone:     agg.loc.String(),
		Summaries:    summaries,
		ProgressGrid: agg.BuildProgressGrid(set.TradePnL, year, now),
		Wallets:      summarizeWallets(set.Wallets),
		Rules:        agg.summarizeRules(set.TradeRules, now),
	}, nil
}

func uniqueTimeframes(in []Timeframe, fallback Timeframe) []Timeframe {
	if len(in) == 0 {
		return []Timeframe{fallback}
	}
	seen := make(map[Timeframe]bool, len(in))
	out := make([]Timeframe, 0, len(in))
	for _, tf := range in {
		if seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}

func summarizeWallets(wallets []records.Wallet) WalletSummary {
	ws := WalletSummary{
		Count:        len(wallets),
		TotalBalance: decimal.Zero,
		ByCurrency:   make(map[string]decimal.Decimal),
	}
	for _, w := range wallets {
		ws.TotalBalance = ws.TotalBalance.Add(w.Balance)
		ws.ByCurrency[w.Currency] = ws.ByCurrency[w.Currency].Add(w.Balance)
	}
	return ws
}

func (a *Aggregator) summarizeRules(rules []records.TradeRule, now time.Time) RuleSummary {
	today := now.In(a.loc).Format(records.DayLayout)
	rs := RuleSummary{Total: len(rules)}
	for i := range rules {
		if rules[i].Active {
			rs.Active++
		}
		if rules[i].CheckedOn(today) {
			rs.CheckedToday++
		}
	}
	return rs
}
