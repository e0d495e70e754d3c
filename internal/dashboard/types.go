// Package dashboard turns a user's raw journal records into per-timeframe
// summaries and a calendar-year daily P&L progress grid.
package dashboard

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is a named dashboard window.
type Timeframe string

const (
	Timeframe1D     Timeframe = "1D"
	Timeframe1W     Timeframe = "1W"
	Timeframe1M     Timeframe = "1M"
	Timeframe3M     Timeframe = "3M"
	Timeframe6M     Timeframe = "6M"
	Timeframe1Y     Timeframe = "1Y"
	TimeframeAll    Timeframe = "ALL"
	TimeframeCustom Timeframe = "CUSTOM"
)

// rollingDays maps the rolling timeframes to their length in days.
var rollingDays = map[Timeframe]int{
	Timeframe1D: 1,
	Timeframe1W: 7,
	Timeframe1M: 30,
	Timeframe3M: 90,
	Timeframe6M: 180,
	Timeframe1Y: 365,
}

// ParseTimeframe accepts a timeframe tag in any letter case.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rollingDays[tf]; ok || tf == TimeframeAll || tf == TimeframeCustom {
		return tf, nil
	}
	return "", &InvalidRangeError{Timeframe: s, Reason: "unknown timeframe"}
}

// DateRange is a caller-supplied custom window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Window is a resolved, inclusive [Start, End] interval.
type Window struct {
	Timeframe Timeframe `json:"timeframe"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// Contains reports whether t lies in the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// CashFlowSummary totals deposits or withdrawals. Total includes every
// status; the per-status totals let callers pick settled-only figures.
type CashFlowSummary struct {
	Total          decimal.Decimal `json:"total"`
	Count          int             `json:"count"`
	PendingTotal   decimal.Decimal `json:"pendingTotal"`
	CompletedTotal decimal.Decimal `json:"completedTotal"`
	FailedTotal    decimal.Decimal `json:"failedTotal"`
}

// TradeSummary totals trade P&L entries.
type TradeSummary struct {
	TotalProfit   decimal.Decimal `json:"totalProfit"`
	TotalLoss     decimal.Decimal `json:"totalLoss"`
	NetPnL        decimal.Decimal `json:"netPnL"`
	TotalTrades   int             `json:"totalTrades"`
	WinningTrades int             `json:"winningTrades"`
	LosingTrades  int             `json:"losingTrades"`
	WinRate       float64         `json:"winRate"`
	EntryCount    int             `json:"entryCount"`
}

// DailyPoint is one day of the cumulative P&L series.
type DailyPoint struct {
	Date       string          `json:"date"`
	NetPnL     decimal.Decimal `json:"netPnL"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// TimeframeSummary is the derived view of one window. Never persisted.
type TimeframeSummary struct {
	Timeframe          Timeframe       `json:"timeframe"`
	Start              time.Time       `json:"start"`
	End                time.Time       `json:"end"`
	Deposits           CashFlowSummary `json:"deposits"`
	Withdrawals        CashFlowSummary `json:"withdrawals"`
	TradePnL           TradeSummary    `json:"tradePnL"`
	NetCashFlow        decimal.Decimal `json:"netCashFlow"`
	SettledNetCashFlow decimal.Decimal `json:"settledNetCashFlow"`
	Daily              []DailyPoint    `json:"daily"`
	SkippedCount       int             `json:"skippedCount"`
}

// ProgressDay is one cell of the progress grid. Level is the signed
// intensity bucket used for heatmap rendering.
type ProgressDay struct {
	Date    string          `json:"date"`
	PnL     decimal.Decimal `json:"pnl"`
	HasData bool            `json:"hasData"`
	Level   int             `json:"level"`
}

// ProgressGrid is the daily P&L for one calendar year, clamped to the
// platform start and today.
type ProgressGrid struct {
	Year        int             `json:"year"`
	Start       string          `json:"start,omitempty"`
	End         string          `json:"end,omitempty"`
	Days        []ProgressDay   `json:"days"`
	TotalPnL    decimal.Decimal `json:"totalPnL"`
	TradingDays int             `json:"tradingDays"`
}

// WalletSummary totals the user's wallet balances, overall and per currency.
type WalletSummary struct {
	Count        int                        `json:"count"`
	TotalBalance decimal.Decimal            `json:"totalBalance"`
	ByCurrency   map[string]decimal.Decimal `json:"byCurrency"`
}

// RuleSummary counts trade rules and how many active rules are checked in
// for today in the aggregator's zone.
type RuleSummary struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	CheckedToday int `json:"checkedToday"`
}

// Response is the payload of GET /api/dashboard.
type Response struct {
	GeneratedAt  time.Time          `json:"generatedAt"`
	Timezone     string             `json:"timezone"`
	Summaries    []TimeframeSummary `json:"summaries"`
	ProgressGrid ProgressGrid       `json:"progressGrid"`
	Wallets      WalletSummary      `json:"wallets"`
	Rules        RuleSummary        `json:"rules"`
}

// Query selects what a dashboard build computes. Zero values mean the
// aggregator defaults: its default timeframe, the current year and zone.
type Query struct {
	Timeframes []Timeframe
	Year       int
	Custom     *DateRange
	Location   *time.Location
}
