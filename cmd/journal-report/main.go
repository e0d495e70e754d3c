package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/config"
	"trading-journal/internal/dashboard"
	"trading-journal/internal/records"
	"trading-journal/internal/storage"
)

// SymbolStats is the per-symbol rollup of a user's trade entries
type SymbolStats struct {
	Symbol        string
	Days          int
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalProfit   decimal.Decimal
	TotalLoss     decimal.Decimal
	NetPnL        decimal.Decimal
	WinRate       float64
}

func main() {
	email := flag.String("email", "", "account email to report on")
	timeframe := flag.String("timeframe", "ALL", "dashboard timeframe for the summary block")
	flag.Parse()

	if *email == "" {
		fmt.Println("usage: journal-report -email trader@example.com [-timeframe 1M]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to open record store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	user, err := store.Users().GetUserByEmail(ctx, *email)
	if err != nil {
		fmt.Printf("No account for %s: %v\n", *email, err)
		os.Exit(1)
	}

	set, err := records.LoadRecordSet(ctx, store, user.ID)
	if err != nil {
		fmt.Printf("Failed to load records: %v\n", err)
		os.Exit(1)
	}

	tf, err := dashboard.ParseTimeframe(*timeframe)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(2)
	}

	loc, _ := cfg.DashboardConfig.Location()
	platformStart, _ := cfg.DashboardConfig.PlatformStart()
	agg := dashboard.NewAggregator(dashboard.Options{
		Location:      loc,
		PlatformStart: platformStart,
		Thresholds:    cfg.DashboardConfig.IntensityThresholds,
	})
	resp, err := agg.Build(set, dashboard.Query{Timeframes: []dashboard.Timeframe{tf}}, time.Now())
	if err != nil {
		fmt.Printf("Failed to build dashboard: %v\n", err)
		os.Exit(1)
	}

	line := strings.Repeat("=", 80)
	fmt.Println(line)
	fmt.Printf("TRADING JOURNAL REPORT: %s\n", user.Email)
	fmt.Println(line)

	sum := resp.Summaries[0]
	fmt.Printf("\nWindow %s: %s to %s\n", sum.Timeframe, sum.Start.Format(records.DayLayout), sum.End.Format(records.DayLayout))
	fmt.Printf("  Deposits:     %s (%d)\n", sum.Deposits.Total.StringFixed(2), sum.Deposits.Count)
	fmt.Printf("  Withdrawals:  %s (%d)\n", sum.Withdrawals.Total.StringFixed(2), sum.Withdrawals.Count)
	fmt.Printf("  Net P&L:      %s\n", sum.TradePnL.NetPnL.StringFixed(2))
	fmt.Printf("  Win rate:     %.1f%%\n", sum.TradePnL.WinRate)
	fmt.Printf("  Wallets:      %s across %d\n", resp.Wallets.TotalBalance.StringFixed(2), resp.Wallets.Count)
	if sum.SkippedCount > 0 {
		fmt.Printf("  Skipped:      %d records without a usable date\n", sum.SkippedCount)
	}

	stats := symbolStats(set.TradePnL)
	if len(stats) == 0 {
		fmt.Println("\nNo trade entries recorded")
		return
	}

	fmt.Println("\n" + line)
	fmt.Println("TRADE PERFORMANCE BY SYMBOL")
	fmt.Println(line)
	fmt.Printf("%-12s %6s %7s %7s %7s %14s %9s\n", "Symbol", "Days", "Trades", "Winners", "Losers", "Net P&L", "Win Rate")
	for _, s := range stats {
		fmt.Printf("%-12s %6d %7d %7d %7d %14s %8.1f%%\n",
			truncate(s.Symbol, 12), s.Days, s.TotalTrades, s.WinningTrades, s.LosingTrades,
			s.NetPnL.StringFixed(2), s.WinRate)
	}

	if worst := stats[len(stats)-1]; worst.NetPnL.IsNegative() {
		fmt.Printf("\nWorst symbol: %s (%s, win rate %.1f%%)\n", worst.Symbol, worst.NetPnL.StringFixed(2), worst.WinRate)
	}
}

// symbolStats groups entries by symbol, ordered by net P&L descending.
// Entries without a symbol are reported under "(none)".
func symbolStats(entries []records.TradePnLEntry) []*SymbolStats {
	bySymbol := make(map[string]*SymbolStats)
	for _, e := range entries {
		symbol := e.Symbol
		if symbol == "" {
			symbol = "(none)"
		}
		s, ok := bySymbol[symbol]
		if !ok {
			s = &SymbolStats{Symbol: symbol}
			bySymbol[symbol] = s
		}
		s.Days++
		s.TotalTrades += e.TotalTrades
		s.WinningTrades += e.WinningTrades
		s.LosingTrades += e.LosingTrades
		s.TotalProfit = s.TotalProfit.Add(e.Profit.Abs())
		s.TotalLoss = s.TotalLoss.Add(e.Loss.Abs())
	}

	out := make([]*SymbolStats, 0, len(bySymbol))
	for _, s := range bySymbol {
		s.NetPnL = s.TotalProfit.Sub(s.TotalLoss)
		s.WinRate = dashboard.WinRate(s.WinningTrades, s.TotalTrades)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].NetPnL.Cmp(out[j].NetPnL); c != 0 {
			return c > 0
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
