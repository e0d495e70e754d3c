package records

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is implemented by every user-owned entity.
type Record interface {
	RecordID() string
	OwnerID() string
	CreatedTime() time.Time
	Validate() error

	// stamp prepares a new record for insertion.
	stamp(id, userID string, now time.Time)
	// touch prepares an edited record for update.
	touch(now time.Time)
}

func (r *FinancialRecord) RecordID() string       { return r.ID }
func (r *FinancialRecord) OwnerID() string        { return r.UserID }
func (r *FinancialRecord) CreatedTime() time.Time { return r.CreatedAt }

func (r *FinancialRecord) stamp(id, userID string, now time.Time) {
	r.ID = id
	r.UserID = userID
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = now
	}
	if r.Status == StatusCompleted && r.CompletedAt == nil {
		at := now
		r.CompletedAt = &at
	}
}

func (r *FinancialRecord) touch(now time.Time) {
	r.UpdatedAt = now
}

// Validate checks amount, status and timestamp ordering.
func (r *FinancialRecord) Validate() error {
	var domain []string
	if r.Amount.IsNegative() {
		domain = append(domain, "amount must be non-negative")
	}
	if r.CompletedAt != nil && r.CompletedAt.Before(r.RequestedAt) {
		domain = append(domain, "completedAt must not precede requestedAt")
	}
	if r.CompletedAt != nil && r.Status == StatusPending {
		domain = append(domain, "pending records cannot have completedAt")
	}
	return check(r, domain)
}

func (e *TradePnLEntry) RecordID() string       { return e.ID }
func (e *TradePnLEntry) OwnerID() string        { return e.UserID }
func (e *TradePnLEntry) CreatedTime() time.Time { return e.CreatedAt }

func (e *TradePnLEntry) stamp(id, userID string, now time.Time) {
	e.ID = id
	e.UserID = userID
	e.CreatedAt = now
	e.touch(now)
}

func (e *TradePnLEntry) touch(now time.Time) {
	e.UpdatedAt = now
	e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
	e.NetPnL = e.Profit.Sub(e.Loss)
}

// Validate checks the sign of profit/loss and the trade count split.
func (e *TradePnLEntry) Validate() error {
	var domain []string
	if e.Profit.IsNegative() {
		domain = append(domain, "profit must be non-negative")
	}
	if e.Loss.IsNegative() {
		domain = append(domain, "loss must be non-negative")
	}
	if e.WinningTrades+e.LosingTrades > e.TotalTrades {
		domain = append(domain, fmt.Sprintf("winningTrades + losingTrades (%d) exceeds totalTrades (%d)",
			e.WinningTrades+e.LosingTrades, e.TotalTrades))
	}
	if !e.NetPnL.Equal(e.Profit.Sub(e.Loss)) {
		domain = append(domain, "netPnL must equal profit - loss")
	}
	return check(e, domain)
}

func (w *Wallet) RecordID() string       { return w.ID }
func (w *Wallet) OwnerID() string        { return w.UserID }
func (w *Wallet) CreatedTime() time.Time { return w.CreatedAt }

func (w *Wallet) stamp(id, userID string, now time.Time) {
	w.ID = id
	w.UserID = userID
	w.CreatedAt = now
	if w.Currency == "" {
		w.Currency = "USD"
	}
	w.touch(now)
}

func (w *Wallet) touch(now time.Time) {
	w.UpdatedAt = now
	w.Name = strings.TrimSpace(w.Name)
	w.Currency = strings.ToUpper(strings.TrimSpace(w.Currency))
}

func (w *Wallet) Validate() error {
	var domain []string
	if w.Balance.IsNegative() {
		domain = append(domain, "balance must be non-negative")
	}
	return check(w, domain)
}

func (r *TradeRule) RecordID() string       { return r.ID }
func (r *TradeRule) OwnerID() string        { return r.UserID }
func (r *TradeRule) CreatedTime() time.Time { return r.CreatedAt }

func (r *TradeRule) stamp(id, userID string, now time.Time) {
	r.ID = id
	r.UserID = userID
	r.CreatedAt = now
	r.touch(now)
}

func (r *TradeRule) touch(now time.Time) {
	r.UpdatedAt = now
	r.Title = strings.TrimSpace(r.Title)
	r.CheckIns = normalizeDays(r.CheckIns)
}

func (r *TradeRule) Validate() error {
	return check(r, nil)
}

// CheckedOn reports whether the rule has a check-in for day (YYYY-MM-DD).
func (r *TradeRule) CheckedOn(day string) bool {
	for _, d := range r.CheckIns {
		if d == day {
			return true
		}
	}
	return false
}

// ToggleCheckIn adds day to the check-ins, or removes it when present.
func (r *TradeRule) ToggleCheckIn(day string) error {
	if _, err := time.Parse(DayLayout, day); err != nil {
		return &ValidationError{Errors: []string{"check-in day must be in YYYY-MM-DD format"}}
	}
	if r.CheckedOn(day) {
		out := r.CheckIns[:0:0]
		for _, d := range r.CheckIns {
			if d != day {
				out = append(out, d)
			}
		}
		r.CheckIns = out
		return nil
	}
	r.CheckIns = normalizeDays(append(r.CheckIns, day))
	return nil
}

func normalizeDays(days []string) []string {
	if len(days) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(days))
	out := make([]string, 0, len(days))
	for _, d := range days {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// SortNewestFirst orders records by creation time descending, then by id.
func SortNewestFirst[T Record](recs []T) {
	sort.SliceStable(recs, func(i, j int) bool {
		ti, tj := recs[i].CreatedTime(), recs[j].CreatedTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return recs[i].RecordID() < recs[j].RecordID()
	})
}
