package records

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Patch is a partial update decoded from a PATCH request body. Nil fields
// are left untouched.
type Patch[T any] interface {
	Apply(rec T, now time.Time) error
}

// FinancialPatch edits the mutable part of a deposit or withdrawal.
// Amount and requestedAt are fixed once the record exists.
type FinancialPatch struct {
	Status      *Status    `json:"status"`
	CompletedAt *time.Time `json:"completedAt"`
	Method      *string    `json:"method"`
	Description *string    `json:"description"`
}

func (p *FinancialPatch) apply(r *FinancialRecord, now time.Time) error {
	if p.Status != nil {
		next := *p.Status
		if !next.Valid() {
			return &ValidationError{Errors: []string{fmt.Sprintf("unknown status %q", next)}}
		}
		if !r.Status.CanTransitionTo(next) {
			return &ValidationError{Errors: []string{
				fmt.Sprintf("status cannot change from %s to %s", r.Status, next),
			}}
		}
		if next != r.Status {
			r.Status = next
			if next == StatusCompleted {
				at := now
				r.CompletedAt = &at
			} else {
				r.CompletedAt = nil
			}
		}
	}
	if p.CompletedAt != nil {
		if r.Status != StatusCompleted {
			return &ValidationError{Errors: []string{"completedAt can only be set on completed records"}}
		}
		at := *p.CompletedAt
		r.CompletedAt = &at
	}
	if p.Method != nil {
		r.Method = *p.Method
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	return nil
}

type DepositPatch struct {
	FinancialPatch
}

func (p *DepositPatch) Apply(d *Deposit, now time.Time) error {
	return p.apply(&d.FinancialRecord, now)
}

type WithdrawalPatch struct {
	FinancialPatch
}

func (p *WithdrawalPatch) Apply(w *Withdrawal, now time.Time) error {
	return p.apply(&w.FinancialRecord, now)
}

// TradePnLPatch edits a trade entry. NetPnL is recomputed on touch.
type TradePnLPatch struct {
	Date          *string          `json:"date"`
	Symbol        *string          `json:"symbol"`
	Profit        *decimal.Decimal `json:"profit"`
	Loss          *decimal.Decimal `json:"loss"`
	TotalTrades   *int             `json:"totalTrades"`
	WinningTrades *int             `json:"winningTrades"`
	LosingTrades  *int             `json:"losingTrades"`
	Notes         *string          `json:"notes"`
}

func (p *TradePnLPatch) Apply(e *TradePnLEntry, _ time.Time) error {
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Symbol != nil {
		e.Symbol = *p.Symbol
	}
	if p.Profit != nil {
		e.Profit = *p.Profit
	}
	if p.Loss != nil {
		e.Loss = *p.Loss
	}
	if p.TotalTrades != nil {
		e.TotalTrades = *p.TotalTrades
	}
	if p.WinningTrades != nil {
		e.WinningTrades = *p.WinningTrades
	}
	if p.LosingTrades != nil {
		e.LosingTrades = *p.LosingTrades
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	return nil
}

type WalletPatch struct {
	Name     *string          `json:"name"`
	Balance  *decimal.Decimal `json:"balance"`
	Currency *string          `json:"currency"`
}

func (p *WalletPatch) Apply(w *Wallet, _ time.Time) error {
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.Balance != nil {
		w.Balance = *p.Balance
	}
	if p.Currency != nil {
		w.Currency = *p.Currency
	}
	return nil
}

type TradeRulePatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Active      *bool     `json:"active"`
	CheckIns    *[]string `json:"checkIns"`
}

func (p *TradeRulePatch) Apply(r *TradeRule, _ time.Time) error {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Active != nil {
		r.Active = *p.Active
	}
	if p.CheckIns != nil {
		r.CheckIns = append([]string(nil), (*p.CheckIns)...)
	}
	return nil
}

// CheckInToggle flips one day on a trade rule.
type CheckInToggle struct {
	Day string
}

func (p CheckInToggle) Apply(r *TradeRule, _ time.Time) error {
	return r.ToggleCheckIn(p.Day)
}
