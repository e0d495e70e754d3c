// Package records defines the journal's persisted entities and the store
// boundary every backend implements.
package records

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts serialize as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// DayLayout is the calendar-day format used for trade entries and check-ins.
const DayLayout = "2006-01-02"

// Kind names a record collection.
type Kind string

const (
	KindDeposit    Kind = "deposits"
	KindWithdrawal Kind = "withdrawals"
	KindTradePnL   Kind = "trade_pnl"
	KindWallet     Kind = "wallets"
	KindTradeRule  Kind = "trade_rules"
)

// Status is the lifecycle state of a deposit or withdrawal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a record in status s may move to next.
// Completed is terminal; re-applying the current status is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	}
	return false
}

// FinancialRecord is the shared shape of deposits and withdrawals.
// RequestedAt is the canonical date used for dashboard bucketing.
type FinancialRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status" validate:"required,oneof=pending completed failed"`
	RequestedAt time.Time       `json:"requestedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Method      string          `json:"method,omitempty" validate:"max=64"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Deposit is money moved into the trading account.
type Deposit struct {
	FinancialRecord
}

// Withdrawal is money moved out of the trading account.
type Withdrawal struct {
	FinancialRecord
}

// TradePnLEntry is one trading day's aggregate result.
// NetPnL is always Profit - Loss and is recomputed on every write.
type TradePnLEntry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId" validate:"required"`
	Date          string          `json:"date" validate:"required,datetime=2006-01-02"`
	Symbol        string          `json:"symbol,omitempty" validate:"max=32"`
	Profit        decimal.Decimal `json:"profit"`
	Loss          decimal.Decimal `json:"loss"`
	NetPnL        decimal.Decimal `json:"netPnL"`
	TotalTrades   int             `json:"totalTrades" validate:"gte=0"`
	WinningTrades int             `json:"winningTrades" validate:"gte=0"`
	LosingTrades  int             `json:"losingTrades" validate:"gte=0"`
	Notes         string          `json:"notes,omitempty" validate:"max=2000"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Wallet is a named balance the user tracks by hand.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId" validate:"required"`
	Name      string          `json:"name" validate:"required,max=100"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency" validate:"required,min=3,max=10,alphanum"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TradeRule is a habit the user checks off per day.
// CheckIns holds sorted, unique calendar days.
type TradeRule struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId" validate:"required"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description,omitempty" validate:"max=2000"`
	Active      bool      `json:"active"`
	CheckIns    []string  `json:"checkIns" validate:"dive,datetime=2006-01-02"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// User is an account holder. PasswordHash never leaves the server.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// RecordSet is everything the dashboard needs for one user.
type RecordSet struct {
	Deposits    []Deposit
	Withdrawals []Withdrawal
	TradePnL    []TradePnLEntry
	Wallets     []Wallet
	TradeRules  []TradeRule
}
