package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection is the CRUD surface of one record kind. List returns only the
// given user's records, newest first. Get, Update and Delete return
// ErrNotFound for unknown ids.
type Collection[T Record] interface {
	List(ctx context.Context, userID string) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, rec T) error
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, id string) error
}

// UserStore persists accounts. Emails are stored lowercased.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// Store is the RecordStore boundary implemented by every backend.
type Store interface {
	Deposits() Collection[*Deposit]
	Withdrawals() Collection[*Withdrawal]
	TradePnL() Collection[*TradePnLEntry]
	Wallets() Collection[*Wallet]
	TradeRules() Collection[*TradeRule]
	Users() UserStore

	HealthCheck(ctx context.Context) error
	Close() error
}

// NormalizeEmail is the canonical form used as the unique key for users.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetOwned fetches id and checks that userID owns it.
func GetOwned[T Record](ctx context.Context, c Collection[T], userID, id string) (T, error) {
	rec, err := c.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if rec.OwnerID() != userID {
		var zero T
		return zero, ErrForbidden
	}
	return rec, nil
}

// CreateOwned assigns a fresh id and owner to rec, validates it and stores it.
func CreateOwned[T Record](ctx context.Context, c Collection[T], userID string, rec T, now time.Time) (T, error) {
	rec.stamp(uuid.NewString(), userID, now)
	if err := rec.Validate(); err != nil {
		var zero T
		return zero, err
	}
	if err := c.Create(ctx, rec); err != nil {
		var zero T
		return zero, fmt.Errorf("create record: %w", err)
	}
	return rec, nil
}

// UpdateOwned applies patch to a record userID owns and stores the result.
func UpdateOwned[T Record](ctx context.Context, c Collection[T], userID, id string, patch Patch[T], now time.Time) (T, error) {
	var zero T
	rec, err := GetOwned(ctx, c, userID, id)
	if err != nil {
		return zero, err
	}
	if err := patch.Apply(rec, now); err != nil {
		return zero, err
	}
	rec.touch(now)
	if err := rec.Validate(); err != nil {
		return zero, err
	}
	if err := c.Update(ctx, rec); err != nil {
		return zero, fmt.Errorf("update record: %w", err)
	}
	return rec, nil
}

// DeleteOwned removes a record userID owns.
func DeleteOwned[T Record](ctx context.Context, c Collection[T], userID, id string) error {
	if _, err := GetOwned(ctx, c, userID, id); err != nil {
		return err
	}
	return c.Delete(ctx, id)
}

// LoadRecordSet fetches every collection the dashboard reads for userID.
// The first failing collection aborts the load.
func LoadRecordSet(ctx context.Context, s Store, userID string) (RecordSet, error) {
	var set RecordSet

	deposits, err := s.Deposits().List(ctx, userID)
	if err != nil {
		return set, fmt.Errorf("list %s: %w", KindDeposit, err)
	}
	withdrawals, err := s.Withdrawals().List(ctx, userID)
	if err != nil {
		return set, fmt.Errorf("list %s: %w", KindWithdrawal, err)
	}
	trades, err := s.TradePnL().List(ctx, userID)
	if err != nil {
		return set, fmt.Errorf("list %s: %w", KindTradePnL, err)
	}
	wallets, err := s.Wallets().List(ctx, userID)
	if err != nil {
		return set, fmt.Errorf("list %s: %w", KindWallet, err)
	}
	rules, err := s.TradeRules().List(ctx, userID)
	if err != nil {
		return set, fmt.Errorf("list %s: %w", KindTradeRule, err)
	}

	set.Deposits = deref(deposits)
	set.Withdrawals = deref(withdrawals)
	set.TradePnL = deref(trades)
	set.Wallets = deref(wallets)
	set.TradeRules = deref(rules)
	return set, nil
}

func deref[T any](in []*T) []T {
	out := make([]T, 0, len(in))
	for _, p := range in {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
