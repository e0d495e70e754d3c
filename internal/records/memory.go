package records

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps every collection in process memory. Records are copied
// on the way in and out so callers never share state with the store.
type MemoryStore struct {
	deposits    *memCollection[*Deposit]
	withdrawals *memCollection[*Withdrawal]
	trades      *memCollection[*TradePnLEntry]
	wallets     *memCollection[*Wallet]
	rules       *memCollection[*TradeRule]
	users       *memUsers
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deposits: newMemCollection(func(d *Deposit) *Deposit {
			c := *d
			c.CompletedAt = copyTime(d.CompletedAt)
			return &c
		}),
		withdrawals: newMemCollection(func(w *Withdrawal) *Withdrawal {
			c := *w
			c.CompletedAt = copyTime(w.CompletedAt)
			return &c
		}),
		trades: newMemCollection(func(e *TradePnLEntry) *TradePnLEntry {
			c := *e
			return &c
		}),
		wallets: newMemCollection(func(w *Wallet) *Wallet {
			c := *w
			return &c
		}),
		rules: newMemCollection(func(r *TradeRule) *TradeRule {
			c := *r
			c.CheckIns = append([]string{}, r.CheckIns...)
			return &c
		}),
		users: &memUsers{
			byID:    make(map[string]*User),
			byEmail: make(map[string]string),
		},
	}
}

func (s *MemoryStore) Deposits() Collection[*Deposit]        { return s.deposits }
func (s *MemoryStore) Withdrawals() Collection[*Withdrawal]  { return s.withdrawals }
func (s *MemoryStore) TradePnL() Collection[*TradePnLEntry]  { return s.trades }
func (s *MemoryStore) Wallets() Collection[*Wallet]          { return s.wallets }
func (s *MemoryStore) TradeRules() Collection[*TradeRule]    { return s.rules }
func (s *MemoryStore) Users() UserStore                      { return s.users }
func (s *MemoryStore) HealthCheck(ctx context.Context) error { return ctx.Err() }
func (s *MemoryStore) Close() error                          { return nil }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

type memCollection[T Record] struct {
	mu    sync.RWMutex
	items map[string]T
	clone func(T) T
}

func newMemCollection[T Record](clone func(T) T) *memCollection[T] {
	return &memCollection[T]{items: make(map[string]T), clone: clone}
}

func (c *memCollection[T]) List(ctx context.Context, userID string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	out := make([]T, 0)
	for _, rec := range c.items {
		if rec.OwnerID() == userID {
			out = append(out, c.clone(rec))
		}
	}
	c.mu.RUnlock()

	SortNewestFirst(out)
	return out, nil
}

func (c *memCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.items[id]
	if !ok {
		return zero, ErrNotFound
	}
	return c.clone(rec), nil
}

func (c *memCollection[T]) Create(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[rec.RecordID()]; exists {
		return ErrConflict
	}
	c.items[rec.RecordID()] = c.clone(rec)
	return nil
}

func (c *memCollection[T]) Update(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[rec.RecordID()]; !exists {
		return ErrNotFound
	}
	c.items[rec.RecordID()] = c.clone(rec)
	return nil
}

func (c *memCollection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[id]; !exists {
		return ErrNotFound
	}
	delete(c.items, id)
	return nil
}

type memUsers struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

func (m *memUsers) CreateUser(ctx context.Context, u *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := NormalizeEmail(u.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[email]; exists {
		return ErrConflict
	}
	if _, exists := m.byID[u.ID]; exists {
		return ErrConflict
	}
	c := *u
	c.Email = email
	c.LastLoginAt = copyTime(u.LastLoginAt)
	m.byID[c.ID] = &c
	m.byEmail[email] = c.ID
	return nil
}

func (m *memUsers) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.copyUser(id), nil
}

func (m *memUsers) GetUserByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.byID[id]; !ok {
		return nil, ErrNotFound
	}
	return m.copyUser(id), nil
}

func (m *memUsers) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

// copyUser must be called with mu held.
func (m *memUsers) copyUser(id string) *User {
	u := m.byID[id]
	c := *u
	c.LastLoginAt = copyTime(u.LastLoginAt)
	return &c
}
