package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"trading-journal/internal/logging"
	"trading-journal/internal/records"
)

// Repository is the PostgreSQL implementation of records.Store.
type Repository struct {
	db *DB

	deposits    *pgCollection[*records.Deposit]
	withdrawals *pgCollection[*records.Withdrawal]
	trades      *pgCollection[*records.TradePnLEntry]
	wallets     *pgCollection[*records.Wallet]
	rules       *pgCollection[*records.TradeRule]
	users       *userRepository
}

var _ records.Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{
		db:          db,
		deposits:    &pgCollection[*records.Deposit]{db: db, t: depositTable},
		withdrawals: &pgCollection[*records.Withdrawal]{db: db, t: withdrawalTable},
		trades:      &pgCollection[*records.TradePnLEntry]{db: db, t: tradeTable},
		wallets:     &pgCollection[*records.Wallet]{db: db, t: walletTable},
		rules:       &pgCollection[*records.TradeRule]{db: db, t: ruleTable},
		users:       &userRepository{db: db},
	}
}

func (r *Repository) Deposits() records.Collection[*records.Deposit]       { return r.deposits }
func (r *Repository) Withdrawals() records.Collection[*records.Withdrawal] { return r.withdrawals }
func (r *Repository) TradePnL() records.Collection[*records.TradePnLEntry] { return r.trades }
func (r *Repository) Wallets() records.Collection[*records.Wallet]         { return r.wallets }
func (r *Repository) TradeRules() records.Collection[*records.TradeRule]   { return r.rules }
func (r *Repository) Users() records.UserStore                             { return r.users }

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

// column maps one struct field to SQL. read is the SELECT expression and cast
// is appended to the bind placeholder on writes.
type column struct {
	name string
	read string
	cast string
}

func col(name string) column { return column{name: name, read: name} }

func decimalCol(name string) column {
	return column{name: name, read: name + "::text", cast: "::numeric"}
}

// table describes how one record kind is stored. The first column is always
// the primary key.
type table[T records.Record] struct {
	name    string
	columns []column
	values  func(T) []interface{}
	scan    func(pgx.Row) (T, error)
}

func (t *table[T]) selectSQL() string {
	reads := make([]string, len(t.columns))
	for i, c := range t.columns {
		reads[i] = c.read
	}
	return "SELECT " + strings.Join(reads, ", ") + " FROM " + t.name
}

func (t *table[T]) insertSQL() string {
	names := make([]string, len(t.columns))
	binds := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
		binds[i] = fmt.Sprintf("$%d%s", i+1, c.cast)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(names, ", "), strings.Join(binds, ", "))
}

func (t *table[T]) updateSQL() string {
	sets := make([]string, 0, len(t.columns)-1)
	for i, c := range t.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d%s", c.name, i+2, c.cast))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $1",
		t.name, strings.Join(sets, ", "), t.columns[0].name)
}

type pgCollection[T records.Record] struct {
	db *DB
	t  *table[T]
}

func (c *pgCollection[T]) List(ctx context.Context, userID string) ([]T, error) {
	query := c.t.selectSQL() + " WHERE user_id = $1 ORDER BY created_at DESC, id"
	rows, err := c.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.t.name, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		rec, err := c.t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.t.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.t.name, err)
	}
	return out, nil
}

func (c *pgCollection[T]) Get(ctx context.Context, id string) (T, error) {
	rec, err := c.t.scan(c.db.Pool.QueryRow(ctx, c.t.selectSQL()+" WHERE id = $1", id))
	if err != nil {
		var zero T
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, records.ErrNotFound
		}
		return zero, fmt.Errorf("failed to get %s: %w", c.t.name, err)
	}
	return rec, nil
}

func (c *pgCollection[T]) Create(ctx context.Context, rec T) error {
	if _, err := c.db.Pool.Exec(ctx, c.t.insertSQL(), c.t.values(rec)...); err != nil {
		if isUniqueViolation(err) {
			return records.ErrConflict
		}
		logging.DatabaseContext("insert", c.t.name).WithError(err).Error("insert failed", "record_id", rec.RecordID())
		return fmt.Errorf("failed to create %s: %w", c.t.name, err)
	}
	return nil
}

func (c *pgCollection[T]) Update(ctx context.Context, rec T) error {
	tag, err := c.db.Pool.Exec(ctx, c.t.updateSQL(), c.t.values(rec)...)
	if err != nil {
		logging.DatabaseContext("update", c.t.name).WithError(err).Error("update failed", "record_id", rec.RecordID())
		return fmt.Errorf("failed to update %s: %w", c.t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}

func (c *pgCollection[T]) Delete(ctx context.Context, id string) error {
	tag, err := c.db.Pool.Exec(ctx, "DELETE FROM "+c.t.name+" WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", c.t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric %q: %w", s, err)
	}
	return d, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ============================================================================
// TABLES
// ============================================================================

var financialColumns = []column{
	col("id"),
	col("user_id"),
	decimalCol("amount"),
	col("status"),
	col("requested_at"),
	col("completed_at"),
	col("method"),
	col("description"),
	col("created_at"),
	col("updated_at"),
}

func financialValues(r *records.FinancialRecord) []interface{} {
	return []interface{}{
		r.ID, r.UserID, r.Amount.String(), string(r.Status),
		r.RequestedAt, r.CompletedAt, r.Method, r.Description,
		r.CreatedAt, r.UpdatedAt,
	}
}

func scanFinancial(row pgx.Row) (records.FinancialRecord, error) {
	var (
		r      records.FinancialRecord
		amount string
		status string
	)
	err := row.Scan(
		&r.ID, &r.UserID, &amount, &status,
		&r.RequestedAt, &r.CompletedAt, &r.Method, &r.Description,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	if r.Amount, err = parseDecimal(amount); err != nil {
		return r, err
	}
	r.Status = records.Status(status)
	r.RequestedAt = r.RequestedAt.UTC()
	r.CompletedAt = utcPtr(r.CompletedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

var depositTable = &table[*records.Deposit]{
	name:    "deposits",
	columns: financialColumns,
	values:  func(d *records.Deposit) []interface{} { return financialValues(&d.FinancialRecord) },
	scan: func(row pgx.Row) (*records.Deposit, error) {
		f, err := scanFinancial(row)
		if err != nil {
			return nil, err
		}
		return &records.Deposit{FinancialRecord: f}, nil
	},
}

var withdrawalTable = &table[*records.Withdrawal]{
	name:    "withdrawals",
	columns: financialColumns,
	values:  func(w *records.Withdrawal) []interface{} { return financialValues(&w.FinancialRecord) },
	scan: func(row pgx.Row) (*records.Withdrawal, error) {
		f, err := scanFinancial(row)
		if err != nil {
			return nil, err
		}
		return &records.Withdrawal{FinancialRecord: f}, nil
	},
}

var tradeTable = &table[*records.TradePnLEntry]{
	name: "trade_pnl",
	columns: []column{
		col("id"),
		col("user_id"),
		{name: "trade_date", read: "to_char(trade_date, 'YYYY-MM-DD')", cast: "::date"},
		col("symbol"),
		decimalCol("profit"),
		decimalCol("loss"),
		decimalCol("net_pnl"),
		col("total_trades"),
		col("winning_trades"),
		col("losing_trades"),
		col("notes"),
		col("created_at"),
		col("updated_at"),
	},
	values: func(e *records.TradePnLEntry) []interface{} {
		return []interface{}{
			e.ID, e.UserID, e.Date, e.Symbol,
			e.Profit.String(), e.Loss.String(), e.NetPnL.String(),
			e.TotalTrades, e.WinningTrades, e.LosingTrades, e.Notes,
			e.CreatedAt, e.UpdatedAt,
		}
	},
	scan: func(row pgx.Row) (*records.TradePnLEntry, error) {
		var (
			e                    records.TradePnLEntry
			profit, loss, netPnL string
		)
		err := row.Scan(
			&e.ID, &e.UserID, &e.Date, &e.Symbol,
			&profit, &loss, &netPnL,
			&e.TotalTrades, &e.WinningTrades, &e.LosingTrades, &e.Notes,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if e.Profit, err = parseDecimal(profit); err != nil {
			return nil, err
		}
		if e.Loss, err = parseDecimal(loss); err != nil {
			return nil, err
		}
		if e.NetPnL, err = parseDecimal(netPnL); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.UpdatedAt = e.UpdatedAt.UTC()
		return &e, nil
	},
}

var walletTable = &table[*records.Wallet]{
	name: "wallets",
	columns: []column{
		col("id"),
		col("user_id"),
		col("name"),
		decimalCol("balance"),
		col("currency"),
		col("created_at"),
		col("updated_at"),
	},
	values: func(w *records.Wallet) []interface{} {
		return []interface{}{w.ID, w.UserID, w.Name, w.Balance.String(), w.Currency, w.CreatedAt, w.UpdatedAt}
	},
	scan: func(row pgx.Row) (*records.Wallet, error) {
		var (
			w       records.Wallet
			balance string
		)
		if err := row.Scan(&w.ID, &w.UserID, &w.Name, &balance, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		var err error
		if w.Balance, err = parseDecimal(balance); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		w.UpdatedAt = w.UpdatedAt.UTC()
		return &w, nil
	},
}

var ruleTable = &table[*records.TradeRule]{
	name: "trade_rules",
	columns: []column{
		col("id"),
		col("user_id"),
		col("title"),
		col("description"),
		col("active"),
		col("check_ins"),
		col("created_at"),
		col("updated_at"),
	},
	values: func(r *records.TradeRule) []interface{} {
		checkIns := r.CheckIns
		if checkIns == nil {
			checkIns = []string{}
		}
		return []interface{}{r.ID, r.UserID, r.Title, r.Description, r.Active, checkIns, r.CreatedAt, r.UpdatedAt}
	},
	scan: func(row pgx.Row) (*records.TradeRule, error) {
		var r records.TradeRule
		if err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Active, &r.CheckIns, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if r.CheckIns == nil {
			r.CheckIns = []string{}
		}
		r.CreatedAt = r.CreatedAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		return &r, nil
	},
}
