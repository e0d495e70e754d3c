package firestore

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/records"
)

// Documents are loosely typed: numbers may arrive as int64, float64 or
// strings, and dates as timestamps or strings. Readers accept all of them and
// fall back to the zero value for anything else.

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string, def bool) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 0
}

func getDecimal(data map[string]interface{}, key string) decimal.Decimal {
	switch v := data[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// getTime reads a timestamp, an RFC3339 string or a YYYY-MM-DD string (taken
// as UTC midnight).
func getTime(data map[string]interface{}, key string) time.Time {
	switch v := data[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(records.DayLayout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func getTimePtr(data map[string]interface{}, key string) *time.Time {
	t := getTime(data, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// getDay reads a calendar day, accepting a timestamp in place of a string.
func getDay(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		s := strings.TrimSpace(v)
		if len(s) > len(records.DayLayout) {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t.UTC().Format(records.DayLayout)
			}
		}
		return s
	case time.Time:
		return v.UTC().Format(records.DayLayout)
	}
	return ""
}

func getStringSlice(data map[string]interface{}, key string) []string {
	raw, ok := data[key].([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// amount encodes money as its exact decimal string. getDecimal still reads
// the float and integer amounts written by older clients.
func amount(d decimal.Decimal) string {
	return d.String()
}

// ============================================================================
// RECORD CODECS
// ============================================================================

func encodeFinancial(r *records.FinancialRecord) map[string]interface{} {
	doc := map[string]interface{}{
		"userId":      r.UserID,
		"amount":      amount(r.Amount),
		"status":      string(r.Status),
		"requestedAt": r.RequestedAt,
		"method":      r.Method,
		"description": r.Description,
		"createdAt":   r.CreatedAt,
		"updatedAt":   r.UpdatedAt,
	}
	if r.CompletedAt != nil {
		doc["completedAt"] = *r.CompletedAt
	}
	return doc
}

func decodeFinancial(id string, data map[string]interface{}) records.FinancialRecord {
	return records.FinancialRecord{
		ID:          id,
		UserID:      getString(data, "userId"),
		Amount:      getDecimal(data, "amount"),
		Status:      records.Status(strings.ToLower(getString(data, "status"))),
		RequestedAt: getTime(data, "requestedAt"),
		CompletedAt: getTimePtr(data, "completedAt"),
		Method:      getString(data, "method"),
		Description: getString(data, "description"),
		CreatedAt:   getTime(data, "createdAt"),
		UpdatedAt:   getTime(data, "updatedAt"),
	}
}

func encodeDeposit(d *records.Deposit) map[string]interface{} {
	return encodeFinancial(&d.FinancialRecord)
}

func decodeDeposit(id string, data map[string]interface{}) *records.Deposit {
	return &records.Deposit{FinancialRecord: decodeFinancial(id, data)}
}

func encodeWithdrawal(w *records.Withdrawal) map[string]interface{} {
	return encodeFinancial(&w.FinancialRecord)
}

func decodeWithdrawal(id string, data map[string]interface{}) *records.Withdrawal {
	return &records.Withdrawal{FinancialRecord: decodeFinancial(id, data)}
}

func encodeTrade(e *records.TradePnLEntry) map[string]interface{} {
	return map[string]interface{}{
		"userId":        e.UserID,
		"date":          e.Date,
		"symbol":        e.Symbol,
		"profit":        amount(e.Profit),
		"loss":          amount(e.Loss),
		"netPnL":        amount(e.NetPnL),
		"totalTrades":   e.TotalTrades,
		"winningTrades": e.WinningTrades,
		"losingTrades":  e.LosingTrades,
		"notes":         e.Notes,
		"createdAt":     e.CreatedAt,
		"updatedAt":     e.UpdatedAt,
	}
}

// decodeTrade recomputes netPnL from profit and loss; a stored netPnL that
// disagrees is ignored.
func decodeTrade(id string, data map[string]interface{}) *records.TradePnLEntry {
	e := &records.TradePnLEntry{
		ID:            id,
		UserID:        getString(data, "userId"),
		Date:          getDay(data, "date"),
		Symbol:        getString(data, "symbol"),
		Profit:        getDecimal(data, "profit"),
		Loss:          getDecimal(data, "loss"),
		TotalTrades:   getInt(data, "totalTrades"),
		WinningTrades: getInt(data, "winningTrades"),
		LosingTrades:  getInt(data, "losingTrades"),
		Notes:         getString(data, "notes"),
		CreatedAt:     getTime(data, "createdAt"),
		UpdatedAt:     getTime(data, "updatedAt"),
	}
	e.NetPnL = e.Profit.Sub(e.Loss)
	return e
}

func encodeWallet(w *records.Wallet) map[string]interface{} {
	return map[string]interface{}{
		"userId":    w.UserID,
		"name":      w.Name,
		"balance":   amount(w.Balance),
		"currency":  w.Currency,
		"createdAt": w.CreatedAt,
		"updatedAt": w.UpdatedAt,
	}
}

func decodeWallet(id string, data map[string]interface{}) *records.Wallet {
	return &records.Wallet{
		ID:        id,
		UserID:    getString(data, "userId"),
		Name:      getString(data, "name"),
		Balance:   getDecimal(data, "balance"),
		Currency:  getString(data, "currency"),
		CreatedAt: getTime(data, "createdAt"),
		UpdatedAt: getTime(data, "updatedAt"),
	}
}

func encodeRule(r *records.TradeRule) map[string]interface{} {
	checkIns := r.CheckIns
	if checkIns == nil {
		checkIns = []string{}
	}
	return map[string]interface{}{
		"userId":      r.UserID,
		"title":       r.Title,
		"description": r.Description,
		"active":      r.Active,
		"checkIns":    checkIns,
		"createdAt":   r.CreatedAt,
		"updatedAt":   r.UpdatedAt,
	}
}

func decodeRule(id string, data map[string]interface{}) *records.TradeRule {
	return &records.TradeRule{
		ID:          id,
		UserID:      getString(data, "userId"),
		Title:       getString(data, "title"),
		Description: getString(data, "description"),
		Active:      getBool(data, "active", true),
		CheckIns:    getStringSlice(data, "checkIns"),
		CreatedAt:   getTime(data, "createdAt"),
		UpdatedAt:   getTime(data, "updatedAt"),
	}
}

func encodeUser(u *records.User) map[string]interface{} {
	doc := map[string]interface{}{
		"email":        records.NormalizeEmail(u.Email),
		"name":         u.Name,
		"passwordHash": u.PasswordHash,
		"createdAt":    u.CreatedAt,
	}
	if u.LastLoginAt != nil {
		doc["lastLoginAt"] = *u.LastLoginAt
	}
	return doc
}

func decodeUser(id string, data map[string]interface{}) *records.User {
	return &records.User{
		ID:           id,
		Email:        getString(data, "email"),
		Name:         getString(data, "name"),
		PasswordHash: getString(data, "passwordHash"),
		CreatedAt:    getTime(data, "createdAt"),
		LastLoginAt:  getTimePtr(data, "lastLoginAt"),
	}
}
