package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-journal/internal/events"
	"trading-journal/internal/logging"
	"trading-journal/internal/records"
)

// resource serves the CRUD routes of one record kind.
type resource[T records.Record, P records.Patch[T]] struct {
	server     *Server
	kind       records.Kind
	collection records.Collection[T]
	newRecord  func() T
	newPatch   func() P
}

func (s *Server) registerRecordRoutes(g *gin.RouterGroup) {
	deposits := &resource[*records.Deposit, *records.DepositPatch]{
		server:     s,
		kind:       records.KindDeposit,
		collection: s.store.Deposits(),
		newRecord:  func() *records.Deposit { return &records.Deposit{} },
		newPatch:   func() *records.DepositPatch { return &records.DepositPatch{} },
	}
	withdrawals := &resource[*records.Withdrawal, *records.WithdrawalPatch]{
		server:     s,
		kind:       records.KindWithdrawal,
		collection: s.store.Withdrawals(),
		newRecord:  func() *records.Withdrawal { return &records.Withdrawal{} },
		newPatch:   func() *records.WithdrawalPatch { return &records.WithdrawalPatch{} },
	}
	trades := &resource[*records.TradePnLEntry, *records.TradePnLPatch]{
		server:     s,
		kind:       records.KindTradePnL,
		collection: s.store.TradePnL(),
		newRecord:  func() *records.TradePnLEntry { return &records.TradePnLEntry{} },
		newPatch:   func() *records.TradePnLPatch { return &records.TradePnLPatch{} },
	}
	wallets := &resource[*records.Wallet, *records.WalletPatch]{
		server:     s,
		kind:       records.KindWallet,
		collection: s.store.Wallets(),
		newRecord:  func() *records.Wallet { return &records.Wallet{} },
		newPatch:   func() *records.WalletPatch { return &records.WalletPatch{} },
	}
	rules := &resource[*records.TradeRule, *records.TradeRulePatch]{
		server:     s,
		kind:       records.KindTradeRule,
		collection: s.store.TradeRules(),
		newRecord:  func() *records.TradeRule { return &records.TradeRule{Active: true} },
		newPatch:   func() *records.TradeRulePatch { return &records.TradeRulePatch{} },
	}

	deposits.register(g.Group("/deposits"))
	withdrawals.register(g.Group("/withdrawals"))
	trades.register(g.Group("/trade-pnl"))
	wallets.register(g.Group("/wallets"))

	ruleGroup := g.Group("/trade-rules")
	rules.register(ruleGroup)
	ruleGroup.POST("/:id/check-ins/:date", s.handleToggleCheckIn(rules))
}

func (r *resource[T, P]) register(g *gin.RouterGroup) {
	g.GET("", r.list)
	g.POST("", r.create)
	g.GET("/:id", r.get)
	g.PATCH("/:id", r.update)
	g.DELETE("/:id", r.remove)
}

func (r *resource[T, P]) list(c *gin.Context) {
	userID, ok := r.server.getUserIDRequired(c)
	if !ok {
		return
	}

	items, err := r.collection.List(c.Request.Context(), userID)
	if err != nil {
		r.server.respondError(c, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	successResponse(c, items)
}

func (r *resource[T, P]) get(c *gin.Context) {
	userID, ok := r.server.getUserIDRequired(c)
	if !ok {
		return
	}

	rec, err := records.GetOwned(c.Request.Context(), r.collection, userID, c.Param("id"))
	if err != nil {
		r.server.respondError(c, err)
		return
	}
	successResponse(c, rec)
}

func (r *resource[T, P]) create(c *gin.Context) {
	userID, ok := r.server.getUserIDRequired(c)
	if !ok {
		return
	}

	rec := r.newRecord()
	if err := c.ShouldBindJSON(rec); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := records.CreateOwned(c.Request.Context(), r.collection, userID, rec, r.server.now().UTC())
	if err != nil {
		r.server.respondError(c, err)
		return
	}

	r.changed(c.Request.Context(), events.EventRecordCreated, userID, created.RecordID())
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    created,
	})
}

func (r *resource[T, P]) update(c *gin.Context) {
	userID, ok := r.server.getUserIDRequired(c)
	if !ok {
		return
	}

	patch := r.newPatch()
	if err := c.ShouldBindJSON(patch); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	r.apply(c, userID, c.Param("id"), patch)
}

func (r *resource[T, P]) remove(c *gin.Context) {
	userID, ok := r.server.getUserIDRequired(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := records.DeleteOwned(c.Request.Context(), r.collection, userID, id); err != nil {
		r.server.respondError(c, err)
		return
	}

	r.changed(c.Request.Context(), events.EventRecordDeleted, userID, id)
	successResponse(c, gin.H{"id": id})
}

// handleToggleCheckIn serves POST /api/trade-rules/:id/check-ins/:date
func (s *Server) handleToggleCheckIn(rules *resource[*records.TradeRule, *records.TradeRulePatch]) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := s.getUserIDRequired(c)
		if !ok {
			return
		}
		rules.apply(c, userID, c.Param("id"), records.CheckInToggle{Day: c.Param("date")})
	}
}

func (r *resource[T, P]) apply(c *gin.Context, userID, id string, patch records.Patch[T]) {
	updated, err := records.UpdateOwned(c.Request.Context(), r.collection, userID, id, patch, r.server.now().UTC())
	if err != nil {
		r.server.respondError(c, err)
		return
	}

	r.changed(c.Request.Context(), events.EventRecordUpdated, userID, id)
	successResponse(c, updated)
}

// changed drops the user's cached dashboards and announces the write.
func (r *resource[T, P]) changed(ctx context.Context, eventType events.EventType, userID, recordID string) {
	logging.RecordContext(string(r.kind), userID, recordID).
		WithTraceID(logging.TraceIDFromContext(ctx)).
		Info("record changed", "event", string(eventType))

	r.server.dashboard.Invalidate(ctx, userID)
	if r.server.eventBus != nil {
		r.server.eventBus.PublishRecordChange(eventType, userID, string(r.kind), recordID)
	}
}
