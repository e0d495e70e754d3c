package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trading-journal/internal/logging"
	"trading-journal/internal/records"
)

// ResponseCache stores encoded dashboards per user. Implementations are
// best effort: a failed Set or Invalidate must not fail the request.
//
// Get also returns the user's cache generation. Set must drop data whose
// generation is older than the latest Invalidate, so a dashboard built from
// records read before a write never outlives that write.
type ResponseCache interface {
	Get(ctx context.Context, userID, key string) ([]byte, uint64, bool)
	Set(ctx context.Context, userID, key string, gen uint64, data []byte)
	Invalidate(ctx context.Context, userID string)
}

// Service serves dashboards: it loads a user's records from the store,
// runs the aggregator and caches the encoded result.
type Service struct {
	store records.Store
	agg   *Aggregator
	cache ResponseCache
	clock func() time.Time
}

// NewService creates a dashboard service. cache may be nil.
func NewService(store records.Store, agg *Aggregator, cache ResponseCache) *Service {
	return &Service{
		store: store,
		agg:   agg,
		cache: cache,
		clock: time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Aggregator returns the aggregator the service builds dashboards with.
func (s *Service) Aggregator() *Aggregator {
	return s.agg
}

// GetDashboard returns the dashboard for userID. Malformed queries fail
// with *InvalidRangeError before the store is read; store failures come
// back as *UpstreamFetchError and are not retried.
func (s *Service) GetDashboard(ctx context.Context, userID string, q Query) (*Response, error) {
	now := s.clock()
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":    userID,
		"timeframes": timeframeNames(q.Timeframes),
	}).WithComponent("dashboard")

	if err := s.agg.withLocation(q.Location).Validate(q, now); err != nil {
		return nil, err
	}

	key := s.cacheKey(q, now)
	var gen uint64
	if s.cache != nil {
		var data []byte
		var ok bool
		if data, gen, ok = s.cache.Get(ctx, userID, key); ok {
			var resp Response
			if err := json.Unmarshal(data, &resp); err == nil {
				log.Debug("dashboard served from cache", "key", key)
				return &resp, nil
			}
			log.Warn("discarding undecodable cached dashboard", "key", key)
		}
	}

	start := time.Now()
	set, err := records.LoadRecordSet(ctx, s.store, userID)
	if err != nil {
		log.WithError(err).Error("failed to load records for dashboard")
		return nil, &UpstreamFetchError{Op: "load records", Err: err}
	}

	resp, err := s.agg.Build(set, q, now)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.cache.Set(ctx, userID, key, gen, data)
		}
	}

	skipped := 0
	for _, sum := range resp.Summaries {
		skipped += sum.SkippedCount
	}
	log.WithDuration(time.Since(start)).Debug("dashboard built",
		"deposits", len(set.Deposits),
		"withdrawals", len(set.Withdrawals),
		"trade_entries", len(set.TradePnL),
		"skipped", skipped,
	)
	if skipped > 0 {
		log.Warn("records without a usable date were skipped", "skipped", skipped)
	}
	return resp, nil
}

// Invalidate drops every cached dashboard of userID.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, userID)
	logging.DashboardContext(userID, nil).Debug("dashboard cache invalidated")
}

// cacheKey identifies a query for one calendar day. Including the day keeps
// rolling windows from being served across midnight.
func (s *Service) cacheKey(q Query, now time.Time) string {
	loc := s.agg.withLocation(q.Location).loc

	var b strings.Builder
	b.WriteString(strings.Join(timeframeNames(uniqueTimeframes(q.Timeframes, s.agg.defaultTimeframe)), ","))
	fmt.Fprintf(&b, "|y=%d|tz=%s|d=%s", q.Year, loc.String(), now.In(loc).Format(records.DayLayout))
	if q.Custom != nil {
		fmt.Fprintf(&b, "|c=%d-%d", q.Custom.Start.UnixNano(), q.Custom.End.UnixNano())
	}
	return b.String()
}

func timeframeNames(tfs []Timeframe) []string {
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = string(tf)
	}
	return out
}
