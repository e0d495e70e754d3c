package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trading-journal/internal/dashboard"
)

// handleGetDashboard serves GET /api/dashboard
//
// Query parameters: timeframe (comma separated, default 1M), year,
// customStartDate and customEndDate (YYYY-MM-DD or RFC3339), tz (IANA zone).
func (s *Server) handleGetDashboard(c *gin.Context) {
	userID, ok := s.getUserIDRequired(c)
	if !ok {
		return
	}

	q, err := s.parseDashboardQuery(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp, err := s.dashboard.GetDashboard(c.Request.Context(), userID, q)
	if err != nil {
		s.respondError(c, err)
		return
	}

	successResponse(c, resp)
}

func (s *Server) parseDashboardQuery(c *gin.Context) (dashboard.Query, error) {
	var q dashboard.Query

	loc := s.dashboard.Aggregator().Location()
	if tz := strings.TrimSpace(c.Query("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return q, &dashboard.InvalidRangeError{Reason: "unknown time zone " + strconv.Quote(tz)}
		}
		loc = l
		q.Location = l
	}

	for _, part := range strings.Split(c.Query("timeframe"), ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		tf, err := dashboard.ParseTimeframe(part)
		if err != nil {
			return q, err
		}
		q.Timeframes = append(q.Timeframes, tf)
	}

	if y := strings.TrimSpace(c.Query("year")); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year <= 0 {
			return q, &dashboard.InvalidRangeError{Reason: "year must be a positive number"}
		}
		q.Year = year
	}

	custom, err := dashboard.ParseCustomRange(c.Query("customStartDate"), c.Query("customEndDate"), loc)
	if err != nil {
		return q, err
	}
	q.Custom = custom

	return q, nil
}
