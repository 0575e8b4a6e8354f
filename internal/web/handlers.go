package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/analytics"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunSummary is one row of GET /api/v1/runs.
type RunSummary struct {
	RunID        string             `json:"run_id"`
	CurrentStage pipeline.StageName `json:"current_stage"`
	Outcome      string             `json:"outcome"`
	Finding      string             `json:"finding,omitempty"`
	ReviewURL    string             `json:"review_url,omitempty"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at"`
	Updated      string             `json:"updated"`
}

// EffortResponse is the body of GET /api/v1/effort.
type EffortResponse struct {
	TotalEffortMinutes int `json:"totalEffortMinutes"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleRuns(c echo.Context) error {
	runs, err := s.opts.Store.List(c.QueryParam("outcome"))
	if err != nil {
		return s.internal("list runs", err)
	}
	out := make([]RunSummary, 0, len(runs))
	for i := range runs {
		out = append(out, summarize(&runs[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleRun(c echo.Context) error {
	st, err := s.opts.Store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleRunEvents(c echo.Context) error {
	if s.opts.Ledger == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event ledger not configured")
	}
	events, err := s.opts.Ledger.RunEvents(c.Param("id"))
	if err != nil {
		return s.internal("run events", err)
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleRecentEvents(c echo.Context) error {
	if s.opts.Ledger == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event ledger not configured")
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	events, err := s.opts.Ledger.RecentEvents(limit)
	if err != nil {
		return s.internal("recent events", err)
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleRecords(c echo.Context) error {
	recs, err := s.opts.Records.List()
	if err != nil {
		return s.internal("list records", err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (s *Server) handleEffort(c echo.Context) error {
	total, err := s.opts.Effort.Total()
	if err != nil {
		return s.internal("effort total", err)
	}
	return c.JSON(http.StatusOK, EffortResponse{TotalEffortMinutes: total})
}

func (s *Server) handleStats(c echo.Context) error {
	if s.opts.Ledger == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event ledger not configured")
	}
	since := c.QueryParam("since")
	if since != "" {
		if _, err := time.Parse(time.RFC3339, since); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC 3339 timestamp")
		}
	}
	stats, err := analytics.Collect(s.opts.Ledger, since)
	if err != nil {
		return s.internal("collect stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) internal(op string, err error) error {
	s.logger.Error(op, zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, op+" failed")
}

func summarize(st *pipeline.RunState) RunSummary {
	sum := RunSummary{
		RunID:        st.RunID,
		CurrentStage: st.CurrentStage,
		Outcome:      st.Outcome,
		Error:        st.Error,
		CreatedAt:    st.CreatedAt,
		UpdatedAt:    st.UpdatedAt,
		Updated:      relTime(st.UpdatedAt),
	}
	if sum.Outcome == "" {
		sum.Outcome = "running"
	}
	if st.Finding != nil {
		sum.Finding = st.Finding.Key
	}
	if st.Review != nil {
		sum.ReviewURL = st.Review.URL
	}
	return sum
}

// relTime renders a stored timestamp relative to now.
func relTime(ts string) string {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(ts))
	if err != nil {
		return ts
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
