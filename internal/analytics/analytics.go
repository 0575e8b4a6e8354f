package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// StageDuration holds duration stats for a stage.
type StageDuration struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
}

// QueryStageDurations returns average and percentile durations per stage,
// computed from stage_completed events. since is an RFC 3339 lower bound
// on the event timestamp; "" means all time.
func QueryStageDurations(database DB, since string) ([]StageDuration, error) {
	query := `SELECT stage, duration_ms FROM run_events WHERE event = 'stage_completed' AND stage != ''`
	args := []any{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	stageDurations := make(map[string][]float64)
	for rows.Next() {
		var stage string
		var ms int64
		if err := rows.Scan(&stage, &ms); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		stageDurations[stage] = append(stageDurations[stage], float64(ms)/1000)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for stage, durations := range stageDurations {
		sort.Float64s(durations)
		results = append(results, StageDuration{
			Stage: stage,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// StageFailureRate holds failure stats per stage.
type StageFailureRate struct {
	Stage     string  `json:"stage"`
	Total     int     `json:"total"`
	Failed    int     `json:"failed"`
	FailedPct float64 `json:"failed_pct"`
}

// QueryStageFailureRates returns how often each stage ended the run.
func QueryStageFailureRates(database DB, since string) ([]StageFailureRate, error) {
	query := `
		SELECT stage,
			COUNT(*) as total,
			SUM(CASE WHEN event = 'stage_failed' THEN 1 ELSE 0 END) as failed
		FROM run_events
		WHERE event IN ('stage_completed', 'stage_failed')
		AND stage != ''`

	args := []any{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY stage ORDER BY stage`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query stage failure rates: %w", err)
	}
	defer rows.Close()

	var results []StageFailureRate
	for rows.Next() {
		var r StageFailureRate
		if err := rows.Scan(&r.Stage, &r.Total, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan stage failure rate: %w", err)
		}
		r.FailedPct = pct(r.Failed, r.Total)
		results = append(results, r)
	}
	return results, rows.Err()
}

// OutcomeCounts summarises how finished runs ended.
type OutcomeCounts struct {
	Total            int     `json:"total"`
	Success          int     `json:"success"`
	NothingToProcess int     `json:"nothing_to_process"`
	Failed           int     `json:"failed"`
	SuccessPct       float64 `json:"success_pct"`
}

// QueryOutcomes counts run_finished events by outcome.
func QueryOutcomes(database DB, since string) (*OutcomeCounts, error) {
	query := `SELECT detail, COUNT(*) FROM run_events WHERE event = 'run_finished'`
	args := []any{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY detail`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	oc := &OutcomeCounts{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		oc.Total += n
		switch outcome {
		case "success":
			oc.Success += n
		case "nothing_to_process":
			oc.NothingToProcess += n
		default:
			oc.Failed += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	oc.SuccessPct = pct(oc.Success, oc.Total)
	return oc, nil
}

// Throughput holds run counts for one day.
type Throughput struct {
	Period    string `json:"period"`
	Started   int    `json:"started"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// QueryThroughput returns run counts grouped by UTC day, newest first.
func QueryThroughput(database DB, since string) ([]Throughput, error) {
	query := `
		SELECT
			substr(timestamp, 1, 10) as period,
			SUM(CASE WHEN event = 'run_started' THEN 1 ELSE 0 END) as started,
			SUM(CASE WHEN event = 'run_finished' AND detail = 'success' THEN 1 ELSE 0 END) as succeeded,
			SUM(CASE WHEN event = 'run_finished' AND detail = 'failed' THEN 1 ELSE 0 END) as failed
		FROM run_events
		WHERE event IN ('run_started', 'run_finished')`

	args := []any{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY substr(timestamp, 1, 10) ORDER BY period DESC LIMIT 14`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query throughput: %w", err)
	}
	defer rows.Close()

	var results []Throughput
	for rows.Next() {
		var t Throughput
		if err := rows.Scan(&t.Period, &t.Started, &t.Succeeded, &t.Failed); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// Stats bundles every analytics view.
type Stats struct {
	Outcomes   *OutcomeCounts     `json:"outcomes"`
	Stages     []StageDuration    `json:"stages"`
	Failures   []StageFailureRate `json:"failures"`
	Throughput []Throughput       `json:"throughput"`
}

// Collect runs all analytics queries.
func Collect(database DB, since string) (*Stats, error) {
	var s Stats
	var err error
	if s.Outcomes, err = QueryOutcomes(database, since); err != nil {
		return nil, err
	}
	if s.Stages, err = QueryStageDurations(database, since); err != nil {
		return nil, err
	}
	if s.Failures, err = QueryStageFailureRates(database, since); err != nil {
		return nil, err
	}
	if s.Throughput, err = QueryThroughput(database, since); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
