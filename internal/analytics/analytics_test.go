package analytics

import (
	"testing"

	"github.com/lucasnoah/sonarfix/internal/db"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func logEvent(t *testing.T, d *db.DB, e db.RunEvent) {
	t.Helper()
	if err := d.LogRunEvent(e); err != nil {
		t.Fatalf("log event %+v: %v", e, err)
	}
}

// --- QueryStageDurations ---

func TestQueryStageDurations(t *testing.T) {
	d := testDB(t)

	logEvent(t, d, db.RunEvent{RunID: "r1", Event: db.EventStageCompleted, Stage: "Analyze", DurationMs: 1000, Timestamp: "2024-06-01T10:00:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "r2", Event: db.EventStageCompleted, Stage: "Analyze", DurationMs: 3000, Timestamp: "2024-06-02T10:00:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "r1", Event: db.EventStageCompleted, Stage: "ExecuteFix", DurationMs: 20000, Timestamp: "2024-06-01T10:01:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "r1", Event: db.EventStageStarted, Stage: "ExecuteFix", Timestamp: "2024-06-01T10:00:30.000Z"})

	results, err := QueryStageDurations(d, "")
	if err != nil {
		t.Fatalf("QueryStageDurations: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(results))
	}

	analyze := results[0]
	if analyze.Stage != "Analyze" {
		t.Errorf("stage = %q, want Analyze", analyze.Stage)
	}
	if analyze.Count != 2 {
		t.Errorf("count = %d, want 2", analyze.Count)
	}
	if analyze.Avg != 2.0 {
		t.Errorf("avg = %v, want 2.0", analyze.Avg)
	}
	if analyze.P50 != 2.0 {
		t.Errorf("p50 = %v, want 2.0", analyze.P50)
	}
	if results[1].Stage != "ExecuteFix" || results[1].Avg != 20.0 {
		t.Errorf("unexpected ExecuteFix result: %+v", results[1])
	}
}

func TestQueryStageDurations_Since(t *testing.T) {
	d := testDB(t)
	logEvent(t, d, db.RunEvent{RunID: "r1", Event: db.EventStageCompleted, Stage: "Analyze", DurationMs: 1000, Timestamp: "2024-06-01T10:00:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "r2", Event: db.EventStageCompleted, Stage: "Analyze", DurationMs: 5000, Timestamp: "2024-07-01T10:00:00.000Z"})

	results, err := QueryStageDurations(d, "2024-06-15")
	if err != nil {
		t.Fatalf("QueryStageDurations: %v", err)
	}
	if len(results) != 1 || results[0].Count != 1 || results[0].Avg != 5.0 {
		t.Errorf("unexpected results: %+v", results)
	}
}

// --- QueryStageFailureRates ---

func TestQueryStageFailureRates(t *testing.T) {
	d := testDB(t)
	logEvent(t, d, db.RunEvent{RunID: "r1", Event: db.EventStageCompleted, Stage: "CreateReview"})
	logEvent(t, d, db.RunEvent{RunID: "r2", Event: db.EventStageCompleted, Stage: "CreateReview"})
	logEvent(t, d, db.RunEvent{RunID: "r3", Event: db.EventStageCompleted, Stage: "CreateReview"})
	logEvent(t, d, db.RunEvent{RunID: "r4", Event: db.EventStageFailed, Stage: "CreateReview"})

	results, err := QueryStageFailureRates(d, "")
	if err != nil {
		t.Fatalf("QueryStageFailureRates: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(results))
	}
	r := results[0]
	if r.Total != 4 || r.Failed != 1 || r.FailedPct != 25.0 {
		t.Errorf("unexpected rate: %+v", r)
	}
}

// --- QueryOutcomes ---

func TestQueryOutcomes(t *testing.T) {
	d := testDB(t)
	for _, outcome := range []string{"success", "success", "nothing_to_process", "failed"} {
		logEvent(t, d, db.RunEvent{RunID: "r", Event: db.EventRunFinished, Detail: outcome})
	}
	logEvent(t, d, db.RunEvent{RunID: "r", Event: db.EventRunStarted})

	oc, err := QueryOutcomes(d, "")
	if err != nil {
		t.Fatalf("QueryOutcomes: %v", err)
	}
	if oc.Total != 4 || oc.Success != 2 || oc.NothingToProcess != 1 || oc.Failed != 1 {
		t.Errorf("unexpected counts: %+v", oc)
	}
	if oc.SuccessPct != 50.0 {
		t.Errorf("success pct = %v, want 50", oc.SuccessPct)
	}
}

func TestQueryOutcomes_Empty(t *testing.T) {
	oc, err := QueryOutcomes(testDB(t), "")
	if err != nil {
		t.Fatalf("QueryOutcomes: %v", err)
	}
	if oc.Total != 0 || oc.SuccessPct != 0 {
		t.Errorf("expected zero counts, got %+v", oc)
	}
}

// --- QueryThroughput ---

func TestQueryThroughput(t *testing.T) {
	d := testDB(t)
	logEvent(t, d, db.RunEvent{RunID: "a", Event: db.EventRunStarted, Timestamp: "2024-06-01T09:00:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "a", Event: db.EventRunFinished, Detail: "success", Timestamp: "2024-06-01T09:05:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "b", Event: db.EventRunStarted, Timestamp: "2024-06-02T09:00:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "b", Event: db.EventRunFinished, Detail: "failed", Timestamp: "2024-06-02T09:01:00.000Z"})
	logEvent(t, d, db.RunEvent{RunID: "c", Event: db.EventRunStarted, Timestamp: "2024-06-02T10:00:00.000Z"})

	results, err := QueryThroughput(d, "")
	if err != nil {
		t.Fatalf("QueryThroughput: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 days, got %d", len(results))
	}
	if results[0].Period != "2024-06-02" || results[0].Started != 2 || results[0].Failed != 1 {
		t.Errorf("unexpected newest day: %+v", results[0])
	}
	if results[1].Period != "2024-06-01" || results[1].Succeeded != 1 {
		t.Errorf("unexpected oldest day: %+v", results[1])
	}
}

func TestCollect(t *testing.T) {
	d := testDB(t)
	logEvent(t, d, db.RunEvent{RunID: "a", Event: db.EventRunFinished, Detail: "success"})
	stats, err := Collect(d, "")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if stats.Outcomes.Success != 1 {
		t.Errorf("expected 1 success, got %+v", stats.Outcomes)
	}
}

// --- helpers ---

func TestPercentile(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if got := percentile(vals, 50); got != 3 {
		t.Errorf("p50 = %v, want 3", got)
	}
	if got := percentile(vals, 95); got != 4.8 {
		t.Errorf("p95 = %v, want 4.8", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty p50 = %v, want 0", got)
	}
}

func TestPct(t *testing.T) {
	if got := pct(1, 3); got != 33.3 {
		t.Errorf("pct(1,3) = %v, want 33.3", got)
	}
	if got := pct(1, 0); got != 0 {
		t.Errorf("pct(1,0) = %v, want 0", got)
	}
}
