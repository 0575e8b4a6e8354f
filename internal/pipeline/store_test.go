package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucasnoah/sonarfix/internal/fault"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Create("run-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.CurrentStage != StageAnalyze {
		t.Errorf("CurrentStage = %q, want %q", st.CurrentStage, StageAnalyze)
	}
	if st.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", got.RunID, "run-1")
	}
	if got.Messages == nil || got.CompletedStages == nil {
		t.Error("Messages and CompletedStages should be non-nil after reload")
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Create("dup"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("dup"); err == nil {
		t.Fatal("expected error creating duplicate run")
	}
}

func TestCreateEmptyID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(""); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("missing"); err == nil {
		t.Fatal("expected error for non-existent run")
	}
}

func TestSaveRoundTripsOptionalFields(t *testing.T) {
	s := newTestStore(t)
	st, _ := s.Create("run-2")

	st.Finding = &Finding{Key: "K1", Author: "a@x.com", Component: "proj:src/a.go", Line: 7}
	st.Branch = "fix-sonar-K1-20240101000000"
	st.CurrentStage = StageCreateReview
	st.CompletedStages = append(st.CompletedStages, StageAnalyze, StageSetupWorkspace)
	if err := s.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get("run-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Finding == nil || got.Finding.Key != "K1" {
		t.Fatalf("Finding = %+v, want key K1", got.Finding)
	}
	if got.Fix != nil {
		t.Errorf("Fix = %+v, want nil", got.Fix)
	}
	if got.CurrentStage != StageCreateReview {
		t.Errorf("CurrentStage = %q, want %q", got.CurrentStage, StageCreateReview)
	}
	if len(got.CompletedStages) != 2 {
		t.Errorf("CompletedStages = %v, want 2 entries", got.CompletedStages)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("run-3")

	err := s.Update("run-3", func(st *RunState) {
		st.Outcome = OutcomeSuccess
		st.CurrentStage = StageDone
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get("run-3")
	if got.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want %q", got.Outcome, OutcomeSuccess)
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Update("nope", func(st *RunState) { st.Outcome = OutcomeFailed })
	if err == nil {
		t.Fatal("expected error updating non-existent run")
	}
}

func TestListWithFilter(t *testing.T) {
	s := newTestStore(t)

	_, _ = s.Create("a")
	_, _ = s.Create("b")
	_, _ = s.Create("c")
	_ = s.Update("b", func(st *RunState) { st.Outcome = OutcomeFailed })

	all, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d, want 3", len(all))
	}

	failed, _ := s.List(OutcomeFailed)
	if len(failed) != 1 || failed[0].RunID != "b" {
		t.Errorf("List(failed) = %v, want [b]", failed)
	}

	running, _ := s.List("running")
	if len(running) != 2 {
		t.Errorf("List(running) returned %d, want 2", len(running))
	}
}

func TestListEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent"))
	all, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List returned %d, want 0", len(all))
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("gone")

	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(s.runDir("gone")); !os.IsNotExist(err) {
		t.Error("run directory should not exist after Delete")
	}
	if err := s.Delete("gone"); err == nil {
		t.Error("expected error deleting twice")
	}
}

func TestRunStateFailKeepsFirstError(t *testing.T) {
	st := &RunState{}
	st.Fail(fault.Transport("invoke", errors.New("first")))
	st.Fail(errors.New("second"))

	if st.Error != "transport: invoke: first" {
		t.Errorf("Error = %q", st.Error)
	}
	if st.ErrorKind != fault.KindTransport {
		t.Errorf("ErrorKind = %q, want transport", st.ErrorKind)
	}
	if !st.Failed() {
		t.Error("Failed() = false, want true")
	}
}

func TestStageNext(t *testing.T) {
	cases := map[StageName]StageName{
		StageAnalyze:       StageSetupWorkspace,
		StageExecuteFix:    StageCreateReview,
		StageCreateReview:  StageRecordKeep,
		StageLaunchView:    StageDone,
		StageName("bogus"): StageDone,
	}
	for in, want := range cases {
		if got := in.Next(); got != want {
			t.Errorf("%s.Next() = %s, want %s", in, got, want)
		}
	}
	if !StageDone.Terminal() || !StageFailed.Terminal() || StageAnalyze.Terminal() {
		t.Error("Terminal() mismatch")
	}
}

func TestFindingFilePath(t *testing.T) {
	f := &Finding{Component: "my-project:src/main/App.java"}
	if got := f.FilePath(); got != "src/main/App.java" {
		t.Errorf("FilePath() = %q", got)
	}
	f = &Finding{Component: "plain/path.go"}
	if got := f.FilePath(); got != "plain/path.go" {
		t.Errorf("FilePath() = %q", got)
	}
}
