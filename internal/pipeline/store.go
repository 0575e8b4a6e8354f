package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store keeps run checkpoints on disk, one directory per run id.
type Store struct {
	baseDir string // defaults to ~/.sonarfix/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.runDir(runID), "run.json")
}

// Create writes a fresh RunState positioned at the first stage.
func (s *Store) Create(runID string) (*RunState, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if _, err := os.Stat(s.runDir(runID)); err == nil {
		return nil, fmt.Errorf("run %s already exists", runID)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	st := &RunState{
		RunID:           runID,
		Messages:        []string{},
		CurrentStage:    StageAnalyze,
		CompletedStages: []StageName{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := WriteJSON(s.runPath(runID), st); err != nil {
		return nil, fmt.Errorf("write run.json: %w", err)
	}
	return st, nil
}

// Get reads the checkpoint for a run.
func (s *Store) Get(runID string) (*RunState, error) {
	var st RunState
	if err := ReadJSON(s.runPath(runID), &st); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}
	return &st, nil
}

// Save checkpoints st, stamping UpdatedAt.
func (s *Store) Save(st *RunState) error {
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := WriteJSON(s.runPath(st.RunID), st); err != nil {
		return fmt.Errorf("checkpoint run %s: %w", st.RunID, err)
	}
	return nil
}

// Update performs a read-modify-write of a run checkpoint.
func (s *Store) Update(runID string, fn func(*RunState)) error {
	st, err := s.Get(runID)
	if err != nil {
		return err
	}
	fn(st)
	return s.Save(st)
}

// List returns all runs, newest first, optionally filtered by outcome.
// Pass "" to return every run; "running" matches runs without an outcome.
func (s *Store) List(outcomeFilter string) ([]RunState, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []RunState
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		st, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		switch {
		case outcomeFilter == "":
		case outcomeFilter == "running" && st.Outcome == "":
		case st.Outcome == outcomeFilter:
		default:
			continue
		}
		runs = append(runs, *st)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt != runs[j].CreatedAt {
			return runs[i].CreatedAt > runs[j].CreatedAt
		}
		return runs[i].RunID > runs[j].RunID
	})
	return runs, nil
}

// Delete removes all data for a run.
func (s *Store) Delete(runID string) error {
	dir := s.runDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", runID)
	}
	return os.RemoveAll(dir)
}
