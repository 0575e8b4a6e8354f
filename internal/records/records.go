// Package records persists the list of findings the pipeline has already handled.
package records

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// Record is one processed finding. Field names match the on-disk format.
type Record struct {
	Key           string `json:"key"`
	Rule          string `json:"rule"`
	Severity      string `json:"severity"`
	Component     string `json:"component"`
	Line          int    `json:"line"`
	Message       string `json:"message"`
	Author        string `json:"author"`
	CreationDate  string `json:"creationDate"`
	ProcessedDate string `json:"processedDate"`
	Status        string `json:"status"`
	ReviewURL     string `json:"reviewUrl"`
	Reviewer      string `json:"reviewer,omitempty"`
}

// FromFinding builds a record for f with the given outcome.
func FromFinding(f *pipeline.Finding, status, reviewURL, reviewer string) Record {
	return Record{
		Key:           f.Key,
		Rule:          f.Rule,
		Severity:      f.Severity,
		Component:     f.Component,
		Line:          f.Line,
		Message:       f.Message,
		Author:        f.Author,
		CreationDate:  f.CreationDate,
		ProcessedDate: time.Now().Format(time.RFC3339),
		Status:        status,
		ReviewURL:     reviewURL,
		Reviewer:      reviewer,
	}
}

// Store is the processed-issue list backed by a JSON file.
// Membership of a key is the sole dedup gate for selection.
type Store struct {
	path string

	mu      sync.Mutex
	loaded  bool
	records []Record
	keys    map[string]bool
}

// NewStore returns a store backed by path. Nothing is read until first use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// load reads the file once. A missing file is an empty list.
func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	var recs []Record
	if err := pipeline.ReadJSON(s.path, &recs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load processed issues: %w", err)
	}
	s.records = recs
	s.keys = make(map[string]bool, len(recs))
	for _, r := range recs {
		s.keys[r.Key] = true
	}
	s.loaded = true
	return nil
}

// Contains reports whether key has been processed.
func (s *Store) Contains(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return false, err
	}
	return s.keys[key], nil
}

// Keys returns the set of processed keys.
func (s *Store) Keys() (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(s.keys))
	for k := range s.keys {
		out[k] = true
	}
	return out, nil
}

// List returns all records in insertion order.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Append adds rec and rewrites the file atomically. A key already present
// is not duplicated.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	if s.keys[rec.Key] {
		return nil
	}
	next := append(append([]Record{}, s.records...), rec)
	if err := pipeline.WriteJSON(s.path, next); err != nil {
		return fmt.Errorf("save processed issues: %w", err)
	}
	s.records = next
	s.keys[rec.Key] = true
	return nil
}

// Reset clears every record.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := pipeline.WriteJSON(s.path, []Record{}); err != nil {
		return fmt.Errorf("reset processed issues: %w", err)
	}
	s.records = nil
	s.keys = map[string]bool{}
	s.loaded = true
	return nil
}
