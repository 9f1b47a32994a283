package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

// RunStore keeps crawl runs and the latest tool names per target in memory.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[string]crawler.RunSummary
	latest map[string][]string
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:   make(map[string]crawler.RunSummary),
		latest: make(map[string][]string),
	}
}

// CreateRun stores an unfinished run.
func (s *RunStore) CreateRun(_ context.Context, runID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return errors.New("run already exists")
	}
	s.runs[runID] = crawler.RunSummary{RunID: runID, StartedAt: startedAt}
	return nil
}

// RecordOutcome appends outcome to the run and makes its tools the expected
// names for the target.
func (s *RunStore) RecordOutcome(_ context.Context, runID string, outcome crawler.FetchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.ErrRunNotFound
	}
	run.Outcomes = append(run.Outcomes, outcome)
	s.runs[runID] = run
	s.latest[outcome.TargetURL] = append([]string(nil), outcome.Tools...)
	return nil
}

// FinishRun stores the final counters and end time.
func (s *RunStore) FinishRun(_ context.Context, summary crawler.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[summary.RunID]
	if !ok {
		return crawler.ErrRunNotFound
	}
	run.FinishedAt = summary.FinishedAt
	run.NewTools = summary.NewTools
	run.UpdatedTools = summary.UpdatedTools
	run.TotalTools = summary.TotalTools
	run.DeletedTools = summary.DeletedTools
	s.runs[summary.RunID] = run
	return nil
}

// GetRun returns a copy of the run.
func (s *RunStore) GetRun(_ context.Context, runID string) (crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.RunSummary{}, crawler.ErrRunNotFound
	}
	run.Outcomes = append([]crawler.FetchOutcome(nil), run.Outcomes...)
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, limit, offset int) ([]crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]crawler.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		run.Outcomes = append([]crawler.FetchOutcome(nil), run.Outcomes...)
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(runs) {
		return []crawler.RunSummary{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// ExpectedNames returns the tools of the latest outcome recorded for url.
func (s *RunStore) ExpectedNames(_ context.Context, url string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.latest[url]...), nil
}
