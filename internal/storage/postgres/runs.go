package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

const selectRun = `
SELECT id, started_at, finished_at, new_tools, updated_tools, total_tools, deleted_tools
FROM crawl_runs`

// CreateRun inserts an unfinished run row.
func (s *Store) CreateRun(ctx context.Context, runID string, startedAt time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_runs (id, started_at) VALUES ($1, $2)`, runID, startedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordOutcome stores one target outcome. Its tool list becomes the expected
// names for the target on the next run.
func (s *Store) RecordOutcome(ctx context.Context, runID string, outcome crawler.FetchOutcome) error {
	tools, err := jsonList(outcome.Tools)
	if err != nil {
		return fmt.Errorf("encode tools: %w", err)
	}
	actions, err := jsonList(outcome.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	deleted, err := jsonList(outcome.Deleted)
	if err != nil {
		return fmt.Errorf("encode deleted: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO crawl_outcomes (
	run_id,
	target_url,
	status_code,
	redirected,
	elapsed_ms,
	valid,
	records,
	tools,
	actions,
	deleted,
	archive_uri,
	error
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`,
		runID,
		outcome.TargetURL,
		outcome.StatusCode,
		outcome.Redirected,
		outcome.ElapsedMs,
		outcome.Valid,
		outcome.Records,
		tools,
		actions,
		deleted,
		outcome.ArchiveURI,
		outcome.Error,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and end time.
func (s *Store) FinishRun(ctx context.Context, summary crawler.RunSummary) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_runs
SET finished_at = $2, new_tools = $3, updated_tools = $4, total_tools = $5, deleted_tools = $6
WHERE id = $1`,
		summary.RunID,
		summary.FinishedAt,
		summary.NewTools,
		summary.UpdatedTools,
		summary.TotalTools,
		summary.DeletedTools,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrRunNotFound
	}
	return nil
}

// GetRun returns a run and its outcomes.
func (s *Store) GetRun(ctx context.Context, runID string) (crawler.RunSummary, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, selectRun+` WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.RunSummary{}, crawler.ErrRunNotFound
	}
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("select run: %w", err)
	}
	if run.Outcomes, err = s.outcomes(ctx, runID); err != nil {
		return crawler.RunSummary{}, err
	}
	return run, nil
}

// ListRuns returns runs newest first. A non-positive limit returns all rows.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]crawler.RunSummary, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, selectRun+`
ORDER BY started_at DESC, id DESC
LIMIT $1 OFFSET $2`, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	runs := []crawler.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	for i := range runs {
		if runs[i].Outcomes, err = s.outcomes(ctx, runs[i].RunID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// ExpectedNames returns the tools of the latest outcome recorded for url.
func (s *Store) ExpectedNames(ctx context.Context, url string) ([]string, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
SELECT tools
FROM crawl_outcomes
WHERE target_url = $1
ORDER BY id DESC
LIMIT 1`, url).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select expected names: %w", err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode expected names: %w", err)
	}
	return names, nil
}

func (s *Store) outcomes(ctx context.Context, runID string) ([]crawler.FetchOutcome, error) {
	rows, err := s.pool.Query(ctx, `
SELECT target_url, status_code, redirected, elapsed_ms, valid, records, tools, actions, deleted, archive_uri, error
FROM crawl_outcomes
WHERE run_id = $1
ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []crawler.FetchOutcome
	for rows.Next() {
		var (
			o                       crawler.FetchOutcome
			tools, actions, deleted []byte
		)
		if err := rows.Scan(
			&o.TargetURL, &o.StatusCode, &o.Redirected, &o.ElapsedMs, &o.Valid, &o.Records,
			&tools, &actions, &deleted, &o.ArchiveURI, &o.Error,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if err := decodeLists(tools, &o.Tools, actions, &o.Actions, deleted, &o.Deleted); err != nil {
			return nil, fmt.Errorf("decode outcome for %s: %w", o.TargetURL, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (crawler.RunSummary, error) {
	var run crawler.RunSummary
	err := row.Scan(
		&run.RunID, &run.StartedAt, &run.FinishedAt,
		&run.NewTools, &run.UpdatedTools, &run.TotalTools, &run.DeletedTools,
	)
	return run, err
}

// jsonList encodes a slice, writing [] rather than null for nil.
func jsonList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// decodeLists unmarshals raw/target pairs.
func decodeLists(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		raw, _ := pairs[i].([]byte)
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
