package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/toolhub-crawler/internal/audit"
	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

// ListTargets returns targets in registration order.
func (s *Store) ListTargets(ctx context.Context) ([]crawler.Target, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, url, owner, created_at FROM crawl_targets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	targets := []crawler.Target{}
	for rows.Next() {
		var t crawler.Target
		if err := rows.Scan(&t.ID, &t.URL, &t.Owner, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}

// AddTarget registers target under its normalized URL.
func (s *Store) AddTarget(ctx context.Context, target crawler.Target, change crawler.Audit) (crawler.Target, error) {
	url, err := crawler.NormalizeURL(target.URL)
	if err != nil {
		return crawler.Target{}, err
	}
	target.URL = url
	if target.CreatedAt.IsZero() {
		target.CreatedAt = s.now()
	}
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
INSERT INTO crawl_targets (url, owner, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO NOTHING
RETURNING id`, target.URL, target.Owner, target.CreatedAt).Scan(&target.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.ErrTargetExists
		}
		if err != nil {
			return fmt.Errorf("insert target: %w", err)
		}
		return writeAudit(ctx, tx, audit.Entry{
			Kind:      audit.KindCrawlTarget,
			Action:    audit.ActionCreate,
			Subject:   target.URL,
			Actor:     change.Actor,
			Comment:   change.Comment,
			Timestamp: target.CreatedAt,
		})
	})
	if err != nil {
		return crawler.Target{}, err
	}
	return target, nil
}

// RemoveTarget unregisters url. Tools it produced are left alone.
func (s *Store) RemoveTarget(ctx context.Context, rawURL string, change crawler.Audit) error {
	url, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM crawl_targets WHERE url = $1`, url)
		if err != nil {
			return fmt.Errorf("delete target: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return crawler.ErrTargetNotFound
		}
		return writeAudit(ctx, tx, audit.Entry{
			Kind:      audit.KindCrawlTarget,
			Action:    audit.ActionDelete,
			Subject:   url,
			Actor:     change.Actor,
			Comment:   change.Comment,
			Timestamp: s.now(),
		})
	})
}
