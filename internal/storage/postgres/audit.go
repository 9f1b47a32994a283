package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/toolhub-crawler/internal/audit"
)

const insertAudit = `
INSERT INTO audit_log (kind, action, subject, actor, comment, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Record implements audit.Recorder.
func (s *Store) Record(ctx context.Context, entry audit.Entry) error {
	return writeAudit(ctx, s.pool, entry)
}

// AuditTrail returns entries of kind for subject, oldest first.
func (s *Store) AuditTrail(ctx context.Context, kind audit.Kind, subject string) ([]audit.Entry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, kind, action, subject, actor, comment, created_at
FROM audit_log
WHERE kind = $1 AND subject = $2
ORDER BY id`, kind.String(), subject)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e           audit.Entry
			kindLabel   string
			actionLabel string
		)
		if err := rows.Scan(&e.ID, &kindLabel, &actionLabel, &e.Subject, &e.Actor, &e.Comment, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.Kind, err = audit.ParseKind(kindLabel); err != nil {
			return nil, err
		}
		e.Action = audit.Action(actionLabel)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}

func writeAudit(ctx context.Context, q querier, entry audit.Entry) error {
	_, err := q.Exec(ctx, insertAudit,
		entry.Kind.String(),
		string(entry.Action),
		entry.Subject,
		entry.Actor,
		entry.Comment,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
