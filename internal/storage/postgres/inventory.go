package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/toolhub-crawler/internal/audit"
	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

const insertRevision = `
INSERT INTO tool_revisions (name, revision, record, deleted, actor, comment, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Lookup returns the record for name, including soft-deleted ones.
func (s *Store) Lookup(ctx context.Context, name string) (crawler.InventoryRecord, error) {
	var (
		raw    []byte
		origin string
		rec    crawler.InventoryRecord
	)
	err := s.pool.QueryRow(ctx, `
SELECT record, origin, deleted, created_by, modified_by, created_at, modified_at, revision
FROM tools
WHERE name = $1`, name).Scan(
		&raw, &origin, &rec.Deleted, &rec.CreatedBy, &rec.ModifiedBy,
		&rec.CreatedAt, &rec.ModifiedAt, &rec.Revision,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.InventoryRecord{}, crawler.ErrToolNotFound
	}
	if err != nil {
		return crawler.InventoryRecord{}, fmt.Errorf("select tool: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Record); err != nil {
		return crawler.InventoryRecord{}, fmt.Errorf("decode tool %q: %w", name, err)
	}
	rec.Origin = crawler.Origin(origin)
	return rec, nil
}

// Upsert creates name or replaces the fields of an active record with the
// same origin. The revision and audit entry are written in the same
// transaction.
func (s *Store) Upsert(
	ctx context.Context,
	rec toolinfo.Record,
	origin crawler.Origin,
	change crawler.Audit,
) (crawler.InventoryRecord, bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return crawler.InventoryRecord{}, false, fmt.Errorf("encode tool %q: %w", rec.Name, err)
	}
	now := s.now()
	var (
		stored  crawler.InventoryRecord
		created bool
	)
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			current   string
			deleted   bool
			revision  int
			createdBy string
			createdAt time.Time
		)
		err := tx.QueryRow(ctx, `
SELECT origin, deleted, revision, created_by, created_at
FROM tools
WHERE name = $1
FOR UPDATE`, rec.Name).Scan(&current, &deleted, &revision, &createdBy, &createdAt)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			created = true
			stored = crawler.InventoryRecord{
				Record: rec, Origin: origin,
				CreatedBy: change.Actor, ModifiedBy: change.Actor,
				CreatedAt: now, ModifiedAt: now, Revision: 1,
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO tools (name, record, origin, deleted, created_by, modified_by, created_at, modified_at, revision)
VALUES ($1, $2, $3, FALSE, $4, $4, $5, $5, 1)`,
				rec.Name, raw, string(origin), change.Actor, now); err != nil {
				return fmt.Errorf("insert tool: %w", err)
			}
			return s.commitChange(ctx, tx, stored, raw, change, audit.ActionCreate, now)
		case err != nil:
			return fmt.Errorf("select tool: %w", err)
		case deleted:
			return fmt.Errorf("tool %q is deleted and must be revived: %w", rec.Name, crawler.ErrInvariantViolation)
		case crawler.Origin(current) != origin:
			return fmt.Errorf("tool %q origin %s cannot become %s: %w", rec.Name, current, origin, crawler.ErrInvariantViolation)
		}
		stored = crawler.InventoryRecord{
			Record: rec, Origin: origin,
			CreatedBy: createdBy, ModifiedBy: change.Actor,
			CreatedAt: createdAt, ModifiedAt: now, Revision: revision + 1,
		}
		if _, err := tx.Exec(ctx, `
UPDATE tools SET record = $2, modified_by = $3, modified_at = $4, revision = $5
WHERE name = $1`, rec.Name, raw, change.Actor, now, stored.Revision); err != nil {
			return fmt.Errorf("update tool: %w", err)
		}
		return s.commitChange(ctx, tx, stored, raw, change, audit.ActionUpdate, now)
	})
	if err != nil {
		return crawler.InventoryRecord{}, false, err
	}
	return stored, created, nil
}

// SoftDelete marks active records deleted and returns the names it changed.
// Unknown and already deleted names are skipped.
func (s *Store) SoftDelete(ctx context.Context, names []string, change crawler.Audit) ([]string, error) {
	now := s.now()
	var deleted []string
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		deleted = deleted[:0]
		for _, name := range names {
			var (
				raw []byte
				rec = crawler.InventoryRecord{Deleted: true, ModifiedBy: change.Actor, ModifiedAt: now}
			)
			err := tx.QueryRow(ctx, `
UPDATE tools SET deleted = TRUE, modified_by = $2, modified_at = $3, revision = revision + 1
WHERE name = $1 AND NOT deleted
RETURNING record, revision`, name, change.Actor, now).Scan(&raw, &rec.Revision)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("soft delete %q: %w", name, err)
			}
			rec.Record.Name = name
			if err := s.commitChange(ctx, tx, rec, raw, change, audit.ActionDelete, now); err != nil {
				return err
			}
			deleted = append(deleted, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Revive restores a soft-deleted record with new fields and origin.
func (s *Store) Revive(
	ctx context.Context,
	rec toolinfo.Record,
	origin crawler.Origin,
	change crawler.Audit,
) (crawler.InventoryRecord, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return crawler.InventoryRecord{}, fmt.Errorf("encode tool %q: %w", rec.Name, err)
	}
	now := s.now()
	var stored crawler.InventoryRecord
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			deleted   bool
			revision  int
			createdBy string
			createdAt time.Time
		)
		err := tx.QueryRow(ctx, `
SELECT deleted, revision, created_by, created_at
FROM tools
WHERE name = $1
FOR UPDATE`, rec.Name).Scan(&deleted, &revision, &createdBy, &createdAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.ErrToolNotFound
		}
		if err != nil {
			return fmt.Errorf("select tool: %w", err)
		}
		if !deleted {
			return fmt.Errorf("tool %q is not deleted: %w", rec.Name, crawler.ErrInvariantViolation)
		}
		stored = crawler.InventoryRecord{
			Record: rec, Origin: origin,
			CreatedBy: createdBy, ModifiedBy: change.Actor,
			CreatedAt: createdAt, ModifiedAt: now, Revision: revision + 1,
		}
		if _, err := tx.Exec(ctx, `
UPDATE tools SET record = $2, origin = $3, deleted = FALSE, modified_by = $4, modified_at = $5, revision = $6
WHERE name = $1`, rec.Name, raw, string(origin), change.Actor, now, stored.Revision); err != nil {
			return fmt.Errorf("revive tool: %w", err)
		}
		return s.commitChange(ctx, tx, stored, raw, change, audit.ActionRevive, now)
	})
	if err != nil {
		return crawler.InventoryRecord{}, err
	}
	return stored, nil
}

// History returns the revisions of name, oldest first.
func (s *Store) History(ctx context.Context, name string) ([]crawler.Revision, error) {
	rows, err := s.pool.Query(ctx, `
SELECT revision, record, deleted, actor, comment, created_at
FROM tool_revisions
WHERE name = $1
ORDER BY revision`, name)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var revs []crawler.Revision
	for rows.Next() {
		rev := crawler.Revision{Name: name}
		var raw []byte
		if err := rows.Scan(&rev.Revision, &raw, &rev.Deleted, &rev.Actor, &rev.Comment, &rev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		if err := json.Unmarshal(raw, &rev.Record); err != nil {
			return nil, fmt.Errorf("decode revision %d of %q: %w", rev.Revision, name, err)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	if len(revs) == 0 {
		return nil, crawler.ErrToolNotFound
	}
	return revs, nil
}

func (s *Store) commitChange(
	ctx context.Context,
	tx pgx.Tx,
	rec crawler.InventoryRecord,
	raw []byte,
	change crawler.Audit,
	action audit.Action,
	now time.Time,
) error {
	name := rec.Record.Name
	if _, err := tx.Exec(ctx, insertRevision,
		name, rec.Revision, raw, rec.Deleted, change.Actor, change.Comment, now); err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return writeAudit(ctx, tx, audit.Entry{
		Kind:      audit.KindTool,
		Action:    action,
		Subject:   name,
		Actor:     change.Actor,
		Comment:   change.Comment,
		Timestamp: now,
	})
}
