// Package memory provides in-process implementations of the crawler stores for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/toolhub-crawler/internal/audit"
	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

// Inventory keeps tool records and their revision history in memory.
type Inventory struct {
	mu      sync.RWMutex
	tools   map[string]crawler.InventoryRecord
	history map[string][]crawler.Revision
	audit   audit.Recorder
}

// NewInventory constructs an Inventory. A nil recorder discards audit entries.
func NewInventory(recorder audit.Recorder) *Inventory {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Inventory{
		tools:   make(map[string]crawler.InventoryRecord),
		history: make(map[string][]crawler.Revision),
		audit:   recorder,
	}
}

// Lookup returns the record for name, including soft-deleted ones.
func (s *Inventory) Lookup(_ context.Context, name string) (crawler.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tools[name]
	if !ok {
		return crawler.InventoryRecord{}, crawler.ErrToolNotFound
	}
	return rec, nil
}

// Upsert creates name or replaces the fields of an active record with the
// same origin.
func (s *Inventory) Upsert(
	ctx context.Context,
	rec toolinfo.Record,
	origin crawler.Origin,
	change crawler.Audit,
) (crawler.InventoryRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	existing, ok := s.tools[rec.Name]
	if !ok {
		stored := crawler.InventoryRecord{
			Record:     rec,
			Origin:     origin,
			CreatedBy:  change.Actor,
			ModifiedBy: change.Actor,
			CreatedAt:  now,
			ModifiedAt: now,
			Revision:   1,
		}
		s.commit(ctx, stored, change, audit.ActionCreate, now)
		return stored, true, nil
	}
	if existing.Deleted {
		return crawler.InventoryRecord{}, false, fmt.Errorf("tool %q is deleted and must be revived: %w", rec.Name, crawler.ErrInvariantViolation)
	}
	if existing.Origin != origin {
		return crawler.InventoryRecord{}, false, fmt.Errorf("tool %q origin %s cannot become %s: %w",
			rec.Name, existing.Origin, origin, crawler.ErrInvariantViolation)
	}
	existing.Record = rec
	existing.ModifiedBy = change.Actor
	existing.ModifiedAt = now
	existing.Revision++
	s.commit(ctx, existing, change, audit.ActionUpdate, now)
	return existing, false, nil
}

// SoftDelete marks active records deleted and returns the names it changed.
func (s *Inventory) SoftDelete(ctx context.Context, names []string, change crawler.Audit) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var deleted []string
	for _, name := range names {
		rec, ok := s.tools[name]
		if !ok || rec.Deleted {
			continue
		}
		rec.Deleted = true
		rec.ModifiedBy = change.Actor
		rec.ModifiedAt = now
		rec.Revision++
		s.commit(ctx, rec, change, audit.ActionDelete, now)
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// Revive restores a soft-deleted record with new fields and origin.
func (s *Inventory) Revive(
	ctx context.Context,
	rec toolinfo.Record,
	origin crawler.Origin,
	change crawler.Audit,
) (crawler.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tools[rec.Name]
	if !ok {
		return crawler.InventoryRecord{}, crawler.ErrToolNotFound
	}
	if !existing.Deleted {
		return crawler.InventoryRecord{}, fmt.Errorf("tool %q is not deleted: %w", rec.Name, crawler.ErrInvariantViolation)
	}
	now := time.Now().UTC()
	existing.Record = rec
	existing.Origin = origin
	existing.Deleted = false
	existing.ModifiedBy = change.Actor
	existing.ModifiedAt = now
	existing.Revision++
	s.commit(ctx, existing, change, audit.ActionRevive, now)
	return existing, nil
}

// History returns the revisions of name, oldest first.
func (s *Inventory) History(_ context.Context, name string) ([]crawler.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs, ok := s.history[name]
	if !ok {
		return nil, crawler.ErrToolNotFound
	}
	out := make([]crawler.Revision, len(revs))
	copy(out, revs)
	return out, nil
}

// Names lists every stored tool name, sorted.
func (s *Inventory) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// commit stores rec, appends a revision and writes the audit entry. Callers
// hold s.mu.
func (s *Inventory) commit(
	ctx context.Context,
	rec crawler.InventoryRecord,
	change crawler.Audit,
	action audit.Action,
	now time.Time,
) {
	name := rec.Record.Name
	s.tools[name] = rec
	s.history[name] = append(s.history[name], crawler.Revision{
		Name:      name,
		Revision:  rec.Revision,
		Record:    rec.Record,
		Deleted:   rec.Deleted,
		Actor:     change.Actor,
		Comment:   change.Comment,
		Timestamp: now,
	})
	// Audit failures do not undo the write.
	_ = s.audit.Record(ctx, audit.Entry{
		Kind:      audit.KindTool,
		Action:    action,
		Subject:   name,
		Actor:     change.Actor,
		Comment:   change.Comment,
		Timestamp: now,
	})
}
