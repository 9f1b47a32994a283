package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/toolhub-crawler/internal/audit"
	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

// TargetStore keeps crawl targets in registration order.
type TargetStore struct {
	mu      sync.RWMutex
	targets []crawler.Target
	nextID  int64
	audit   audit.Recorder
}

// NewTargetStore constructs a TargetStore. A nil recorder discards audit entries.
func NewTargetStore(recorder audit.Recorder) *TargetStore {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &TargetStore{audit: recorder}
}

// ListTargets returns targets in registration order.
func (s *TargetStore) ListTargets(context.Context) ([]crawler.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Target(nil), s.targets...), nil
}

// AddTarget registers target under its normalized URL.
func (s *TargetStore) AddTarget(ctx context.Context, target crawler.Target, change crawler.Audit) (crawler.Target, error) {
	url, err := crawler.NormalizeURL(target.URL)
	if err != nil {
		return crawler.Target{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.targets {
		if t.URL == url {
			return crawler.Target{}, crawler.ErrTargetExists
		}
	}
	s.nextID++
	target.ID = s.nextID
	target.URL = url
	if target.CreatedAt.IsZero() {
		target.CreatedAt = time.Now().UTC()
	}
	s.targets = append(s.targets, target)
	_ = s.audit.Record(ctx, audit.Entry{
		Kind:      audit.KindCrawlTarget,
		Action:    audit.ActionCreate,
		Subject:   url,
		Actor:     change.Actor,
		Comment:   change.Comment,
		Timestamp: target.CreatedAt,
	})
	return target, nil
}

// RemoveTarget unregisters url.
func (s *TargetStore) RemoveTarget(ctx context.Context, rawURL string, change crawler.Audit) error {
	url, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.targets {
		if t.URL != url {
			continue
		}
		s.targets = append(s.targets[:i], s.targets[i+1:]...)
		_ = s.audit.Record(ctx, audit.Entry{
			Kind:      audit.KindCrawlTarget,
			Action:    audit.ActionDelete,
			Subject:   url,
			Actor:     change.Actor,
			Comment:   change.Comment,
			Timestamp: time.Now().UTC(),
		})
		return nil
	}
	return crawler.ErrTargetNotFound
}
