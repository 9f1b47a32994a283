package crawler

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

// Fetcher retrieves one toolinfo URL. Transport failures are returned as
// errors; HTTP and parse failures are reported through FetchResponse.Valid.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Inventory persists tool records. Implementations apply each mutation
// atomically per record and keep revision history as a side effect.
type Inventory interface {
	// Lookup returns the record for name, including soft-deleted ones, or ErrToolNotFound.
	Lookup(ctx context.Context, name string) (InventoryRecord, error)
	// Upsert creates or updates an active record. It rejects origin changes with ErrInvariantViolation.
	Upsert(ctx context.Context, rec toolinfo.Record, origin Origin, audit Audit) (InventoryRecord, bool, error)
	// SoftDelete marks the named active records deleted and returns the names it changed.
	// Unknown and already deleted names are skipped.
	SoftDelete(ctx context.Context, names []string, audit Audit) ([]string, error)
	// Revive clears the soft delete on name and replaces its fields and origin.
	Revive(ctx context.Context, rec toolinfo.Record, origin Origin, audit Audit) (InventoryRecord, error)
	// History lists revisions for name, oldest first.
	History(ctx context.Context, name string) ([]Revision, error)
}

// RunStore persists crawl runs and their per-target outcomes.
type RunStore interface {
	CreateRun(ctx context.Context, runID string, startedAt time.Time) error
	RecordOutcome(ctx context.Context, runID string, outcome FetchOutcome) error
	FinishRun(ctx context.Context, summary RunSummary) error
	GetRun(ctx context.Context, runID string) (RunSummary, error)
	ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, error)
	// ExpectedNames returns the tools attributed to url by its latest recorded outcome.
	ExpectedNames(ctx context.Context, url string) ([]string, error)
}

// TargetStore lists and registers crawl targets.
type TargetStore interface {
	// ListTargets returns targets in registration order.
	ListTargets(ctx context.Context) ([]Target, error)
	// AddTarget registers target under its normalized URL. Duplicates fail with ErrTargetExists.
	AddTarget(ctx context.Context, target Target, audit Audit) (Target, error)
	RemoveTarget(ctx context.Context, url string, audit Audit) error
}

// BlobStore archives raw documents and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
