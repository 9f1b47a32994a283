package crawler

import (
	"net/http"
	"time"

	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

// Origin records which channel first created an inventory record.
type Origin string

// Known origins.
const (
	OriginCrawler Origin = "crawler"
	OriginAPI     Origin = "api"
)

// Target is a registered URL expected to serve one or more toolinfo records.
type Target struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit identifies who made a change and why. It is passed explicitly to
// every mutating store call.
type Audit struct {
	Actor   string
	Comment string
}

// InventoryRecord is the durable state held for one tool name.
type InventoryRecord struct {
	Record     toolinfo.Record `json:"record"`
	Origin     Origin          `json:"origin"`
	Deleted    bool            `json:"deleted"`
	CreatedBy  string          `json:"created_by"`
	ModifiedBy string          `json:"modified_by"`
	CreatedAt  time.Time       `json:"created_at"`
	ModifiedAt time.Time       `json:"modified_at"`
	Revision   int             `json:"revision"`
}

// Revision is one entry in a tool's history.
type Revision struct {
	Name      string          `json:"name"`
	Revision  int             `json:"revision"`
	Record    toolinfo.Record `json:"record"`
	Deleted   bool            `json:"deleted"`
	Actor     string          `json:"actor"`
	Comment   string          `json:"comment"`
	Timestamp time.Time       `json:"timestamp"`
}

// ActionKind labels a reconciliation decision.
type ActionKind string

// Reconciliation decisions.
const (
	ActionCreate          ActionKind = "create"
	ActionUpdate          ActionKind = "update"
	ActionNoOp            ActionKind = "noop"
	ActionRejectDuplicate ActionKind = "reject_duplicate"
)

// Action is the decision taken for one observed record.
type Action struct {
	Kind ActionKind `json:"kind"`
	Name string     `json:"name"`
	// ChangedFields lists the differing fields for updates.
	ChangedFields []string `json:"changed_fields,omitempty"`
	// Revived marks an update that cleared a soft delete.
	Revived bool `json:"revived,omitempty"`
	// FirstSeenTarget is the URL that claimed the name first in this run.
	FirstSeenTarget string `json:"first_seen_target,omitempty"`
}

// FetchResponse is what a Fetcher returns for one target.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Redirected bool
	Duration   time.Duration
	Headers    http.Header
	Body       []byte
	// Records holds the decoded toolinfo objects; empty unless Valid.
	Records []toolinfo.RawToolInfo
	// Valid is false for non-2xx responses and unparseable bodies.
	Valid    bool
	ParseErr error
}

// FetchOutcome is the per-target result of one run.
type FetchOutcome struct {
	TargetURL  string   `json:"target_url"`
	StatusCode int      `json:"status_code"`
	Redirected bool     `json:"redirected"`
	ElapsedMs  int64    `json:"elapsed_ms"`
	Valid      bool     `json:"valid"`
	Records    int      `json:"records"`
	Tools      []string `json:"tools"`
	Actions    []Action `json:"actions,omitempty"`
	Deleted    []string `json:"deleted,omitempty"`
	ArchiveURI string   `json:"archive_uri,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// RunSummary aggregates one crawl run.
type RunSummary struct {
	RunID        string         `json:"run_id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	NewTools     int            `json:"new_tools"`
	UpdatedTools int            `json:"updated_tools"`
	TotalTools   int            `json:"total_tools"`
	DeletedTools int            `json:"deleted_tools"`
	Outcomes     []FetchOutcome `json:"outcomes"`
}

// InvalidTargets counts outcomes that were not valid.
func (s RunSummary) InvalidTargets() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.Valid {
			n++
		}
	}
	return n
}
