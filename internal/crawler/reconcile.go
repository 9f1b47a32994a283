package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

// Claims maps each tool name to the first target that produced it during one
// run. It is owned by a single run and is not safe for concurrent use.
type Claims struct {
	owners map[string]string
}

// NewClaims returns an empty claim set.
func NewClaims() *Claims {
	return &Claims{owners: make(map[string]string)}
}

// Claim assigns name to target unless another target already holds it. It
// returns the owning target and whether target is that owner.
func (c *Claims) Claim(name, target string) (string, bool) {
	if owner, ok := c.owners[name]; ok {
		return owner, owner == target
	}
	c.owners[name] = target
	return target, true
}

// Owner reports which target holds name, if any.
func (c *Claims) Owner(name string) (string, bool) {
	owner, ok := c.owners[name]
	return owner, ok
}

// Len returns the number of claimed names.
func (c *Claims) Len() int {
	return len(c.owners)
}

// ReconcilerConfig controls reconciliation policy.
type ReconcilerConfig struct {
	// Origin is stamped on records this reconciler creates or revives.
	Origin Origin
	// DeleteOnNotFound permits deletions when a target answers 404.
	DeleteOnNotFound bool
}

// Observation is what one target yielded in the current run.
type Observation struct {
	TargetURL  string
	StatusCode int
	// Parsed reports a 2xx response whose body decoded as toolinfo JSON.
	Parsed   bool
	Expected []string
	Records  []toolinfo.Record
}

// Result holds the decisions made for one target.
type Result struct {
	Actions []Action
	// Claimed lists the names this target holds in the run, in first-seen order.
	Claimed []string
	// StillExpected lists expected names that no record accounted for, sorted.
	StillExpected []string
	// Valid is cleared by fetch failures, invalid records, storage errors and panics.
	Valid bool
	// DeletionPermitted reports whether StillExpected may be soft-deleted.
	DeletionPermitted bool
	Errors            []error
}

// Reconciler decides create, update, no-op and duplicate outcomes for
// observed records and applies them to the inventory.
type Reconciler struct {
	inventory Inventory
	cfg       ReconcilerConfig
	logger    *zap.Logger
}

// NewReconciler builds a Reconciler over inventory.
func NewReconciler(inventory Inventory, cfg ReconcilerConfig, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Origin == "" {
		cfg.Origin = OriginCrawler
	}
	return &Reconciler{inventory: inventory, cfg: cfg, logger: logger}
}

// Reconcile processes the records of one target in order. Names are claimed
// in claims so that later targets in the same run lose ties. A panic while
// applying a record ends the pass early; the decisions made so far are kept
// and deletion is withheld.
func (r *Reconciler) Reconcile(ctx context.Context, claims *Claims, obs Observation, audit Audit) (res Result) {
	res.Valid = obs.Parsed
	still := make(map[string]struct{}, len(obs.Expected))
	for _, name := range obs.Expected {
		still[name] = struct{}{}
	}
	held := make(map[string]struct{}, len(obs.Records))
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("reconcile panicked",
				zap.String("target", obs.TargetURL),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Errorf("panic: %v", p))
			res.StillExpected = sortedNames(still)
			res.DeletionPermitted = false
		}
	}()

	for _, rec := range obs.Records {
		if err := toolinfo.Validate(rec); err != nil {
			res.Valid = false
			res.Errors = append(res.Errors, &RecordError{Name: rec.Name, Err: err})
			r.logger.Info("skipping invalid toolinfo record",
				zap.String("target", obs.TargetURL),
				zap.String("tool", rec.Name),
				zap.Error(err),
			)
			continue
		}
		delete(still, rec.Name)
		if owner, ok := claims.Claim(rec.Name, obs.TargetURL); !ok {
			res.Actions = append(res.Actions, Action{
				Kind:            ActionRejectDuplicate,
				Name:            rec.Name,
				FirstSeenTarget: owner,
			})
			r.logger.Info("tool already claimed in this run",
				zap.String("target", obs.TargetURL),
				zap.String("tool", rec.Name),
				zap.String("first_seen_target", owner),
			)
			continue
		}
		if _, ok := held[rec.Name]; !ok {
			held[rec.Name] = struct{}{}
			res.Claimed = append(res.Claimed, rec.Name)
		}

		action, err := r.apply(ctx, rec, audit)
		if err != nil {
			res.Valid = false
			res.Errors = append(res.Errors, &RecordError{Name: rec.Name, Err: err})
			r.logger.Error("reconcile tool failed",
				zap.String("target", obs.TargetURL),
				zap.String("tool", rec.Name),
				zap.Error(err),
			)
			continue
		}
		res.Actions = append(res.Actions, action)
	}

	res.StillExpected = sortedNames(still)
	res.DeletionPermitted = r.deletionPermitted(obs)
	return res
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// deletionPermitted depends on the fetch alone: a 2xx body that parsed, or a
// 404 when configured to treat that as the resource disappearing. Invalid
// records stay still-expected; names that hit storage errors were already
// accounted for.
func (r *Reconciler) deletionPermitted(obs Observation) bool {
	if obs.Parsed {
		return true
	}
	return obs.StatusCode == http.StatusNotFound && r.cfg.DeleteOnNotFound
}

func (r *Reconciler) apply(ctx context.Context, rec toolinfo.Record, audit Audit) (Action, error) {
	existing, err := r.inventory.Lookup(ctx, rec.Name)
	if errors.Is(err, ErrToolNotFound) {
		_, created, err := r.inventory.Upsert(ctx, rec, r.cfg.Origin, audit)
		if err != nil {
			return Action{}, fmt.Errorf("create: %w", err)
		}
		if !created {
			return Action{Kind: ActionUpdate, Name: rec.Name}, nil
		}
		return Action{Kind: ActionCreate, Name: rec.Name}, nil
	}
	if err != nil {
		return Action{}, fmt.Errorf("lookup: %w", err)
	}

	changed, err := toolinfo.Diff(existing.Record, rec)
	if err != nil {
		return Action{}, fmt.Errorf("diff: %w", err)
	}

	if existing.Deleted {
		if _, err := r.inventory.Revive(ctx, rec, r.cfg.Origin, audit); err != nil {
			return Action{}, fmt.Errorf("revive: %w", err)
		}
		return Action{Kind: ActionUpdate, Name: rec.Name, ChangedFields: changed, Revived: true}, nil
	}
	if existing.Origin != r.cfg.Origin {
		return Action{}, fmt.Errorf("origin %s cannot become %s: %w", existing.Origin, r.cfg.Origin, ErrInvariantViolation)
	}
	if len(changed) == 0 {
		return Action{Kind: ActionNoOp, Name: rec.Name}, nil
	}
	if _, _, err := r.inventory.Upsert(ctx, rec, r.cfg.Origin, audit); err != nil {
		return Action{}, fmt.Errorf("update: %w", err)
	}
	return Action{Kind: ActionUpdate, Name: rec.Name, ChangedFields: changed}, nil
}

// Sweep soft-deletes the candidates that no target claimed during the run and
// returns the names that were actually deleted.
func (r *Reconciler) Sweep(ctx context.Context, claims *Claims, candidates []string, audit Audit) ([]string, error) {
	names := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if _, claimed := claims.Owner(name); claimed {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, nil
	}
	deleted, err := r.inventory.SoftDelete(ctx, names, audit)
	if err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	return deleted, nil
}
