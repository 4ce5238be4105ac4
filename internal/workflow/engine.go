package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/novelflow/internal/condition"
	"github.com/steveyegge/novelflow/internal/debug"
	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/telemetry"
	"github.com/steveyegge/novelflow/internal/types"
)

// Store is the slice of storage.Storage the engine needs.
type Store interface {
	GetNovel(ctx context.Context, id string) (*types.Novel, error)
	GetChapter(ctx context.Context, id string) (*types.Chapter, error)
	ListChapters(ctx context.Context, novelID string) ([]*types.Chapter, error)
	ListCharacters(ctx context.Context, novelID string) ([]*types.Character, error)
	ListWorldSettings(ctx context.Context, novelID string) ([]*types.WorldSetting, error)
	CountUnresolvedIssues(ctx context.Context, chapterID string) (types.SeverityCounts, error)
	GetWorkflowConfig(ctx context.Context, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error)
	SaveWorkflowConfig(ctx context.Context, cfg *types.WorkflowConfig) error
	CommitTransition(ctx context.Context, rec *storage.TransitionRecord) (*types.StatusHistory, error)
	GetStatusHistory(ctx context.Context, entityType types.EntityType, entityID string, q storage.HistoryQuery) ([]*types.StatusHistory, error)
}

var _ Store = storage.Storage(nil)

// DefaultHistoryLimit caps StatusHistory when the query sets no limit.
const DefaultHistoryLimit = 50

// Engine runs gated status transitions for novels and chapters.
type Engine struct {
	store Store
	locks *entityLocks

	// cfgMu serializes lazy materialization of default workflows.
	cfgMu sync.Mutex

	transitions metric.Int64Counter
}

// New creates an engine over store.
func New(store Store) *Engine {
	counter, _ := telemetry.Meter("github.com/steveyegge/novelflow/workflow").Int64Counter(
		"nf.workflow.transitions",
		metric.WithDescription("Status transitions attempted, by outcome"),
	)
	return &Engine{
		store:       store,
		locks:       newEntityLocks(),
		transitions: counter,
	}
}

// Check is the outcome of a transition eligibility test.
type Check struct {
	EntityType types.EntityType      `json:"entity_type"`
	EntityID   string                `json:"entity_id"`
	From       types.Status          `json:"from"`
	To         types.Status          `json:"to"`
	Allowed    bool                  `json:"allowed"`
	Reason     string                `json:"reason,omitempty"`
	Edge       *types.TransitionEdge `json:"-"`
}

func (c *Check) err() error {
	return &TransitionError{EntityType: c.EntityType, EntityID: c.EntityID, From: c.From, To: c.To, Reason: c.Reason}
}

// TransitionRequest asks the engine to move an entity to a new status.
type TransitionRequest struct {
	EntityType  types.EntityType
	EntityID    string
	ToStatus    types.Status
	TriggeredBy types.TriggeredBy
	Reason      string
	Metadata    map[string]any
}

// TransitionResult reports a committed transition and any novel
// transitions the reconciler made as a consequence.
type TransitionResult struct {
	FromStatus types.Status           `json:"from_status"`
	ToStatus   types.Status           `json:"to_status"`
	History    *types.StatusHistory   `json:"history"`
	Cascade    []*types.StatusHistory `json:"cascade,omitempty"`
}

// loaded is an entity plus the novel that owns it.
type loaded struct {
	entity  types.Entity
	novel   *types.Novel
	chapter *types.Chapter
}

func (e *Engine) load(ctx context.Context, entityType types.EntityType, id string) (*loaded, error) {
	switch entityType {
	case types.EntityNovel:
		n, err := e.store.GetNovel(ctx, id)
		if err != nil {
			return nil, err
		}
		return &loaded{entity: n, novel: n}, nil
	case types.EntityChapter:
		c, err := e.store.GetChapter(ctx, id)
		if err != nil {
			return nil, err
		}
		n, err := e.store.GetNovel(ctx, c.NovelID)
		if err != nil {
			return nil, fmt.Errorf("load novel of chapter %s: %w", id, err)
		}
		return &loaded{entity: c, novel: n, chapter: c}, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", entityType)
}

// Workflow returns the effective graph for (novel, entity type),
// materializing the built-in defaults on first use. An inactive stored
// config is ignored in favour of the defaults.
func (e *Engine) Workflow(ctx context.Context, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error) {
	cfg, err := e.store.GetWorkflowConfig(ctx, novelID, entityType)
	if err == nil {
		if !cfg.IsActive {
			return DefaultWorkflow(novelID, entityType), nil
		}
		return cfg, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	// Another caller may have materialized it while we waited.
	cfg, err = e.store.GetWorkflowConfig(ctx, novelID, entityType)
	if err == nil {
		if !cfg.IsActive {
			return DefaultWorkflow(novelID, entityType), nil
		}
		return cfg, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	cfg = DefaultWorkflow(novelID, entityType)
	if err := e.store.SaveWorkflowConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("materialize default workflow: %w", err)
	}
	debug.Logf("workflow: materialized default %s graph for novel %s\n", entityType, novelID)
	return cfg, nil
}

// snapshot gathers only what specs will read.
func (e *Engine) snapshot(ctx context.Context, l *loaded, specs []types.ConditionSpec) (condition.Snapshot, error) {
	snap := condition.Snapshot{Novel: l.novel, Chapter: l.chapter}
	need := condition.Needs(specs)
	if need.Characters {
		chars, err := e.store.ListCharacters(ctx, l.novel.ID)
		if err != nil {
			return snap, fmt.Errorf("list characters: %w", err)
		}
		snap.CharacterCount = len(chars)
	}
	if need.Chapters {
		chapters, err := e.store.ListChapters(ctx, l.novel.ID)
		if err != nil {
			return snap, fmt.Errorf("list chapters: %w", err)
		}
		snap.Chapters = chapters
	}
	if need.Issues && l.chapter != nil {
		counts, err := e.store.CountUnresolvedIssues(ctx, l.chapter.ID)
		if err != nil {
			return snap, fmt.Errorf("count issues: %w", err)
		}
		snap.UnresolvedIssues = counts
	}
	return snap, nil
}

// evaluate resolves the edge and runs its conditions against l.
func (e *Engine) evaluate(ctx context.Context, l *loaded, to types.Status, triggeredBy types.TriggeredBy) (*Check, error) {
	from := l.entity.CurrentStatus()
	chk := &Check{
		EntityType: l.entity.EntityType(),
		EntityID:   l.entity.EntityID(),
		From:       from,
		To:         to,
	}
	cfg, err := e.Workflow(ctx, l.novel.ID, chk.EntityType)
	if err != nil {
		return nil, err
	}
	edge := cfg.FindEdge(from, to)
	if edge == nil {
		chk.Reason = noEdgeReason(from, to)
		return chk, nil
	}
	chk.Edge = edge
	if triggeredBy == types.TriggeredBySystem && !edge.AutoTrigger {
		chk.Reason = manualOnlyReason(from, to)
		return chk, nil
	}
	snap, err := e.snapshot(ctx, l, edge.Conditions)
	if err != nil {
		return nil, err
	}
	res := condition.Evaluate(edge.Conditions, snap)
	chk.Allowed = res.Satisfied
	chk.Reason = res.Reason
	return chk, nil
}

// CanTransition reports whether a user could move the entity to toStatus
// right now. A refusal is a Check with Allowed=false; the error return is
// reserved for lookups that failed (storage.ErrNotFound and the like).
func (e *Engine) CanTransition(ctx context.Context, entityType types.EntityType, id string, to types.Status) (*Check, error) {
	l, err := e.load(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, l, to, types.TriggeredByUser)
}

// TransitionStatus re-validates and commits a transition. Refusals are
// returned as *TransitionError. For chapters the parent novel is then
// reconciled; reconciliation failures are logged and never undo the
// committed chapter transition.
func (e *Engine) TransitionStatus(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if req.TriggeredBy == "" {
		req.TriggeredBy = types.TriggeredByUser
	}
	if !req.TriggeredBy.IsValid() {
		return nil, fmt.Errorf("invalid trigger source %q", req.TriggeredBy)
	}
	if err := storage.ValidateMetadata(req.Metadata); err != nil {
		return nil, err
	}

	res, novelID, err := e.commit(ctx, req)
	if err != nil {
		return nil, err
	}

	// One-directional cascade: chapter -> novel only.
	if req.EntityType == types.EntityChapter {
		cascade, err := e.CheckAndUpdateNovelStatus(ctx, novelID)
		if err != nil {
			debug.Logf("workflow: reconcile novel %s after chapter %s: %v\n", novelID, req.EntityID, err)
		}
		res.Cascade = cascade
	}
	return res, nil
}

// commit validates and writes under the entity lock. The lock is released
// before any cascade runs.
func (e *Engine) commit(ctx context.Context, req TransitionRequest) (*TransitionResult, string, error) {
	unlock := e.locks.lock(req.EntityType, req.EntityID)
	defer unlock()

	l, err := e.load(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, "", err
	}
	chk, err := e.evaluate(ctx, l, req.ToStatus, req.TriggeredBy)
	if err != nil {
		return nil, "", err
	}
	if !chk.Allowed {
		e.count(ctx, req, "rejected")
		return nil, "", chk.err()
	}

	h, err := e.store.CommitTransition(ctx, &storage.TransitionRecord{
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		FromStatus:  chk.From,
		ToStatus:    req.ToStatus,
		TriggeredBy: req.TriggeredBy,
		Reason:      req.Reason,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			e.count(ctx, req, "conflict")
		}
		return nil, "", fmt.Errorf("commit transition: %w", err)
	}
	e.count(ctx, req, "committed")
	debug.Logf("workflow: %s %s %s -> %s (%s)\n", req.EntityType, req.EntityID, chk.From, req.ToStatus, req.TriggeredBy)
	return &TransitionResult{FromStatus: chk.From, ToStatus: req.ToStatus, History: h}, l.novel.ID, nil
}

func (e *Engine) count(ctx context.Context, req TransitionRequest, outcome string) {
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("nf.entity.type", string(req.EntityType)),
		attribute.String("nf.triggered_by", string(req.TriggeredBy)),
		attribute.String("outcome", outcome),
	))
}

// AvailableTransitions lists every edge leaving the entity's current status
// with a live eligibility check. Read-only.
func (e *Engine) AvailableTransitions(ctx context.Context, entityType types.EntityType, id string) ([]*Available, error) {
	l, err := e.load(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	cfg, err := e.Workflow(ctx, l.novel.ID, entityType)
	if err != nil {
		return nil, err
	}
	var out []*Available
	for _, edge := range cfg.EdgesFrom(l.entity.CurrentStatus()) {
		chk, err := e.evaluate(ctx, l, edge.To, types.TriggeredByUser)
		if err != nil {
			return nil, err
		}
		out = append(out, &Available{
			To:          edge.To,
			AutoTrigger: edge.AutoTrigger,
			Conditions:  edge.Conditions,
			Allowed:     chk.Allowed,
			Reason:      chk.Reason,
		})
	}
	return out, nil
}

// Available is one outgoing edge annotated with whether it can be taken now.
type Available struct {
	To          types.Status          `json:"to"`
	AutoTrigger bool                  `json:"auto_trigger"`
	Conditions  []types.ConditionSpec `json:"conditions,omitempty"`
	Allowed     bool                  `json:"allowed"`
	Reason      string                `json:"reason,omitempty"`
}

// StatusHistory returns the entity's committed transitions, most recent
// first. The entity must exist. A query without a positive limit returns at
// most DefaultHistoryLimit entries.
func (e *Engine) StatusHistory(ctx context.Context, entityType types.EntityType, id string, q storage.HistoryQuery) ([]*types.StatusHistory, error) {
	if _, err := e.load(ctx, entityType, id); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	return e.store.GetStatusHistory(ctx, entityType, id, q)
}
