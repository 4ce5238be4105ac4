package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/novelflow/internal/debug"
	"github.com/steveyegge/novelflow/internal/types"
)

// BatchResult is the outcome for one chapter of a batch advance.
type BatchResult struct {
	ChapterID     string       `json:"chapter_id"`
	ChapterNumber int          `json:"chapter_number"`
	From          types.Status `json:"from"`
	To            types.Status `json:"to"`
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
}

// BatchAdvance attempts from -> to for every chapter of the novel currently
// in from. Each chapter is independent: a refusal is recorded and the batch
// moves on. Only a failure to list the chapters aborts the call.
func (e *Engine) BatchAdvance(ctx context.Context, novelID string, from, to types.Status, triggeredBy types.TriggeredBy, reason string) ([]*BatchResult, error) {
	if _, err := e.store.GetNovel(ctx, novelID); err != nil {
		return nil, err
	}
	if !from.IsValidFor(types.EntityChapter) || !to.IsValidFor(types.EntityChapter) {
		return nil, fmt.Errorf("batch advance: %s -> %s are not chapter statuses", from, to)
	}
	chapters, err := e.store.ListChapters(ctx, novelID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	var results []*BatchResult
	for _, c := range chapters {
		if c.Status != from {
			continue
		}
		r := &BatchResult{ChapterID: c.ID, ChapterNumber: c.Number, From: from, To: to}
		_, err := e.TransitionStatus(ctx, TransitionRequest{
			EntityType:  types.EntityChapter,
			EntityID:    c.ID,
			ToStatus:    to,
			TriggeredBy: triggeredBy,
			Reason:      reason,
			Metadata:    map[string]any{"batch": true},
		})
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Success = true
		}
		results = append(results, r)
	}
	return results, nil
}

// SweepStep is one transition committed (or attempted) by AutoAdvance.
type SweepStep struct {
	EntityType types.EntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	From       types.Status     `json:"from"`
	To         types.Status     `json:"to"`
	Error      string           `json:"error,omitempty"`
}

// AutoAdvance sweeps every chapter of the novel, then the novel itself,
// repeatedly taking any auto-trigger edge whose conditions pass until none
// is left. It is the explicit counterpart of the implicit reconciliation
// that follows a single chapter transition.
func (e *Engine) AutoAdvance(ctx context.Context, novelID string) ([]*SweepStep, error) {
	if _, err := e.store.GetNovel(ctx, novelID); err != nil {
		return nil, err
	}
	chapters, err := e.store.ListChapters(ctx, novelID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	var steps []*SweepStep
	for _, c := range chapters {
		s, err := e.advanceEntity(ctx, types.EntityChapter, c.ID)
		steps = append(steps, s...)
		if err != nil {
			return steps, err
		}
	}
	s, err := e.advanceEntity(ctx, types.EntityNovel, novelID)
	steps = append(steps, s...)
	return steps, err
}

func (e *Engine) advanceEntity(ctx context.Context, entityType types.EntityType, id string) ([]*SweepStep, error) {
	var steps []*SweepStep
	// Bounded in case a custom graph contains an auto-trigger cycle.
	for i := 0; i < len(types.StatusesFor(entityType)); i++ {
		avail, err := e.AvailableTransitions(ctx, entityType, id)
		if err != nil {
			return steps, err
		}
		var pick *Available
		for _, a := range avail {
			if a.AutoTrigger && a.Allowed {
				pick = a
				break
			}
		}
		if pick == nil {
			return steps, nil
		}

		res, err := e.TransitionStatus(ctx, TransitionRequest{
			EntityType:  entityType,
			EntityID:    id,
			ToStatus:    pick.To,
			TriggeredBy: types.TriggeredBySystem,
			Reason:      "auto-advance sweep",
		})
		if err != nil {
			var te *TransitionError
			if errors.As(err, &te) {
				steps = append(steps, &SweepStep{EntityType: entityType, EntityID: id, From: te.From, To: pick.To, Error: te.Reason})
				return steps, nil
			}
			debug.Logf("workflow: sweep %s %s: %v\n", entityType, id, err)
			steps = append(steps, &SweepStep{EntityType: entityType, EntityID: id, To: pick.To, Error: err.Error()})
			return steps, nil
		}
		steps = append(steps, &SweepStep{EntityType: entityType, EntityID: id, From: res.FromStatus, To: res.ToStatus})
		for _, h := range res.Cascade {
			steps = append(steps, &SweepStep{EntityType: h.EntityType, EntityID: h.EntityID, From: h.FromStatus, To: h.ToStatus})
		}
	}
	return steps, nil
}
