package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/novelflow/internal/debug"
	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

// DeriveNovelStatus computes the status a novel should hold given its
// chapters and how much of its world has been built.
func DeriveNovelStatus(novel *types.Novel, chapters []*types.Chapter, characters, settings int) types.Status {
	if len(chapters) == 0 {
		switch {
		case characters > 0 || settings > 0:
			return types.StatusPlanning
		case novel.HasBasicInfo():
			return types.StatusDraft
		default:
			return types.StatusConcept
		}
	}

	allCompleted := true
	inProgress := false
	for _, c := range chapters {
		if c.Status != types.StatusCompleted {
			allCompleted = false
		}
		switch c.Status {
		case types.StatusWriting, types.StatusReviewing, types.StatusEditing, types.StatusCompleted:
			inProgress = true
		}
	}
	switch {
	case allCompleted:
		return types.StatusEditing
	case inProgress:
		return types.StatusWriting
	default:
		return types.StatusPlanning
	}
}

// CalculateNovelStatus loads the novel's surroundings and derives its status.
func (e *Engine) CalculateNovelStatus(ctx context.Context, novelID string) (types.Status, error) {
	novel, err := e.store.GetNovel(ctx, novelID)
	if err != nil {
		return "", err
	}
	return e.calculate(ctx, novel)
}

func (e *Engine) calculate(ctx context.Context, novel *types.Novel) (types.Status, error) {
	chapters, err := e.store.ListChapters(ctx, novel.ID)
	if err != nil {
		return "", fmt.Errorf("list chapters: %w", err)
	}
	chars, err := e.store.ListCharacters(ctx, novel.ID)
	if err != nil {
		return "", fmt.Errorf("list characters: %w", err)
	}
	settings, err := e.store.ListWorldSettings(ctx, novel.ID)
	if err != nil {
		return "", fmt.Errorf("list world settings: %w", err)
	}
	return DeriveNovelStatus(novel, chapters, len(chars), len(settings)), nil
}

// CheckAndUpdateNovelStatus moves the novel toward its derived status. It
// only moves forward, one auto-trigger edge at a time, through the same
// gated path as user transitions; the first refusal ends the walk without
// error. Returned history rows are the steps actually committed.
func (e *Engine) CheckAndUpdateNovelStatus(ctx context.Context, novelID string) ([]*types.StatusHistory, error) {
	novel, err := e.store.GetNovel(ctx, novelID)
	if err != nil {
		return nil, err
	}
	target, err := e.calculate(ctx, novel)
	if err != nil {
		return nil, err
	}
	cfg, err := e.Workflow(ctx, novelID, types.EntityNovel)
	if err != nil {
		return nil, err
	}

	var committed []*types.StatusHistory
	current := novel.Status
	// Each step strictly increases rank, so the walk is bounded by the
	// number of novel statuses.
	for current.Rank(types.EntityNovel) < target.Rank(types.EntityNovel) {
		next, ok := nextAutoStep(cfg, current, target)
		if !ok {
			debug.Logf("workflow: novel %s has no auto edge from %s toward %s\n", novelID, current, target)
			break
		}
		res, err := e.commitNovelStep(ctx, novelID, next, target)
		if err != nil {
			var te *TransitionError
			if errors.As(err, &te) || errors.Is(err, storage.ErrConflict) {
				debug.Logf("workflow: novel %s stays %s: %v\n", novelID, current, err)
				break
			}
			return committed, err
		}
		committed = append(committed, res.History)
		current = next
	}
	return committed, nil
}

func (e *Engine) commitNovelStep(ctx context.Context, novelID string, to, target types.Status) (*TransitionResult, error) {
	res, _, err := e.commit(ctx, TransitionRequest{
		EntityType:  types.EntityNovel,
		EntityID:    novelID,
		ToStatus:    to,
		TriggeredBy: types.TriggeredBySystem,
		Reason:      "status reconciliation",
		Metadata:    map[string]any{"derived_status": string(target)},
	})
	return res, err
}

// nextAutoStep picks the auto-trigger edge out of current that gets
// furthest toward target without passing it.
func nextAutoStep(cfg *types.WorkflowConfig, current, target types.Status) (types.Status, bool) {
	curRank := current.Rank(types.EntityNovel)
	targetRank := target.Rank(types.EntityNovel)
	best, bestRank := types.Status(""), curRank
	for _, e := range cfg.EdgesFrom(current) {
		if !e.AutoTrigger {
			continue
		}
		r := e.To.Rank(types.EntityNovel)
		if r > bestRank && r <= targetRank {
			best, bestRank = e.To, r
		}
	}
	return best, best != ""
}
