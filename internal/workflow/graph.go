// Package workflow implements the status workflow engine: per-novel
// transition graphs, gated transitions with history, the novel status
// reconciler, and batch/sweep operations over a novel's chapters.
package workflow

import (
	"github.com/steveyegge/novelflow/internal/types"
)

func edge(from, to types.Status, auto bool, conds ...types.ConditionSpec) types.TransitionEdge {
	return types.TransitionEdge{From: from, To: to, Conditions: conds, AutoTrigger: auto}
}

var manual = types.Cond(types.CondManualTrigger)

// novelTransitions is the built-in novel graph. Forward edges up to editing
// are structural and auto-triggerable; completing and publishing are manual.
var novelTransitions = []types.TransitionEdge{
	edge(types.StatusConcept, types.StatusDraft, true, types.Cond(types.CondBasicInfoComplete)),
	edge(types.StatusDraft, types.StatusPlanning, true, types.Cond(types.CondCharactersCreated)),
	edge(types.StatusPlanning, types.StatusWriting, true, types.Cond(types.CondHasChapters)),
	edge(types.StatusWriting, types.StatusEditing, true, types.Cond(types.CondAllChaptersCompleted)),
	edge(types.StatusEditing, types.StatusCompleted, false, manual),
	edge(types.StatusCompleted, types.StatusPublished, false, manual),

	// manual rework
	edge(types.StatusWriting, types.StatusPlanning, false, manual),
	edge(types.StatusEditing, types.StatusWriting, false, manual),
	edge(types.StatusCompleted, types.StatusEditing, false, manual),
}

// chapterTransitions is the built-in chapter graph. Leaving review requires
// a clean consistency check and a user; completion is manual.
var chapterTransitions = []types.TransitionEdge{
	edge(types.StatusPlanning, types.StatusOutlined, true, types.Cond(types.CondOutlineExists)),
	edge(types.StatusOutlined, types.StatusWriting, true, types.Cond(types.CondContentStarted)),
	edge(types.StatusWriting, types.StatusReviewing, true, types.Cond(types.CondWordCountTarget)),
	edge(types.StatusReviewing, types.StatusEditing, false, types.Cond(types.CondConsistencyCheckPassed)),
	edge(types.StatusEditing, types.StatusCompleted, false, manual),

	// manual rework
	edge(types.StatusReviewing, types.StatusWriting, false, manual),
	edge(types.StatusEditing, types.StatusWriting, false, manual),
	edge(types.StatusCompleted, types.StatusEditing, false, manual),
}

// DefaultTransitions returns a fresh copy of the built-in graph for an
// entity type.
func DefaultTransitions(entityType types.EntityType) []types.TransitionEdge {
	var src []types.TransitionEdge
	switch entityType {
	case types.EntityNovel:
		src = novelTransitions
	case types.EntityChapter:
		src = chapterTransitions
	}
	out := make([]types.TransitionEdge, len(src))
	for i, e := range src {
		e.Conditions = append([]types.ConditionSpec(nil), e.Conditions...)
		out[i] = e
	}
	return out
}

// DefaultWorkflow builds the unsaved built-in config for (novel, entity type).
func DefaultWorkflow(novelID string, entityType types.EntityType) *types.WorkflowConfig {
	return &types.WorkflowConfig{
		NovelID:     novelID,
		EntityType:  entityType,
		Transitions: DefaultTransitions(entityType),
		IsActive:    true,
	}
}
