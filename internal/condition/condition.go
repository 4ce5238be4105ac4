// Package condition evaluates the predicates that gate workflow transitions.
//
// Evaluation is pure: callers gather a Snapshot of the entity and its
// surroundings, and Evaluate decides against it without touching storage.
// Conditions run in declared order and stop at the first failure, so only
// one blocking reason is ever reported.
package condition

import (
	"fmt"
	"math"
	"strings"

	"github.com/steveyegge/novelflow/internal/types"
)

// DefaultWordCountThreshold is the fraction of a chapter's target word
// count that word_count_target requires when the condition carries no value.
const DefaultWordCountThreshold = 0.8

// Result is the outcome of evaluating an edge's conditions.
type Result struct {
	// Satisfied is true if every condition passed.
	Satisfied bool

	// Reason names the first failing condition; empty when satisfied.
	Reason string

	// Failed is the condition that blocked, if any.
	Failed *types.ConditionSpec
}

// Snapshot is the read-only view conditions are evaluated against.
// Novel is always set. Chapter is set for chapter transitions. The counts
// and slices only need to be populated for the conditions that read them
// (see Needs).
type Snapshot struct {
	Novel          *types.Novel
	Chapter        *types.Chapter
	CharacterCount int
	Chapters       []*types.Chapter
	// UnresolvedIssues are the chapter's unresolved issue counts.
	UnresolvedIssues types.SeverityCounts
}

// Requirements tells a snapshot loader which expensive lookups a set of
// conditions depends on.
type Requirements struct {
	Characters bool
	Chapters   bool
	Issues     bool
}

// Needs reports which lookups Evaluate will read for specs.
func Needs(specs []types.ConditionSpec) Requirements {
	var r Requirements
	for _, s := range specs {
		switch s.Type {
		case types.CondCharactersCreated:
			r.Characters = true
		case types.CondHasChapters, types.CondAllChaptersCompleted:
			r.Chapters = true
		case types.CondConsistencyCheckPassed:
			r.Issues = true
		}
	}
	return r
}

// Evaluate checks specs in order and short-circuits on the first failure.
// An empty spec list is satisfied.
func Evaluate(specs []types.ConditionSpec, snap Snapshot) Result {
	for i := range specs {
		ok, reason := Check(specs[i], snap)
		if !ok {
			return Result{Satisfied: false, Reason: reason, Failed: &specs[i]}
		}
	}
	return Result{Satisfied: true}
}

// Check evaluates a single condition. Unknown types fail closed.
func Check(spec types.ConditionSpec, snap Snapshot) (bool, string) {
	switch spec.Type {
	case types.CondBasicInfoComplete:
		if snap.Novel == nil || !snap.Novel.HasBasicInfo() {
			return false, "needs complete basic info"
		}
	case types.CondCharactersCreated:
		if snap.CharacterCount < 1 {
			return false, "needs at least one character"
		}
	case types.CondHasChapters:
		if len(snap.Chapters) < 1 {
			return false, "needs at least one chapter"
		}
	case types.CondAllChaptersCompleted:
		if !allCompleted(snap.Chapters) {
			return false, "all chapters must be completed"
		}
	case types.CondOutlineExists:
		if snap.Chapter == nil || strings.TrimSpace(snap.Chapter.Outline) == "" {
			return false, "needs an outline"
		}
	case types.CondContentStarted:
		if snap.Chapter == nil || strings.TrimSpace(snap.Chapter.Content) == "" {
			return false, "needs to start writing"
		}
	case types.CondWordCountTarget:
		return checkWordCount(spec, snap.Chapter)
	case types.CondConsistencyCheckPassed:
		return checkConsistency(snap.UnresolvedIssues)
	case types.CondManualTrigger:
		// Always passes; whether a non-user caller may take the edge is
		// decided by the engine via the edge's auto_trigger flag.
	default:
		return false, fmt.Sprintf("unknown condition type %q", spec.Type)
	}
	return true, ""
}

func allCompleted(chapters []*types.Chapter) bool {
	if len(chapters) == 0 {
		return false
	}
	for _, c := range chapters {
		if c.Status != types.StatusCompleted {
			return false
		}
	}
	return true
}

func checkWordCount(spec types.ConditionSpec, ch *types.Chapter) (bool, string) {
	threshold := DefaultWordCountThreshold
	if spec.Value != nil && *spec.Value > 0 {
		threshold = *spec.Value
	}
	target := types.DefaultChapterTargetWords
	wordCount := 0
	if ch != nil {
		target = ch.EffectiveTargetWords()
		wordCount = ch.WordCount
	}
	required := int(math.Ceil(threshold * float64(target)))
	if wordCount >= required {
		return true, ""
	}
	return false, fmt.Sprintf("word count must reach %d%% of target (%d/%d words)",
		int(math.Round(threshold*100)), wordCount, required)
}

func checkConsistency(counts types.SeverityCounts) (bool, string) {
	switch {
	case counts.High > 0:
		return false, remaining(counts.High, "severe")
	case counts.Medium > 0:
		return false, remaining(counts.Medium, "medium-severity")
	}
	return true, ""
}

func remaining(n int, label string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s consistency issue remains", label)
	}
	return fmt.Sprintf("%d %s consistency issues remain", n, label)
}
