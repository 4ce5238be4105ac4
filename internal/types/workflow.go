package types

import (
	"fmt"
	"time"
)

// ConditionType names a predicate gating a transition edge.
type ConditionType string

// Known condition types. Unknown names may still be stored (imported
// workflows) but always fail evaluation.
const (
	CondBasicInfoComplete      ConditionType = "basic_info_complete"
	CondCharactersCreated      ConditionType = "characters_created"
	CondHasChapters            ConditionType = "has_chapters"
	CondAllChaptersCompleted   ConditionType = "all_chapters_completed"
	CondOutlineExists          ConditionType = "outline_exists"
	CondContentStarted         ConditionType = "content_started"
	CondWordCountTarget        ConditionType = "word_count_target"
	CondConsistencyCheckPassed ConditionType = "consistency_check_passed"
	CondManualTrigger          ConditionType = "manual_trigger"
)

// IsKnown reports whether the evaluator has a predicate for this type.
func (c ConditionType) IsKnown() bool {
	switch c {
	case CondBasicInfoComplete, CondCharactersCreated, CondHasChapters,
		CondAllChaptersCompleted, CondOutlineExists, CondContentStarted,
		CondWordCountTarget, CondConsistencyCheckPassed, CondManualTrigger:
		return true
	}
	return false
}

// ConditionSpec declares one condition on an edge. Value carries an
// optional numeric parameter, e.g. the word-count threshold ratio.
type ConditionSpec struct {
	Type  ConditionType `json:"type" yaml:"type" toml:"type"`
	Value *float64      `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
}

// Cond is shorthand for a parameterless ConditionSpec.
func Cond(t ConditionType) ConditionSpec {
	return ConditionSpec{Type: t}
}

// CondValue is shorthand for a ConditionSpec carrying a numeric value.
func CondValue(t ConditionType, v float64) ConditionSpec {
	return ConditionSpec{Type: t, Value: &v}
}

// TransitionEdge is an allowed (from, to) status pair.
type TransitionEdge struct {
	From        Status          `json:"from" yaml:"from" toml:"from"`
	To          Status          `json:"to" yaml:"to" toml:"to"`
	Conditions  []ConditionSpec `json:"conditions,omitempty" yaml:"conditions,omitempty" toml:"conditions,omitempty"`
	AutoTrigger bool            `json:"auto_trigger" yaml:"auto_trigger" toml:"auto_trigger"`
}

// WorkflowConfig is the transition graph for one (novel, entity type) pair.
type WorkflowConfig struct {
	ID          string           `json:"id"`
	NovelID     string           `json:"novel_id"`
	EntityType  EntityType       `json:"entity_type"`
	Transitions []TransitionEdge `json:"transitions"`
	IsActive    bool             `json:"is_active"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// FindEdge returns the edge from -> to, or nil when the graph has none.
func (w *WorkflowConfig) FindEdge(from, to Status) *TransitionEdge {
	for i := range w.Transitions {
		if w.Transitions[i].From == from && w.Transitions[i].To == to {
			return &w.Transitions[i]
		}
	}
	return nil
}

// EdgesFrom returns every edge leaving status, in declared order.
func (w *WorkflowConfig) EdgesFrom(from Status) []TransitionEdge {
	var out []TransitionEdge
	for _, e := range w.Transitions {
		if e.From == from {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks that every edge uses statuses of the config's entity type
// and that no (from, to) pair is declared twice.
func (w *WorkflowConfig) Validate() error {
	if !w.EntityType.IsValid() {
		return fmt.Errorf("invalid entity type: %s", w.EntityType)
	}
	if w.NovelID == "" {
		return fmt.Errorf("novel_id is required")
	}
	seen := make(map[[2]Status]bool, len(w.Transitions))
	for i, e := range w.Transitions {
		if !e.From.IsValidFor(w.EntityType) {
			return fmt.Errorf("transition %d: %q is not a %s status", i, e.From, w.EntityType)
		}
		if !e.To.IsValidFor(w.EntityType) {
			return fmt.Errorf("transition %d: %q is not a %s status", i, e.To, w.EntityType)
		}
		if e.From == e.To {
			return fmt.Errorf("transition %d: self-loop on %q", i, e.From)
		}
		key := [2]Status{e.From, e.To}
		if seen[key] {
			return fmt.Errorf("transition %d: duplicate edge %s -> %s", i, e.From, e.To)
		}
		seen[key] = true
		for _, c := range e.Conditions {
			if c.Type == "" {
				return fmt.Errorf("transition %d: condition with empty type", i)
			}
		}
	}
	return nil
}

// StatusHistory is one append-only audit record of a committed transition.
type StatusHistory struct {
	ID          string         `json:"id"`
	EntityType  EntityType     `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	FromStatus  Status         `json:"from_status"`
	ToStatus    Status         `json:"to_status"`
	TriggeredBy TriggeredBy    `json:"triggered_by"`
	Reason      string         `json:"reason,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
