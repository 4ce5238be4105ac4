package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/novelflow/internal/types"
)

// Definition is the file form of a workflow graph.
type Definition struct {
	EntityType  types.EntityType       `json:"entity_type" yaml:"entity_type" toml:"entity_type"`
	Transitions []types.TransitionEdge `json:"transitions" yaml:"transitions" toml:"transitions"`
}

// ParseDefinition decodes a workflow definition, choosing the format from
// the file extension (.yaml, .yml, .json, .toml).
func ParseDefinition(filename string, data []byte) (*Definition, error) {
	var def Definition
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &def)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse %s: unknown keys %v", filename, undecoded)
		}
	default:
		return nil, fmt.Errorf("unsupported workflow file extension %q (want .yaml, .yml, .json or .toml)", ext)
	}
	if !def.EntityType.IsValid() {
		return nil, fmt.Errorf("%s: entity_type must be novel or chapter, got %q", filename, def.EntityType)
	}
	return &def, nil
}

// MarshalDefinition renders a workflow as YAML.
func MarshalDefinition(cfg *types.WorkflowConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Definition{EntityType: cfg.EntityType, Transitions: cfg.Transitions}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnknownConditions lists condition types in def that no predicate handles.
// They are accepted but always fail.
func UnknownConditions(def *Definition) []types.ConditionType {
	seen := make(map[types.ConditionType]bool)
	var out []types.ConditionType
	for _, e := range def.Transitions {
		for _, c := range e.Conditions {
			if !c.Type.IsKnown() && !seen[c.Type] {
				seen[c.Type] = true
				out = append(out, c.Type)
			}
		}
	}
	return out
}

// ImportWorkflow replaces the novel's graph for def.EntityType.
func (e *Engine) ImportWorkflow(ctx context.Context, novelID string, def *Definition) (*types.WorkflowConfig, error) {
	if _, err := e.store.GetNovel(ctx, novelID); err != nil {
		return nil, err
	}
	cfg := &types.WorkflowConfig{
		NovelID:     novelID,
		EntityType:  def.EntityType,
		Transitions: def.Transitions,
		IsActive:    true,
	}
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if err := e.store.SaveWorkflowConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResetWorkflow restores the built-in graph for (novel, entity type).
func (e *Engine) ResetWorkflow(ctx context.Context, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error) {
	return e.ImportWorkflow(ctx, novelID, &Definition{
		EntityType:  entityType,
		Transitions: DefaultTransitions(entityType),
	})
}
