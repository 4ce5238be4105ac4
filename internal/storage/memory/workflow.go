package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

// Issues

func (m *MemoryStorage) ReplaceChapterIssues(ctx context.Context, chapterID string, issues []*types.Issue) error {
	for _, issue := range issues {
		issue.ChapterID = chapterID
		if err := issue.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chapters[chapterID]; !ok {
		return fmt.Errorf("chapter %s: %w", chapterID, storage.ErrNotFound)
	}
	for id, issue := range m.issues {
		if issue.ChapterID == chapterID {
			delete(m.issues, id)
		}
	}
	now := m.now()
	for _, issue := range issues {
		if issue.ID == "" {
			issue.ID = uuid.NewString()
		}
		if issue.CreatedAt.IsZero() {
			issue.CreatedAt = now
		}
		cp := *issue
		cp.RelatedChapters = append([]int(nil), issue.RelatedChapters...)
		m.issues[issue.ID] = &cp
	}
	return nil
}

func (m *MemoryStorage) GetIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Issue
	for _, issue := range m.issues {
		if filter.ChapterID != "" && issue.ChapterID != filter.ChapterID {
			continue
		}
		if filter.Type != nil && issue.Type != *filter.Type {
			continue
		}
		if filter.Severity != nil && issue.Severity != *filter.Severity {
			continue
		}
		if filter.Resolved != nil && issue.Resolved != *filter.Resolved {
			continue
		}
		cp := *issue
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	cp := *issue
	return &cp, nil
}

func (m *MemoryStorage) SetIssueResolved(ctx context.Context, id string, resolved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	cp := *issue
	cp.Resolved = resolved
	m.issues[id] = &cp
	return nil
}

func (m *MemoryStorage) DeleteIssue(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[id]; !ok {
		return fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	delete(m.issues, id)
	return nil
}

func (m *MemoryStorage) CountUnresolvedIssues(ctx context.Context, chapterID string) (types.SeverityCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var counts types.SeverityCounts
	for _, issue := range m.issues {
		if issue.ChapterID == chapterID && !issue.Resolved {
			counts.Add(issue.Severity)
		}
	}
	return counts, nil
}

// Workflow configuration

func (m *MemoryStorage) GetWorkflowConfig(ctx context.Context, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.workflows[workflowKey{novelID, entityType}]
	if !ok {
		return nil, fmt.Errorf("workflow %s/%s: %w", novelID, entityType, storage.ErrNotFound)
	}
	return copyWorkflow(cfg), nil
}

func (m *MemoryStorage) SaveWorkflowConfig(ctx context.Context, cfg *types.WorkflowConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.novels[cfg.NovelID]; !ok {
		return fmt.Errorf("novel %s: %w", cfg.NovelID, storage.ErrNotFound)
	}
	key := workflowKey{cfg.NovelID, cfg.EntityType}
	now := m.now()
	if existing, ok := m.workflows[key]; ok {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.Version = existing.Version + 1
	} else {
		if cfg.ID == "" {
			cfg.ID = uuid.NewString()
		}
		cfg.CreatedAt = now
		cfg.Version = 1
	}
	cfg.UpdatedAt = now
	m.workflows[key] = copyWorkflow(cfg)
	return nil
}

func copyWorkflow(cfg *types.WorkflowConfig) *types.WorkflowConfig {
	cp := *cfg
	cp.Transitions = make([]types.TransitionEdge, len(cfg.Transitions))
	for i, e := range cfg.Transitions {
		e.Conditions = append([]types.ConditionSpec(nil), e.Conditions...)
		cp.Transitions[i] = e
	}
	return &cp
}

// Transitions and history

func (m *MemoryStorage) CommitTransition(ctx context.Context, rec *storage.TransitionRecord) (*types.StatusHistory, error) {
	if !rec.ToStatus.IsValidFor(rec.EntityType) {
		return nil, fmt.Errorf("invalid %s status: %s", rec.EntityType, rec.ToStatus)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	switch rec.EntityType {
	case types.EntityNovel:
		n, ok := m.novels[rec.EntityID]
		if !ok {
			return nil, fmt.Errorf("novel %s: %w", rec.EntityID, storage.ErrNotFound)
		}
		if n.Status != rec.FromStatus {
			return nil, fmt.Errorf("novel %s is %s, expected %s: %w", rec.EntityID, n.Status, rec.FromStatus, storage.ErrConflict)
		}
		cp := *n
		cp.Status, cp.UpdatedAt = rec.ToStatus, now
		m.novels[rec.EntityID] = &cp
	case types.EntityChapter:
		c, ok := m.chapters[rec.EntityID]
		if !ok {
			return nil, fmt.Errorf("chapter %s: %w", rec.EntityID, storage.ErrNotFound)
		}
		if c.Status != rec.FromStatus {
			return nil, fmt.Errorf("chapter %s is %s, expected %s: %w", rec.EntityID, c.Status, rec.FromStatus, storage.ErrConflict)
		}
		cp := *c
		cp.Status, cp.UpdatedAt = rec.ToStatus, now
		m.chapters[rec.EntityID] = &cp
	default:
		return nil, fmt.Errorf("invalid entity type: %s", rec.EntityType)
	}

	h := &types.StatusHistory{
		ID:          uuid.NewString(),
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		FromStatus:  rec.FromStatus,
		ToStatus:    rec.ToStatus,
		TriggeredBy: rec.TriggeredBy,
		Reason:      rec.Reason,
		Metadata:    rec.Metadata,
		CreatedAt:   now,
	}
	m.history = append(m.history, h)
	cp := *h
	return &cp, nil
}

func (m *MemoryStorage) GetStatusHistory(ctx context.Context, entityType types.EntityType, entityID string, q storage.HistoryQuery) ([]*types.StatusHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.StatusHistory
	// history is append-only, so walking backwards yields most recent first
	for i := len(m.history) - 1; i >= 0; i-- {
		h := m.history[i]
		if h.EntityType != entityType || h.EntityID != entityID {
			continue
		}
		if !q.Since.IsZero() && h.CreatedAt.Before(q.Since) {
			continue
		}
		cp := *h
		out = append(out, &cp)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
