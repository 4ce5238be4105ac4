package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

func setupTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createNovel(t *testing.T, s *SQLiteStorage) *types.Novel {
	t.Helper()
	n := &types.Novel{Title: "The Salt Road", Description: "A caravan crosses the desert"}
	if err := s.CreateNovel(context.Background(), n); err != nil {
		t.Fatalf("CreateNovel: %v", err)
	}
	return n
}

func TestNewAppliesMigrations(t *testing.T) {
	store := setupTestStore(t)

	var version int
	if err := store.UnderlyingDB().QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}

	exists, err := columnExists(store.UnderlyingDB(), "workflow_configs", "version")
	require.NoError(t, err)
	assert.True(t, exists)

	// Re-running is a no-op
	require.NoError(t, RunMigrations(store.UnderlyingDB()))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nf.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	n := &types.Novel{Title: "Persisted"}
	require.NoError(t, store.CreateNovel(ctx, n))
	require.NoError(t, store.Close())

	store, err = New(ctx, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	got, err := store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Persisted", got.Title)
	assert.Equal(t, types.StatusConcept, got.Status)
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	n := &types.Novel{Title: "Ephemeral"}
	require.NoError(t, store.CreateNovel(ctx, n))
	_, err = store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
}

func TestNovelCRUD(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)

	if err := store.UpdateNovel(ctx, n.ID, map[string]interface{}{"genre": "adventure", "target_word_count": 90000}); err != nil {
		t.Fatalf("UpdateNovel: %v", err)
	}
	got, err := store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "adventure", got.Genre)
	assert.Equal(t, 90000, got.TargetWordCount)

	err = store.UpdateNovel(ctx, n.ID, map[string]interface{}{"status": "published"})
	assert.Error(t, err)

	_, err = store.GetNovel(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

	novels, err := store.ListNovels(ctx)
	require.NoError(t, err)
	assert.Len(t, novels, 1)
}

func TestChapterNumberingAndWordCount(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)

	for i := 0; i < 3; i++ {
		c := &types.Chapter{NovelID: n.ID, Title: "ch"}
		require.NoError(t, store.CreateChapter(ctx, c))
		assert.Equal(t, i+1, c.Number)
		assert.Equal(t, types.StatusPlanning, c.Status)
	}

	dup := &types.Chapter{NovelID: n.ID, Number: 2}
	err := store.CreateChapter(ctx, dup)
	assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)

	chapters, err := store.ListChapters(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 3)

	require.NoError(t, store.UpdateChapter(ctx, chapters[0].ID, map[string]interface{}{"content": "one two three"}))
	got, err := store.GetChapter(ctx, chapters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.WordCount)

	err = store.CreateChapter(ctx, &types.Chapter{NovelID: "missing"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLinks(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)
	c := &types.Chapter{NovelID: n.ID}
	require.NoError(t, store.CreateChapter(ctx, c))
	ch := &types.Character{NovelID: n.ID, Name: "Ada"}
	require.NoError(t, store.CreateCharacter(ctx, ch))
	ws := &types.WorldSetting{NovelID: n.ID, Name: "Oasis"}
	require.NoError(t, store.CreateWorldSetting(ctx, ws))

	require.NoError(t, store.LinkChapterCharacter(ctx, c.ID, ch.ID))
	require.NoError(t, store.LinkChapterCharacter(ctx, c.ID, ch.ID)) // idempotent
	require.NoError(t, store.LinkChapterSetting(ctx, c.ID, ws.ID))

	chars, err := store.GetChapterCharacters(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "Ada", chars[0].Name)

	settings, err := store.GetChapterSettings(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, settings, 1)

	err = store.LinkChapterCharacter(ctx, c.ID, "nobody")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestReplaceChapterIssues(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)
	c := &types.Chapter{NovelID: n.ID}
	require.NoError(t, store.CreateChapter(ctx, c))

	first := []*types.Issue{
		{Type: types.IssueCharacter, Severity: types.SeverityHigh, Description: "eye colour changed", RelatedChapters: []int{1}},
		{Type: types.IssueTimeline, Severity: types.SeverityLow, Description: "season skipped"},
	}
	require.NoError(t, store.ReplaceChapterIssues(ctx, c.ID, first))

	counts, err := store.CountUnresolvedIssues(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SeverityCounts{High: 1, Low: 1}, counts)

	second := []*types.Issue{{Type: types.IssueLogic, Severity: types.SeverityMedium, Description: "locked door opened"}}
	require.NoError(t, store.ReplaceChapterIssues(ctx, c.ID, second))

	issues, err := store.GetIssues(ctx, types.IssueFilter{ChapterID: c.ID})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, types.IssueLogic, issues[0].Type)

	charType := types.IssueCharacter
	issues, err = store.GetIssues(ctx, types.IssueFilter{ChapterID: c.ID, Type: &charType})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestReplaceChapterIssuesIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)
	c := &types.Chapter{NovelID: n.ID}
	require.NoError(t, store.CreateChapter(ctx, c))

	keep := &types.Issue{ID: "dup", Type: types.IssueLogic, Severity: types.SeverityHigh, Description: "x"}
	require.NoError(t, store.ReplaceChapterIssues(ctx, c.ID, []*types.Issue{keep}))

	// Two rows with the same id make the insert fail after the delete ran.
	bad := []*types.Issue{
		{ID: "same", Type: types.IssueLogic, Severity: types.SeverityLow, Description: "a"},
		{ID: "same", Type: types.IssueLogic, Severity: types.SeverityLow, Description: "b"},
	}
	err := store.ReplaceChapterIssues(ctx, c.ID, bad)
	require.Error(t, err)

	issues, err := store.GetIssues(ctx, types.IssueFilter{ChapterID: c.ID})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "dup", issues[0].ID)
}

func TestIssueResolveAndDelete(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)
	c := &types.Chapter{NovelID: n.ID}
	require.NoError(t, store.CreateChapter(ctx, c))

	issue := &types.Issue{Type: types.IssueSetting, Severity: types.SeverityMedium, Description: "river moved"}
	require.NoError(t, store.ReplaceChapterIssues(ctx, c.ID, []*types.Issue{issue}))

	require.NoError(t, store.SetIssueResolved(ctx, issue.ID, true))
	got, err := store.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)

	counts, err := store.CountUnresolvedIssues(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, counts.Total())

	require.NoError(t, store.DeleteIssue(ctx, issue.ID))
	assert.True(t, errors.Is(store.DeleteIssue(ctx, issue.ID), storage.ErrNotFound))
	assert.True(t, errors.Is(store.SetIssueResolved(ctx, issue.ID, false), storage.ErrNotFound))
}

func TestWorkflowConfigVersioning(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)

	_, err := store.GetWorkflowConfig(ctx, n.ID, types.EntityChapter)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	cfg := &types.WorkflowConfig{
		NovelID:    n.ID,
		EntityType: types.EntityChapter,
		IsActive:   true,
		Transitions: []types.TransitionEdge{
			{From: types.StatusPlanning, To: types.StatusOutlined, Conditions: []types.ConditionSpec{types.Cond(types.CondOutlineExists)}, AutoTrigger: true},
			{From: types.StatusWriting, To: types.StatusReviewing, Conditions: []types.ConditionSpec{types.CondValue(types.CondWordCountTarget, 0.5)}},
		},
	}
	require.NoError(t, store.SaveWorkflowConfig(ctx, cfg))
	assert.Equal(t, 1, cfg.Version)

	require.NoError(t, store.SaveWorkflowConfig(ctx, cfg))
	assert.Equal(t, 2, cfg.Version)

	got, err := store.GetWorkflowConfig(ctx, n.ID, types.EntityChapter)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	require.Len(t, got.Transitions, 2)
	require.NotNil(t, got.Transitions[1].Conditions[0].Value)
	assert.InDelta(t, 0.5, *got.Transitions[1].Conditions[0].Value, 1e-9)

	bad := &types.WorkflowConfig{NovelID: n.ID, EntityType: types.EntityNovel,
		Transitions: []types.TransitionEdge{{From: types.StatusOutlined, To: types.StatusWriting}}}
	assert.Error(t, store.SaveWorkflowConfig(ctx, bad))
}

func TestCommitTransition(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)

	h, err := store.CommitTransition(ctx, &storage.TransitionRecord{
		EntityType: types.EntityNovel, EntityID: n.ID,
		FromStatus: types.StatusConcept, ToStatus: types.StatusDraft,
		TriggeredBy: types.TriggeredByUser, Reason: "ready",
		Metadata: map[string]any{"actor": "tester"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, h.ToStatus)

	got, err := store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, got.Status)

	// Stale from-status loses
	_, err = store.CommitTransition(ctx, &storage.TransitionRecord{
		EntityType: types.EntityNovel, EntityID: n.ID,
		FromStatus: types.StatusConcept, ToStatus: types.StatusDraft,
		TriggeredBy: types.TriggeredByUser,
	})
	assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)

	_, err = store.CommitTransition(ctx, &storage.TransitionRecord{
		EntityType: types.EntityChapter, EntityID: "missing",
		FromStatus: types.StatusPlanning, ToStatus: types.StatusOutlined,
	})
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

	history, err := store.GetStatusHistory(ctx, types.EntityNovel, n.ID, storage.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.StatusConcept, history[0].FromStatus)
	assert.Equal(t, "tester", history[0].Metadata["actor"])
}

func TestStatusHistoryOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)

	steps := []types.Status{types.StatusConcept, types.StatusDraft, types.StatusPlanning, types.StatusWriting}
	for i := 1; i < len(steps); i++ {
		_, err := store.CommitTransition(ctx, &storage.TransitionRecord{
			EntityType: types.EntityNovel, EntityID: n.ID,
			FromStatus: steps[i-1], ToStatus: steps[i], TriggeredBy: types.TriggeredBySystem,
		})
		require.NoError(t, err)
	}

	history, err := store.GetStatusHistory(ctx, types.EntityNovel, n.ID, storage.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.StatusWriting, history[0].ToStatus)
	assert.Equal(t, types.StatusPlanning, history[1].ToStatus)

	history, err = store.GetStatusHistory(ctx, types.EntityNovel, n.ID, storage.HistoryQuery{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = store.GetStatusHistory(ctx, types.EntityNovel, n.ID, storage.HistoryQuery{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestConcurrentCommitsOneWinner(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	n := createNovel(t, store)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.CommitTransition(ctx, &storage.TransitionRecord{
				EntityType: types.EntityNovel, EntityID: n.ID,
				FromStatus: types.StatusConcept, ToStatus: types.StatusDraft, TriggeredBy: types.TriggeredByUser,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, storage.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	history, err := store.GetStatusHistory(ctx, types.EntityNovel, n.ID, storage.HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
