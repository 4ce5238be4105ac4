package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/storage/memory"
	"github.com/steveyegge/novelflow/internal/types"
)

func TestDeriveNovelStatus(t *testing.T) {
	full := &types.Novel{Title: "t", Description: "d"}
	bare := &types.Novel{Title: "t"}
	ch := func(statuses ...types.Status) []*types.Chapter {
		var out []*types.Chapter
		for _, s := range statuses {
			out = append(out, &types.Chapter{Status: s})
		}
		return out
	}

	tests := []struct {
		name       string
		novel      *types.Novel
		chapters   []*types.Chapter
		characters int
		settings   int
		want       types.Status
	}{
		{"nothing", bare, nil, 0, 0, types.StatusConcept},
		{"basic info only", full, nil, 0, 0, types.StatusDraft},
		{"characters", bare, nil, 2, 0, types.StatusPlanning},
		{"settings", bare, nil, 0, 1, types.StatusPlanning},
		{"chapters all planning", full, ch(types.StatusPlanning, types.StatusOutlined), 0, 0, types.StatusPlanning},
		{"one writing", full, ch(types.StatusPlanning, types.StatusWriting), 0, 0, types.StatusWriting},
		{"mixed with completed", full, ch(types.StatusCompleted, types.StatusCompleted, types.StatusWriting), 0, 0, types.StatusWriting},
		{"completed and planning", full, ch(types.StatusCompleted, types.StatusPlanning), 0, 0, types.StatusWriting},
		{"all completed", full, ch(types.StatusCompleted, types.StatusCompleted), 0, 0, types.StatusEditing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveNovelStatus(tt.novel, tt.chapters, tt.characters, tt.settings))
		})
	}
}

func TestCompletingLastChapterMovesNovelToEditing(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := createNovel(t, store, true)
	forceStatus(t, store, types.EntityNovel, n.ID, types.StatusConcept, types.StatusWriting)

	chapters := createChapters(t, store, n.ID, 3)
	forceStatus(t, store, types.EntityChapter, chapters[0].ID, types.StatusPlanning, types.StatusCompleted)
	forceStatus(t, store, types.EntityChapter, chapters[1].ID, types.StatusPlanning, types.StatusCompleted)
	forceStatus(t, store, types.EntityChapter, chapters[2].ID, types.StatusPlanning, types.StatusWriting)

	status, err := e.CalculateNovelStatus(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusWriting, status)

	last := chapters[2].ID
	require.NoError(t, store.UpdateChapter(ctx, last, map[string]interface{}{"content": fullDraft}))
	for _, to := range []types.Status{types.StatusReviewing, types.StatusEditing} {
		res, err := userMove(ctx, e, types.EntityChapter, last, to)
		require.NoError(t, err, "to %s", to)
		assert.Empty(t, res.Cascade)
	}

	res, err := userMove(ctx, e, types.EntityChapter, last, types.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, res.Cascade, 1)
	step := res.Cascade[0]
	assert.Equal(t, types.EntityNovel, step.EntityType)
	assert.Equal(t, types.StatusWriting, step.FromStatus)
	assert.Equal(t, types.StatusEditing, step.ToStatus)
	assert.Equal(t, types.TriggeredBySystem, step.TriggeredBy)

	got, err := store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEditing, got.Status)
}

func TestReconcileWalksSeveralEdges(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := createNovel(t, store, true)
	ch := createChapters(t, store, n.ID, 1)[0]
	require.NoError(t, store.UpdateChapter(ctx, ch.ID, map[string]interface{}{"outline": "beats"}))

	res, err := userMove(ctx, e, types.EntityChapter, ch.ID, types.StatusOutlined)
	require.NoError(t, err)
	require.Len(t, res.Cascade, 2)
	assert.Equal(t, types.StatusDraft, res.Cascade[0].ToStatus)
	assert.Equal(t, types.StatusPlanning, res.Cascade[1].ToStatus)
	for _, h := range res.Cascade {
		assert.Equal(t, "status reconciliation", h.Reason)
		assert.Equal(t, "planning", h.Metadata["derived_status"])
	}

	history, err := e.StatusHistory(ctx, types.EntityNovel, n.ID, storage.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.StatusPlanning, history[0].ToStatus, "most recent first")
}

// settingsOutage fails the last read reconciliation makes.
type settingsOutage struct {
	*memory.MemoryStorage
}

func (settingsOutage) ListWorldSettings(context.Context, string) ([]*types.WorldSetting, error) {
	return nil, errors.New("settings table locked")
}

func TestReconcileFailureKeepsChapterTransition(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := New(settingsOutage{store})
	n := createNovel(t, store, true)
	ch := createChapters(t, store, n.ID, 1)[0]
	require.NoError(t, store.UpdateChapter(ctx, ch.ID, map[string]interface{}{"outline": "beats"}))

	res, err := userMove(ctx, e, types.EntityChapter, ch.ID, types.StatusOutlined)
	require.NoError(t, err)
	assert.Empty(t, res.Cascade)

	got, err := store.GetChapter(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOutlined, got.Status)

	history, err := e.StatusHistory(ctx, types.EntityChapter, ch.ID, storage.HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	novel, err := store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConcept, novel.Status)
}

func TestReconcileStopsAtRefusal(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := &types.Novel{Title: "Untitled project"}
	require.NoError(t, store.CreateNovel(ctx, n))
	ch := createChapters(t, store, n.ID, 1)[0]
	forceStatus(t, store, types.EntityChapter, ch.ID, types.StatusPlanning, types.StatusWriting)

	committed, err := e.CheckAndUpdateNovelStatus(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, committed)

	got, err := store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConcept, got.Status)
}

func TestReconcileNeverMovesBackward(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := createNovel(t, store, true)
	forceStatus(t, store, types.EntityNovel, n.ID, types.StatusConcept, types.StatusEditing)
	createChapters(t, store, n.ID, 1)

	status, err := e.CalculateNovelStatus(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPlanning, status)

	committed, err := e.CheckAndUpdateNovelStatus(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, committed)

	got, err := store.GetNovel(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEditing, got.Status)
}

func TestNextAutoStepSkipsManualEdges(t *testing.T) {
	cfg := DefaultWorkflow("n", types.EntityNovel)

	_, ok := nextAutoStep(cfg, types.StatusEditing, types.StatusPublished)
	assert.False(t, ok, "editing -> completed is manual-only")

	next, ok := nextAutoStep(cfg, types.StatusConcept, types.StatusWriting)
	require.True(t, ok)
	assert.Equal(t, types.StatusDraft, next)

	// A shortcut edge is preferred when it does not overshoot.
	cfg.Transitions = append(cfg.Transitions,
		types.TransitionEdge{From: types.StatusConcept, To: types.StatusPlanning, AutoTrigger: true},
		types.TransitionEdge{From: types.StatusConcept, To: types.StatusEditing, AutoTrigger: true},
	)
	next, ok = nextAutoStep(cfg, types.StatusConcept, types.StatusWriting)
	require.True(t, ok)
	assert.Equal(t, types.StatusPlanning, next)
}
