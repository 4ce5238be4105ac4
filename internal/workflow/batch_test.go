package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

func TestBatchAdvanceContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := createNovel(t, store, true)
	chapters := createChapters(t, store, n.ID, 5)
	for i, c := range chapters {
		if i == 2 {
			continue
		}
		require.NoError(t, store.UpdateChapter(ctx, c.ID, map[string]interface{}{"outline": "beats"}))
	}

	results, err := e.BatchAdvance(ctx, n.ID, types.StatusPlanning, types.StatusOutlined, types.TriggeredByUser, "outlines done")
	require.NoError(t, err)
	require.Len(t, results, 5)

	var failed []*BatchResult
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].ChapterNumber)
	assert.Equal(t, "needs an outline", failed[0].Error)

	got, err := store.GetChapter(ctx, chapters[2].ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPlanning, got.Status)
	got, err = store.GetChapter(ctx, chapters[4].ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOutlined, got.Status)
}

func TestBatchAdvanceOnlyTouchesMatchingChapters(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := createNovel(t, store, false)
	chapters := createChapters(t, store, n.ID, 2)
	forceStatus(t, store, types.EntityChapter, chapters[1].ID, types.StatusPlanning, types.StatusEditing)

	results, err := e.BatchAdvance(ctx, n.ID, types.StatusEditing, types.StatusCompleted, types.TriggeredByUser, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chapters[1].ID, results[0].ChapterID)
	assert.True(t, results[0].Success)
}

func TestBatchAdvanceErrors(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := createNovel(t, store, false)

	_, err := e.BatchAdvance(ctx, "missing", types.StatusPlanning, types.StatusOutlined, types.TriggeredByUser, "")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = e.BatchAdvance(ctx, n.ID, types.StatusConcept, types.StatusDraft, types.TriggeredByUser, "")
	assert.Error(t, err)

	results, err := e.BatchAdvance(ctx, n.ID, types.StatusPlanning, types.StatusOutlined, types.TriggeredByUser, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAutoAdvanceSweepsToFirstManualGate(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t)
	n := createNovel(t, store, true)
	ch := createChapters(t, store, n.ID, 1)[0]
	require.NoError(t, store.UpdateChapter(ctx, ch.ID, map[string]interface{}{"outline": "beats", "content": fullDraft}))

	steps, err := e.AutoAdvance(ctx, n.ID)
	require.NoError(t, err)

	var chapterSteps, novelSteps []*SweepStep
	for _, s := range steps {
		assert.Empty(t, s.Error)
		if s.EntityType == types.EntityChapter {
			chapterSteps = append(chapterSteps, s)
		} else {
			novelSteps = append(novelSteps, s)
		}
	}
	require.Len(t, chapterSteps, 3)
	assert.Equal(t, types.StatusReviewing, chapterSteps[2].To)
	require.Len(t, novelSteps, 3)
	assert.Equal(t, types.StatusWriting, novelSteps[2].To)

	got, err := store.GetChapter(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusReviewing, got.Status)

	// Nothing left to do
	steps, err = e.AutoAdvance(ctx, n.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}
