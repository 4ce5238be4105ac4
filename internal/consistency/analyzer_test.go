package consistency

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/storage/memory"
	"github.com/steveyegge/novelflow/internal/types"
)

// scriptedOracle answers by the first rule whose marker appears in the prompt.
type scriptedOracle struct {
	mu    sync.Mutex
	rules []rule
	calls int
}

type rule struct {
	marker string
	reply  string
	err    error
	block  bool
}

func (o *scriptedOracle) Judge(ctx context.Context, prompt string) (string, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	for _, r := range o.rules {
		if !strings.Contains(prompt, r.marker) {
			continue
		}
		if r.block {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return r.reply, r.err
	}
	return `{"has_issues": false}`, nil
}

const (
	markerAda      = "**character:** Ada"
	markerHarbor   = "**world setting:** Harbor"
	markerTimeline = "timeline inconsistencies"
	markerLogic    = "logic inconsistencies"
)

type fixture struct {
	store    *memory.MemoryStorage
	chapters []*types.Chapter
	ada, bo  *types.Character
	harbor   *types.WorldSetting
}

// newFixture builds a three-chapter novel: Ada appears in chapters 1 and 3,
// Bo only in 3, the Harbor in 2 and 3.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	n := &types.Novel{Title: "Tides", Description: "A port city"}
	require.NoError(t, store.CreateNovel(ctx, n))

	f := &fixture{store: store}
	for i, text := range []string{
		"Ada, green-eyed, sails out at dawn.",
		"The Harbor freezes over in winter.",
		"Ada, blue-eyed, meets Bo at the Harbor in midsummer.",
	} {
		c := &types.Chapter{NovelID: n.ID, Title: []string{"Dawn", "Ice", "Meeting"}[i], Content: text}
		require.NoError(t, store.CreateChapter(ctx, c))
		f.chapters = append(f.chapters, c)
	}

	f.ada = &types.Character{NovelID: n.ID, Name: "Ada", Description: "green eyes"}
	f.bo = &types.Character{NovelID: n.ID, Name: "Bo"}
	f.harbor = &types.WorldSetting{NovelID: n.ID, Name: "Harbor", Category: "place"}
	require.NoError(t, store.CreateCharacter(ctx, f.ada))
	require.NoError(t, store.CreateCharacter(ctx, f.bo))
	require.NoError(t, store.CreateWorldSetting(ctx, f.harbor))

	require.NoError(t, store.LinkChapterCharacter(ctx, f.chapters[0].ID, f.ada.ID))
	require.NoError(t, store.LinkChapterSetting(ctx, f.chapters[1].ID, f.harbor.ID))
	require.NoError(t, store.LinkChapterCharacter(ctx, f.chapters[2].ID, f.ada.ID))
	require.NoError(t, store.LinkChapterCharacter(ctx, f.chapters[2].ID, f.bo.ID))
	require.NoError(t, store.LinkChapterSetting(ctx, f.chapters[2].ID, f.harbor.ID))
	return f
}

func TestPlanSkipsEntitiesWithoutPriorAppearance(t *testing.T) {
	f := newFixture(t)
	a := New(f.store, nil, nil)

	_, probes, err := a.Plan(context.Background(), f.chapters[2].ID, nil)
	require.NoError(t, err)
	require.Len(t, probes, 4)

	assert.Equal(t, types.IssueCharacter, probes[0].Type)
	assert.Equal(t, "Ada", probes[0].Subject)
	assert.Equal(t, []int{1}, probes[0].PriorChapters)
	assert.Contains(t, probes[0].Prompt, "green-eyed")
	assert.Contains(t, probes[0].Prompt, "blue-eyed")
	assert.NotContains(t, probes[0].Prompt, "freezes over", "only chapters Ada appears in are quoted")

	assert.Equal(t, types.IssueSetting, probes[1].Type)
	assert.Equal(t, []int{2}, probes[1].PriorChapters)
	assert.Equal(t, types.IssueTimeline, probes[2].Type)
	assert.Equal(t, types.IssueLogic, probes[3].Type)
	assert.Contains(t, probes[2].Prompt, "Chapter 1: Dawn")
	assert.Contains(t, probes[2].Prompt, "Chapter 2: Ice")
}

func TestPlanFirstChapterHasNothingToCompare(t *testing.T) {
	f := newFixture(t)
	_, probes, err := New(f.store, nil, nil).Plan(context.Background(), f.chapters[0].ID, nil)
	require.NoError(t, err)
	assert.Empty(t, probes)
}

func TestAnalyzeNotFoundWritesNothing(t *testing.T) {
	f := newFixture(t)
	oracle := &scriptedOracle{}
	_, err := New(f.store, oracle, nil).Analyze(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Zero(t, oracle.calls)
}

func TestAnalyzeWithoutOracle(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.store, nil, nil).Analyze(context.Background(), f.chapters[2].ID, nil)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
}

func TestAnalyzeRejectsUnknownTypeAndKeepsIssues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	oracle := &scriptedOracle{rules: []rule{
		{marker: markerAda, reply: `{"has_issues": true, "description": "eye colour", "severity": "high"}`},
	}}
	a := New(f.store, oracle, nil)
	ch := f.chapters[2].ID

	_, err := a.Analyze(ctx, ch, nil)
	require.NoError(t, err)
	before, err := f.store.CountUnresolvedIssues(ctx, ch)
	require.NoError(t, err)
	require.Equal(t, 1, before.High)
	calls := oracle.calls

	report, err := a.Analyze(ctx, ch, []types.IssueType{types.IssueTimeline, "bogus"})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "bogus")
	assert.Equal(t, calls, oracle.calls, "oracle is not consulted")

	after, err := f.store.CountUnresolvedIssues(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, _, err = a.Plan(ctx, ch, []types.IssueType{"bogus"})
	assert.Error(t, err)
}

func TestAnalyzeDegradesFailedProbes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	oracle := &scriptedOracle{rules: []rule{
		{marker: markerAda, reply: "```json\n{\"has_issues\": true, \"description\": \"eye colour changes from green to blue\", \"severity\": \"high\", \"related_content\": \"blue-eyed\"}\n```"},
		{marker: markerHarbor, reply: `{"has_issues": false}`},
		{marker: markerTimeline, reply: "I could not decide."},
		{marker: markerLogic, err: errors.New("connection reset")},
	}}

	report, err := New(f.store, oracle, &Config{Concurrency: 2}).Analyze(ctx, f.chapters[2].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Probes)
	assert.Equal(t, 2, report.Degraded)
	require.Len(t, report.Issues, 1)

	issues, err := f.store.GetIssues(ctx, types.IssueFilter{ChapterID: f.chapters[2].ID})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	got := issues[0]
	assert.Equal(t, types.IssueCharacter, got.Type)
	assert.Equal(t, types.SeverityHigh, got.Severity)
	assert.Equal(t, "Ada: eye colour changes from green to blue", got.Description)
	assert.Equal(t, "blue-eyed", got.RelatedContent)
	assert.Equal(t, []int{1}, got.RelatedChapters)
	assert.False(t, got.Resolved)

	counts, err := f.store.CountUnresolvedIssues(ctx, f.chapters[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.High)
}

func TestAnalyzeTimeoutIsDegradation(t *testing.T) {
	f := newFixture(t)
	oracle := &scriptedOracle{rules: []rule{{marker: markerLogic, block: true}}}

	start := time.Now()
	report, err := New(f.store, oracle, &Config{CallTimeout: 50 * time.Millisecond}).
		Analyze(context.Background(), f.chapters[2].ID, []types.IssueType{types.IssueLogic, types.IssueTimeline})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 2, report.Probes)
	assert.Equal(t, 1, report.Degraded)
	assert.Empty(t, report.Issues)
}

func TestPartialAnalysisReplacesAllTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	oracle := &scriptedOracle{rules: []rule{
		{marker: markerAda, reply: `{"has_issues": true, "description": "eye colour", "severity": "medium"}`},
	}}
	a := New(f.store, oracle, nil)

	_, err := a.Analyze(ctx, f.chapters[2].ID, nil)
	require.NoError(t, err)
	charType := types.IssueCharacter
	found, err := f.store.GetIssues(ctx, types.IssueFilter{ChapterID: f.chapters[2].ID, Type: &charType})
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = a.Analyze(ctx, f.chapters[2].ID, []types.IssueType{types.IssueTimeline})
	require.NoError(t, err)
	found, err = f.store.GetIssues(ctx, types.IssueFilter{ChapterID: f.chapters[2].ID, Type: &charType})
	require.NoError(t, err)
	assert.Empty(t, found, "a timeline-only run replaces the character issues too")
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	oracle := &scriptedOracle{rules: []rule{
		{marker: markerAda, reply: `{"has_issues": true, "description": "eye colour", "severity": "high"}`},
		{marker: markerTimeline, reply: `{"has_issues": true, "description": "harbor frozen in midsummer", "severity": "critical", "related_chapters": [2]}`},
	}}
	a := New(f.store, oracle, nil)

	summarize := func() []string {
		issues, err := f.store.GetIssues(ctx, types.IssueFilter{ChapterID: f.chapters[2].ID})
		require.NoError(t, err)
		var out []string
		for _, i := range issues {
			out = append(out, string(i.Type)+"/"+string(i.Severity)+"/"+i.Description)
		}
		return out
	}

	_, err := a.Analyze(ctx, f.chapters[2].ID, nil)
	require.NoError(t, err)
	first := summarize()
	_, err = a.Analyze(ctx, f.chapters[2].ID, nil)
	require.NoError(t, err)
	second := summarize()

	assert.Len(t, first, 2)
	assert.ElementsMatch(t, first, second)
	assert.Contains(t, first, "timeline/medium/harbor frozen in midsummer", "unknown severity reads as medium")
}

type failingStore struct {
	*memory.MemoryStorage
}

func (failingStore) ReplaceChapterIssues(ctx context.Context, chapterID string, issues []*types.Issue) error {
	return errors.New("disk full")
}

func TestAnalyzePersistenceFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	_, err := New(failingStore{f.store}, &scriptedOracle{}, nil).Analyze(context.Background(), f.chapters[2].ID, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestAnalyzeAuditsEveryCall(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	t.Setenv("NF_DIR", dir)

	_, err := New(f.store, &scriptedOracle{}, &Config{AuditEnabled: true, Actor: "tester"}).
		Analyze(context.Background(), f.chapters[2].ID, nil)
	require.NoError(t, err)

	file, err := os.Open(filepath.Join(dir, "interactions.jsonl"))
	require.NoError(t, err)
	defer func() { _ = file.Close() }()
	lines := 0
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, 4, lines)
}
