// Package consistency detects narrative inconsistencies in a chapter by
// asking an oracle to compare it against the chapters before it.
package consistency

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/novelflow/internal/audit"
	"github.com/steveyegge/novelflow/internal/debug"
	"github.com/steveyegge/novelflow/internal/telemetry"
	"github.com/steveyegge/novelflow/internal/types"
)

const (
	defaultConcurrency  = 5
	defaultCallTimeout  = 30 * time.Second
	defaultExcerptChars = 600
)

// Config holds configuration for an analysis run.
type Config struct {
	Concurrency  int
	CallTimeout  time.Duration
	ExcerptChars int
	AuditEnabled bool
	Actor        string
}

// Store defines the storage the analyzer reads and writes.
type Store interface {
	GetChapter(ctx context.Context, id string) (*types.Chapter, error)
	ListChapters(ctx context.Context, novelID string) ([]*types.Chapter, error)
	GetChapterCharacters(ctx context.Context, chapterID string) ([]*types.Character, error)
	GetChapterSettings(ctx context.Context, chapterID string) ([]*types.WorldSetting, error)
	ReplaceChapterIssues(ctx context.Context, chapterID string, issues []*types.Issue) error
}

// Analyzer runs consistency analysis for chapters.
type Analyzer struct {
	store  Store
	oracle Oracle
	config *Config

	probes   metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates an analyzer. oracle may be nil, in which case only Plan
// is usable.
func New(store Store, oracle Oracle, config *Config) *Analyzer {
	if config == nil {
		config = &Config{}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaultCallTimeout
	}
	if config.ExcerptChars <= 0 {
		config.ExcerptChars = defaultExcerptChars
	}

	m := telemetry.Meter("github.com/steveyegge/novelflow/consistency")
	probes, _ := m.Int64Counter("nf.consistency.probes",
		metric.WithDescription("Oracle probes issued, by issue type and outcome"),
	)
	duration, _ := m.Float64Histogram("nf.consistency.analysis.duration",
		metric.WithDescription("Wall time of one chapter analysis in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &Analyzer{store: store, oracle: oracle, config: config, probes: probes, duration: duration}
}

// Probe is one question put to the oracle.
type Probe struct {
	Type          types.IssueType `json:"type"`
	Subject       string          `json:"subject,omitempty"`
	PriorChapters []int           `json:"prior_chapters,omitempty"`
	Prompt        string          `json:"prompt"`
}

// Report summarizes an analysis run.
type Report struct {
	ChapterID string            `json:"chapter_id"`
	Types     []types.IssueType `json:"types"`
	Probes    int               `json:"probes"`
	Degraded  int               `json:"degraded"`
	Issues    []*types.Issue    `json:"issues"`
}

// Plan loads the chapter and its context and renders every probe an
// analysis of issueTypes would send. It writes nothing. An unknown issue
// type is an error, since Analyze would otherwise replace the chapter's
// issues with the result of a run that checked nothing.
func (a *Analyzer) Plan(ctx context.Context, chapterID string, issueTypes []types.IssueType) (*types.Chapter, []*Probe, error) {
	for _, t := range issueTypes {
		if !t.IsValid() {
			return nil, nil, fmt.Errorf("unknown issue type %q (valid: %v)", t, types.AllIssueTypes)
		}
	}
	ch, err := a.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, nil, err
	}
	all, err := a.store.ListChapters(ctx, ch.NovelID)
	if err != nil {
		return nil, nil, fmt.Errorf("list chapters: %w", err)
	}
	var prior []*types.Chapter
	for _, c := range all {
		if c.Number < ch.Number {
			prior = append(prior, c)
		}
	}
	sort.Slice(prior, func(i, j int) bool { return prior[i].Number < prior[j].Number })

	if len(issueTypes) == 0 {
		issueTypes = types.AllIssueTypes
	}
	want := make(map[types.IssueType]bool, len(issueTypes))
	for _, t := range issueTypes {
		want[t] = true
	}

	current := priorExcerpt{Number: ch.Number, Title: ch.Title}
	currentText := ch.Content
	if strings.TrimSpace(currentText) == "" {
		currentText = ch.Outline
	}

	var probes []*Probe
	for _, t := range types.AllIssueTypes {
		if !want[t] {
			continue
		}
		var ps []*Probe
		switch t {
		case types.IssueCharacter:
			ps, err = a.characterProbes(ctx, ch, prior, current, currentText)
		case types.IssueSetting:
			ps, err = a.settingProbes(ctx, ch, prior, current, currentText)
		default:
			ps, err = a.chapterProbes(t, prior, current, currentText)
		}
		if err != nil {
			return nil, nil, err
		}
		probes = append(probes, ps...)
	}
	return ch, probes, nil
}

func (a *Analyzer) characterProbes(ctx context.Context, ch *types.Chapter, prior []*types.Chapter, current priorExcerpt, text string) ([]*Probe, error) {
	linked, err := a.store.GetChapterCharacters(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("get chapter characters: %w", err)
	}
	if len(linked) == 0 {
		return nil, nil
	}
	seen, err := appearances(prior, func(id string) ([]string, error) {
		cs, err := a.store.GetChapterCharacters(ctx, id)
		ids := make([]string, 0, len(cs))
		for _, c := range cs {
			ids = append(ids, c.ID)
		}
		return ids, err
	})
	if err != nil {
		return nil, fmt.Errorf("get prior chapter characters: %w", err)
	}

	sort.Slice(linked, func(i, j int) bool { return linked[i].Name < linked[j].Name })
	var probes []*Probe
	for _, c := range linked {
		chapters := seen[c.ID]
		if len(chapters) == 0 {
			continue
		}
		profile := joinProfile(
			"Role", c.Role,
			"Description", c.Description,
			"Personality", c.Personality,
			"Background", c.Background,
		)
		p, err := a.entityProbe(types.IssueCharacter, "character", c.Name, profile, chapters, current, text)
		if err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}
	return probes, nil
}

func (a *Analyzer) settingProbes(ctx context.Context, ch *types.Chapter, prior []*types.Chapter, current priorExcerpt, text string) ([]*Probe, error) {
	linked, err := a.store.GetChapterSettings(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("get chapter settings: %w", err)
	}
	if len(linked) == 0 {
		return nil, nil
	}
	seen, err := appearances(prior, func(id string) ([]string, error) {
		ss, err := a.store.GetChapterSettings(ctx, id)
		ids := make([]string, 0, len(ss))
		for _, s := range ss {
			ids = append(ids, s.ID)
		}
		return ids, err
	})
	if err != nil {
		return nil, fmt.Errorf("get prior chapter settings: %w", err)
	}

	sort.Slice(linked, func(i, j int) bool { return linked[i].Name < linked[j].Name })
	var probes []*Probe
	for _, s := range linked {
		chapters := seen[s.ID]
		if len(chapters) == 0 {
			continue
		}
		profile := joinProfile("Category", s.Category, "Description", s.Description)
		p, err := a.entityProbe(types.IssueSetting, "world setting", s.Name, profile, chapters, current, text)
		if err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}
	return probes, nil
}

// appearances maps each linked entity id to the prior chapters it was
// linked to, in chapter order.
func appearances(prior []*types.Chapter, linkedIDs func(chapterID string) ([]string, error)) (map[string][]*types.Chapter, error) {
	seen := make(map[string][]*types.Chapter)
	for _, p := range prior {
		ids, err := linkedIDs(p.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = append(seen[id], p)
		}
	}
	return seen, nil
}

func (a *Analyzer) entityProbe(t types.IssueType, kind, name, profile string, chapters []*types.Chapter, current priorExcerpt, text string) (*Probe, error) {
	data := entityPromptData{
		Kind:        kind,
		Name:        name,
		Profile:     profile,
		Chapter:     current,
		CurrentText: text,
	}
	var numbers []int
	for _, c := range chapters {
		data.Prior = append(data.Prior, a.excerptOf(c))
		numbers = append(numbers, c.Number)
	}
	prompt, err := render("entity", data)
	if err != nil {
		return nil, err
	}
	return &Probe{Type: t, Subject: name, PriorChapters: numbers, Prompt: prompt}, nil
}

// chapterProbes renders the single whole-chapter probe for timeline or
// logic. A first chapter has nothing to be inconsistent with.
func (a *Analyzer) chapterProbes(t types.IssueType, prior []*types.Chapter, current priorExcerpt, text string) ([]*Probe, error) {
	if len(prior) == 0 {
		return nil, nil
	}
	data := chapterPromptData{
		Concern:     string(t),
		Focus:       concernFocus[t],
		Chapter:     current,
		CurrentText: text,
	}
	for _, c := range prior {
		data.Prior = append(data.Prior, a.excerptOf(c))
	}
	prompt, err := render("chapter", data)
	if err != nil {
		return nil, err
	}
	return []*Probe{{Type: t, Prompt: prompt}}, nil
}

func (a *Analyzer) excerptOf(c *types.Chapter) priorExcerpt {
	return priorExcerpt{
		Number:  c.Number,
		Title:   c.Title,
		Outline: excerpt(c.Outline, a.config.ExcerptChars/2),
		Excerpt: excerpt(c.Content, a.config.ExcerptChars),
	}
}

func joinProfile(pairs ...string) string {
	var lines []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if v := strings.TrimSpace(pairs[i+1]); v != "" {
			lines = append(lines, pairs[i]+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// Analyze runs every probe for the requested issue types concurrently and
// replaces the chapter's whole issue set with the result, including issue
// types that were not requested. A probe that fails, times out or gets an
// unreadable reply counts as finding nothing. Only loading the chapter and
// persisting the result can fail the call.
func (a *Analyzer) Analyze(ctx context.Context, chapterID string, issueTypes []types.IssueType) (*Report, error) {
	if a.oracle == nil {
		return nil, ErrOracleUnavailable
	}
	ctx, span := telemetry.Tracer("github.com/steveyegge/novelflow/consistency").Start(ctx, "consistency.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("nf.chapter.id", chapterID))
	start := time.Now()

	ch, probes, err := a.Plan(ctx, chapterID, issueTypes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	judgments := make([]*Judgment, len(probes))
	var degraded atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(a.config.Concurrency)
	for i, p := range probes {
		g.Go(func() error {
			j, err := a.judge(ctx, ch, p)
			if err != nil {
				debug.Logf("consistency: chapter %s %s probe %q degraded: %v\n", ch.ID, p.Type, p.Subject, err)
				degraded.Add(1)
				a.count(ctx, p, "degraded")
				return nil
			}
			judgments[i] = j
			if j.HasIssues {
				a.count(ctx, p, "issue")
			} else {
				a.count(ctx, p, "clean")
			}
			return nil
		})
	}
	_ = g.Wait() // probes never return errors

	issues := make([]*types.Issue, 0, len(probes))
	for i, j := range judgments {
		if j == nil || !j.HasIssues {
			continue
		}
		issues = append(issues, issueFrom(ch.ID, probes[i], j))
	}

	if err := a.store.ReplaceChapterIssues(ctx, ch.ID, issues); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("persist issues: %w", err)
	}

	a.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.Int("nf.consistency.probes", len(probes)),
		attribute.Int("nf.consistency.issues", len(issues)),
		attribute.Int("nf.consistency.degraded", int(degraded.Load())),
	)
	requested := issueTypes
	if len(requested) == 0 {
		requested = append([]types.IssueType(nil), types.AllIssueTypes...)
	}
	return &Report{
		ChapterID: ch.ID,
		Types:     requested,
		Probes:    len(probes),
		Degraded:  int(degraded.Load()),
		Issues:    issues,
	}, nil
}

func issueFrom(chapterID string, p *Probe, j *Judgment) *types.Issue {
	related := j.RelatedChapters
	if len(related) == 0 {
		related = p.PriorChapters
	}
	desc := j.Description
	if p.Subject != "" && !strings.Contains(desc, p.Subject) {
		desc = p.Subject + ": " + desc
	}
	return &types.Issue{
		ChapterID:       chapterID,
		Type:            p.Type,
		Severity:        j.Severity,
		Description:     desc,
		RelatedContent:  j.RelatedContent,
		RelatedChapters: append([]int(nil), related...),
	}
}

type judgeReply struct {
	text string
	err  error
}

// judge asks the oracle under the per-call timeout. The timeout holds even
// if the oracle ignores its context.
func (a *Analyzer) judge(ctx context.Context, ch *types.Chapter, p *Probe) (*Judgment, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	done := make(chan judgeReply, 1)
	go func() {
		text, err := a.oracle.Judge(callCtx, p.Prompt)
		done <- judgeReply{text, err}
	}()

	var reply judgeReply
	select {
	case reply = <-done:
	case <-callCtx.Done():
		reply = judgeReply{err: fmt.Errorf("oracle call: %w", callCtx.Err())}
	}

	if a.config.AuditEnabled {
		e := &audit.Entry{
			Kind:      "llm_call",
			Actor:     a.config.Actor,
			ChapterID: ch.ID,
			Probe:     string(p.Type) + ":" + p.Subject,
			Prompt:    p.Prompt,
			Response:  reply.text,
		}
		if m, ok := a.oracle.(interface{ Model() string }); ok {
			e.Model = m.Model()
		}
		if reply.err != nil {
			e.Error = reply.err.Error()
		}
		_, _ = audit.Append(e) // best effort
	}

	if reply.err != nil {
		return nil, reply.err
	}
	return ParseJudgment(reply.text)
}

func (a *Analyzer) count(ctx context.Context, p *Probe, outcome string) {
	a.probes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("nf.issue.type", string(p.Type)),
		attribute.String("outcome", outcome),
	))
}
