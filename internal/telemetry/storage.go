package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

const storageScopeName = "github.com/steveyegge/novelflow/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in nf.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner      storage.Storage
	tracer     trace.Tracer
	ops        metric.Int64Counter
	dur        metric.Float64Histogram
	errs       metric.Int64Counter
	issueGauge metric.Int64Gauge
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return newInstrumentedStorage(s)
}

func newInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("nf.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("nf.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("nf.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	issueGauge, _ := m.Int64Gauge("nf.issue.unresolved",
		metric.WithDescription("Unresolved consistency issues for a chapter by severity (snapshot from CountUnresolvedIssues)"),
	)
	return &InstrumentedStorage{
		inner:      s,
		tracer:     Tracer(storageScopeName),
		ops:        ops,
		dur:        dur,
		errs:       errs,
		issueGauge: issueGauge,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Novels ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateNovel(ctx context.Context, novel *types.Novel) error {
	ctx, span, t := s.op(ctx, "CreateNovel")
	err := s.inner.CreateNovel(ctx, novel)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) GetNovel(ctx context.Context, id string) (*types.Novel, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.novel.id", id)}
	ctx, span, t := s.op(ctx, "GetNovel", attrs...)
	v, err := s.inner.GetNovel(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateNovel(ctx context.Context, id string, updates map[string]interface{}) error {
	attrs := []attribute.KeyValue{attribute.String("nf.novel.id", id)}
	ctx, span, t := s.op(ctx, "UpdateNovel", attrs...)
	err := s.inner.UpdateNovel(ctx, id, updates)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListNovels(ctx context.Context) ([]*types.Novel, error) {
	ctx, span, t := s.op(ctx, "ListNovels")
	v, err := s.inner.ListNovels(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Chapters ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateChapter(ctx context.Context, chapter *types.Chapter) error {
	attrs := []attribute.KeyValue{attribute.String("nf.novel.id", chapter.NovelID)}
	ctx, span, t := s.op(ctx, "CreateChapter", attrs...)
	err := s.inner.CreateChapter(ctx, chapter)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", id)}
	ctx, span, t := s.op(ctx, "GetChapter", attrs...)
	v, err := s.inner.GetChapter(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateChapter(ctx context.Context, id string, updates map[string]interface{}) error {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", id)}
	ctx, span, t := s.op(ctx, "UpdateChapter", attrs...)
	err := s.inner.UpdateChapter(ctx, id, updates)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListChapters(ctx context.Context, novelID string) ([]*types.Chapter, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.novel.id", novelID)}
	ctx, span, t := s.op(ctx, "ListChapters", attrs...)
	v, err := s.inner.ListChapters(ctx, novelID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Characters and settings ─────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateCharacter(ctx context.Context, c *types.Character) error {
	ctx, span, t := s.op(ctx, "CreateCharacter")
	err := s.inner.CreateCharacter(ctx, c)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) ListCharacters(ctx context.Context, novelID string) ([]*types.Character, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.novel.id", novelID)}
	ctx, span, t := s.op(ctx, "ListCharacters", attrs...)
	v, err := s.inner.ListCharacters(ctx, novelID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) CreateWorldSetting(ctx context.Context, ws *types.WorldSetting) error {
	ctx, span, t := s.op(ctx, "CreateWorldSetting")
	err := s.inner.CreateWorldSetting(ctx, ws)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) ListWorldSettings(ctx context.Context, novelID string) ([]*types.WorldSetting, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.novel.id", novelID)}
	ctx, span, t := s.op(ctx, "ListWorldSettings", attrs...)
	v, err := s.inner.ListWorldSettings(ctx, novelID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) LinkChapterCharacter(ctx context.Context, chapterID, characterID string) error {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", chapterID)}
	ctx, span, t := s.op(ctx, "LinkChapterCharacter", attrs...)
	err := s.inner.LinkChapterCharacter(ctx, chapterID, characterID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) LinkChapterSetting(ctx context.Context, chapterID, settingID string) error {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", chapterID)}
	ctx, span, t := s.op(ctx, "LinkChapterSetting", attrs...)
	err := s.inner.LinkChapterSetting(ctx, chapterID, settingID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetChapterCharacters(ctx context.Context, chapterID string) ([]*types.Character, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", chapterID)}
	ctx, span, t := s.op(ctx, "GetChapterCharacters", attrs...)
	v, err := s.inner.GetChapterCharacters(ctx, chapterID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetChapterSettings(ctx context.Context, chapterID string) ([]*types.WorldSetting, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", chapterID)}
	ctx, span, t := s.op(ctx, "GetChapterSettings", attrs...)
	v, err := s.inner.GetChapterSettings(ctx, chapterID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Issues ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) ReplaceChapterIssues(ctx context.Context, chapterID string, issues []*types.Issue) error {
	attrs := []attribute.KeyValue{
		attribute.String("nf.chapter.id", chapterID),
		attribute.Int("nf.issue.count", len(issues)),
	}
	ctx, span, t := s.op(ctx, "ReplaceChapterIssues", attrs...)
	err := s.inner.ReplaceChapterIssues(ctx, chapterID, issues)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", filter.ChapterID)}
	ctx, span, t := s.op(ctx, "GetIssues", attrs...)
	v, err := s.inner.GetIssues(ctx, filter)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.issue.id", id)}
	ctx, span, t := s.op(ctx, "GetIssue", attrs...)
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) SetIssueResolved(ctx context.Context, id string, resolved bool) error {
	attrs := []attribute.KeyValue{
		attribute.String("nf.issue.id", id),
		attribute.Bool("nf.issue.resolved", resolved),
	}
	ctx, span, t := s.op(ctx, "SetIssueResolved", attrs...)
	err := s.inner.SetIssueResolved(ctx, id, resolved)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DeleteIssue(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("nf.issue.id", id)}
	ctx, span, t := s.op(ctx, "DeleteIssue", attrs...)
	err := s.inner.DeleteIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) CountUnresolvedIssues(ctx context.Context, chapterID string) (types.SeverityCounts, error) {
	attrs := []attribute.KeyValue{attribute.String("nf.chapter.id", chapterID)}
	ctx, span, t := s.op(ctx, "CountUnresolvedIssues", attrs...)
	v, err := s.inner.CountUnresolvedIssues(ctx, chapterID)
	s.done(ctx, span, t, err, attrs...)
	if err == nil {
		sevAttr := func(sev string) metric.MeasurementOption {
			return metric.WithAttributes(attribute.String("severity", sev))
		}
		s.issueGauge.Record(ctx, int64(v.High), sevAttr("high"))
		s.issueGauge.Record(ctx, int64(v.Medium), sevAttr("medium"))
		s.issueGauge.Record(ctx, int64(v.Low), sevAttr("low"))
	}
	return v, err
}

// ── Workflow ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetWorkflowConfig(ctx context.Context, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error) {
	attrs := []attribute.KeyValue{
		attribute.String("nf.novel.id", novelID),
		attribute.String("nf.entity.type", string(entityType)),
	}
	ctx, span, t := s.op(ctx, "GetWorkflowConfig", attrs...)
	v, err := s.inner.GetWorkflowConfig(ctx, novelID, entityType)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) SaveWorkflowConfig(ctx context.Context, cfg *types.WorkflowConfig) error {
	attrs := []attribute.KeyValue{
		attribute.String("nf.novel.id", cfg.NovelID),
		attribute.String("nf.entity.type", string(cfg.EntityType)),
	}
	ctx, span, t := s.op(ctx, "SaveWorkflowConfig", attrs...)
	err := s.inner.SaveWorkflowConfig(ctx, cfg)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) CommitTransition(ctx context.Context, rec *storage.TransitionRecord) (*types.StatusHistory, error) {
	attrs := []attribute.KeyValue{
		attribute.String("nf.entity.type", string(rec.EntityType)),
		attribute.String("nf.status.from", string(rec.FromStatus)),
		attribute.String("nf.status.to", string(rec.ToStatus)),
		attribute.String("nf.triggered_by", string(rec.TriggeredBy)),
	}
	ctx, span, t := s.op(ctx, "CommitTransition", attrs...)
	v, err := s.inner.CommitTransition(ctx, rec)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetStatusHistory(ctx context.Context, entityType types.EntityType, entityID string, q storage.HistoryQuery) ([]*types.StatusHistory, error) {
	attrs := []attribute.KeyValue{
		attribute.String("nf.entity.type", string(entityType)),
		attribute.Int("nf.history.limit", q.Limit),
	}
	ctx, span, t := s.op(ctx, "GetStatusHistory", attrs...)
	v, err := s.inner.GetStatusHistory(ctx, entityType, entityID, q)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
