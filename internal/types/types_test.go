package types

import (
	"strings"
	"testing"
)

func TestCountWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"spaces only", "   \n\t", 0},
		{"latin", "The quick brown fox", 4},
		{"punctuation attached", "Hello, world! It's late.", 4},
		{"dash separated by spaces", "wait -- what", 2},
		{"cjk ideographs", "我们走吧", 4},
		{"cjk with punctuation", "他说：你好。", 4},
		{"mixed", "Ada 说 hello", 3},
		{"japanese kana", "こんにちは", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountWords(tt.text); got != tt.want {
				t.Errorf("CountWords(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestStatusRank(t *testing.T) {
	if StatusWriting.Rank(EntityNovel) <= StatusPlanning.Rank(EntityNovel) {
		t.Error("writing should rank after planning for novels")
	}
	if StatusOutlined.IsValidFor(EntityNovel) {
		t.Error("outlined is not a novel status")
	}
	if StatusPublished.IsValidFor(EntityChapter) {
		t.Error("published is not a chapter status")
	}
	if StatusConcept.Rank(EntityChapter) != -1 {
		t.Error("concept must not rank for chapters")
	}
	if _, err := ParseStatus(EntityChapter, "reviewing"); err != nil {
		t.Errorf("ParseStatus: %v", err)
	}
	if _, err := ParseStatus(EntityChapter, "draft"); err == nil {
		t.Error("expected error for draft chapter")
	}
}

func TestParseEntityType(t *testing.T) {
	if et, err := ParseEntityType(" Chapter "); err != nil || et != EntityChapter {
		t.Errorf("ParseEntityType = %q, %v", et, err)
	}
	if _, err := ParseEntityType("scene"); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestNovelValidation(t *testing.T) {
	tests := []struct {
		name    string
		novel   Novel
		wantErr string
	}{
		{"valid", Novel{Title: "A", Status: StatusConcept}, ""},
		{"title too long", Novel{Title: strings.Repeat("x", 501), Status: StatusConcept}, "title must be 500 characters or less"},
		{"negative target", Novel{TargetWordCount: -1, Status: StatusConcept}, "cannot be negative"},
		{"chapter status", Novel{Status: StatusReviewing}, "invalid novel status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.novel.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestChapterApplyUpdates(t *testing.T) {
	c := Chapter{NovelID: "n", Number: 1, Status: StatusWriting}
	if err := c.ApplyUpdates(map[string]interface{}{"content": "one two", "outline": "beats"}); err != nil {
		t.Fatalf("ApplyUpdates: %v", err)
	}
	if c.WordCount != 2 || c.Outline != "beats" {
		t.Errorf("got word_count=%d outline=%q", c.WordCount, c.Outline)
	}
	if err := c.ApplyUpdates(map[string]interface{}{"status": "completed"}); err == nil {
		t.Error("status must not be updatable")
	}
	if err := c.ApplyUpdates(map[string]interface{}{"word_count": 5}); err == nil {
		t.Error("word_count is derived and must not be updatable")
	}
	if c.EffectiveTargetWords() != DefaultChapterTargetWords {
		t.Errorf("EffectiveTargetWords = %d", c.EffectiveTargetWords())
	}
}

func TestParseIssueTypes(t *testing.T) {
	all, err := ParseIssueTypes(nil)
	if err != nil || len(all) != 4 {
		t.Fatalf("ParseIssueTypes(nil) = %v, %v", all, err)
	}
	got, err := ParseIssueTypes([]string{"timeline", "timeline", "logic"})
	if err != nil || len(got) != 2 {
		t.Errorf("ParseIssueTypes dedupe = %v, %v", got, err)
	}
	if _, err := ParseIssueTypes([]string{"plot"}); err == nil {
		t.Error("expected error for unknown issue type")
	}
}

func TestWorkflowConfigValidate(t *testing.T) {
	cfg := WorkflowConfig{
		NovelID:    "n",
		EntityType: EntityChapter,
		Transitions: []TransitionEdge{
			{From: StatusPlanning, To: StatusOutlined},
			{From: StatusOutlined, To: StatusWriting, Conditions: []ConditionSpec{{Type: "custom_check"}}},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.FindEdge(StatusPlanning, StatusOutlined) == nil {
		t.Error("FindEdge missed declared edge")
	}
	if cfg.FindEdge(StatusPlanning, StatusWriting) != nil {
		t.Error("FindEdge returned undeclared edge")
	}

	cfg.Transitions = append(cfg.Transitions, TransitionEdge{From: StatusPlanning, To: StatusOutlined})
	if err := cfg.Validate(); err == nil {
		t.Error("expected duplicate edge error")
	}

	cfg.Transitions = []TransitionEdge{{From: StatusConcept, To: StatusDraft}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for novel statuses in chapter workflow")
	}
}
