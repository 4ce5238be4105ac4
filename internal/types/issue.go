package types

import (
	"fmt"
	"time"
)

// IssueType categorizes a narrative inconsistency
type IssueType string

// Issue type constants
const (
	IssueCharacter IssueType = "character"
	IssueSetting   IssueType = "setting"
	IssueTimeline  IssueType = "timeline"
	IssueLogic     IssueType = "logic"
)

// AllIssueTypes is the default set checked by a consistency analysis, in
// the order results are reported.
var AllIssueTypes = []IssueType{IssueCharacter, IssueSetting, IssueTimeline, IssueLogic}

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	switch t {
	case IssueCharacter, IssueSetting, IssueTimeline, IssueLogic:
		return true
	}
	return false
}

// ParseIssueTypes converts names into issue types, rejecting unknown ones.
// An empty input yields AllIssueTypes.
func ParseIssueTypes(names []string) ([]IssueType, error) {
	if len(names) == 0 {
		return append([]IssueType(nil), AllIssueTypes...), nil
	}
	seen := make(map[IssueType]bool, len(names))
	out := make([]IssueType, 0, len(names))
	for _, n := range names {
		t := IssueType(n)
		if !t.IsValid() {
			return nil, fmt.Errorf("unknown issue type %q (valid: character, setting, timeline, logic)", n)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// Severity ranks how badly an inconsistency hurts the narrative
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Blocking reports whether an unresolved issue of this severity blocks
// the consistency gate.
func (s Severity) Blocking() bool {
	return s == SeverityHigh || s == SeverityMedium
}

// Issue is one detected narrative inconsistency scoped to a chapter.
type Issue struct {
	ID              string    `json:"id"`
	ChapterID       string    `json:"chapter_id"`
	Type            IssueType `json:"type"`
	Severity        Severity  `json:"severity"`
	Description     string    `json:"description"`
	RelatedContent  string    `json:"related_content,omitempty"`
	RelatedChapters []int     `json:"related_chapters,omitempty"`
	Resolved        bool      `json:"resolved"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if i.ChapterID == "" {
		return fmt.Errorf("chapter_id is required")
	}
	if !i.Type.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.Type)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.Description == "" {
		return fmt.Errorf("description is required")
	}
	return nil
}

// IssueFilter narrows an issue listing. Nil fields do not filter.
type IssueFilter struct {
	ChapterID string
	Type      *IssueType
	Severity  *Severity
	Resolved  *bool
	Limit     int
}

// SeverityCounts holds unresolved issue counts per severity for one chapter.
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Add increments the counter for sev.
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
}

// Total returns the number of counted issues.
func (c SeverityCounts) Total() int {
	return c.High + c.Medium + c.Low
}
