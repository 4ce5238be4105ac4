package consistency

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/novelflow/internal/types"
)

// Judgment is the oracle's verdict on one probe.
type Judgment struct {
	HasIssues       bool           `json:"has_issues"`
	Description     string         `json:"description"`
	Severity        types.Severity `json:"severity"`
	RelatedContent  string         `json:"related_content,omitempty"`
	RelatedChapters []int          `json:"related_chapters,omitempty"`
}

var errNoJSON = errors.New("reply contains no JSON object")

// ParseJudgment extracts a Judgment from a free-form oracle reply. Models
// wrap JSON in prose or code fences often enough that only the outermost
// {...} span is decoded. An unrecognised severity is read as medium.
func ParseJudgment(reply string) (*Judgment, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}

	var raw struct {
		HasIssues       *bool  `json:"has_issues"`
		Description     string `json:"description"`
		Severity        string `json:"severity"`
		RelatedContent  string `json:"related_content"`
		RelatedChapters []int  `json:"related_chapters"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode judgment: %w", err)
	}
	if raw.HasIssues == nil {
		return nil, fmt.Errorf("decode judgment: missing has_issues")
	}
	if !*raw.HasIssues {
		return &Judgment{}, nil
	}

	j := &Judgment{
		HasIssues:       true,
		Description:     strings.TrimSpace(raw.Description),
		Severity:        types.Severity(strings.ToLower(strings.TrimSpace(raw.Severity))),
		RelatedContent:  strings.TrimSpace(raw.RelatedContent),
		RelatedChapters: raw.RelatedChapters,
	}
	if j.Description == "" {
		return nil, fmt.Errorf("decode judgment: issue without description")
	}
	if !j.Severity.IsValid() {
		j.Severity = types.SeverityMedium
	}
	return j, nil
}
