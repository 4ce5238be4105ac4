package consistency

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/steveyegge/novelflow/internal/types"
)

// priorExcerpt is one earlier chapter as quoted in a prompt.
type priorExcerpt struct {
	Number  int
	Title   string
	Outline string
	Excerpt string
}

type entityPromptData struct {
	Kind        string // "character" or "world setting"
	Name        string
	Profile     string
	Chapter     priorExcerpt
	CurrentText string
	Prior       []priorExcerpt
}

type chapterPromptData struct {
	Concern     string
	Focus       string
	Chapter     priorExcerpt
	CurrentText string
	Prior       []priorExcerpt
}

var prompts = template.Must(template.New("prompts").Parse(entityPromptTemplate + chapterPromptTemplate + replyFormatTemplate))

func render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := prompts.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return sb.String(), nil
}

var concernFocus = map[types.IssueType]string{
	types.IssueTimeline: "the order and timing of events: dates, seasons, elapsed time, ages, and what happened before what",
	types.IssueLogic:    "cause and effect: facts established earlier, character knowledge, objects and abilities, and plot events that contradict them",
}

// excerpt returns at most n runes of s, cut at a word boundary when possible.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + " ..."
}

const entityPromptTemplate = `{{define "entity"}}You are a continuity editor checking a novel for inconsistencies about one {{.Kind}}.

**{{.Kind}}:** {{.Name}}
{{if .Profile}}**Profile:**
{{.Profile}}
{{end}}
**Earlier chapters where {{.Name}} appears:**
{{range .Prior}}
Chapter {{.Number}}{{if .Title}}: {{.Title}}{{end}}
{{.Excerpt}}
{{end}}
**Chapter {{.Chapter.Number}}{{if .Chapter.Title}}: {{.Chapter.Title}}{{end}} (under review):**
{{.CurrentText}}

Does chapter {{.Chapter.Number}} contradict the profile or the earlier chapters about {{.Name}}? Consider appearance, abilities, relationships, personality and established facts. Ignore deliberate development that the text explains.
{{template "reply" .}}{{end}}`

const chapterPromptTemplate = `{{define "chapter"}}You are a continuity editor checking a novel for {{.Concern}} inconsistencies.

Focus on {{.Focus}}.

**Synopsis of earlier chapters:**
{{range .Prior}}
Chapter {{.Number}}{{if .Title}}: {{.Title}}{{end}}
{{if .Outline}}Outline: {{.Outline}}
{{end}}{{.Excerpt}}
{{end}}
**Chapter {{.Chapter.Number}}{{if .Chapter.Title}}: {{.Chapter.Title}}{{end}} (under review):**
{{.CurrentText}}

Does chapter {{.Chapter.Number}} contain a {{.Concern}} inconsistency with the earlier chapters? Report only the most serious one.
{{template "reply" .}}{{end}}`

const replyFormatTemplate = `{{define "reply"}}
Reply with a single JSON object and nothing else:
{"has_issues": true|false, "description": "...", "severity": "low|medium|high", "related_content": "quote from the chapter", "related_chapters": [chapter numbers]}
Use "high" only for contradictions a reader would certainly notice.{{end}}`
