// Package types defines core data structures for the novelflow workflow tracker.
package types

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DefaultChapterTargetWords is the word target assumed when a chapter has none.
const DefaultChapterTargetWords = 3000

// EntityType tags the kind of entity participating in the workflow.
type EntityType string

const (
	EntityNovel   EntityType = "novel"
	EntityChapter EntityType = "chapter"
)

// IsValid checks if the entity type is one the workflow knows about
func (t EntityType) IsValid() bool {
	return t == EntityNovel || t == EntityChapter
}

// ParseEntityType parses a string into an EntityType, case-insensitive.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown entity type %q (valid: novel, chapter)", s)
	}
	return t, nil
}

// Entity is the common view the workflow engine has of a Novel or a Chapter.
type Entity interface {
	EntityType() EntityType
	EntityID() string
	CurrentStatus() Status
	// ParentNovelID returns the owning novel; a novel returns its own ID.
	ParentNovelID() string
}

// Novel is the top-level narrative work.
type Novel struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	TargetWordCount int       `json:"target_word_count,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (n *Novel) EntityType() EntityType { return EntityNovel }
func (n *Novel) EntityID() string       { return n.ID }
func (n *Novel) CurrentStatus() Status  { return n.Status }
func (n *Novel) ParentNovelID() string  { return n.ID }

// HasBasicInfo reports whether both title and description are filled in.
func (n *Novel) HasBasicInfo() bool {
	return strings.TrimSpace(n.Title) != "" && strings.TrimSpace(n.Description) != ""
}

// Validate checks if the novel has valid field values
func (n *Novel) Validate() error {
	if len(n.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(n.Title))
	}
	if n.TargetWordCount < 0 {
		return fmt.Errorf("target_word_count cannot be negative")
	}
	if !n.Status.IsValidFor(EntityNovel) {
		return fmt.Errorf("invalid novel status: %s", n.Status)
	}
	return nil
}

// SetDefaults fills in the initial status for newly created novels.
func (n *Novel) SetDefaults() {
	if n.Status == "" {
		n.Status = StatusConcept
	}
}

// Chapter is a numbered section of a novel.
type Chapter struct {
	ID              string    `json:"id"`
	NovelID         string    `json:"novel_id"`
	Number          int       `json:"number"`
	Title           string    `json:"title"`
	Outline         string    `json:"outline,omitempty"`
	Content         string    `json:"content,omitempty"`
	WordCount       int       `json:"word_count"`
	TargetWordCount int       `json:"target_word_count,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c *Chapter) EntityType() EntityType { return EntityChapter }
func (c *Chapter) EntityID() string       { return c.ID }
func (c *Chapter) CurrentStatus() Status  { return c.Status }
func (c *Chapter) ParentNovelID() string  { return c.NovelID }

// EffectiveTargetWords returns the chapter target, falling back to the default.
func (c *Chapter) EffectiveTargetWords() int {
	if c.TargetWordCount > 0 {
		return c.TargetWordCount
	}
	return DefaultChapterTargetWords
}

// Validate checks if the chapter has valid field values
func (c *Chapter) Validate() error {
	if c.NovelID == "" {
		return fmt.Errorf("novel_id is required")
	}
	if c.Number < 1 {
		return fmt.Errorf("chapter number must be positive (got %d)", c.Number)
	}
	if c.WordCount < 0 || c.TargetWordCount < 0 {
		return fmt.Errorf("word counts cannot be negative")
	}
	if !c.Status.IsValidFor(EntityChapter) {
		return fmt.Errorf("invalid chapter status: %s", c.Status)
	}
	return nil
}

// SetDefaults fills in the initial status and derived word count.
func (c *Chapter) SetDefaults() {
	if c.Status == "" {
		c.Status = StatusPlanning
	}
	c.WordCount = CountWords(c.Content)
}

// Character is a person (or creature) appearing in a novel.
type Character struct {
	ID          string    `json:"id"`
	NovelID     string    `json:"novel_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role,omitempty"`
	Description string    `json:"description,omitempty"`
	Personality string    `json:"personality,omitempty"`
	Background  string    `json:"background,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorldSetting is a place, rule, or institution of the story world.
type WorldSetting struct {
	ID          string    `json:"id"`
	NovelID     string    `json:"novel_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CountWords counts whitespace-separated words, treating every CJK ideograph
// as a word of its own.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			count++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// neither starts nor ends a word
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

// ApplyUpdates applies a field-name keyed update map to the novel. Status is
// owned by the workflow engine and cannot be set here.
func (n *Novel) ApplyUpdates(updates map[string]interface{}) error {
	for key, val := range updates {
		switch key {
		case "title", "description", "genre":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("%s must be a string", key)
			}
			switch key {
			case "title":
				n.Title = s
			case "description":
				n.Description = s
			default:
				n.Genre = s
			}
		case "target_word_count":
			v, ok := val.(int)
			if !ok {
				return fmt.Errorf("target_word_count must be an int")
			}
			n.TargetWordCount = v
		case "status":
			return fmt.Errorf("status can only be changed through a workflow transition")
		default:
			return fmt.Errorf("unknown novel field: %s", key)
		}
	}
	return n.Validate()
}

// ApplyUpdates applies a field-name keyed update map to the chapter and
// recomputes the word count when content changes.
func (c *Chapter) ApplyUpdates(updates map[string]interface{}) error {
	for key, val := range updates {
		switch key {
		case "title", "outline", "content":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("%s must be a string", key)
			}
			switch key {
			case "title":
				c.Title = s
			case "outline":
				c.Outline = s
			default:
				c.Content = s
				c.WordCount = CountWords(s)
			}
		case "target_word_count":
			v, ok := val.(int)
			if !ok {
				return fmt.Errorf("target_word_count must be an int")
			}
			c.TargetWordCount = v
		case "status":
			return fmt.Errorf("status can only be changed through a workflow transition")
		default:
			return fmt.Errorf("unknown chapter field: %s", key)
		}
	}
	return c.Validate()
}
