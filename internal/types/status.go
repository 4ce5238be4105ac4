package types

import "fmt"

// Status represents the production stage of a novel or chapter
type Status string

// Status constants. Novels and chapters share some names; which ones are
// valid depends on the entity type (see NovelStatuses and ChapterStatuses).
const (
	StatusConcept   Status = "concept"
	StatusDraft     Status = "draft"
	StatusPlanning  Status = "planning"
	StatusOutlined  Status = "outlined"
	StatusWriting   Status = "writing"
	StatusReviewing Status = "reviewing"
	StatusEditing   Status = "editing"
	StatusCompleted Status = "completed"
	StatusPublished Status = "published"
)

// NovelStatuses lists the novel lifecycle in forward order.
var NovelStatuses = []Status{
	StatusConcept,
	StatusDraft,
	StatusPlanning,
	StatusWriting,
	StatusEditing,
	StatusCompleted,
	StatusPublished,
}

// ChapterStatuses lists the chapter lifecycle in forward order.
var ChapterStatuses = []Status{
	StatusPlanning,
	StatusOutlined,
	StatusWriting,
	StatusReviewing,
	StatusEditing,
	StatusCompleted,
}

// StatusesFor returns the fixed status set for an entity type.
func StatusesFor(t EntityType) []Status {
	switch t {
	case EntityNovel:
		return NovelStatuses
	case EntityChapter:
		return ChapterStatuses
	}
	return nil
}

// IsValidFor checks if the status belongs to the entity type's status set
func (s Status) IsValidFor(t EntityType) bool {
	return s.Rank(t) >= 0
}

// Rank returns the position of s in the entity type's forward lifecycle,
// or -1 when s is not part of it.
func (s Status) Rank(t EntityType) int {
	for i, st := range StatusesFor(t) {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStatus validates a status string against the entity type's set.
func ParseStatus(t EntityType, s string) (Status, error) {
	st := Status(s)
	if !st.IsValidFor(t) {
		return "", fmt.Errorf("invalid %s status %q (valid: %v)", t, s, StatusesFor(t))
	}
	return st, nil
}

// TriggeredBy records who initiated a status transition.
type TriggeredBy string

const (
	TriggeredByUser   TriggeredBy = "user"
	TriggeredBySystem TriggeredBy = "system"
)

// IsValid checks if the trigger source is known
func (t TriggeredBy) IsValid() bool {
	return t == TriggeredByUser || t == TriggeredBySystem
}
