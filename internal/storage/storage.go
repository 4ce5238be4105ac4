// Package storage provides the persistence contract for novelflow.
//
// Concrete implementations live in the sqlite and memory sub-packages.
// The workflow engine and the consistency analyzer depend on this
// interface (or narrower slices of it) rather than on a concrete store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/novelflow/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write loses to a concurrent writer
// (e.g. the entity's status changed between read and commit).
var ErrConflict = errors.New("conflict")

// TransitionRecord describes one status change to commit atomically.
type TransitionRecord struct {
	EntityType  types.EntityType
	EntityID    string
	FromStatus  types.Status
	ToStatus    types.Status
	TriggeredBy types.TriggeredBy
	Reason      string
	Metadata    map[string]any
}

// HistoryQuery bounds a status-history listing.
type HistoryQuery struct {
	Limit int       // <= 0 means no limit
	Since time.Time // zero means no lower bound
}

// Storage is the persistence collaborator used by every novelflow component.
type Storage interface {
	// Novels
	CreateNovel(ctx context.Context, novel *types.Novel) error
	GetNovel(ctx context.Context, id string) (*types.Novel, error)
	UpdateNovel(ctx context.Context, id string, updates map[string]interface{}) error
	ListNovels(ctx context.Context) ([]*types.Novel, error)

	// Chapters. CreateChapter assigns the next number in the novel when
	// chapter.Number is zero.
	CreateChapter(ctx context.Context, chapter *types.Chapter) error
	GetChapter(ctx context.Context, id string) (*types.Chapter, error)
	UpdateChapter(ctx context.Context, id string, updates map[string]interface{}) error
	ListChapters(ctx context.Context, novelID string) ([]*types.Chapter, error)

	// Characters and world settings
	CreateCharacter(ctx context.Context, c *types.Character) error
	ListCharacters(ctx context.Context, novelID string) ([]*types.Character, error)
	CreateWorldSetting(ctx context.Context, ws *types.WorldSetting) error
	ListWorldSettings(ctx context.Context, novelID string) ([]*types.WorldSetting, error)

	// Chapter links
	LinkChapterCharacter(ctx context.Context, chapterID, characterID string) error
	LinkChapterSetting(ctx context.Context, chapterID, settingID string) error
	GetChapterCharacters(ctx context.Context, chapterID string) ([]*types.Character, error)
	GetChapterSettings(ctx context.Context, chapterID string) ([]*types.WorldSetting, error)

	// Issues. ReplaceChapterIssues is the only bulk writer: it deletes every
	// issue of the chapter and inserts the given set in one transaction.
	ReplaceChapterIssues(ctx context.Context, chapterID string, issues []*types.Issue) error
	GetIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	SetIssueResolved(ctx context.Context, id string, resolved bool) error
	DeleteIssue(ctx context.Context, id string) error
	CountUnresolvedIssues(ctx context.Context, chapterID string) (types.SeverityCounts, error)

	// Workflow configuration
	GetWorkflowConfig(ctx context.Context, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error)
	SaveWorkflowConfig(ctx context.Context, cfg *types.WorkflowConfig) error

	// Status transitions and history. CommitTransition updates the entity's
	// status only if it still equals rec.FromStatus (ErrConflict otherwise)
	// and appends the history row in the same transaction.
	CommitTransition(ctx context.Context, rec *TransitionRecord) (*types.StatusHistory, error)
	GetStatusHistory(ctx context.Context, entityType types.EntityType, entityID string, q HistoryQuery) ([]*types.StatusHistory, error)

	// Lifecycle
	Close() error
}
