// Package memory implements the storage interface in process memory.
//
// It backs deterministic tests and the CLI's --no-db mode. Every returned
// value is a copy so callers can never mutate stored state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

var _ storage.Storage = (*MemoryStorage)(nil)

type workflowKey struct {
	novelID    string
	entityType types.EntityType
}

// MemoryStorage is a map-backed storage.Storage.
type MemoryStorage struct {
	mu sync.RWMutex

	novels     map[string]*types.Novel
	chapters   map[string]*types.Chapter
	characters map[string]*types.Character
	settings   map[string]*types.WorldSetting
	issues     map[string]*types.Issue
	workflows  map[workflowKey]*types.WorkflowConfig
	history    []*types.StatusHistory

	chapterCharacters map[string][]string
	chapterSettings   map[string][]string

	// now is swappable for tests that need ordered timestamps.
	now func() time.Time
}

// New creates an empty in-memory store.
func New() *MemoryStorage {
	return &MemoryStorage{
		novels:            make(map[string]*types.Novel),
		chapters:          make(map[string]*types.Chapter),
		characters:        make(map[string]*types.Character),
		settings:          make(map[string]*types.WorldSetting),
		issues:            make(map[string]*types.Issue),
		workflows:         make(map[workflowKey]*types.WorkflowConfig),
		chapterCharacters: make(map[string][]string),
		chapterSettings:   make(map[string][]string),
		now:               time.Now,
	}
}

// SetClock overrides the time source.
func (m *MemoryStorage) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStorage) Close() error { return nil }

// Novels

func (m *MemoryStorage) CreateNovel(ctx context.Context, novel *types.Novel) error {
	novel.SetDefaults()
	if err := novel.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if novel.ID == "" {
		novel.ID = uuid.NewString()
	}
	if _, exists := m.novels[novel.ID]; exists {
		return fmt.Errorf("novel %s: %w", novel.ID, storage.ErrConflict)
	}
	now := m.now()
	novel.CreatedAt, novel.UpdatedAt = now, now
	cp := *novel
	m.novels[novel.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetNovel(ctx context.Context, id string) (*types.Novel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.novels[id]
	if !ok {
		return nil, fmt.Errorf("novel %s: %w", id, storage.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (m *MemoryStorage) UpdateNovel(ctx context.Context, id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.novels[id]
	if !ok {
		return fmt.Errorf("novel %s: %w", id, storage.ErrNotFound)
	}
	cp := *n
	if err := cp.ApplyUpdates(updates); err != nil {
		return err
	}
	cp.UpdatedAt = m.now()
	m.novels[id] = &cp
	return nil
}

func (m *MemoryStorage) ListNovels(ctx context.Context) ([]*types.Novel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Novel, 0, len(m.novels))
	for _, n := range m.novels {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Chapters

func (m *MemoryStorage) CreateChapter(ctx context.Context, chapter *types.Chapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.novels[chapter.NovelID]; !ok {
		return fmt.Errorf("novel %s: %w", chapter.NovelID, storage.ErrNotFound)
	}
	if chapter.Number == 0 {
		max := 0
		for _, c := range m.chapters {
			if c.NovelID == chapter.NovelID && c.Number > max {
				max = c.Number
			}
		}
		chapter.Number = max + 1
	}
	for _, c := range m.chapters {
		if c.NovelID == chapter.NovelID && c.Number == chapter.Number {
			return fmt.Errorf("chapter %d already exists: %w", chapter.Number, storage.ErrConflict)
		}
	}
	chapter.SetDefaults()
	if err := chapter.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if chapter.ID == "" {
		chapter.ID = uuid.NewString()
	}
	now := m.now()
	chapter.CreatedAt, chapter.UpdatedAt = now, now
	cp := *chapter
	m.chapters[chapter.ID] = &cp
	return nil
}

func (m *MemoryStorage) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chapters[id]
	if !ok {
		return nil, fmt.Errorf("chapter %s: %w", id, storage.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStorage) UpdateChapter(ctx context.Context, id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chapters[id]
	if !ok {
		return fmt.Errorf("chapter %s: %w", id, storage.ErrNotFound)
	}
	cp := *c
	if err := cp.ApplyUpdates(updates); err != nil {
		return err
	}
	cp.UpdatedAt = m.now()
	m.chapters[id] = &cp
	return nil
}

func (m *MemoryStorage) ListChapters(ctx context.Context, novelID string) ([]*types.Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Chapter
	for _, c := range m.chapters {
		if c.NovelID == novelID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Characters and settings

func (m *MemoryStorage) CreateCharacter(ctx context.Context, c *types.Character) error {
	if c.Name == "" {
		return fmt.Errorf("validation failed: name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.novels[c.NovelID]; !ok {
		return fmt.Errorf("novel %s: %w", c.NovelID, storage.ErrNotFound)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = m.now()
	cp := *c
	m.characters[c.ID] = &cp
	return nil
}

func (m *MemoryStorage) ListCharacters(ctx context.Context, novelID string) ([]*types.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Character
	for _, c := range m.characters {
		if c.NovelID == novelID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStorage) CreateWorldSetting(ctx context.Context, ws *types.WorldSetting) error {
	if ws.Name == "" {
		return fmt.Errorf("validation failed: name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.novels[ws.NovelID]; !ok {
		return fmt.Errorf("novel %s: %w", ws.NovelID, storage.ErrNotFound)
	}
	if ws.ID == "" {
		ws.ID = uuid.NewString()
	}
	ws.CreatedAt = m.now()
	cp := *ws
	m.settings[ws.ID] = &cp
	return nil
}

func (m *MemoryStorage) ListWorldSettings(ctx context.Context, novelID string) ([]*types.WorldSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.WorldSetting
	for _, s := range m.settings {
		if s.NovelID == novelID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Links

func (m *MemoryStorage) LinkChapterCharacter(ctx context.Context, chapterID, characterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chapters[chapterID]; !ok {
		return fmt.Errorf("chapter %s: %w", chapterID, storage.ErrNotFound)
	}
	if _, ok := m.characters[characterID]; !ok {
		return fmt.Errorf("character %s: %w", characterID, storage.ErrNotFound)
	}
	m.chapterCharacters[chapterID] = appendUnique(m.chapterCharacters[chapterID], characterID)
	return nil
}

func (m *MemoryStorage) LinkChapterSetting(ctx context.Context, chapterID, settingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chapters[chapterID]; !ok {
		return fmt.Errorf("chapter %s: %w", chapterID, storage.ErrNotFound)
	}
	if _, ok := m.settings[settingID]; !ok {
		return fmt.Errorf("setting %s: %w", settingID, storage.ErrNotFound)
	}
	m.chapterSettings[chapterID] = appendUnique(m.chapterSettings[chapterID], settingID)
	return nil
}

func (m *MemoryStorage) GetChapterCharacters(ctx context.Context, chapterID string) ([]*types.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Character
	for _, id := range m.chapterCharacters[chapterID] {
		if c, ok := m.characters[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStorage) GetChapterSettings(ctx context.Context, chapterID string) ([]*types.WorldSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.WorldSetting
	for _, id := range m.chapterSettings[chapterID] {
		if s, ok := m.settings[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
