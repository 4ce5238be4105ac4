package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/steveyegge/novelflow/internal/types"
)

var novelColumns = []string{"id", "title", "description", "genre", "target_word_count", "status", "created_at", "updated_at"}

var chapterColumns = []string{"id", "novel_id", "number", "title", "outline", "content", "word_count", "target_word_count", "status", "created_at", "updated_at"}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNovel(r rowScanner) (*types.Novel, error) {
	var n types.Novel
	var created, updated string
	if err := r.Scan(&n.ID, &n.Title, &n.Description, &n.Genre, &n.TargetWordCount, &n.Status, &created, &updated); err != nil {
		return nil, err
	}
	n.CreatedAt, n.UpdatedAt = parseTime(created), parseTime(updated)
	return &n, nil
}

func scanChapter(r rowScanner) (*types.Chapter, error) {
	var c types.Chapter
	var created, updated string
	if err := r.Scan(&c.ID, &c.NovelID, &c.Number, &c.Title, &c.Outline, &c.Content, &c.WordCount, &c.TargetWordCount, &c.Status, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt, c.UpdatedAt = parseTime(created), parseTime(updated)
	return &c, nil
}

// CreateNovel inserts a novel in its initial status.
func (s *SQLiteStorage) CreateNovel(ctx context.Context, novel *types.Novel) error {
	novel.SetDefaults()
	if err := novel.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if novel.ID == "" {
		novel.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	novel.CreatedAt, novel.UpdatedAt = now, now

	_, err := execBuilder(ctx, s.db, sq.Insert("novels").Columns(novelColumns...).Values(
		novel.ID, novel.Title, novel.Description, novel.Genre, novel.TargetWordCount,
		string(novel.Status), formatTime(now), formatTime(now)))
	return wrapDBError("insert novel", err)
}

// GetNovel retrieves a novel by ID
func (s *SQLiteStorage) GetNovel(ctx context.Context, id string) (*types.Novel, error) {
	return getNovel(ctx, s.db, id)
}

func getNovel(ctx context.Context, q querier, id string) (*types.Novel, error) {
	row, err := queryRowBuilder(ctx, q, sq.Select(novelColumns...).From("novels").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	n, err := scanNovel(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get novel %s", id)
	}
	return n, nil
}

// UpdateNovel applies field updates. Status is rejected; it changes only
// through CommitTransition.
func (s *SQLiteStorage) UpdateNovel(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.withTx(ctx, func(conn *sql.Conn) error {
		n, err := getNovel(ctx, conn, id)
		if err != nil {
			return err
		}
		if err := n.ApplyUpdates(updates); err != nil {
			return err
		}
		_, err = execBuilder(ctx, conn, sq.Update("novels").SetMap(map[string]interface{}{
			"title":             n.Title,
			"description":       n.Description,
			"genre":             n.Genre,
			"target_word_count": n.TargetWordCount,
			"updated_at":        formatTime(time.Now()),
		}).Where(sq.Eq{"id": id}))
		return wrapDBErrorf(err, "update novel %s", id)
	})
}

// ListNovels returns every novel, oldest first.
func (s *SQLiteStorage) ListNovels(ctx context.Context) ([]*types.Novel, error) {
	rows, err := queryBuilder(ctx, s.db, sq.Select(novelColumns...).From("novels").OrderBy("created_at", "id"))
	if err != nil {
		return nil, wrapDBError("list novels", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Novel
	for rows.Next() {
		n, err := scanNovel(rows)
		if err != nil {
			return nil, wrapDBError("scan novel", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateChapter inserts a chapter, numbering it after the novel's last
// chapter when Number is zero.
func (s *SQLiteStorage) CreateChapter(ctx context.Context, chapter *types.Chapter) error {
	return s.withTx(ctx, func(conn *sql.Conn) error {
		if _, err := getNovel(ctx, conn, chapter.NovelID); err != nil {
			return err
		}
		if chapter.Number == 0 {
			row, err := queryRowBuilder(ctx, conn, sq.Select("COALESCE(MAX(number), 0)").From("chapters").Where(sq.Eq{"novel_id": chapter.NovelID}))
			if err != nil {
				return err
			}
			var max int
			if err := row.Scan(&max); err != nil {
				return wrapDBError("next chapter number", err)
			}
			chapter.Number = max + 1
		}
		chapter.SetDefaults()
		if err := chapter.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if chapter.ID == "" {
			chapter.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		chapter.CreatedAt, chapter.UpdatedAt = now, now

		_, err := execBuilder(ctx, conn, sq.Insert("chapters").Columns(chapterColumns...).Values(
			chapter.ID, chapter.NovelID, chapter.Number, chapter.Title, chapter.Outline, chapter.Content,
			chapter.WordCount, chapter.TargetWordCount, string(chapter.Status), formatTime(now), formatTime(now)))
		return wrapDBErrorf(err, "insert chapter %d", chapter.Number)
	})
}

// GetChapter retrieves a chapter by ID
func (s *SQLiteStorage) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	return getChapter(ctx, s.db, id)
}

func getChapter(ctx context.Context, q querier, id string) (*types.Chapter, error) {
	row, err := queryRowBuilder(ctx, q, sq.Select(chapterColumns...).From("chapters").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	c, err := scanChapter(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get chapter %s", id)
	}
	return c, nil
}

// UpdateChapter applies field updates, recomputing word_count from content.
func (s *SQLiteStorage) UpdateChapter(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.withTx(ctx, func(conn *sql.Conn) error {
		c, err := getChapter(ctx, conn, id)
		if err != nil {
			return err
		}
		if err := c.ApplyUpdates(updates); err != nil {
			return err
		}
		_, err = execBuilder(ctx, conn, sq.Update("chapters").SetMap(map[string]interface{}{
			"title":             c.Title,
			"outline":           c.Outline,
			"content":           c.Content,
			"word_count":        c.WordCount,
			"target_word_count": c.TargetWordCount,
			"updated_at":        formatTime(time.Now()),
		}).Where(sq.Eq{"id": id}))
		return wrapDBErrorf(err, "update chapter %s", id)
	})
}

// ListChapters returns the novel's chapters ordered by number.
func (s *SQLiteStorage) ListChapters(ctx context.Context, novelID string) ([]*types.Chapter, error) {
	rows, err := queryBuilder(ctx, s.db, sq.Select(chapterColumns...).From("chapters").
		Where(sq.Eq{"novel_id": novelID}).OrderBy("number"))
	if err != nil {
		return nil, wrapDBError("list chapters", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, wrapDBError("scan chapter", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCharacter inserts a character into a novel.
func (s *SQLiteStorage) CreateCharacter(ctx context.Context, c *types.Character) error {
	if c.Name == "" {
		return fmt.Errorf("validation failed: name is required")
	}
	if _, err := s.GetNovel(ctx, c.NovelID); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := execBuilder(ctx, s.db, sq.Insert("characters").
		Columns("id", "novel_id", "name", "role", "description", "personality", "background", "created_at").
		Values(c.ID, c.NovelID, c.Name, c.Role, c.Description, c.Personality, c.Background, formatTime(c.CreatedAt)))
	return wrapDBError("insert character", err)
}

// ListCharacters returns the novel's characters by name.
func (s *SQLiteStorage) ListCharacters(ctx context.Context, novelID string) ([]*types.Character, error) {
	return s.queryCharacters(ctx, sq.Select(characterSelect...).From("characters c").
		Where(sq.Eq{"c.novel_id": novelID}).OrderBy("c.name"))
}

// GetChapterCharacters returns the characters linked to a chapter.
func (s *SQLiteStorage) GetChapterCharacters(ctx context.Context, chapterID string) ([]*types.Character, error) {
	return s.queryCharacters(ctx, sq.Select(characterSelect...).From("characters c").
		Join("chapter_characters cc ON cc.character_id = c.id").
		Where(sq.Eq{"cc.chapter_id": chapterID}).OrderBy("c.name"))
}

var characterSelect = []string{"c.id", "c.novel_id", "c.name", "c.role", "c.description", "c.personality", "c.background", "c.created_at"}

func (s *SQLiteStorage) queryCharacters(ctx context.Context, b sq.SelectBuilder) ([]*types.Character, error) {
	rows, err := queryBuilder(ctx, s.db, b)
	if err != nil {
		return nil, wrapDBError("query characters", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Character
	for rows.Next() {
		var c types.Character
		var created string
		if err := rows.Scan(&c.ID, &c.NovelID, &c.Name, &c.Role, &c.Description, &c.Personality, &c.Background, &created); err != nil {
			return nil, wrapDBError("scan character", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CreateWorldSetting inserts a world setting into a novel.
func (s *SQLiteStorage) CreateWorldSetting(ctx context.Context, ws *types.WorldSetting) error {
	if ws.Name == "" {
		return fmt.Errorf("validation failed: name is required")
	}
	if _, err := s.GetNovel(ctx, ws.NovelID); err != nil {
		return err
	}
	if ws.ID == "" {
		ws.ID = uuid.NewString()
	}
	ws.CreatedAt = time.Now().UTC()
	_, err := execBuilder(ctx, s.db, sq.Insert("world_settings").
		Columns("id", "novel_id", "name", "category", "description", "created_at").
		Values(ws.ID, ws.NovelID, ws.Name, ws.Category, ws.Description, formatTime(ws.CreatedAt)))
	return wrapDBError("insert world setting", err)
}

// ListWorldSettings returns the novel's world settings by name.
func (s *SQLiteStorage) ListWorldSettings(ctx context.Context, novelID string) ([]*types.WorldSetting, error) {
	return s.querySettings(ctx, sq.Select(settingSelect...).From("world_settings w").
		Where(sq.Eq{"w.novel_id": novelID}).OrderBy("w.name"))
}

// GetChapterSettings returns the world settings linked to a chapter.
func (s *SQLiteStorage) GetChapterSettings(ctx context.Context, chapterID string) ([]*types.WorldSetting, error) {
	return s.querySettings(ctx, sq.Select(settingSelect...).From("world_settings w").
		Join("chapter_settings cs ON cs.setting_id = w.id").
		Where(sq.Eq{"cs.chapter_id": chapterID}).OrderBy("w.name"))
}

var settingSelect = []string{"w.id", "w.novel_id", "w.name", "w.category", "w.description", "w.created_at"}

func (s *SQLiteStorage) querySettings(ctx context.Context, b sq.SelectBuilder) ([]*types.WorldSetting, error) {
	rows, err := queryBuilder(ctx, s.db, b)
	if err != nil {
		return nil, wrapDBError("query world settings", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.WorldSetting
	for rows.Next() {
		var w types.WorldSetting
		var created string
		if err := rows.Scan(&w.ID, &w.NovelID, &w.Name, &w.Category, &w.Description, &created); err != nil {
			return nil, wrapDBError("scan world setting", err)
		}
		w.CreatedAt = parseTime(created)
		out = append(out, &w)
	}
	return out, rows.Err()
}

// LinkChapterCharacter records that a character appears in a chapter.
func (s *SQLiteStorage) LinkChapterCharacter(ctx context.Context, chapterID, characterID string) error {
	return s.link(ctx, "chapter_characters", "character_id", "characters", chapterID, characterID)
}

// LinkChapterSetting records that a world setting features in a chapter.
func (s *SQLiteStorage) LinkChapterSetting(ctx context.Context, chapterID, settingID string) error {
	return s.link(ctx, "chapter_settings", "setting_id", "world_settings", chapterID, settingID)
}

func (s *SQLiteStorage) link(ctx context.Context, table, column, targetTable, chapterID, targetID string) error {
	return s.withTx(ctx, func(conn *sql.Conn) error {
		if _, err := getChapter(ctx, conn, chapterID); err != nil {
			return err
		}
		row, err := queryRowBuilder(ctx, conn, sq.Select("id").From(targetTable).Where(sq.Eq{"id": targetID}))
		if err != nil {
			return err
		}
		var id string
		if err := row.Scan(&id); err != nil {
			return wrapDBErrorf(err, "get %s %s", targetTable, targetID)
		}
		_, err = execBuilder(ctx, conn, sq.Insert(table).Options("OR IGNORE").
			Columns("chapter_id", column).Values(chapterID, targetID))
		return wrapDBErrorf(err, "link %s", table)
	})
}
