package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

var issueColumns = []string{"id", "chapter_id", "type", "severity", "description", "related_content", "related_chapters", "resolved", "created_at"}

func scanIssue(r rowScanner) (*types.Issue, error) {
	var i types.Issue
	var related, created string
	var resolved int
	if err := r.Scan(&i.ID, &i.ChapterID, &i.Type, &i.Severity, &i.Description, &i.RelatedContent, &related, &resolved, &created); err != nil {
		return nil, err
	}
	if related != "" {
		if err := json.Unmarshal([]byte(related), &i.RelatedChapters); err != nil {
			return nil, fmt.Errorf("decode related_chapters for issue %s: %w", i.ID, err)
		}
	}
	i.Resolved = resolved != 0
	i.CreatedAt = parseTime(created)
	return &i, nil
}

// ReplaceChapterIssues deletes every issue of the chapter and inserts the
// new set in a single transaction. Nothing changes if any insert fails.
func (s *SQLiteStorage) ReplaceChapterIssues(ctx context.Context, chapterID string, issues []*types.Issue) error {
	for _, issue := range issues {
		issue.ChapterID = chapterID
		if err := issue.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	return s.withTx(ctx, func(conn *sql.Conn) error {
		if _, err := getChapter(ctx, conn, chapterID); err != nil {
			return err
		}
		if _, err := execBuilder(ctx, conn, sq.Delete("issues").Where(sq.Eq{"chapter_id": chapterID})); err != nil {
			return wrapDBErrorf(err, "clear issues for chapter %s", chapterID)
		}
		if len(issues) == 0 {
			return nil
		}

		now := time.Now().UTC()
		ins := sq.Insert("issues").Columns(issueColumns...)
		for _, issue := range issues {
			if issue.ID == "" {
				issue.ID = uuid.NewString()
			}
			if issue.CreatedAt.IsZero() {
				issue.CreatedAt = now
			}
			related, err := json.Marshal(issue.RelatedChapters)
			if err != nil {
				return fmt.Errorf("encode related_chapters: %w", err)
			}
			if issue.RelatedChapters == nil {
				related = []byte("[]")
			}
			ins = ins.Values(issue.ID, chapterID, string(issue.Type), string(issue.Severity), issue.Description,
				issue.RelatedContent, string(related), boolToInt(issue.Resolved), formatTime(issue.CreatedAt))
		}
		if _, err := execBuilder(ctx, conn, ins); err != nil {
			return wrapDBErrorf(err, "insert issues for chapter %s", chapterID)
		}
		return nil
	})
}

// GetIssues lists issues matching the filter, oldest first.
func (s *SQLiteStorage) GetIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	b := sq.Select(issueColumns...).From("issues").OrderBy("created_at", "id")
	if filter.ChapterID != "" {
		b = b.Where(sq.Eq{"chapter_id": filter.ChapterID})
	}
	if filter.Type != nil {
		b = b.Where(sq.Eq{"type": string(*filter.Type)})
	}
	if filter.Severity != nil {
		b = b.Where(sq.Eq{"severity": string(*filter.Severity)})
	}
	if filter.Resolved != nil {
		b = b.Where(sq.Eq{"resolved": boolToInt(*filter.Resolved)})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	rows, err := queryBuilder(ctx, s.db, b)
	if err != nil {
		return nil, wrapDBError("list issues", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, wrapDBError("scan issue", err)
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// GetIssue retrieves an issue by ID
func (s *SQLiteStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	row, err := queryRowBuilder(ctx, s.db, sq.Select(issueColumns...).From("issues").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	issue, err := scanIssue(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get issue %s", id)
	}
	return issue, nil
}

// SetIssueResolved flips the resolved flag of a single issue.
func (s *SQLiteStorage) SetIssueResolved(ctx context.Context, id string, resolved bool) error {
	res, err := execBuilder(ctx, s.db, sq.Update("issues").Set("resolved", boolToInt(resolved)).Where(sq.Eq{"id": id}))
	if err != nil {
		return wrapDBErrorf(err, "update issue %s", id)
	}
	return requireAffected(res, "issue", id)
}

// DeleteIssue removes a single issue.
func (s *SQLiteStorage) DeleteIssue(ctx context.Context, id string) error {
	res, err := execBuilder(ctx, s.db, sq.Delete("issues").Where(sq.Eq{"id": id}))
	if err != nil {
		return wrapDBErrorf(err, "delete issue %s", id)
	}
	return requireAffected(res, "issue", id)
}

// CountUnresolvedIssues counts a chapter's unresolved issues by severity.
func (s *SQLiteStorage) CountUnresolvedIssues(ctx context.Context, chapterID string) (types.SeverityCounts, error) {
	var counts types.SeverityCounts
	rows, err := queryBuilder(ctx, s.db, sq.Select("severity", "COUNT(*)").From("issues").
		Where(sq.Eq{"chapter_id": chapterID, "resolved": 0}).GroupBy("severity"))
	if err != nil {
		return counts, wrapDBError("count issues", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return counts, wrapDBError("scan issue count", err)
		}
		switch types.Severity(sev) {
		case types.SeverityHigh:
			counts.High = n
		case types.SeverityMedium:
			counts.Medium = n
		case types.SeverityLow:
			counts.Low = n
		}
	}
	return counts, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
