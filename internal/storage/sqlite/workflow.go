package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
)

// GetWorkflowConfig loads the stored graph for (novel, entity type).
// Returns storage.ErrNotFound when none has been materialized yet.
func (s *SQLiteStorage) GetWorkflowConfig(ctx context.Context, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error) {
	return getWorkflowConfig(ctx, s.db, novelID, entityType)
}

func getWorkflowConfig(ctx context.Context, q querier, novelID string, entityType types.EntityType) (*types.WorkflowConfig, error) {
	row, err := queryRowBuilder(ctx, q, sq.Select("id", "novel_id", "entity_type", "transitions", "is_active", "version", "created_at", "updated_at").
		From("workflow_configs").Where(sq.Eq{"novel_id": novelID, "entity_type": string(entityType)}))
	if err != nil {
		return nil, err
	}

	var cfg types.WorkflowConfig
	var transitions, created, updated string
	var active int
	if err := row.Scan(&cfg.ID, &cfg.NovelID, &cfg.EntityType, &transitions, &active, &cfg.Version, &created, &updated); err != nil {
		return nil, wrapDBErrorf(err, "get workflow %s/%s", novelID, entityType)
	}
	if err := json.Unmarshal([]byte(transitions), &cfg.Transitions); err != nil {
		return nil, fmt.Errorf("decode transitions for workflow %s: %w", cfg.ID, err)
	}
	cfg.IsActive = active != 0
	cfg.CreatedAt, cfg.UpdatedAt = parseTime(created), parseTime(updated)
	return &cfg, nil
}

// SaveWorkflowConfig upserts the graph, bumping its version on every save.
func (s *SQLiteStorage) SaveWorkflowConfig(ctx context.Context, cfg *types.WorkflowConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	transitions, err := json.Marshal(cfg.Transitions)
	if err != nil {
		return fmt.Errorf("encode transitions: %w", err)
	}

	return s.withTx(ctx, func(conn *sql.Conn) error {
		if _, err := getNovel(ctx, conn, cfg.NovelID); err != nil {
			return err
		}
		now := time.Now().UTC()
		existing, err := getWorkflowConfig(ctx, conn, cfg.NovelID, cfg.EntityType)
		switch {
		case err == nil:
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
			cfg.Version = existing.Version + 1
			cfg.UpdatedAt = now
			_, err = execBuilder(ctx, conn, sq.Update("workflow_configs").SetMap(map[string]interface{}{
				"transitions": string(transitions),
				"is_active":   boolToInt(cfg.IsActive),
				"version":     cfg.Version,
				"updated_at":  formatTime(now),
			}).Where(sq.Eq{"id": cfg.ID}))
			return wrapDBErrorf(err, "update workflow %s", cfg.ID)
		case errors.Is(err, storage.ErrNotFound):
			if cfg.ID == "" {
				cfg.ID = uuid.NewString()
			}
			cfg.Version = 1
			cfg.CreatedAt, cfg.UpdatedAt = now, now
			_, err = execBuilder(ctx, conn, sq.Insert("workflow_configs").
				Columns("id", "novel_id", "entity_type", "transitions", "is_active", "version", "created_at", "updated_at").
				Values(cfg.ID, cfg.NovelID, string(cfg.EntityType), string(transitions), boolToInt(cfg.IsActive),
					cfg.Version, formatTime(now), formatTime(now)))
			return wrapDBErrorf(err, "insert workflow %s/%s", cfg.NovelID, cfg.EntityType)
		default:
			return err
		}
	})
}

func entityTable(t types.EntityType) (string, error) {
	switch t {
	case types.EntityNovel:
		return "novels", nil
	case types.EntityChapter:
		return "chapters", nil
	}
	return "", fmt.Errorf("invalid entity type: %s", t)
}

// CommitTransition updates the entity's status (only if it still matches
// rec.FromStatus) and appends the history row in one transaction.
func (s *SQLiteStorage) CommitTransition(ctx context.Context, rec *storage.TransitionRecord) (*types.StatusHistory, error) {
	table, err := entityTable(rec.EntityType)
	if err != nil {
		return nil, err
	}
	if !rec.ToStatus.IsValidFor(rec.EntityType) {
		return nil, fmt.Errorf("invalid %s status: %s", rec.EntityType, rec.ToStatus)
	}
	metadata := []byte("{}")
	if len(rec.Metadata) > 0 {
		if metadata, err = json.Marshal(rec.Metadata); err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
	}

	now := time.Now().UTC()
	h := &types.StatusHistory{
		ID:          uuid.NewString(),
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		FromStatus:  rec.FromStatus,
		ToStatus:    rec.ToStatus,
		TriggeredBy: rec.TriggeredBy,
		Reason:      rec.Reason,
		Metadata:    rec.Metadata,
		CreatedAt:   now,
	}

	err = s.withTx(ctx, func(conn *sql.Conn) error {
		res, err := execBuilder(ctx, conn, sq.Update(table).
			Set("status", string(rec.ToStatus)).
			Set("updated_at", formatTime(now)).
			Where(sq.Eq{"id": rec.EntityID, "status": string(rec.FromStatus)}))
		if err != nil {
			return wrapDBErrorf(err, "update %s %s status", rec.EntityType, rec.EntityID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			// Distinguish a missing entity from a lost race.
			row, err := queryRowBuilder(ctx, conn, sq.Select("status").From(table).Where(sq.Eq{"id": rec.EntityID}))
			if err != nil {
				return err
			}
			var current string
			if err := row.Scan(&current); err != nil {
				return wrapDBErrorf(err, "get %s %s", rec.EntityType, rec.EntityID)
			}
			return fmt.Errorf("%s %s is %s, expected %s: %w", rec.EntityType, rec.EntityID, current, rec.FromStatus, storage.ErrConflict)
		}

		_, err = execBuilder(ctx, conn, sq.Insert("status_history").
			Columns("id", "entity_type", "entity_id", "from_status", "to_status", "triggered_by", "reason", "metadata", "created_at").
			Values(h.ID, string(h.EntityType), h.EntityID, string(h.FromStatus), string(h.ToStatus),
				string(h.TriggeredBy), h.Reason, string(metadata), formatTime(now)))
		return wrapDBError("insert status history", err)
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// GetStatusHistory returns an entity's transitions, most recent first.
func (s *SQLiteStorage) GetStatusHistory(ctx context.Context, entityType types.EntityType, entityID string, q storage.HistoryQuery) ([]*types.StatusHistory, error) {
	b := sq.Select("id", "entity_type", "entity_id", "from_status", "to_status", "triggered_by", "reason", "metadata", "created_at").
		From("status_history").
		Where(sq.Eq{"entity_type": string(entityType), "entity_id": entityID}).
		OrderBy("seq DESC")
	if !q.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"created_at": formatTime(q.Since)})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	rows, err := queryBuilder(ctx, s.db, b)
	if err != nil {
		return nil, wrapDBError("list status history", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.StatusHistory
	for rows.Next() {
		var h types.StatusHistory
		var metadata, created string
		if err := rows.Scan(&h.ID, &h.EntityType, &h.EntityID, &h.FromStatus, &h.ToStatus, &h.TriggeredBy, &h.Reason, &metadata, &created); err != nil {
			return nil, wrapDBError("scan status history", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &h.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for history %s: %w", h.ID, err)
			}
		}
		h.CreatedAt = parseTime(created)
		out = append(out, &h)
	}
	return out, rows.Err()
}
