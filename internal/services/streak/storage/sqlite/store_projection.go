package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/storage"
)

// GetProjection returns the cached projection document for one user.
func (s *Store) GetProjection(ctx context.Context, userID string) (storage.ProjectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProjectionRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ProjectionRecord{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.ProjectionRecord{}, fmt.Errorf("user id is required")
	}

	var document string
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT document, updated_at FROM projections WHERE user_id = ?`,
		userID,
	).Scan(&document, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ProjectionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ProjectionRecord{}, fmt.Errorf("get projection: %w", err)
	}

	record := storage.ProjectionRecord{
		UserID:    userID,
		UpdatedAt: fromMillis(updatedAt),
	}
	if err := json.Unmarshal([]byte(document), &record.Projection); err != nil {
		return storage.ProjectionRecord{}, fmt.Errorf("decode projection document: %w", err)
	}
	return record, nil
}

// SaveProjection upserts the cached document guarded by applied sequence:
// a write whose applied sequence is behind the stored one is discarded.
func (s *Store) SaveProjection(ctx context.Context, record storage.ProjectionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	userID := strings.TrimSpace(record.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	document, err := json.Marshal(record.Projection)
	if err != nil {
		return fmt.Errorf("encode projection document: %w", err)
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO projections (user_id, applied_seq, document, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     applied_seq = excluded.applied_seq,
		     document = excluded.document,
		     updated_at = excluded.updated_at
		 WHERE projections.applied_seq <= excluded.applied_seq`,
		userID,
		record.Projection.AppliedSeq,
		string(document),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("save projection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save projection result: %w", err)
	}
	if affected == 0 {
		return storage.ErrStaleProjection
	}
	return nil
}

var _ storage.ProjectionStore = (*Store)(nil)
