package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/storage"
)

// PutUserProfile upserts one user profile.
func (s *Store) PutUserProfile(ctx context.Context, profile storage.UserProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	userID := strings.TrimSpace(profile.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	createdAt := profile.CreatedAt
	updatedAt := profile.UpdatedAt
	if createdAt.IsZero() && updatedAt.IsZero() {
		createdAt = time.Now().UTC()
		updatedAt = createdAt
	} else {
		if createdAt.IsZero() {
			createdAt = updatedAt
		}
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO user_profiles (user_id, display_name, email, timezone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     display_name = excluded.display_name,
		     email = excluded.email,
		     timezone = excluded.timezone,
		     updated_at = excluded.updated_at`,
		userID,
		strings.TrimSpace(profile.DisplayName),
		strings.TrimSpace(profile.Email),
		strings.TrimSpace(profile.Timezone),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user profile: %w", err)
	}
	return nil
}

// GetUserProfile returns one profile by user ID.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (storage.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserProfile{}, err
	}
	if err := s.ready(); err != nil {
		return storage.UserProfile{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.UserProfile{}, fmt.Errorf("user id is required")
	}

	var profile storage.UserProfile
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, display_name, email, timezone, created_at, updated_at
		   FROM user_profiles
		  WHERE user_id = ?`,
		userID,
	).Scan(&profile.UserID, &profile.DisplayName, &profile.Email, &profile.Timezone, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.UserProfile{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.UserProfile{}, fmt.Errorf("get user profile: %w", err)
	}
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

// ListUserProfiles returns all profiles ordered by user ID.
func (s *Store) ListUserProfiles(ctx context.Context) ([]storage.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT user_id, display_name, email, timezone, created_at, updated_at
		   FROM user_profiles
		  ORDER BY user_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list user profiles: %w", err)
	}
	defer rows.Close()

	var profiles []storage.UserProfile
	for rows.Next() {
		var profile storage.UserProfile
		var createdAt, updatedAt int64
		if err := rows.Scan(&profile.UserID, &profile.DisplayName, &profile.Email, &profile.Timezone, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user profile: %w", err)
		}
		profile.CreatedAt = fromMillis(createdAt)
		profile.UpdatedAt = fromMillis(updatedAt)
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user profiles: %w", err)
	}
	return profiles, nil
}

// ListUserIDs returns the IDs of every user with a journal or profile.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT user_id FROM user_profiles
		 UNION
		 SELECT user_id FROM event_seqs
		 ORDER BY user_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

var _ storage.UserStore = (*Store)(nil)
