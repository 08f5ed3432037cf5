package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureProfile inserts the profile if no row exists for its id. The insert
// is conditional at the storage layer, so repeated logins for the same
// identity never clobber user-edited fields and concurrent first logins
// collapse to a single row. Returns whether a row was created.
func (s *PostgresStore) EnsureProfile(ctx context.Context, profile Profile) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, profile.ID, profile.FullName, profile.AvatarURL)
	if err != nil {
		return false, fmt.Errorf("ensure profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure profile rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, profileID string) (Profile, error) {
	var profile Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, avatar_url, created_at, updated_at
		FROM profiles
		WHERE id=$1
	`, profileID).Scan(&profile.ID, &profile.FullName, &profile.AvatarURL, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (s *PostgresStore) ListNotesByOwner(ctx context.Context, ownerID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, content, summary, created_at, updated_at
		FROM notes
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Content, &item.Summary, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// GetNote returns sql.ErrNoRows both when the note is absent and when it is
// owned by someone else; the owner filter is the row-level scoping.
func (s *PostgresStore) GetNote(ctx context.Context, noteID, ownerID string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, content, summary, created_at, updated_at
		FROM notes
		WHERE id=$1 AND owner_id=$2
	`, noteID, ownerID).Scan(&item.ID, &item.OwnerID, &item.Title, &item.Content, &item.Summary, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, item Note) (Note, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, owner_id, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, owner_id, title, content, summary, created_at, updated_at
	`, item.ID, item.OwnerID, item.Title, item.Content).Scan(
		&item.ID, &item.OwnerID, &item.Title, &item.Content, &item.Summary, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return item, nil
}

// UpdateNote refreshes updated_at on every write. The owner column is never
// in the SET list.
func (s *PostgresStore) UpdateNote(ctx context.Context, noteID, ownerID, title, content string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		UPDATE notes
		SET title=$3, content=$4, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
		RETURNING id, owner_id, title, content, summary, created_at, updated_at
	`, noteID, ownerID, title, content).Scan(
		&item.ID, &item.OwnerID, &item.Title, &item.Content, &item.Summary, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateNoteSummary(ctx context.Context, noteID, ownerID, summary string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		UPDATE notes
		SET summary=$3, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
		RETURNING id, owner_id, title, content, summary, created_at, updated_at
	`, noteID, ownerID, summary).Scan(
		&item.ID, &item.OwnerID, &item.Title, &item.Content, &item.Summary, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

// DeleteNote is idempotent from the caller's perspective: deleting an id
// that no longer exists is not an error.
func (s *PostgresStore) DeleteNote(ctx context.Context, noteID, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1 AND owner_id=$2`, noteID, ownerID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash=$1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("token not found or expired")
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh session: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
