package repo

import (
	"context"
	"database/sql"

	"pressflow/internal/domain"
)

func (r Repo) InsertNonce(ctx context.Context, n domain.PublishNonce) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO publish_nonces(token,actor_id,created_at,expires_at) VALUES (?,?,?,?)`,
		n.Token, n.ActorID, n.CreatedAt, n.ExpiresAt)
	return err
}

func (r Repo) GetNonce(ctx context.Context, token string) (domain.PublishNonce, error) {
	var n domain.PublishNonce
	err := r.DB.QueryRowContext(ctx, `SELECT token,actor_id,created_at,expires_at FROM publish_nonces WHERE token=?`, token).
		Scan(&n.Token, &n.ActorID, &n.CreatedAt, &n.ExpiresAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

// PurgeExpiredNonces drops nonces whose expiry is at or before now.
func (r Repo) PurgeExpiredNonces(ctx context.Context, now string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM publish_nonces WHERE expires_at <= ?`, now)
	return err
}
