package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

const upsertRefreshToken = `
	INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, revoked_at)
	VALUES ($1, $2, $3, $4, NULL)
	ON CONFLICT (user_id, token_hash) DO UPDATE
	SET issued_at  = EXCLUDED.issued_at,
	    expires_at = EXCLUDED.expires_at,
	    revoked_at = NULL
`

// InsertRefreshToken сохраняет refresh-запись; повторная вставка той же пары
// (user_id, token_hash) сбрасывает запись в активное состояние.
func (s *Storage) InsertRefreshToken(ctx context.Context, rec *models.RefreshTokenRecord) error {
	const op = "storage.postgres.InsertRefreshToken"

	if err := insertRefresh(ctx, s.db, rec); err != nil {
		return fmt.Errorf("%s: %w", op, wrap(err))
	}

	return nil
}

func insertRefresh(ctx context.Context, db dbtx, rec *models.RefreshTokenRecord) error {
	_, err := db.Exec(ctx, upsertRefreshToken,
		rec.UserID,
		rec.TokenHash,
		rec.IssuedAt,
		rec.ExpiresAt,
	)

	return err
}

// RevokeRefreshToken отзывает активную запись. Идемпотентен.
func (s *Storage) RevokeRefreshToken(ctx context.Context, userID uuid.UUID, hash string, now time.Time) error {
	const op = "storage.postgres.RevokeRefreshToken"

	query := `
		UPDATE refresh_tokens
		SET revoked_at = $3
		WHERE user_id = $1 AND token_hash = $2 AND revoked_at IS NULL
	`

	if _, err := s.db.Exec(ctx, query, userID, hash, now); err != nil {
		return fmt.Errorf("%s: %w", op, wrap(err))
	}

	return nil
}

// IsRefreshTokenActive — запись существует, не отозвана и не истекла.
func (s *Storage) IsRefreshTokenActive(ctx context.Context, userID uuid.UUID, hash string, now time.Time) (bool, error) {
	const op = "storage.postgres.IsRefreshTokenActive"

	query := `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE user_id = $1 AND token_hash = $2
			  AND revoked_at IS NULL AND expires_at > $3
		)
	`

	var active bool
	if err := s.db.QueryRow(ctx, query, userID, hash, now).Scan(&active); err != nil {
		return false, fmt.Errorf("%s: %w", op, wrap(err))
	}

	return active, nil
}

// RefreshTokenByHash возвращает запись в любом состоянии.
func (s *Storage) RefreshTokenByHash(ctx context.Context, userID uuid.UUID, hash string) (*models.RefreshTokenRecord, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
		SELECT user_id, token_hash, issued_at, expires_at, revoked_at
		FROM refresh_tokens
		WHERE user_id = $1 AND token_hash = $2
	`

	var rec models.RefreshTokenRecord
	err := s.db.QueryRow(ctx, query, userID, hash).Scan(
		&rec.UserID,
		&rec.TokenHash,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.RevokedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, wrap(err))
	}

	return &rec, nil
}

// RotateRefreshToken атомарно отзывает старую запись и сохраняет новую.
//
// UPDATE берёт блокировку строки, поэтому из двух конкурентных ротаций
// одного токена успешна ровно одна: вторая после фиксации первой
// перечитывает строку, видит revoked_at и получает storage.ErrRevoked.
func (s *Storage) RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldHash string, next *models.RefreshTokenRecord, now time.Time) error {
	const op = "storage.postgres.RotateRefreshToken"

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		const revoke = `
			UPDATE refresh_tokens
			SET revoked_at = $3
			WHERE user_id = $1 AND token_hash = $2
			  AND revoked_at IS NULL AND expires_at > $3
		`

		tag, err := tx.Exec(ctx, revoke, userID, oldHash, now)
		if err != nil {
			return wrap(err)
		}

		if tag.RowsAffected() == 0 {
			const exists = `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE user_id = $1 AND token_hash = $2)`

			var found bool
			if err := tx.QueryRow(ctx, exists, userID, oldHash).Scan(&found); err != nil {
				return wrap(err)
			}

			if !found {
				return storage.ErrNotFound
			}

			return storage.ErrRevoked
		}

		return wrap(insertRefresh(ctx, tx, next))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAllForUser отзывает все неотозванные записи пользователя.
func (s *Storage) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	const op = "storage.postgres.RevokeAllForUser"

	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	tag, err := s.db.Exec(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, wrap(err))
	}

	return tag.RowsAffected(), nil
}

// DeleteExpiredTokens удаляет записи, истёкшие раньше before.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, wrap(err))
	}

	return tag.RowsAffected(), nil
}
