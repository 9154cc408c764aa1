package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenRecord — персистентная запись о выданном refresh-токене.
//
// Хранится только хэш токена (sha256, base64url), сам токен на сервере не сохраняется.
// Запись не удаляется при ротации или logout: RevokedAt фиксирует момент отзыва,
// а история нужна для обнаружения повторного предъявления (replay).
type RefreshTokenRecord struct {
	UserID    uuid.UUID
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked сообщает, отозвана ли запись.
func (r *RefreshTokenRecord) Revoked() bool {
	return r.RevokedAt != nil
}

// Active — запись существует, не отозвана и не истекла на момент now.
func (r *RefreshTokenRecord) Active(now time.Time) bool {
	return r != nil && !r.Revoked() && now.Before(r.ExpiresAt)
}
