// storage описывает контракты внешних хранилищ auth-ядра:
// пользователи и refresh-записи (PostgreSQL), реестр отзыва (Redis)
// и журнал событий безопасности (MongoDB).
package storage

//go:generate mockgen -source=storage.go -destination=../../mocks/storage.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/carelink-auth/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/refresh-запись).
	ErrNotFound = errors.New("not found")
	// ErrRevoked — refresh-запись уже отозвана или истекла к моменту ротации.
	ErrRevoked = errors.New("revoked")
	// ErrUnavailable — хранилище недоступно (соединение, перегрузка, остановка).
	ErrUnavailable = errors.New("storage unavailable")
)

// UserStorage читает пользователей. Записью владеет внешний сервис.
type UserStorage interface {
	// UserByEmail находит пользователя по e-mail (без учёта регистра).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage — долговременный учёт выданных refresh-токенов.
//
// Revoke линеаризуем относительно последующих проверок активности:
// после фиксации отзыва ни IsRefreshTokenActive, ни RotateRefreshToken
// не увидят запись активной.
type RefreshTokenStorage interface {
	// InsertRefreshToken создаёт запись; при конфликте (user_id, token_hash)
	// сбрасывает её в активное состояние с новыми issued_at/expires_at.
	InsertRefreshToken(ctx context.Context, rec *models.RefreshTokenRecord) error
	// RevokeRefreshToken ставит revoked_at активной записи. Идемпотентен:
	// отзыв уже отозванной или несуществующей записи — не ошибка.
	RevokeRefreshToken(ctx context.Context, userID uuid.UUID, hash string, now time.Time) error
	// IsRefreshTokenActive — запись есть, не отозвана и не истекла на момент now.
	IsRefreshTokenActive(ctx context.Context, userID uuid.UUID, hash string, now time.Time) (bool, error)
	// RefreshTokenByHash возвращает запись в любом состоянии или ErrNotFound.
	RefreshTokenByHash(ctx context.Context, userID uuid.UUID, hash string) (*models.RefreshTokenRecord, error)
	// RotateRefreshToken в одной транзакции отзывает активную запись oldHash
	// и сохраняет next. Если старая запись к этому моменту не активна — ErrRevoked,
	// если её нет — ErrNotFound; в обоих случаях next не сохраняется.
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldHash string, next *models.RefreshTokenRecord, now time.Time) error
	// RevokeAllForUser отзывает все активные записи пользователя и возвращает их число.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// DeleteExpiredTokens удаляет записи, истёкшие раньше before, и возвращает их число.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// Storage задаёт контракт реляционного хранилища.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}

// RevocationRegistry — эфемерный реестр отозванных jti с автоматическим истечением.
type RevocationRegistry interface {
	// Revoke помечает (tokenType, jti) отозванным на ttl. ttl <= 0 — no-op.
	Revoke(ctx context.Context, jti string, tokenType models.TokenType, ttl time.Duration) error
	// IsRevoked — проверка существования метки.
	IsRevoked(ctx context.Context, jti string, tokenType models.TokenType) (bool, error)
}

// EventStorage — журнал событий безопасности.
type EventStorage interface {
	// SaveEvent добавляет событие в журнал.
	SaveEvent(ctx context.Context, event *models.SecurityEvent) error
}
