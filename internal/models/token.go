package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenType — назначение подписанного токена.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Valid проверяет, что тип известен.
func (t TokenType) Valid() bool {
	return t == TokenAccess || t == TokenRefresh
}

// TokenClaims — полезная нагрузка подписанного токена.
//
// Инвариант: Type должен совпадать с ожиданием эндпоинта; refresh-токен
// никогда не принимается там, где нужен access, и наоборот.
type TokenClaims struct {
	Subject   uuid.UUID
	Email     string
	Roles     []string
	OrgID     string
	Type      TokenType
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
