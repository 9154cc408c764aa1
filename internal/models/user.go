package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus — статус учётной записи.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// User — учётная запись, которой владеет сервис управления пользователями.
// Auth-ядро только читает её: пароль, роли и основную организацию.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Status       UserStatus
	Roles        []string
	OrgID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active сообщает, может ли пользователь аутентифицироваться.
func (u *User) Active() bool {
	return u != nil && u.Status == UserActive
}
