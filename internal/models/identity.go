package models

import "github.com/google/uuid"

// IdentityContext — результат успешной авторизации запроса.
// Живёт в рамках одного запроса и принадлежит вызывающему обработчику.
type IdentityContext struct {
	UserID    uuid.UUID
	OrgID     string
	Roles     []string
	TokenType TokenType
}

// HasRole сообщает, есть ли у вызывающего роль role.
func (i *IdentityContext) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}

	return false
}
