package service

import (
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier хэширует и проверяет пароли (bcrypt, соль внутри хэша).
type CredentialVerifier struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewCredentialVerifier создаёт верификатор с заданной стоимостью bcrypt.
// Значение вне [bcrypt.MinCost, bcrypt.MaxCost] заменяется на bcrypt.DefaultCost.
func NewCredentialVerifier(cost int) *CredentialVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &CredentialVerifier{cost: cost}
}

// Hash возвращает bcrypt-хэш пароля.
func (v *CredentialVerifier) Hash(password string) (string, error) {
	const op = "service.password.Hash"

	b, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(b), nil
}

// Verify сравнивает пароль с хэшем. Повреждённый или чужой формат хэша — false, не ошибка.
func (v *CredentialVerifier) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Burn тратит столько же CPU, сколько настоящая проверка, для входа
// с неизвестным e-mail: время ответа не выдаёт существование учётной записи.
func (v *CredentialVerifier) Burn(password string) {
	v.dummyOnce.Do(func() {
		seed := make([]byte, 16)
		_, _ = rand.Read(seed)
		v.dummy, _ = bcrypt.GenerateFromPassword(seed, v.cost)
	})

	_ = bcrypt.CompareHashAndPassword(v.dummy, []byte(password))
}
