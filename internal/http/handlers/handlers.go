package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/service"
)

// Auth — use cases, которые обслуживают публичные эндпоинты.
type Auth interface {
	Login(ctx context.Context, email, password string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
}

// Handlers агрегирует зависимости HTTP-обработчиков.
type Handlers struct {
	auth     Auth
	validate *validator.Validate
	ready    *atomic.Bool
}

// New создаёт Handlers. ready — флаг готовности для /healthz; nil — всегда готов.
func New(auth Auth, ready *atomic.Bool) *Handlers {
	if ready == nil {
		ready = &atomic.Bool{}
		ready.Store(true)
	}

	return &Handlers{
		auth:     auth,
		validate: validator.New(),
		ready:    ready,
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: неизвестные поля и хвост после объекта
// запрещены, затем структура проверяется тегами validate.
func (h *Handlers) decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", service.ErrInvalidRequest)
	}

	if err := h.validate.Struct(value); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}

	return nil
}
