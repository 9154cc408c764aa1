package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

// memStore — потокобезопасное in-memory хранилище для сценарных тестов.
// Семантика повторяет postgres-реализацию.
type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*models.User
	tokens map[string]*models.RefreshTokenRecord
}

func newMemStore(users ...*models.User) *memStore {
	s := &memStore{
		users:  make(map[uuid.UUID]*models.User),
		tokens: make(map[string]*models.RefreshTokenRecord),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}

	return s
}

func tokenKey(userID uuid.UUID, hash string) string {
	return userID.String() + "/" + hash
}

func (s *memStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}

	return nil, storage.ErrNotFound
}

func (s *memStore) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u

	return &cp, nil
}

func (s *memStore) setUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *memStore) InsertRefreshToken(_ context.Context, rec *models.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rec.UserID]; !ok {
		return storage.ErrNotFound
	}
	cp := *rec
	cp.RevokedAt = nil
	s.tokens[tokenKey(rec.UserID, rec.TokenHash)] = &cp

	return nil
}

func (s *memStore) RevokeRefreshToken(_ context.Context, userID uuid.UUID, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.tokens[tokenKey(userID, hash)]; ok && rec.RevokedAt == nil {
		at := now
		rec.RevokedAt = &at
	}

	return nil
}

func (s *memStore) IsRefreshTokenActive(_ context.Context, userID uuid.UUID, hash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tokens[tokenKey(userID, hash)].Active(now), nil
}

func (s *memStore) RefreshTokenByHash(_ context.Context, userID uuid.UUID, hash string) (*models.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[tokenKey(userID, hash)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec

	return &cp, nil
}

func (s *memStore) RotateRefreshToken(_ context.Context, userID uuid.UUID, oldHash string, next *models.RefreshTokenRecord, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[tokenKey(userID, oldHash)]
	if !ok {
		return storage.ErrNotFound
	}
	if !rec.Active(now) {
		return storage.ErrRevoked
	}

	at := now
	rec.RevokedAt = &at
	cp := *next
	s.tokens[tokenKey(next.UserID, next.TokenHash)] = &cp

	return nil
}

func (s *memStore) RevokeAllForUser(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.tokens {
		if rec.UserID == userID && rec.Active(now) {
			at := now
			rec.RevokedAt = &at
			n++
		}
	}

	return n, nil
}

func (s *memStore) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, rec := range s.tokens {
		if rec.ExpiresAt.Before(before) {
			delete(s.tokens, k)
			n++
		}
	}

	return n, nil
}

func (s *memStore) active(userID uuid.UUID, token string, now time.Time) bool {
	ok, _ := s.IsRefreshTokenActive(context.Background(), userID, HashToken(token), now)
	return ok
}

func (s *memStore) Close() {}

// memRegistry — реестр отзыва с истечением по часам теста.
type memRegistry struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
	err     error
}

func newMemRegistry(now func() time.Time) *memRegistry {
	return &memRegistry{now: now, entries: make(map[string]time.Time)}
}

func (r *memRegistry) Revoke(_ context.Context, jti string, tokenType models.TokenType, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if ttl <= 0 {
		return nil
	}
	r.entries[string(tokenType)+":"+jti] = r.now().Add(ttl)

	return nil
}

func (r *memRegistry) IsRevoked(_ context.Context, jti string, tokenType models.TokenType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return false, r.err
	}
	exp, ok := r.entries[string(tokenType)+":"+jti]

	return ok && r.now().Before(exp), nil
}

func (r *memRegistry) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// memEvents собирает события журнала.
type memEvents struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (e *memEvents) SaveEvent(_ context.Context, ev *models.SecurityEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, *ev)

	return nil
}

func (e *memEvents) kinds() []models.SecurityEventKind {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.SecurityEventKind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}

	return out
}

// clock — управляемые часы теста.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// capHandler собирает сообщения slog для проверок.
type capHandler struct {
	mu   sync.Mutex
	msgs []string
	lvls []slog.Level
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, r.Message)
	h.lvls = append(h.lvls, r.Level)
	return nil
}

func (h *capHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capHandler) WithGroup(string) slog.Handler      { return h }

// level возвращает уровень первого сообщения msg и признак наличия.
func (h *capHandler) level(msg string) (slog.Level, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, m := range h.msgs {
		if m == msg {
			return h.lvls[i], true
		}
	}

	return 0, false
}

var (
	_ storage.Storage            = (*memStore)(nil)
	_ storage.RevocationRegistry = (*memRegistry)(nil)
	_ storage.EventStorage       = (*memEvents)(nil)
)
