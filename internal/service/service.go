// service содержит auth-ядро: проверку паролей, выпуск и ротацию токенов,
// обнаружение replay, logout с отзывом access-токена и AuthorizationGuard.
//
// Основные аспекты:
//   - Service, Issuer и Guard не хранят состояние запроса; корректность
//     держится на транзакциях PostgreSQL и TTL-ключах Redis, поэтому экземпляры
//     безопасны для конкурентного использования.
//   - Каждое обращение к хранилищу ограничено таймаутом; недоступность
//     хранилища возвращается как ErrServiceUnavailable.
//   - Ошибки из errors.go маппятся транспортом по Code(err).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pribylovaa/carelink-auth/internal/config"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

// Option настраивает Service, Issuer и Guard.
type Option func(*options)

type options struct {
	now          func() time.Time
	events       storage.EventStorage
	storeTimeout time.Duration
	failClosed   bool
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEvents включает запись событий безопасности в журнал.
func WithEvents(events storage.EventStorage) Option {
	return func(o *options) { o.events = events }
}

// WithStoreTimeout ограничивает каждое обращение к хранилищу.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) { o.storeTimeout = d }
}

// WithRevocationFailClosed: при недоступном реестре отзыва Guard отказывает
// с ErrServiceUnavailable вместо пропуска проверки.
func WithRevocationFailClosed(v bool) Option {
	return func(o *options) { o.failClosed = v }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	return o
}

// storeCtx ограничивает обращение к хранилищу таймаутом.
func (o options) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.storeTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, o.storeTimeout)
}

// unavailable оборачивает ошибку хранилища: недоступность и таймаут
// дают ErrServiceUnavailable, остальное остаётся внутренней ошибкой.
func unavailable(op string, err error) error {
	if errors.Is(err, storage.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrServiceUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// Service реализует login/refresh/logout.
type Service struct {
	users    storage.UserStorage
	tokens   storage.RefreshTokenStorage
	registry storage.RevocationRegistry
	codec    *Codec
	issuer   *Issuer
	verifier *CredentialVerifier
	opts     options
}

// New создаёт Service. Кодек общий с Guard, чтобы секрет и алгоритм совпадали.
func New(st storage.Storage, registry storage.RevocationRegistry, codec *Codec, cfg config.AuthConfig, opts ...Option) *Service {
	o := buildOptions(opts)

	return &Service{
		users:    st,
		tokens:   st,
		registry: registry,
		codec:    codec,
		issuer:   NewIssuer(codec, st, st, cfg, opts...),
		verifier: NewCredentialVerifier(cfg.PasswordCost),
		opts:     o,
	}
}

// record пишет событие безопасности в лог и, если журнал настроен, в журнал.
// Ошибка журнала не влияет на результат запроса.
func (s *Service) record(ctx context.Context, kind models.SecurityEventKind, userID, jti, detail string) {
	ev := &models.SecurityEvent{
		ID:        ulid.Make().String(),
		Kind:      kind,
		UserID:    userID,
		JTI:       jti,
		RequestID: log.RequestID(ctx),
		Detail:    detail,
		At:        s.opts.now().UTC(),
	}

	lg := log.From(ctx)
	lg.Info("security_event",
		slog.String("kind", string(kind)),
		slog.String("user_id", userID),
		slog.String("jti", jti),
		slog.String("detail", detail),
	)

	if s.opts.events == nil {
		return
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	defer cancel()

	if err := s.opts.events.SaveEvent(sctx, ev); err != nil {
		lg.Warn("security_event_save_failed",
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
	}
}
