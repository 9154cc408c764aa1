package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/carelink-auth/internal/config"
	"github.com/pribylovaa/carelink-auth/internal/metrics"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

// IssuedToken — подписанный токен вместе с его jti и сроком жизни.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Issuer выпускает пары токенов и ведёт refresh-записи.
type Issuer struct {
	codec      *Codec
	users      storage.UserStorage
	tokens     storage.RefreshTokenStorage
	accessTTL  time.Duration
	refreshTTL time.Duration
	opts       options
}

// NewIssuer создаёт Issuer. TTL берутся из cfg.
func NewIssuer(codec *Codec, users storage.UserStorage, tokens storage.RefreshTokenStorage, cfg config.AuthConfig, opts ...Option) *Issuer {
	return &Issuer{
		codec:      codec,
		users:      users,
		tokens:     tokens,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		opts:       buildOptions(opts),
	}
}

// HashToken — ключ refresh-записи: sha256 от токена в base64url без паддинга.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// IssueAccessToken подписывает access-токен пользователя со свежим jti.
func (i *Issuer) IssueAccessToken(ctx context.Context, user *models.User) (IssuedToken, error) {
	const op = "service.issuer.IssueAccessToken"

	tok, err := i.mint(user, models.TokenAccess, i.accessTTL, i.opts.now().UTC())
	if err != nil {
		log.From(ctx).Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return IssuedToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return tok, nil
}

// IssueRefreshToken подписывает refresh-токен и сохраняет его запись.
// Токен возвращается только после успешной записи.
func (i *Issuer) IssueRefreshToken(ctx context.Context, user *models.User) (IssuedToken, error) {
	const op = "service.issuer.IssueRefreshToken"

	now := i.opts.now().UTC()

	tok, err := i.mint(user, models.TokenRefresh, i.refreshTTL, now)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("%s: %w", op, err)
	}

	sctx, cancel := i.opts.storeCtx(ctx)
	defer cancel()

	if err := i.tokens.InsertRefreshToken(sctx, record(user.ID, tok, now)); err != nil {
		log.From(ctx).Error("save_refresh_token_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("err", err.Error()),
		)
		return IssuedToken{}, unavailable(op, err)
	}

	return tok, nil
}

// IssuePair выпускает access и refresh для нового сеанса.
func (i *Issuer) IssuePair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.issuer.IssuePair"

	access, err := i.IssueAccessToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := i.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair(access, refresh), nil
}

// RotatePair меняет предъявленный refresh-токен на новую пару.
//
// Состояния записи (user_id, hash(presented)):
//   - нет записи — ErrTokenInvalid;
//   - запись отозвана — replay: все активные записи пользователя отзываются,
//     возвращается ErrReplayDetected;
//   - запись истекла — ErrTokenExpired;
//   - запись активна — в одной транзакции старая отзывается, новая сохраняется.
//
// Транзакция ротации заново проверяет активность: если конкурентный запрос
// успел отозвать запись, это тоже replay.
func (i *Issuer) RotatePair(ctx context.Context, old *models.TokenClaims, presented string) (*models.TokenPair, error) {
	const op = "service.issuer.RotatePair"

	lg := log.From(ctx)
	now := i.opts.now().UTC()
	hash := HashToken(presented)

	rec, err := i.lookup(ctx, old.Subject, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
				slog.String("user_id", old.Subject.String()),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
		}

		return nil, unavailable(op, err)
	}

	switch {
	case rec.Revoked():
		return nil, i.replay(ctx, op, old, now)
	case !rec.Active(now):
		lg.Info("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", old.Subject.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	user, err := i.userByID(ctx, old.Subject)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, unavailable(op, err)
	}

	if !user.Active() {
		lg.Warn("refresh_user_inactive",
			slog.String("op", op),
			slog.String("user_id", old.Subject.String()),
		)

		sctx, cancel := i.opts.storeCtx(ctx)
		defer cancel()

		if err := i.tokens.RevokeRefreshToken(sctx, old.Subject, hash, now); err != nil {
			return nil, unavailable(op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	access, err := i.mint(user, models.TokenAccess, i.accessTTL, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := i.mint(user, models.TokenRefresh, i.refreshTTL, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sctx, cancel := i.opts.storeCtx(ctx)
	defer cancel()

	err = i.tokens.RotateRefreshToken(sctx, user.ID, hash, record(user.ID, refresh, now), now)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrRevoked):
		return nil, i.replay(ctx, op, old, now)
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	default:
		return nil, unavailable(op, err)
	}

	lg.Debug("refresh_rotated",
		slog.String("user_id", user.ID.String()),
		slog.String("old_jti", old.JTI),
		slog.String("new_jti", refresh.JTI),
	)

	return pair(access, refresh), nil
}

// replay отзывает все активные refresh-записи пользователя.
// Сбой отзыва логируется; клиент всё равно получает ErrReplayDetected.
func (i *Issuer) replay(ctx context.Context, op string, old *models.TokenClaims, now time.Time) error {
	lg := log.From(ctx)
	metrics.ReplaysDetected.Inc()

	sctx, cancel := i.opts.storeCtx(ctx)
	defer cancel()

	n, err := i.tokens.RevokeAllForUser(sctx, old.Subject, now)
	if err != nil {
		lg.Error("replay_revoke_all_failed",
			slog.String("op", op),
			slog.String("user_id", old.Subject.String()),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, ErrReplayDetected)
	}

	lg.Warn("refresh_replay_detected",
		slog.String("op", op),
		slog.String("user_id", old.Subject.String()),
		slog.String("jti", old.JTI),
		slog.Int64("revoked", n),
	)

	return fmt.Errorf("%s: %w", op, ErrReplayDetected)
}

func (i *Issuer) lookup(ctx context.Context, userID uuid.UUID, hash string) (*models.RefreshTokenRecord, error) {
	sctx, cancel := i.opts.storeCtx(ctx)
	defer cancel()

	return i.tokens.RefreshTokenByHash(sctx, userID, hash)
}

func (i *Issuer) userByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	sctx, cancel := i.opts.storeCtx(ctx)
	defer cancel()

	return i.users.UserByID(sctx, id)
}

// mint подписывает токен типа typ со сроком now+ttl и новым jti.
func (i *Issuer) mint(user *models.User, typ models.TokenType, ttl time.Duration, now time.Time) (IssuedToken, error) {
	tc := &models.TokenClaims{
		Subject:   user.ID,
		Email:     user.Email,
		Roles:     user.Roles,
		OrgID:     user.OrgID,
		Type:      typ,
		JTI:       uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	signed, err := i.codec.Encode(tc)
	if err != nil {
		return IssuedToken{}, err
	}

	return IssuedToken{Token: signed, JTI: tc.JTI, ExpiresAt: tc.ExpiresAt}, nil
}

func record(userID uuid.UUID, tok IssuedToken, now time.Time) *models.RefreshTokenRecord {
	return &models.RefreshTokenRecord{
		UserID:    userID,
		TokenHash: HashToken(tok.Token),
		IssuedAt:  now,
		ExpiresAt: tok.ExpiresAt,
	}
}

func pair(access, refresh IssuedToken) *models.TokenPair {
	return &models.TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}
}
