package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/pribylovaa/carelink-auth/internal/metrics"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/storage"
	"github.com/pribylovaa/carelink-auth/pkg/redact"
)

// Login выполняет вход по e-mail и паролю и открывает новый сеанс.
// Неизвестный e-mail, неверный пароль и заблокированный пользователь
// неразличимы для клиента: все дают ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (pair *models.TokenPair, err error) {
	const op = "service.auth.Login"

	defer func() { observe("login", err) }()

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil || password == "" {
		s.verifier.Burn(password)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	user, err := s.users.UserByEmail(sctx, normEmail)
	cancel()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.verifier.Burn(password)
			lg.Info("login_unknown_email", slog.String("email", redact.Email(normEmail)))
			s.record(ctx, models.EventLoginFailed, "", "", "unknown_email")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		lg.Error("user_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, unavailable(op, err)
	}

	if !s.verifier.Verify(password, user.PasswordHash) {
		s.record(ctx, models.EventLoginFailed, user.ID.String(), "", "bad_password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.Active() {
		s.record(ctx, models.EventLoginFailed, user.ID.String(), "", "user_"+string(user.Status))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err = s.issuer.IssuePair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.EventLoginSucceeded, user.ID.String(), "", "")

	return pair, nil
}

// Refresh обменивает refresh-токен на новую пару (ротация).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair *models.TokenPair, err error) {
	const op = "service.auth.Refresh"

	defer func() { observe("refresh", err) }()

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}

	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if claims.Type != models.TokenRefresh {
		return nil, fmt.Errorf("%s: %w: expected refresh token", op, ErrTokenInvalid)
	}

	pair, err = s.issuer.RotatePair(ctx, claims, refreshToken)
	if err != nil {
		if errors.Is(err, ErrReplayDetected) {
			s.record(ctx, models.EventReplayDetected, claims.Subject.String(), claims.JTI, "")
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.EventRefreshRotated, claims.Subject.String(), claims.JTI, "")

	return pair, nil
}

// Logout завершает сеанс: отзывает refresh-запись и, если передан
// access-токен, заносит его jti в реестр отзыва до конца окна приёма
// кодеком (exp + leeway).
//
// Оба токена проверяются до любых изменений. Истёкший токен пропускается:
// отзывать нечего. Токены разных пользователей — ErrTokenInvalid.
func (s *Service) Logout(ctx context.Context, refreshToken, accessToken string) (err error) {
	const op = "service.auth.Logout"

	defer func() { observe("logout", err) }()

	rc, err := s.decodeForLogout(refreshToken, models.TokenRefresh)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var ac *models.TokenClaims
	if accessToken != "" {
		ac, err = s.decodeForLogout(accessToken, models.TokenAccess)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if rc != nil && ac != nil && rc.Subject != ac.Subject {
		return fmt.Errorf("%s: %w: subject mismatch", op, ErrTokenInvalid)
	}

	now := s.opts.now().UTC()

	if rc != nil {
		sctx, cancel := s.opts.storeCtx(ctx)
		err := s.tokens.RevokeRefreshToken(sctx, rc.Subject, HashToken(refreshToken), now)
		cancel()
		if err != nil {
			return unavailable(op, err)
		}
	}

	if ac != nil {
		sctx, cancel := s.opts.storeCtx(ctx)
		err := s.registry.Revoke(sctx, ac.JTI, models.TokenAccess, s.codec.AcceptedUntil(ac).Sub(now))
		cancel()
		if err != nil {
			log.From(ctx).Error("access_revoke_failed",
				slog.String("op", op),
				slog.String("jti", ac.JTI),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("%s: %w: %w", op, ErrServiceUnavailable, err)
		}
	}

	switch {
	case rc != nil:
		s.record(ctx, models.EventLogout, rc.Subject.String(), rc.JTI, "")
	case ac != nil:
		s.record(ctx, models.EventLogout, ac.Subject.String(), ac.JTI, "")
	}

	return nil
}

// decodeForLogout разбирает токен ожидаемого типа. Истёкший — (nil, nil).
func (s *Service) decodeForLogout(token string, want models.TokenType) (*models.TokenClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty %s token", ErrTokenInvalid, want)
	}

	claims, err := s.codec.Decode(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, nil
		}

		return nil, err
	}

	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, want)
	}

	return claims, nil
}

// observe фиксирует исход операции в метриках.
func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = Code(err)
	}

	metrics.AuthOutcomes.WithLabelValues(op, result).Inc()
}

// validateEmail обрезает пробелы, проверяет формат и приводит к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: empty email", op)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: malformed email", op)
	}

	return strings.ToLower(email), nil
}
