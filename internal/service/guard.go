package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pribylovaa/carelink-auth/internal/metrics"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

// guardState — этап проверки запроса, на котором принято решение.
type guardState string

const (
	stateNoToken           guardState = "no_token"
	stateDecoded           guardState = "decoded"
	stateTypeChecked       guardState = "type_checked"
	stateRevocationChecked guardState = "revocation_checked"
	stateAuthorized        guardState = "authorized"
)

// Guard решает, кто вызывает и может ли он действовать в запрошенной организации.
//
// Этапы: NoToken → Decoded → TypeChecked → RevocationChecked → Authorized;
// на любом этапе запрос может быть отклонён типизированной ошибкой.
type Guard struct {
	codec    *Codec
	registry storage.RevocationRegistry
	scope    *OrgScope
	opts     options
}

// NewGuard создаёт Guard. По умолчанию недоступный реестр отзыва не блокирует
// запрос (fail-open); WithRevocationFailClosed(true) меняет поведение.
func NewGuard(codec *Codec, registry storage.RevocationRegistry, scope *OrgScope, opts ...Option) *Guard {
	return &Guard{
		codec:    codec,
		registry: registry,
		scope:    scope,
		opts:     buildOptions(opts),
	}
}

// BearerToken извлекает токен из значения заголовка Authorization.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrAuthHeaderMissing
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrAuthHeaderMissing
	}

	return token, nil
}

// Authorize проверяет access-токен из заголовка Authorization против
// запрошенной организации (пустая — глобальный эндпоинт).
func (g *Guard) Authorize(ctx context.Context, authHeader, requestedOrg string) (id *models.IdentityContext, err error) {
	const op = "service.guard.Authorize"

	state := stateNoToken
	defer func() {
		result := string(state)
		if err != nil {
			result = Code(err)
			log.From(ctx).Debug("authorize_rejected",
				slog.String("state", string(state)),
				slog.String("code", result),
				slog.String("requested_org", requestedOrg),
			)
		}
		metrics.GuardDecisions.WithLabelValues(result).Inc()
	}()

	token, err := BearerToken(authHeader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claims, err := g.codec.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	state = stateDecoded

	if claims.Type != models.TokenAccess {
		return nil, fmt.Errorf("%s: %w: expected access token", op, ErrTokenInvalid)
	}
	state = stateTypeChecked

	if err := g.checkRevoked(ctx, claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	state = stateRevocationChecked

	if !g.scope.Check(claims.OrgID, requestedOrg, claims.Roles) {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	state = stateAuthorized

	return &models.IdentityContext{
		UserID:    claims.Subject,
		OrgID:     claims.OrgID,
		Roles:     claims.Roles,
		TokenType: claims.Type,
	}, nil
}

// checkRevoked сверяет jti с реестром отзыва.
func (g *Guard) checkRevoked(ctx context.Context, claims *models.TokenClaims) error {
	sctx, cancel := g.opts.storeCtx(ctx)
	defer cancel()

	revoked, err := g.registry.IsRevoked(sctx, claims.JTI, models.TokenAccess)
	if err != nil {
		metrics.RevocationUnavailable.Inc()

		if g.opts.failClosed {
			log.From(ctx).Error("revocation_check_unavailable",
				slog.String("jti", claims.JTI),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}

		log.From(ctx).Warn("revocation_check_unavailable",
			slog.String("jti", claims.JTI),
			slog.Bool("fail_open", true),
			slog.String("err", err.Error()),
		)
		return nil
	}

	if revoked {
		return ErrTokenRevoked
	}

	return nil
}
