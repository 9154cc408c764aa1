package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/carelink-auth/internal/config"
	"github.com/pribylovaa/carelink-auth/internal/models"
)

// claims — JWT-представление models.TokenClaims.
// sub — ID пользователя, jti — уникальный идентификатор токена.
type claims struct {
	Email     string           `json:"email,omitempty"`
	Roles     []string         `json:"roles,omitempty"`
	OrgID     string           `json:"org_id,omitempty"`
	TokenType models.TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec подписывает и разбирает токены общим симметричным секретом.
// Состояния не хранит; отзыв и тип токена проверяет вызывающий.
type Codec struct {
	secret   []byte
	method   jwt.SigningMethod
	issuer   string
	audience []string
	leeway   time.Duration
	now      func() time.Time
}

// NewCodec собирает Codec из конфигурации. now == nil — time.Now.
func NewCodec(cfg config.AuthConfig, now func() time.Time) (*Codec, error) {
	const op = "service.codec.NewCodec"

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%s: empty secret", op)
	}

	method, ok := jwt.GetSigningMethod(cfg.SigningAlg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported signing algorithm %q", op, cfg.SigningAlg)
	}

	if now == nil {
		now = time.Now
	}

	return &Codec{
		secret:   []byte(cfg.JWTSecret),
		method:   method,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		now:      now,
	}, nil
}

// AcceptedUntil — момент, до которого Decode ещё принимает токен: exp + leeway.
// Метка отзыва должна жить не меньше.
func (c *Codec) AcceptedUntil(tc *models.TokenClaims) time.Time {
	return tc.ExpiresAt.Add(c.leeway)
}

// Encode подписывает claims. Issuer и audience берутся из конфигурации кодека.
func (c *Codec) Encode(tc *models.TokenClaims) (string, error) {
	const op = "service.codec.Encode"

	if !tc.Type.Valid() || tc.JTI == "" || tc.Subject == uuid.Nil {
		return "", fmt.Errorf("%s: incomplete claims", op)
	}

	cl := claims{
		Email:     tc.Email,
		Roles:     tc.Roles,
		OrgID:     tc.OrgID,
		TokenType: tc.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   tc.Subject.String(),
			Audience:  jwt.ClaimStrings(c.audience),
			ExpiresAt: jwt.NewNumericDate(tc.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(tc.IssuedAt),
			ID:        tc.JTI,
		},
	}

	signed, err := jwt.NewWithClaims(c.method, cl).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Decode проверяет подпись, алгоритм, issuer, audience и сроки.
// Истёкший токен — ErrTokenExpired, любая другая проблема — ErrTokenInvalid.
func (c *Codec) Decode(token string) (*models.TokenClaims, error) {
	const op = "service.codec.Decode"

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience...),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	var cl claims
	_, err := parser.ParseWithClaims(token, &cl, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w: %v", op, ErrTokenInvalid, err)
	}

	sub, err := uuid.Parse(cl.Subject)
	if err != nil || cl.ID == "" || !cl.TokenType.Valid() {
		return nil, fmt.Errorf("%s: %w: malformed claims", op, ErrTokenInvalid)
	}

	out := &models.TokenClaims{
		Subject: sub,
		Email:   cl.Email,
		Roles:   cl.Roles,
		OrgID:   cl.OrgID,
		Type:    cl.TokenType,
		JTI:     cl.ID,
	}
	if cl.ExpiresAt != nil {
		out.ExpiresAt = cl.ExpiresAt.Time
	}
	if cl.IssuedAt != nil {
		out.IssuedAt = cl.IssuedAt.Time
	}

	return out, nil
}
