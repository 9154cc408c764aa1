package service

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/carelink-auth/internal/metrics"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

type guardDeps struct {
	clk   *clock
	reg   *memRegistry
	codec *Codec
	user  *models.User
}

func newGuardDeps(t *testing.T) *guardDeps {
	t.Helper()

	d := &guardDeps{clk: newClock(), user: newTestUser(t)}
	d.reg = newMemRegistry(d.clk.Now)
	d.codec = newTestCodec(t, d.clk.Now)

	return d
}

func (d *guardDeps) guard(opts ...Option) *Guard {
	return NewGuard(d.codec, d.reg, NewOrgScope("super_admin"), opts...)
}

func (d *guardDeps) bearer(t *testing.T, u *models.User, typ models.TokenType) string {
	t.Helper()
	return "Bearer " + sign(t, d.codec, u, typ, d.clk.Now(), time.Minute)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	for _, h := range []string{"Bearer abc", "bearer abc", "BEARER   abc ", "  Bearer abc"} {
		tok, err := BearerToken(h)
		require.NoError(t, err, h)
		require.Equal(t, "abc", tok)
	}

	for _, h := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, err := BearerToken(h)
		require.ErrorIs(t, err, ErrAuthHeaderMissing, h)
	}
}

func TestGuard_Authorize_OK(t *testing.T) {
	t.Parallel()

	d := newGuardDeps(t)

	id, err := d.guard().Authorize(context.Background(), d.bearer(t, d.user, models.TokenAccess), "org-a")
	require.NoError(t, err)
	require.Equal(t, &models.IdentityContext{
		UserID:    d.user.ID,
		OrgID:     "org-a",
		Roles:     []string{"clinician"},
		TokenType: models.TokenAccess,
	}, id)
}

// Без t.Parallel: сравнивает глобальные счётчики решений.
func TestGuard_DecisionMetrics(t *testing.T) {
	d := newGuardDeps(t)
	g := d.guard()
	bearer := d.bearer(t, d.user, models.TokenAccess)

	authorized := testutil.ToFloat64(metrics.GuardDecisions.WithLabelValues("authorized"))
	forbidden := testutil.ToFloat64(metrics.GuardDecisions.WithLabelValues(CodeForbidden))

	_, err := g.Authorize(context.Background(), bearer, "org-a")
	require.NoError(t, err)
	_, err = g.Authorize(context.Background(), bearer, "org-b")
	require.ErrorIs(t, err, ErrForbidden)

	require.Equal(t, authorized+1, testutil.ToFloat64(metrics.GuardDecisions.WithLabelValues("authorized")))
	require.Equal(t, forbidden+1, testutil.ToFloat64(metrics.GuardDecisions.WithLabelValues(CodeForbidden)))
}

func TestGuard_Authorize_Rejections(t *testing.T) {
	t.Parallel()

	d := newGuardDeps(t)
	g := d.guard()

	revokedTok := sign(t, d.codec, d.user, models.TokenAccess, d.clk.Now(), time.Minute)
	revokedClaims, err := d.codec.Decode(revokedTok)
	require.NoError(t, err)
	require.NoError(t, d.reg.Revoke(context.Background(), revokedClaims.JTI, models.TokenAccess, time.Minute))

	expired := "Bearer " + sign(t, d.codec, d.user, models.TokenAccess, d.clk.Now().Add(-time.Hour), time.Minute)

	tests := []struct {
		name   string
		header string
		org    string
		want   error
	}{
		{"no_header", "", "", ErrAuthHeaderMissing},
		{"not_bearer", "Basic dXNlcjpwYXNz", "", ErrAuthHeaderMissing},
		{"garbage", "Bearer garbage", "", ErrTokenInvalid},
		{"expired", expired, "", ErrTokenExpired},
		{"refresh_token", d.bearer(t, d.user, models.TokenRefresh), "", ErrTokenInvalid},
		{"revoked", "Bearer " + revokedTok, "", ErrTokenRevoked},
		{"other_org", d.bearer(t, d.user, models.TokenAccess), "org-b", ErrForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			id, err := g.Authorize(context.Background(), tc.header, tc.org)
			require.Nil(t, id)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGuard_Authorize_SuperRoleCrossesOrgs(t *testing.T) {
	t.Parallel()

	d := newGuardDeps(t)
	admin := *d.user
	admin.Roles = []string{"super_admin"}

	id, err := d.guard().Authorize(context.Background(), d.bearer(t, &admin, models.TokenAccess), "org-b")
	require.NoError(t, err)
	require.Equal(t, "org-a", id.OrgID)
}

func TestGuard_RegistryUnavailable_FailOpen(t *testing.T) {
	t.Parallel()

	d := newGuardDeps(t)
	d.reg.setErr(fmt.Errorf("redis: %w", storage.ErrUnavailable))

	h := &capHandler{}
	ctx := log.Into(context.Background(), slog.New(h))

	id, err := d.guard().Authorize(ctx, d.bearer(t, d.user, models.TokenAccess), "")
	require.NoError(t, err)
	require.NotNil(t, id)

	lvl, ok := h.level("revocation_check_unavailable")
	require.True(t, ok)
	require.Equal(t, slog.LevelWarn, lvl)
}

func TestGuard_RegistryUnavailable_FailClosed(t *testing.T) {
	t.Parallel()

	d := newGuardDeps(t)
	d.reg.setErr(fmt.Errorf("redis: %w", storage.ErrUnavailable))

	h := &capHandler{}
	ctx := log.Into(context.Background(), slog.New(h))

	id, err := d.guard(WithRevocationFailClosed(true)).Authorize(ctx, d.bearer(t, d.user, models.TokenAccess), "")
	require.Nil(t, id)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	require.Equal(t, CodeServiceUnavailable, Code(err))

	_, ok := h.level("authorize_rejected")
	require.True(t, ok)
}

func TestGuard_RevocationExpiresWithToken(t *testing.T) {
	t.Parallel()

	d := newGuardDeps(t)
	g := d.guard()

	tok := sign(t, d.codec, d.user, models.TokenAccess, d.clk.Now(), time.Minute)
	cl, err := d.codec.Decode(tok)
	require.NoError(t, err)

	// Двойной отзыв не ошибка.
	require.NoError(t, d.reg.Revoke(context.Background(), cl.JTI, models.TokenAccess, d.codec.AcceptedUntil(cl).Sub(d.clk.Now())))
	require.NoError(t, d.reg.Revoke(context.Background(), cl.JTI, models.TokenAccess, d.codec.AcceptedUntil(cl).Sub(d.clk.Now())))

	_, err = g.Authorize(context.Background(), "Bearer "+tok, "")
	require.ErrorIs(t, err, ErrTokenRevoked)

	d.clk.Advance(2 * time.Minute)
	_, err = g.Authorize(context.Background(), "Bearer "+tok, "")
	require.ErrorIs(t, err, ErrTokenExpired)
}
