package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/carelink-auth/internal/errors"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/pkg/log"
)

// Authorizer — решение AuthorizationGuard для запроса.
type Authorizer interface {
	Authorize(ctx context.Context, authHeader, requestedOrg string) (*models.IdentityContext, error)
}

type identityKey struct{}

// RequireAuth пропускает запрос дальше только с валидным access-токеном.
// orgParam — имя URL-параметра chi с запрошенной организацией; пустое — глобальный эндпоинт.
// IdentityContext кладётся в контекст запроса (см. IdentityFrom).
func RequireAuth(g Authorizer, orgParam string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var org string
			if orgParam != "" {
				org = chi.URLParam(r, orgParam)
			}

			id, err := g.Authorize(r.Context(), r.Header.Get("Authorization"), org)
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, id)
			ctx = log.With(ctx, "user_id", id.UserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom возвращает IdentityContext, положенный RequireAuth.
func IdentityFrom(ctx context.Context) (*models.IdentityContext, bool) {
	id, ok := ctx.Value(identityKey{}).(*models.IdentityContext)
	return id, ok && id != nil
}
