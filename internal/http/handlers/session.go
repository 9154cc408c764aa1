package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/carelink-auth/internal/errors"
	"github.com/pribylovaa/carelink-auth/internal/http/middleware"
	"github.com/pribylovaa/carelink-auth/internal/service"
)

type sessionResponse struct {
	UserID    string   `json:"user_id"`
	OrgID     string   `json:"org_id,omitempty"`
	Roles     []string `json:"roles"`
	TokenType string   `json:"token_type"`
}

// Session — GET /session и GET /orgs/{org_id}/session: IdentityContext вызывающего.
// Маршрут должен стоять за middleware.RequireAuth.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrAuthHeaderMissing)
		return
	}

	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    id.UserID.String(),
		OrgID:     id.OrgID,
		Roles:     roles,
		TokenType: string(id.TokenType),
	})
}

// bearerFromHeader достаёт токен из Authorization: Bearer; "" — если его нет.
func bearerFromHeader(r *http.Request) string {
	tok, err := service.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	return tok
}
