package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/carelink-auth/internal/errors"
	"github.com/pribylovaa/carelink-auth/internal/models"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	Password string `json:"password" validate:"required,max=1024"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=8192"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=8192"`
	AccessToken  string `json:"access_token,omitempty" validate:"max=8192"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func tokenResponseFrom(p *models.TokenPair, now time.Time) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(p.AccessExpiresAt.Sub(now).Round(time.Second) / time.Second),
		AccessExpiresAt:  p.AccessExpiresAt.UTC(),
		RefreshExpiresAt: p.RefreshExpiresAt.UTC(),
	}
}

// Login — POST /login {email, password}.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := h.decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponseFrom(pair, time.Now()))
}

// Refresh — POST /refresh {refresh_token}.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := h.decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponseFrom(pair, time.Now()))
}

// Logout — POST /logout {refresh_token, access_token?}. Успех — 204.
// access_token можно передать и заголовком Authorization: Bearer.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	if err := h.decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	access := in.AccessToken
	if access == "" {
		access = bearerFromHeader(r)
	}

	if err := h.auth.Logout(r.Context(), in.RefreshToken, access); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
