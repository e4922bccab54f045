package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/logger"
	"github.com/keyfold/keyfold/internal/model"
	"github.com/keyfold/keyfold/internal/service"
)

// Auth exposes the sign-in, refresh and sign-out operations over JSON.
type Auth struct {
	auth           *service.Auth
	contextManager model.ContextManager
	logger         *logger.Logger
}

func NewAuth(auth *service.Auth, contextManager model.ContextManager, l *logger.Logger) *Auth {
	return &Auth{
		auth:           auth,
		contextManager: contextManager,
		logger:         l,
	}
}

type profilePayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type credentialsResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        uuid.UUID `json:"session_id"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

func newCredentialsResponse(creds service.Credentials) credentialsResponse {
	return credentialsResponse{
		AccessToken:      creds.AccessToken,
		RefreshToken:     creds.RefreshToken,
		SessionID:        creds.Session.ID,
		SessionExpiresAt: creds.Session.ExpiresAt,
	}
}

type signInCredentialRequest struct {
	Provider          string         `json:"provider"`
	ExternalAccountID string         `json:"external_account_id"`
	Profile           profilePayload `json:"profile"`
}

// SignInWithCredential handles POST /v1/signin/credential.
func (h *Auth) SignInWithCredential(w http.ResponseWriter, r *http.Request) {
	var req signInCredentialRequest
	if err := decodeJSON(r, &req); err != nil || req.Provider == "" || req.ExternalAccountID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	creds, err := h.auth.SignInWithCredential(r.Context(), req.Provider, req.ExternalAccountID, model.Profile{
		Name:  req.Profile.Name,
		Email: req.Profile.Email,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newCredentialsResponse(creds))
}

type beginProviderRequest struct {
	Provider string `json:"provider"`
}

type beginProviderResponse struct {
	Signature string    `json:"signature"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BeginProviderSignIn handles POST /v1/signin/provider/begin.
func (h *Auth) BeginProviderSignIn(w http.ResponseWriter, r *http.Request) {
	var req beginProviderRequest
	if err := decodeJSON(r, &req); err != nil || req.Provider == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	verifier, err := h.auth.BeginProviderSignIn(r.Context(), req.Provider)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, beginProviderResponse{
		Signature: verifier.Signature,
		ExpiresAt: verifier.ExpiresAt,
	})
}

type completeProviderRequest struct {
	Provider          string         `json:"provider"`
	ExternalAccountID string         `json:"external_account_id"`
	Profile           profilePayload `json:"profile"`
	Signature         string         `json:"signature"`
}

type completeProviderResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Code      string    `json:"code"`
}

// CompleteProviderSignIn handles POST /v1/signin/provider/complete.
func (h *Auth) CompleteProviderSignIn(w http.ResponseWriter, r *http.Request) {
	var req completeProviderRequest
	if err := decodeJSON(r, &req); err != nil || req.Provider == "" || req.ExternalAccountID == "" || req.Signature == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	completion, err := h.auth.CompleteProviderSignIn(r.Context(), req.Provider, req.ExternalAccountID, model.Profile{
		Name:  req.Profile.Name,
		Email: req.Profile.Email,
	}, req.Signature)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, completeProviderResponse{
		AccountID: completion.Account.ID,
		Code:      completion.Code,
	})
}

type exchangeCodeRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Code      string    `json:"code"`
}

// ExchangeCode handles POST /v1/signin/code.
func (h *Auth) ExchangeCode(w http.ResponseWriter, r *http.Request) {
	var req exchangeCodeRequest
	if err := decodeJSON(r, &req); err != nil || req.AccountID == uuid.Nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	creds, err := h.auth.ExchangeCode(r.Context(), req.AccountID, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newCredentialsResponse(creds))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /v1/token/refresh.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	creds, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newCredentialsResponse(creds))
}

// SignOut handles POST /v1/signout. The session comes from the access
// token, not the body, so a caller can only sign out itself.
func (h *Auth) SignOut(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := h.contextManager.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: credentialMessage})
		return
	}

	if err := h.auth.SignOut(r.Context(), sessionID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InvalidateAllSessions handles POST /v1/sessions/invalidate.
func (h *Auth) InvalidateAllSessions(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.contextManager.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: credentialMessage})
		return
	}

	if err := h.auth.InvalidateAllSessions(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
