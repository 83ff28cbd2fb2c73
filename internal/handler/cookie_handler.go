package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wolfedu/membergate/internal/middleware"
	"github.com/wolfedu/membergate/internal/model"
	"github.com/wolfedu/membergate/internal/vault"
)

// VaultServiceInterface はCookieハンドラーが必要とするサービスインターフェース。
type VaultServiceInterface interface {
	StoreCookies(ctx context.Context, email string, cookies []vault.CookieInput, domain string) (int, error)
	GetCookies(ctx context.Context, email, domain string) ([]vault.CookieDescriptor, error)
	DeleteCookies(ctx context.Context, email, domain string) error
}

// CookieHandler はCookie保管のHTTPハンドラー。
// 対象emailは認証済みアイデンティティから決まり、リクエストでは指定できない。
type CookieHandler struct {
	service VaultServiceInterface
}

// NewCookieHandler はCookieHandlerを生成する。
func NewCookieHandler(service VaultServiceInterface) *CookieHandler {
	return &CookieHandler{
		service: service,
	}
}

// storeCookiesRequest はCookie保存リクエストのボディ。
type storeCookiesRequest struct {
	Cookies []vault.CookieInput `json:"cookies"`
	Domain  string              `json:"domain"`
}

// StoreCookies は認証済みアカウントのCookie一式を保存する。
// POST /api/cookies
func (h *CookieHandler) StoreCookies(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidCredentialsError())
		return
	}

	var req storeCookiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidPayloadError("リクエストボディのJSONが不正です"))
		return
	}

	count, err := h.service.StoreCookies(r.Context(), identity.Email, req.Cookies, req.Domain)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"stored": count,
	})
}

// GetCookies は認証済みアカウントのCookie一式を返す。
// GET /api/cookies?domain=xxx
func (h *CookieHandler) GetCookies(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidCredentialsError())
		return
	}

	cookies, err := h.service.GetCookies(r.Context(), identity.Email, r.URL.Query().Get("domain"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"cookies": cookies,
	})
}

// DeleteCookies は認証済みアカウントのCookieを削除する。
// domainクエリ指定時はそのドメイン分のみ、未指定時は全ドメイン分を削除する。
// DELETE /api/cookies?domain=xxx
func (h *CookieHandler) DeleteCookies(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidCredentialsError())
		return
	}

	if err := h.service.DeleteCookies(r.Context(), identity.Email, r.URL.Query().Get("domain")); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
