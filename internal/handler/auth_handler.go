// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/wolfedu/membergate/internal/auth"
	"github.com/wolfedu/membergate/internal/metrics"
	"github.com/wolfedu/membergate/internal/middleware"
	"github.com/wolfedu/membergate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, remoteAddr string) (*auth.LoginResult, error)
	RevokeToken(ctx context.Context, token string) error
	DesktopAuth(ctx context.Context, apiKey, remoteAddr string) (*model.Identity, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service:   service,
		collector: collector,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// identityResponse はAPIレスポンスで返すアイデンティティの表現。
// パスワードハッシュとAPIキーは含めない。
type identityResponse struct {
	ID                    string `json:"id"`
	Username              string `json:"username"`
	Email                 string `json:"email"`
	SubscriptionStatus    string `json:"subscription_status"`
	SubscriptionExpiresAt string `json:"subscription_expires_at,omitempty"`
}

func toIdentityResponse(identity *model.Identity) identityResponse {
	resp := identityResponse{
		ID:                 identity.ID,
		Username:           identity.Username,
		Email:              identity.Email,
		SubscriptionStatus: string(identity.SubscriptionStatus),
	}
	if identity.SubscriptionExpiresAt != nil {
		resp.SubscriptionExpiresAt = identity.SubscriptionExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// loginResponse はログイン成功レスポンスのボディ。
type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt string           `json:"expires_at"`
	User      identityResponse `json:"user"`
}

// Login はユーザー名とパスワードでログインし、セッショントークンを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidPayloadError("リクエストボディのJSONが不正です"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		h.collector.RecordLoginFailure()
		middleware.WriteError(w, err)
		return
	}
	h.collector.RecordLoginSuccess()

	writeJSONResponse(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toIdentityResponse(result.Identity),
	})
}

// Logout は現在のセッショントークンを失効させる。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r)
	if token == "" {
		middleware.WriteAPIError(w, model.NewInvalidTokenError())
		return
	}

	if err := h.service.RevokeToken(r.Context(), token); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// desktopAuthRequest はデスクトップ認証リクエストのボディ。
type desktopAuthRequest struct {
	APIKey string `json:"api_key"`
}

// DesktopAuth はAPIキーを検証し、購読が有効な場合のみアカウント情報を返す。
// POST /api/desktop-auth
func (h *AuthHandler) DesktopAuth(w http.ResponseWriter, r *http.Request) {
	var req desktopAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidPayloadError("リクエストボディのJSONが不正です"))
		return
	}

	identity, err := h.service.DesktopAuth(r.Context(), req.APIKey, r.RemoteAddr)
	if err != nil {
		h.collector.RecordDesktopAuth(false)
		middleware.WriteError(w, err)
		return
	}
	h.collector.RecordDesktopAuth(true)

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"granted": true,
		"user":    toIdentityResponse(identity),
	})
}

// extractBearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
