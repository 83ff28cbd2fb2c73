package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wolfedu/membergate/internal/middleware"
	"github.com/wolfedu/membergate/internal/model"
	"github.com/wolfedu/membergate/internal/repository"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	CreateAccount(ctx context.Context, username, email, password string) (*model.Identity, error)
	ListAccounts(ctx context.Context) ([]repository.IdentityWithStats, error)
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// createUserRequest はアカウント作成リクエストのボディ。
type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// createUserResponse はアカウント作成レスポンスのボディ。
// APIキーは作成時の1回だけ返す。
type createUserResponse struct {
	identityResponse
	APIKey string `json:"api_key"`
}

// userStatsResponse は一覧で返すアカウント1件の表現。
type userStatsResponse struct {
	identityResponse
	LoginCount  int    `json:"login_count"`
	LastLoginAt string `json:"last_login_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// CreateUser は新しいアカウントを作成する。
// POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidPayloadError("リクエストボディのJSONが不正です"))
		return
	}

	identity, err := h.service.CreateAccount(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := createUserResponse{identityResponse: toIdentityResponse(identity)}
	if identity.APIKey != nil {
		resp.APIKey = *identity.APIKey
	}
	writeJSONResponse(w, http.StatusCreated, resp)
}

// ListUsers は全アカウントをログイン統計付きで返す。
// GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	users := make([]userStatsResponse, 0, len(accounts))
	for _, account := range accounts {
		user := userStatsResponse{
			identityResponse: toIdentityResponse(&account.Identity),
			LoginCount:       account.LoginCount,
			CreatedAt:        account.CreatedAt.UTC().Format(time.RFC3339),
		}
		if account.LastLoginAt != nil {
			user.LastLoginAt = account.LastLoginAt.UTC().Format(time.RFC3339)
		}
		users = append(users, user)
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"users": users,
		"total": len(users),
	})
}
