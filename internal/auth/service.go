// Package auth はログイン、トークン検証、デスクトップ認証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/wolfedu/membergate/internal/credential"
	"github.com/wolfedu/membergate/internal/model"
	"github.com/wolfedu/membergate/internal/repository"
)

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	credentials   *credential.Manager
	identityRepo  repository.IdentityRepository
	sessionRepo   repository.SessionTokenRepository
	analyticsRepo repository.AnalyticsRepository
	logger        *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	credentials *credential.Manager,
	identityRepo repository.IdentityRepository,
	sessionRepo repository.SessionTokenRepository,
	analyticsRepo repository.AnalyticsRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		credentials:   credentials,
		identityRepo:  identityRepo,
		sessionRepo:   sessionRepo,
		analyticsRepo: analyticsRepo,
		logger:        logger,
	}
}

// LoginResult はログイン成功時に返す情報。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  *model.Identity
}

// Login はユーザー名とパスワードを検証し、セッショントークンを発行する。
// ユーザー不在とパスワード不一致は同一のエラーを返す。
func (s *Service) Login(ctx context.Context, username, password, remoteAddr string) (*LoginResult, error) {
	if username == "" {
		return nil, model.NewMissingFieldError("username")
	}
	if password == "" {
		return nil, model.NewMissingFieldError("password")
	}

	identity, err := s.identityRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil || !s.credentials.VerifySecret(password, identity.PasswordHash) {
		return nil, model.NewInvalidCredentialsError()
	}

	now := time.Now().UTC()
	token, expiresAt, err := s.credentials.IssueSessionToken(identity.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	// セッション行と分析イベントは参考情報。失敗してもログインは成立させる。
	sessionToken := &model.SessionToken{
		ID:         uuid.New().String(),
		IdentityID: identity.ID,
		Token:      token,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := s.sessionRepo.Create(ctx, sessionToken); err != nil {
		s.logger.Error("セッション記録の保存に失敗しました",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}
	s.recordEvent(ctx, identity.ID, model.ActionLogin, nil, remoteAddr)

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Identity: identity}, nil
}

// VerifyToken はセッショントークンを検証し、対応するアイデンティティを返す。
// 署名検証を通過しても失効リストに載っていれば無効とする。
func (s *Service) VerifyToken(ctx context.Context, token string) (*model.Identity, error) {
	identityID, err := s.credentials.VerifySessionToken(token)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}

	revoked, err := s.sessionRepo.IsRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, model.NewInvalidTokenError()
	}

	identity, err := s.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, model.NewInvalidTokenError()
	}
	return identity, nil
}

// RevokeToken はセッショントークンを失効させる（ログアウト）。
// トークンが無効な場合もエラーにはしない。
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if _, err := s.credentials.VerifySessionToken(token); err != nil {
		return nil
	}
	if err := s.sessionRepo.RevokeByToken(ctx, token, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// DesktopAuth はAPIキーを検証し、購読状態が有効な場合のみアイデンティティを返す。
// キー不在・不正は資格情報エラー、購読切れは購読エラーとして区別する。
func (s *Service) DesktopAuth(ctx context.Context, apiKey, remoteAddr string) (*model.Identity, error) {
	if apiKey == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	identity, err := s.identityRepo.FindByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by api key: %w", err)
	}
	if identity == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if identity.SubscriptionStatus != model.SubscriptionActive {
		return nil, model.NewSubscriptionInactiveError(identity.SubscriptionStatus)
	}
	now := time.Now().UTC()
	if identity.SubscriptionExpiresAt != nil && identity.SubscriptionExpiresAt.Before(now) {
		return nil, model.NewSubscriptionExpiredError()
	}

	s.recordEvent(ctx, identity.ID, model.ActionDesktopAccess, nil, remoteAddr)
	return identity, nil
}

// CreateAccount は新しいアイデンティティを作成する。
func (s *Service) CreateAccount(ctx context.Context, username, email, password string) (*model.Identity, error) {
	if username == "" {
		return nil, model.NewMissingFieldError("username")
	}
	if email == "" {
		return nil, model.NewMissingFieldError("email")
	}
	if password == "" {
		return nil, model.NewMissingFieldError("password")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewInvalidPayloadError("メールアドレスの形式が不正です")
	}

	hash, err := s.credentials.HashSecret(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	apiKey, err := s.credentials.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	now := time.Now().UTC()
	identity := &model.Identity{
		ID:                 uuid.New().String(),
		Username:           username,
		Email:              email,
		PasswordHash:       hash,
		SubscriptionStatus: model.SubscriptionActive,
		APIKey:             &apiKey,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.identityRepo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, model.NewAlreadyExistsError("username または email")
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	return identity, nil
}

// ListAccounts は全アイデンティティをログイン統計付きで返す。
func (s *Service) ListAccounts(ctx context.Context) ([]repository.IdentityWithStats, error) {
	accounts, err := s.identityRepo.ListWithLoginStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return accounts, nil
}

// recordEvent は分析イベントを記録する。失敗は本処理に影響させない。
func (s *Service) recordEvent(ctx context.Context, identityID, action string, details map[string]any, remoteAddr string) {
	event := &model.AnalyticsEvent{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Action:     action,
		Details:    details,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.analyticsRepo.Create(ctx, event); err != nil {
		s.logger.Error("分析イベントの記録に失敗しました",
			slog.String("identity_id", identityID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
