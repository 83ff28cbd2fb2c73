package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/wolfedu/membergate/internal/credential"
	"github.com/wolfedu/membergate/internal/model"
	"github.com/wolfedu/membergate/internal/repository"
)

// --- モック ---

type mockIdentityRepo struct {
	findByIDFunc       func(ctx context.Context, id string) (*model.Identity, error)
	findByUsernameFunc func(ctx context.Context, username string) (*model.Identity, error)
	findByAPIKeyFunc   func(ctx context.Context, apiKey string) (*model.Identity, error)
	createFunc         func(ctx context.Context, identity *model.Identity) error
	listWithStatsFunc  func(ctx context.Context) ([]repository.IdentityWithStats, error)
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockIdentityRepo) FindByUsername(ctx context.Context, username string) (*model.Identity, error) {
	return m.findByUsernameFunc(ctx, username)
}

func (m *mockIdentityRepo) FindByAPIKey(ctx context.Context, apiKey string) (*model.Identity, error) {
	return m.findByAPIKeyFunc(ctx, apiKey)
}

func (m *mockIdentityRepo) FindByExternalMemberID(ctx context.Context, externalMemberID int64) (*model.Identity, error) {
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	return m.createFunc(ctx, identity)
}

func (m *mockIdentityRepo) CreateIfAbsent(ctx context.Context, identity *model.Identity) (bool, error) {
	return false, nil
}

func (m *mockIdentityRepo) UpdateSubscription(ctx context.Context, id string, status model.SubscriptionStatus, expiresAt *time.Time) error {
	return nil
}

func (m *mockIdentityRepo) UpdateSubscriptionByExternalMemberID(ctx context.Context, externalMemberID int64, status model.SubscriptionStatus, expiresAt *time.Time) (int64, error) {
	return 0, nil
}

func (m *mockIdentityRepo) ListWithLoginStats(ctx context.Context) ([]repository.IdentityWithStats, error) {
	return m.listWithStatsFunc(ctx)
}

type mockSessionRepo struct {
	createFunc    func(ctx context.Context, token *model.SessionToken) error
	revokeFunc    func(ctx context.Context, token string, at time.Time) error
	isRevokedFunc func(ctx context.Context, token string) (bool, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, token *model.SessionToken) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) RevokeByToken(ctx context.Context, token string, at time.Time) error {
	if m.revokeFunc != nil {
		return m.revokeFunc(ctx, token, at)
	}
	return nil
}

func (m *mockSessionRepo) IsRevoked(ctx context.Context, token string) (bool, error) {
	if m.isRevokedFunc != nil {
		return m.isRevokedFunc(ctx, token)
	}
	return false, nil
}

func (m *mockSessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type mockAnalyticsRepo struct {
	events []*model.AnalyticsEvent
	err    error
}

func (m *mockAnalyticsRepo) Create(ctx context.Context, event *model.AnalyticsEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

// --- ヘルパー ---

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func newTestCredentials(t *testing.T) *credential.Manager {
	t.Helper()
	m, err := credential.NewManager("test-signing-key")
	if err != nil {
		t.Fatalf("credential.NewManagerに失敗: %v", err)
	}
	return m
}

func testIdentity(t *testing.T, creds *credential.Manager, password string) *model.Identity {
	t.Helper()
	hash, err := creds.HashSecret(password)
	if err != nil {
		t.Fatalf("HashSecretに失敗: %v", err)
	}
	apiKey := "wolf_testkey"
	return &model.Identity{
		ID:                 "identity-1",
		Username:           "alice",
		Email:              "alice@example.com",
		PasswordHash:       hash,
		SubscriptionStatus: model.SubscriptionActive,
		APIKey:             &apiKey,
	}
}

// --- Login ---

func TestService_Login_Success(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")

	identityRepo := &mockIdentityRepo{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.Identity, error) {
			if username != "alice" {
				t.Errorf("username = %q, want alice", username)
			}
			return identity, nil
		},
	}
	sessionRepo := &mockSessionRepo{}
	analyticsRepo := &mockAnalyticsRepo{}
	svc := NewService(creds, identityRepo, sessionRepo, analyticsRepo, newTestLogger())

	result, err := svc.Login(context.Background(), "alice", "secret-pass", "203.0.113.7")
	if err != nil {
		t.Fatalf("Loginに失敗: %v", err)
	}
	if result.Token == "" {
		t.Error("トークンが空です")
	}
	if result.Identity.ID != "identity-1" {
		t.Errorf("identity.ID = %q, want identity-1", result.Identity.ID)
	}

	// 発行されたトークンは検証を通過する
	if _, err := creds.VerifySessionToken(result.Token); err != nil {
		t.Errorf("発行トークンの検証に失敗: %v", err)
	}

	// ログインイベントが記録される
	if len(analyticsRepo.events) != 1 || analyticsRepo.events[0].Action != model.ActionLogin {
		t.Errorf("分析イベントが不正: %+v", analyticsRepo.events)
	}
}

func TestService_Login_UnknownUserAndWrongPassword_SameError(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")

	cases := []struct {
		name string
		repo *mockIdentityRepo
		pass string
	}{
		{
			name: "ユーザー不在",
			repo: &mockIdentityRepo{
				findByUsernameFunc: func(ctx context.Context, username string) (*model.Identity, error) {
					return nil, nil
				},
			},
			pass: "secret-pass",
		},
		{
			name: "パスワード不一致",
			repo: &mockIdentityRepo{
				findByUsernameFunc: func(ctx context.Context, username string) (*model.Identity, error) {
					return identity, nil
				},
			},
			pass: "wrong-pass",
		},
	}

	var messages []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(creds, tc.repo, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())
			_, err := svc.Login(context.Background(), "alice", tc.pass, "")

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("APIErrorではありません: %v", err)
			}
			if apiErr.Code != model.ErrCodeInvalidCredentials {
				t.Errorf("エラーコード = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
			}
			messages = append(messages, apiErr.Message)
		})
	}

	// 不在と不一致でメッセージが区別できないこと
	if len(messages) == 2 && messages[0] != messages[1] {
		t.Errorf("エラーメッセージが区別可能: %q vs %q", messages[0], messages[1])
	}
}

func TestService_Login_MissingFields(t *testing.T) {
	creds := newTestCredentials(t)
	svc := NewService(creds, &mockIdentityRepo{}, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	for _, tc := range []struct{ username, password string }{
		{"", "pass"},
		{"alice", ""},
	} {
		_, err := svc.Login(context.Background(), tc.username, tc.password, "")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Category != model.CategoryValidation {
			t.Errorf("Login(%q, %q)のエラー = %v, want validation", tc.username, tc.password, err)
		}
	}
}

func TestService_Login_SessionRowFailureDoesNotBlockLogin(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")

	identityRepo := &mockIdentityRepo{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.Identity, error) {
			return identity, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFunc: func(ctx context.Context, token *model.SessionToken) error {
			return errors.New("db down")
		},
	}
	analyticsRepo := &mockAnalyticsRepo{err: errors.New("db down")}
	svc := NewService(creds, identityRepo, sessionRepo, analyticsRepo, newTestLogger())

	result, err := svc.Login(context.Background(), "alice", "secret-pass", "")
	if err != nil {
		t.Fatalf("セッション記録失敗がログインを阻害: %v", err)
	}
	if result.Token == "" {
		t.Error("トークンが空です")
	}
}

// --- VerifyToken ---

func TestService_VerifyToken_Success(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")

	token, _, err := creds.IssueSessionToken(identity.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("IssueSessionTokenに失敗: %v", err)
	}

	identityRepo := &mockIdentityRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Identity, error) {
			if id != identity.ID {
				t.Errorf("id = %q, want %q", id, identity.ID)
			}
			return identity, nil
		},
	}
	svc := NewService(creds, identityRepo, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	got, err := svc.VerifyToken(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyTokenに失敗: %v", err)
	}
	if got.ID != identity.ID {
		t.Errorf("identity.ID = %q, want %q", got.ID, identity.ID)
	}
}

func TestService_VerifyToken_Revoked(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")

	token, _, _ := creds.IssueSessionToken(identity.ID, time.Now().UTC())

	sessionRepo := &mockSessionRepo{
		isRevokedFunc: func(ctx context.Context, tok string) (bool, error) {
			return true, nil
		},
	}
	svc := NewService(creds, &mockIdentityRepo{}, sessionRepo, &mockAnalyticsRepo{}, newTestLogger())

	_, err := svc.VerifyToken(context.Background(), token)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidToken {
		t.Errorf("失効トークンのエラー = %v, want INVALID_TOKEN", err)
	}
}

func TestService_VerifyToken_InvalidSignature(t *testing.T) {
	creds := newTestCredentials(t)
	svc := NewService(creds, &mockIdentityRepo{}, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	_, err := svc.VerifyToken(context.Background(), "not-a-valid-token")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidToken {
		t.Errorf("不正トークンのエラー = %v, want INVALID_TOKEN", err)
	}
}

// --- RevokeToken ---

func TestService_RevokeToken(t *testing.T) {
	creds := newTestCredentials(t)
	token, _, _ := creds.IssueSessionToken("identity-1", time.Now().UTC())

	var revokedToken string
	sessionRepo := &mockSessionRepo{
		revokeFunc: func(ctx context.Context, tok string, at time.Time) error {
			revokedToken = tok
			return nil
		},
	}
	svc := NewService(creds, &mockIdentityRepo{}, sessionRepo, &mockAnalyticsRepo{}, newTestLogger())

	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeTokenに失敗: %v", err)
	}
	if revokedToken != token {
		t.Errorf("失効対象トークンが不一致")
	}

	// 無効なトークンはエラーにせず、失効処理も呼ばない
	revokedToken = ""
	if err := svc.RevokeToken(context.Background(), "garbage"); err != nil {
		t.Errorf("無効トークンのRevokeTokenがエラー: %v", err)
	}
	if revokedToken != "" {
		t.Error("無効トークンで失効処理が呼ばれました")
	}
}

// --- DesktopAuth ---

func TestService_DesktopAuth_Success(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")

	identityRepo := &mockIdentityRepo{
		findByAPIKeyFunc: func(ctx context.Context, apiKey string) (*model.Identity, error) {
			if apiKey != "wolf_testkey" {
				t.Errorf("apiKey = %q, want wolf_testkey", apiKey)
			}
			return identity, nil
		},
	}
	analyticsRepo := &mockAnalyticsRepo{}
	svc := NewService(creds, identityRepo, &mockSessionRepo{}, analyticsRepo, newTestLogger())

	got, err := svc.DesktopAuth(context.Background(), "wolf_testkey", "203.0.113.7")
	if err != nil {
		t.Fatalf("DesktopAuthに失敗: %v", err)
	}
	if got.ID != identity.ID {
		t.Errorf("identity.ID = %q, want %q", got.ID, identity.ID)
	}
	if len(analyticsRepo.events) != 1 || analyticsRepo.events[0].Action != model.ActionDesktopAccess {
		t.Errorf("分析イベントが不正: %+v", analyticsRepo.events)
	}
}

func TestService_DesktopAuth_UnknownKey(t *testing.T) {
	creds := newTestCredentials(t)
	identityRepo := &mockIdentityRepo{
		findByAPIKeyFunc: func(ctx context.Context, apiKey string) (*model.Identity, error) {
			return nil, nil
		},
	}
	svc := NewService(creds, identityRepo, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	_, err := svc.DesktopAuth(context.Background(), "wolf_unknown", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("未知キーのエラー = %v, want INVALID_CREDENTIALS", err)
	}
}

func TestService_DesktopAuth_InactiveSubscription(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")
	identity.SubscriptionStatus = model.SubscriptionSuspended

	identityRepo := &mockIdentityRepo{
		findByAPIKeyFunc: func(ctx context.Context, apiKey string) (*model.Identity, error) {
			return identity, nil
		},
	}
	svc := NewService(creds, identityRepo, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	_, err := svc.DesktopAuth(context.Background(), "wolf_testkey", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSubscriptionInactive {
		t.Errorf("停止中購読のエラー = %v, want SUBSCRIPTION_INACTIVE", err)
	}
}

func TestService_DesktopAuth_ExpiredSubscription(t *testing.T) {
	creds := newTestCredentials(t)
	identity := testIdentity(t, creds, "secret-pass")
	past := time.Now().UTC().Add(-time.Hour)
	identity.SubscriptionExpiresAt = &past

	identityRepo := &mockIdentityRepo{
		findByAPIKeyFunc: func(ctx context.Context, apiKey string) (*model.Identity, error) {
			return identity, nil
		},
	}
	svc := NewService(creds, identityRepo, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	_, err := svc.DesktopAuth(context.Background(), "wolf_testkey", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSubscriptionExpired {
		t.Errorf("期限切れ購読のエラー = %v, want SUBSCRIPTION_EXPIRED", err)
	}
}

// --- CreateAccount ---

func TestService_CreateAccount_Success(t *testing.T) {
	creds := newTestCredentials(t)

	var created *model.Identity
	identityRepo := &mockIdentityRepo{
		createFunc: func(ctx context.Context, identity *model.Identity) error {
			created = identity
			return nil
		},
	}
	svc := NewService(creds, identityRepo, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	identity, err := svc.CreateAccount(context.Background(), "bob", "bob@example.com", "hunter22")
	if err != nil {
		t.Fatalf("CreateAccountに失敗: %v", err)
	}
	if created == nil {
		t.Fatal("Createが呼ばれていません")
	}
	if identity.PasswordHash == "hunter22" {
		t.Error("パスワードが平文のまま保存されています")
	}
	if !creds.VerifySecret("hunter22", identity.PasswordHash) {
		t.Error("保存されたハッシュがパスワードと一致しません")
	}
	if identity.APIKey == nil || len(*identity.APIKey) < 25 {
		t.Errorf("APIキーが不正: %v", identity.APIKey)
	}
}

func TestService_CreateAccount_DuplicateKey(t *testing.T) {
	creds := newTestCredentials(t)
	identityRepo := &mockIdentityRepo{
		createFunc: func(ctx context.Context, identity *model.Identity) error {
			return repository.ErrDuplicateKey
		},
	}
	svc := NewService(creds, identityRepo, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	_, err := svc.CreateAccount(context.Background(), "bob", "bob@example.com", "hunter22")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAlreadyExists {
		t.Errorf("重複時のエラー = %v, want ALREADY_EXISTS", err)
	}
}

func TestService_CreateAccount_InvalidEmail(t *testing.T) {
	creds := newTestCredentials(t)
	svc := NewService(creds, &mockIdentityRepo{}, &mockSessionRepo{}, &mockAnalyticsRepo{}, newTestLogger())

	_, err := svc.CreateAccount(context.Background(), "bob", "not-an-email", "hunter22")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Category != model.CategoryValidation {
		t.Errorf("不正メールのエラー = %v, want validation", err)
	}
}
