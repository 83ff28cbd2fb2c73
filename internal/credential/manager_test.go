package credential

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewManager_EmptyKey(t *testing.T) {
	_, err := NewManager("")
	if err == nil {
		t.Fatal("空の署名鍵でエラーが返りませんでした")
	}
}

func TestManager_HashAndVerifySecret(t *testing.T) {
	m, err := NewManager("test-signing-key")
	if err != nil {
		t.Fatalf("NewManagerに失敗: %v", err)
	}

	hash, err := m.HashSecret("correct-horse")
	if err != nil {
		t.Fatalf("HashSecretに失敗: %v", err)
	}
	if hash == "correct-horse" {
		t.Fatal("ハッシュが平文のままです")
	}

	if !m.VerifySecret("correct-horse", hash) {
		t.Error("正しいパスワードの検証に失敗")
	}
	if m.VerifySecret("wrong-horse", hash) {
		t.Error("誤ったパスワードが検証を通過")
	}
	if m.VerifySecret("correct-horse", "not-a-bcrypt-hash") {
		t.Error("不正な形式のハッシュが検証を通過")
	}
}

func TestManager_IssueAndVerifySessionToken(t *testing.T) {
	m, err := NewManager("test-signing-key")
	if err != nil {
		t.Fatalf("NewManagerに失敗: %v", err)
	}

	now := time.Now().UTC()
	token, expiresAt, err := m.IssueSessionToken("identity-123", now)
	if err != nil {
		t.Fatalf("IssueSessionTokenに失敗: %v", err)
	}

	wantExpiry := now.Add(24 * time.Hour)
	if expiresAt.Sub(wantExpiry) > time.Second || wantExpiry.Sub(expiresAt) > time.Second {
		t.Errorf("有効期限 = %v, want %v", expiresAt, wantExpiry)
	}

	identityID, err := m.VerifySessionToken(token)
	if err != nil {
		t.Fatalf("VerifySessionTokenに失敗: %v", err)
	}
	if identityID != "identity-123" {
		t.Errorf("identityID = %q, want %q", identityID, "identity-123")
	}
}

func TestManager_VerifySessionToken_Tampered(t *testing.T) {
	m, _ := NewManager("test-signing-key")

	now := time.Now().UTC()
	token, _, err := m.IssueSessionToken("identity-123", now)
	if err != nil {
		t.Fatalf("IssueSessionTokenに失敗: %v", err)
	}

	// 署名部の1文字を改変
	tampered := token[:len(token)-1]
	if strings.HasSuffix(token, "A") {
		tampered += "B"
	} else {
		tampered += "A"
	}

	if _, err := m.VerifySessionToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("改変トークンのエラー = %v, want ErrInvalidToken", err)
	}
}

func TestManager_VerifySessionToken_WrongKey(t *testing.T) {
	m1, _ := NewManager("signing-key-one")
	m2, _ := NewManager("signing-key-two")

	token, _, err := m1.IssueSessionToken("identity-123", time.Now().UTC())
	if err != nil {
		t.Fatalf("IssueSessionTokenに失敗: %v", err)
	}

	if _, err := m2.VerifySessionToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("別鍵トークンのエラー = %v, want ErrInvalidToken", err)
	}
}

func TestManager_VerifySessionToken_Expired(t *testing.T) {
	m, _ := NewManager("test-signing-key")

	// 25時間前に発行したトークンは期限切れ
	issued := time.Now().UTC().Add(-25 * time.Hour)
	token, _, err := m.IssueSessionToken("identity-123", issued)
	if err != nil {
		t.Fatalf("IssueSessionTokenに失敗: %v", err)
	}

	if _, err := m.VerifySessionToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("期限切れトークンのエラー = %v, want ErrInvalidToken", err)
	}
}

func TestManager_VerifySessionToken_Malformed(t *testing.T) {
	m, _ := NewManager("test-signing-key")

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := m.VerifySessionToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifySessionToken(%q)のエラー = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestManager_GenerateAPIKey(t *testing.T) {
	m, _ := NewManager("test-signing-key")

	key, err := m.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKeyに失敗: %v", err)
	}
	if !strings.HasPrefix(key, "wolf_") {
		t.Errorf("APIキーのプレフィックスが不正: %q", key)
	}
	if len(key) != len("wolf_")+48 {
		t.Errorf("APIキー長 = %d, want %d", len(key), len("wolf_")+48)
	}

	second, err := m.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKeyに失敗: %v", err)
	}
	if key == second {
		t.Error("連続生成したAPIキーが一致しています")
	}
}

func TestManager_PlaceholderHash(t *testing.T) {
	m, _ := NewManager("test-signing-key")

	hash, err := m.PlaceholderHash()
	if err != nil {
		t.Fatalf("PlaceholderHashに失敗: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("bcryptハッシュではありません: %q", hash)
	}
}
