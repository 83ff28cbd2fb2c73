package credential

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost はパスワードハッシュのコストパラメータ
	bcryptCost = 12
	// tokenTTL はセッショントークンの有効期間
	tokenTTL = 24 * time.Hour
	// apiKeyPrefix はAPIキーの識別用プレフィックス
	apiKeyPrefix = "wolf_"
	// apiKeyEntropyBytes はAPIキーに含める乱数のバイト数
	apiKeyEntropyBytes = 24
)

// ErrInvalidToken は検証に失敗したトークンに対して返す。
// 失敗理由（署名不正・期限切れ・形式不正）は呼び出し側に区別させない。
var ErrInvalidToken = errors.New("invalid token")

// Manager は資格情報の生成・検証を担当する。
type Manager struct {
	signingKey []byte
}

// NewManager はManagerを生成する。署名鍵が空の場合はエラーを返す。
func NewManager(signingKey string) (*Manager, error) {
	if signingKey == "" {
		return nil, errors.New("token signing key is empty")
	}
	return &Manager{signingKey: []byte(signingKey)}, nil
}

// HashSecret はパスワードをbcryptでハッシュ化する。
func (m *Manager) HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret はパスワードとハッシュの一致を検証する。
// ハッシュが不正な形式の場合もfalseを返す。
func (m *Manager) VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IssueSessionToken は指定アイデンティティ向けのセッショントークンを発行する。
// 有効期限は発行時刻から24時間固定。
func (m *Manager) IssueSessionToken(identityID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   identityID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifySessionToken はトークンの署名と有効期限を検証し、
// アイデンティティIDを返す。失敗時は一律ErrInvalidToken。
func (m *Manager) VerifySessionToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// GenerateAPIKey はデスクトップクライアント用のAPIキーを生成する。
func (m *Manager) GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// PlaceholderHash はログイン不能なプレースホルダーのハッシュを生成する。
// 同期で自動作成されたアイデンティティに使う。
func (m *Manager) PlaceholderHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate placeholder secret: %w", err)
	}
	return m.HashSecret(hex.EncodeToString(buf))
}
