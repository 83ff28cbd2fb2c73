// Package vault はデスクトップクライアント向けのCookie保管機能を提供する。
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfedu/membergate/internal/model"
	"github.com/wolfedu/membergate/internal/repository"
)

// CookieInput はクライアントから受け取るCookie1件の入力。
// 有効期限はUNIX秒で受け取る。0またはnullは期限なし（セッションCookie）を表す。
type CookieInput struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Path      string `json:"path"`
	ExpiresAt int64  `json:"expires"`
	Secure    bool   `json:"secure"`
	HTTPOnly  bool   `json:"httpOnly"`
}

// CookieDescriptor はクライアントへ返すCookie1件の表現。
// 期限なしのCookieはexpiresをnullとして返す。
type CookieDescriptor struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Domain    string `json:"domain"`
	Path      string `json:"path"`
	ExpiresAt *int64 `json:"expires"`
	Secure    bool   `json:"secure"`
	HTTPOnly  bool   `json:"httpOnly"`
}

// Service はCookie保管のビジネスロジックを提供する。
type Service struct {
	cookieRepo repository.CookieRepository
	// defaultDomain はドメイン未指定時に適用するリプレイ先ドメイン。
	defaultDomain string
}

// NewService はServiceを生成する。
func NewService(cookieRepo repository.CookieRepository, defaultDomain string) *Service {
	return &Service{
		cookieRepo:    cookieRepo,
		defaultDomain: defaultDomain,
	}
}

// StoreCookies は指定emailのCookie一式を保存し、保存件数を返す。
// 同一emailの既存Cookieは指定ドメイン以外の分も含めて全て置き換えられる。
// 空リストも有効な入力で、既存Cookieの全消去として扱う。
func (s *Service) StoreCookies(ctx context.Context, email string, cookies []CookieInput, domain string) (int, error) {
	if email == "" {
		return 0, model.NewMissingFieldError("email")
	}
	if domain == "" {
		domain = s.defaultDomain
	}

	now := time.Now().UTC()
	records := make([]model.CookieRecord, 0, len(cookies))
	for i, cookie := range cookies {
		if cookie.Name == "" || cookie.Value == "" {
			return 0, model.NewInvalidPayloadError(fmt.Sprintf("%d番目のCookieにnameまたはvalueがありません", i+1))
		}

		path := cookie.Path
		if path == "" {
			path = "/"
		}
		var expiresAt *time.Time
		if cookie.ExpiresAt > 0 {
			t := time.Unix(cookie.ExpiresAt, 0).UTC()
			expiresAt = &t
		}

		records = append(records, model.CookieRecord{
			ID:          uuid.New().String(),
			Email:       email,
			CookieName:  cookie.Name,
			CookieValue: cookie.Value,
			Domain:      domain,
			Path:        path,
			ExpiresAt:   expiresAt,
			Secure:      cookie.Secure,
			HTTPOnly:    cookie.HTTPOnly,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := s.cookieRepo.ReplaceForEmail(ctx, email, records); err != nil {
		return 0, fmt.Errorf("failed to store cookies: %w", err)
	}
	return len(records), nil
}

// GetCookies は指定email+ドメインのCookie一式を新しい順に返す。
// 見つからない場合は空スライスを返す。
func (s *Service) GetCookies(ctx context.Context, email, domain string) ([]CookieDescriptor, error) {
	if email == "" {
		return nil, model.NewMissingFieldError("email")
	}
	if domain == "" {
		domain = s.defaultDomain
	}

	records, err := s.cookieRepo.ListByEmailAndDomain(ctx, email, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list cookies: %w", err)
	}

	descriptors := make([]CookieDescriptor, 0, len(records))
	for _, record := range records {
		descriptor := CookieDescriptor{
			Name:     record.CookieName,
			Value:    record.CookieValue,
			Domain:   record.Domain,
			Path:     record.Path,
			Secure:   record.Secure,
			HTTPOnly: record.HTTPOnly,
		}
		if record.ExpiresAt != nil {
			epoch := record.ExpiresAt.Unix()
			descriptor.ExpiresAt = &epoch
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors, nil
}

// DeleteCookies は指定emailのCookieを削除する。
// ドメイン指定時はそのドメイン分のみ、未指定時は全ドメイン分を削除する。
func (s *Service) DeleteCookies(ctx context.Context, email, domain string) error {
	if email == "" {
		return model.NewMissingFieldError("email")
	}

	if domain == "" {
		if err := s.cookieRepo.DeleteByEmail(ctx, email); err != nil {
			return fmt.Errorf("failed to delete cookies: %w", err)
		}
		return nil
	}
	if err := s.cookieRepo.DeleteByEmailAndDomain(ctx, email, domain); err != nil {
		return fmt.Errorf("failed to delete cookies: %w", err)
	}
	return nil
}
