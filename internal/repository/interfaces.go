// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wolfedu/membergate/internal/model"
)

// ErrDuplicateKey は一意性制約違反を表すセンチネルエラー。
// PostgreSQLのunique_violation（23505）をこのエラーにマップする。
var ErrDuplicateKey = errors.New("duplicate key")

// IdentityRepository は会員アカウントの永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByUsername はユーザー名でアイデンティティを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Identity, error)

	// FindByAPIKey はAPIキーでアイデンティティを検索する。見つからない場合はnilを返す。
	FindByAPIKey(ctx context.Context, apiKey string) (*model.Identity, error)

	// FindByExternalMemberID は外部会員IDでアイデンティティを検索する。見つからない場合はnilを返す。
	FindByExternalMemberID(ctx context.Context, externalMemberID int64) (*model.Identity, error)

	// Create はアイデンティティを作成する。
	// username/email/external_member_id/api_keyの一意性制約違反時はErrDuplicateKeyを返す。
	Create(ctx context.Context, identity *model.Identity) error

	// CreateIfAbsent は外部会員IDをキーとした条件付きINSERTを行う。
	// 同一external_member_idの行が既に存在する場合は何もせずfalseを返す。
	// 存在チェックとINSERTを単一のアトミックな文で行うため、並行実行でも重複は発生しない。
	// external_member_id以外の一意性制約違反はErrDuplicateKeyを返す。
	CreateIfAbsent(ctx context.Context, identity *model.Identity) (bool, error)

	// UpdateSubscription は指定アイデンティティのサブスクリプション状態と期限を更新する。
	UpdateSubscription(ctx context.Context, id string, status model.SubscriptionStatus, expiresAt *time.Time) error

	// UpdateSubscriptionByExternalMemberID は外部会員IDで特定されるアイデンティティの
	// サブスクリプション状態と期限を更新し、更新された行数を返す。
	// 該当行がない場合は0を返す（エラーにはしない）。
	UpdateSubscriptionByExternalMemberID(ctx context.Context, externalMemberID int64, status model.SubscriptionStatus, expiresAt *time.Time) (int64, error)

	// ListWithLoginStats は全アイデンティティをログイン統計付きで作成日時降順に返す。
	ListWithLoginStats(ctx context.Context) ([]IdentityWithStats, error)
}

// SessionTokenRepository は発行済みセッショントークンの監査行の永続化インターフェース。
// 行は発行時に作成され、失効（revoke）以外で更新されることはない。
type SessionTokenRepository interface {
	// Create はセッショントークンの監査行を作成する。
	Create(ctx context.Context, token *model.SessionToken) error

	// RevokeByToken は指定トークンの行に失効時刻を記録する。
	// 該当行がない場合もエラーにはしない（行は参考情報のため）。
	RevokeByToken(ctx context.Context, token string, at time.Time) error

	// IsRevoked は指定トークンが明示的に失効済みかどうかを返す。
	// 行が存在しない場合はfalse（失効していない）を返す。
	IsRevoked(ctx context.Context, token string) (bool, error)

	// DeleteExpiredBefore は埋め込み期限がcutoffより前の監査行を削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AnalyticsRepository はユーザー行動イベントの永続化インターフェース。追記専用。
type AnalyticsRepository interface {
	// Create はアナリティクスイベントを追記する。
	Create(ctx context.Context, event *model.AnalyticsEvent) error
}

// CookieRepository はアイデンティティごとのCookie保管の永続化インターフェース。
type CookieRepository interface {
	// ReplaceForEmail は指定emailの全Cookie（全ドメイン分）を削除し、
	// recordsを挿入する。削除と挿入は単一トランザクションで行う。
	ReplaceForEmail(ctx context.Context, email string, records []model.CookieRecord) error

	// ListByEmailAndDomain は指定email+domainのCookieを作成日時降順に返す。
	// 存在しない場合は空スライスを返す。
	ListByEmailAndDomain(ctx context.Context, email, domain string) ([]model.CookieRecord, error)

	// DeleteByEmail は指定emailの全Cookieを削除する。
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteByEmailAndDomain は指定email+domainのCookieを削除する。
	DeleteByEmailAndDomain(ctx context.Context, email, domain string) error
}

// IdentityWithStats はアイデンティティとログイン統計を結合した構造体。
type IdentityWithStats struct {
	model.Identity
	LoginCount  int
	LastLoginAt *time.Time
}
