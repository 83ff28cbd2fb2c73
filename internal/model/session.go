package model

import "time"

// SessionToken は発行済みセッショントークンの監査用レコードを表す。
// 認可判定はトークン自体の署名と埋め込み期限で行われるため、
// この行は参考情報であり、行が存在しなくてもトークンは有効とみなされる。
// ただしRevokedAtが設定された行は検証時に拒否される。
type SessionToken struct {
	ID         string
	IdentityID string
	Token      string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// AnalyticsEvent はユーザー行動の観測レコードを表す。
// 追記専用であり、作成後に更新・削除されることはない。
type AnalyticsEvent struct {
	ID         string
	IdentityID string
	Action     string
	Details    map[string]any
	RemoteAddr string
	CreatedAt  time.Time
}

// 定義済みのアナリティクスアクション。
const (
	// ActionLogin はログイン成功を表す。
	ActionLogin = "login"
	// ActionDesktopAccess はデスクトップアプリからのAPIキー認証を表す。
	ActionDesktopAccess = "desktop-access"
	// ActionExternalSync は外部会員システムからの同期によるアカウント作成を表す。
	ActionExternalSync = "external-sync"
)
