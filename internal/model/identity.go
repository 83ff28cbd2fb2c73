// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はローカルの会員アカウントを表す。
// 外部会員システムのアカウントをシャドウする場合はExternalMemberIDが設定される。
type Identity struct {
	ID                    string
	Username              string
	Email                 string
	PasswordHash          string
	SubscriptionStatus    SubscriptionStatus
	SubscriptionExpiresAt *time.Time
	ExternalMemberID      *int64
	APIKey                *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SubscriptionStatus はサブスクリプションの状態を表す。
type SubscriptionStatus string

const (
	// SubscriptionActive は有効なサブスクリプション状態。
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionExpired は期限切れのサブスクリプション状態。
	SubscriptionExpired SubscriptionStatus = "expired"
	// SubscriptionSuspended は停止されたサブスクリプション状態。
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

// IsValid はサブスクリプション状態が定義済みの値かどうかを返す。
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionActive, SubscriptionExpired, SubscriptionSuspended:
		return true
	}
	return false
}

// HasActiveSubscription はIdentityのサブスクリプションが現在有効かどうかを返す。
// 状態がactiveであり、かつ期限が未設定または未来であることを条件とする。
func (i *Identity) HasActiveSubscription(now time.Time) bool {
	if i.SubscriptionStatus != SubscriptionActive {
		return false
	}
	if i.SubscriptionExpiresAt != nil && i.SubscriptionExpiresAt.Before(now) {
		return false
	}
	return true
}
