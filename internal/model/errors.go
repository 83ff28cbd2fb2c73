package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, credential, authorization, conflict, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ。ハンドラー層でHTTPステータスへの変換に使用する。
const (
	CategoryValidation    = "validation"
	CategoryCredential    = "credential"
	CategoryAuthorization = "authorization"
	CategoryConflict      = "conflict"
	CategoryUpstream      = "upstream"
	CategorySystem        = "system"
)

// 定義済みエラーコード
const (
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidPayload       = "INVALID_PAYLOAD"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeSubscriptionInactive = "SUBSCRIPTION_INACTIVE"
	ErrCodeSubscriptionExpired  = "SUBSCRIPTION_EXPIRED"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodeUpstreamFailed       = "UPSTREAM_FAILED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewMissingFieldError は必須フィールド未指定エラーを生成する。
func NewMissingFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("必須フィールドが指定されていません: %s", field),
		Category: CategoryValidation,
		Action:   fmt.Sprintf("%s を指定してください。", field),
	}
}

// NewInvalidPayloadError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "リクエストボディの形式を確認してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 識別子不明とシークレット不一致を区別しない統一メッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "認証情報が正しくありません。",
		Category: CategoryCredential,
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewInvalidTokenError はトークン検証失敗エラーを生成する。
// 署名不一致・形式不正・期限切れを区別しない統一メッセージを返す。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効です。",
		Category: CategoryCredential,
		Action:   "再度ログインしてください。",
	}
}

// NewSubscriptionInactiveError はサブスクリプションが有効でない場合のエラーを生成する。
// 認証自体は成功しているため、理由を明示してよい。
func NewSubscriptionInactiveError(status SubscriptionStatus) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionInactive,
		Message:  fmt.Sprintf("サブスクリプションが有効ではありません（状態: %s）。", status),
		Category: CategoryAuthorization,
		Action:   "サブスクリプションの更新手続きを行ってください。",
	}
}

// NewSubscriptionExpiredError はサブスクリプション期限切れエラーを生成する。
func NewSubscriptionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionExpired,
		Message:  "サブスクリプションの有効期限が切れています。",
		Category: CategoryAuthorization,
		Action:   "サブスクリプションの更新手続きを行ってください。",
	}
}

// NewAlreadyExistsError は一意性制約違反エラーを生成する。
func NewAlreadyExistsError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyExists,
		Message:  fmt.Sprintf("既に登録されています: %s", field),
		Category: CategoryConflict,
		Action:   "別の値を指定してください。",
	}
}

// NewUpstreamError は外部会員システム呼び出し失敗エラーを生成する。
// 詳細はログのみに記録し、呼び出し元には概要のみを返す。
func NewUpstreamError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "外部会員システムへのアクセスに失敗しました。",
		Category: CategoryUpstream,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}
