package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ハンドラーはCodeからHTTPステータスを決定する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, group, expense, budget, file, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMIT_EXCEEDED"
	ErrCodeUpstream     = "UPSTREAM_ERROR"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// NewValidationError は入力不備のエラーを生成する。
func NewValidationError(format string, args ...any) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf(format, args...),
		Category: "validation",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
// 失敗の理由は呼び出し元に区別させない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
	}
}

// NewAccessDeniedError はホワイトリスト未登録のエラーを生成する。
func NewAccessDeniedError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  fmt.Sprintf("Access denied for %s", email),
		Category: "auth",
	}
}

// NewForbiddenError は権限不足のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "group",
	}
}

// NewNotFoundError は対象が存在しない（または閲覧権限がない）場合のエラーを生成する。
func NewNotFoundError(kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind, id),
		Category: kind,
	}
}

// NewRateLimitedError はトークン発行のレート制限超過エラーを生成する。
func NewRateLimitedError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  fmt.Sprintf("Rate limit exceeded for %s. Please try again later.", operation),
		Category: "auth",
	}
}

// NewUpstreamError は外部API（Sheets, OAuth）の失敗を生成する。
// 上流のエラーメッセージをそのまま含める。
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("%s request failed: %v", service, err),
		Category: "system",
	}
}
