// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, recommendation, book, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeRecommendationNotFound  = "RECOMMENDATION_NOT_FOUND"
	ErrCodeRecommendationForbidden = "RECOMMENDATION_FORBIDDEN"
	ErrCodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
	ErrCodeBookNotFound            = "BOOK_NOT_FOUND"
	ErrCodeRateLimited             = "RATE_LIMITED"
	ErrCodeCSRFInvalid             = "CSRF_TOKEN_INVALID"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewRecommendationNotFoundError は推薦履歴が見つからない場合のエラーを生成する。
func NewRecommendationNotFoundError(recommendationID string) *APIError {
	return &APIError{
		Code:     ErrCodeRecommendationNotFound,
		Message:  fmt.Sprintf("指定された推薦履歴が見つかりません: %s", recommendationID),
		Category: "recommendation",
		Action:   "推薦履歴IDを確認してください。",
	}
}

// NewRecommendationForbiddenError は他の読者の推薦履歴を変更しようとした場合のエラーを生成する。
func NewRecommendationForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeRecommendationForbidden,
		Message:  "この推薦履歴を変更する権限がありません。",
		Category: "auth",
		Action:   "自分の推薦履歴のみ変更できます。",
	}
}

// NewServiceUnavailableError は推薦サービスが利用できない場合のエラーを生成する。
// モデル経路とデータベースフォールバックの両方が失敗した場合にのみ使用する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  "推薦サービスは現在利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBookNotFoundError は蔵書が見つからない場合のエラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された蔵書が見つかりません: %s", bookID),
		Category: "book",
		Action:   "蔵書IDを確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
