package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// maxRetryBackoff は再試行間隔の上限。
const maxRetryBackoff = 10 * time.Second

// statusError はモデルサービスが2xx以外を返したことを表す。
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("モデルサービスがステータス %d を返しました", e.StatusCode)
}

// permanentError は再試行しても結果が変わらない失敗を表す。
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// CalculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// retry=0で base、以降2倍ずつ増加し、最大10秒。
func CalculateBackoff(base time.Duration, retry int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay > maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	if delay > maxRetryBackoff {
		return maxRetryBackoff
	}
	return delay
}

// isRetryable は通信エラー・タイムアウト・非2xxを再試行対象と判定する。
func isRetryable(err error) bool {
	var pe *permanentError
	return !errors.As(err, &pe)
}

// failureReason はメトリクス用に失敗を分類する。
func failureReason(err error) string {
	var se *statusError
	var pe *permanentError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &se):
		return "status"
	case errors.As(err, &pe):
		return "invalid_response"
	default:
		return "transport"
	}
}

// isRequestError はリクエスト内容に起因する4xx（存在しないモデル名など）を判定する。
// 408と429はサービス側の混雑として扱い、対象外とする。
func isRequestError(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case 408, 429:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}
