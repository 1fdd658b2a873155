package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/librarian/internal/metrics"
)

const breakerName = "model-service"

// newBreaker はモデル呼び出し用のサーキットブレーカーを生成する。
// 再試行込みの1回の論理呼び出しが連続BreakerFailures回失敗すると開き、
// BreakerTimeout経過後にhalf-openで1件だけ試す。BreakerFailuresが0以下なら開かない。
// 4xxなどリクエスト固有の失敗と呼び出し元のキャンセルはサービスの死活に数えない。
func newBreaker(cfg Config, logger *slog.Logger, mc metrics.MetricsCollector) *gobreaker.CircuitBreaker[string] {
	mc.SetModelBreakerState(int(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.BreakerFailures <= 0 {
				return false
			}
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		IsExcluded: func(err error) bool {
			return isRequestError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			mc.SetModelBreakerState(int(to))
		},
	})
}
