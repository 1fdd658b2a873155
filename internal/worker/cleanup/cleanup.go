// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// ワーカープロセスで起動直後に1回、その後は一定間隔（デフォルト24時間）で実行する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はクリーンアップジョブのデフォルト実行間隔。
const DefaultInterval = 24 * time.Hour

// SessionPurger は期限切れセッションの削除を抽象化するインターフェース。
// repository.SessionRepositoryが満たす。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 削除対象がなくてもエラーにならず、何度実行してもよい。
type CleanupJob struct {
	sessions SessionPurger
	logger   *slog.Logger
	Interval time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// intervalが0以下の場合はDefaultIntervalを使う。
func NewCleanupJob(sessions SessionPurger, logger *slog.Logger, interval time.Duration) *CleanupJob {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		Interval: interval,
	}
}

// Run は期限切れのセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はctxがキャンセルされるまでジョブを定期実行する（ブロッキング）。
// 起動直後に1回実行する。個々の実行の失敗はログに記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
