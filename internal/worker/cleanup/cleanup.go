// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 期限切れセッションは検証時にも個別に削除されるが、
// 二度と使われないトークンの行はこのジョブで一括削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/linkpulse/internal/metrics"
)

// DefaultInterval は既定の実行間隔。
const DefaultInterval = time.Hour

// ExpiredSessionDeleter は期限切れセッションの一括削除インターフェース。
// *session.Storeが満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepJob は期限切れセッションの削除ジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は同じ。
type SweepJob struct {
	sessions  ExpiredSessionDeleter
	logger    *slog.Logger
	collector metrics.MetricsCollector
	now       func() time.Time
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(sessions ExpiredSessionDeleter, logger *slog.Logger, collector metrics.MetricsCollector) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &SweepJob{
		sessions:  sessions,
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// Run はexpiryが現在時刻より前のセッションを削除する。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}
	j.collector.RecordSessionsSwept(deletedCount)

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はinterval間隔でRunを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	// エラーはRun内でログ出力済み
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
