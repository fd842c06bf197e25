// Package cleanup は期限切れOAuth stateトークンの定期削除ジョブを提供する。
// 消費されないまま有効期限を過ぎたstateを一括削除し、テーブルの肥大化を防ぐ。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StateSweeper は期限切れstateを削除するインターフェース。
// auth.StateStoreが実装する。
type StateSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepObserver は削除件数の通知先。
type SweepObserver interface {
	RecordStatesSwept(count int64)
}

// StateSweepJob は期限切れstateトークンの削除ジョブ。
// 削除は冪等で、複数プロセスから同時に実行されても安全。
type StateSweepJob struct {
	sweeper  StateSweeper
	observer SweepObserver
	logger   *slog.Logger
}

// NewStateSweepJob は新しいStateSweepJobを生成する。observerはnil可。
func NewStateSweepJob(sweeper StateSweeper, observer SweepObserver, logger *slog.Logger) *StateSweepJob {
	return &StateSweepJob{
		sweeper:  sweeper,
		observer: observer,
		logger:   logger,
	}
}

// Run は期限切れstateを1回削除する。
// 削除対象がない場合でもエラーにならない。
func (j *StateSweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		j.logger.Error("stateクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("stateクリーンアップの実行に失敗: %w", err)
	}

	if j.observer != nil {
		j.observer.RecordStatesSwept(deleted)
	}

	j.logger.Info("stateクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は指定間隔のティッカーでジョブを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *StateSweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("stateクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	// 失敗はRun内でログ出力済み。次のティックで再試行する
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("stateクリーンアップを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
