// Package cleanup はセッション管理用KVキーの定期クリーンアップジョブを提供する。
// KVストアのTTLで消えずに残ったrefresh_token:、blacklist:、rate_limit:の
// キーを削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/expenfyre/internal/auth"
)

// Sweeper は期限切れキーの削除を実行するインターフェース。
// *auth.TokenService が実装する。
type Sweeper interface {
	Cleanup(ctx context.Context) (auth.CleanupResult, error)
}

// Recorder は削除件数の記録先。nilの場合は記録しない。
type Recorder interface {
	RecordCleanupDeleted(kind string, count int)
}

// CleanupJob は期限切れキーの定期削除ジョブ。
// 何度実行しても結果が変わらない冪等な処理として設計されている。
type CleanupJob struct {
	sweeper  Sweeper
	recorder Recorder
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sweeper Sweeper, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sweeper:  sweeper,
		recorder: recorder,
		logger:   logger,
	}
}

// Run は期限切れキーを1回削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (auth.CleanupResult, error) {
	start := time.Now()

	result, err := j.sweeper.Cleanup(ctx)
	j.record(result)
	if err != nil {
		j.logger.Error("KVクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("deleted_count", result.Total()),
		)
		return result, fmt.Errorf("KVクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("KVクリーンアップジョブが完了しました",
		slog.Int("refresh_tokens", result.RefreshTokens),
		slog.Int("blacklist", result.Blacklist),
		slog.Int("rate_limits", result.RateLimits),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return result, nil
}

// Start は起動直後と以降interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", interval))

	_, _ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}

func (j *CleanupJob) record(result auth.CleanupResult) {
	if j.recorder == nil {
		return
	}
	j.recorder.RecordCleanupDeleted("refresh_token", result.RefreshTokens)
	j.recorder.RecordCleanupDeleted("blacklist", result.Blacklist)
	j.recorder.RecordCleanupDeleted("rate_limit", result.RateLimits)
}
