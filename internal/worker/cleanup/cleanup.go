// Package cleanup は期限切れトークンの自動削除ジョブを提供する。
// 期限切れ・失効済みのリフレッシュトークンと、期限切れ・消費済みの
// 確認トークンを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れトークンの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// 失効済みトークンはGracePeriod（デフォルト30日）の間は監査のために残す。
type CleanupJob struct {
	db          Executor
	logger      *slog.Logger
	GracePeriod time.Duration // 失効済みトークンの保持期間（デフォルト: 30日）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:          db,
		logger:      logger,
		GracePeriod: 30 * 24 * time.Hour,
	}
}

// Run は不要になったトークンを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := time.Now().Add(-j.GracePeriod)

	refreshDeleted, err := j.exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`,
		cutoff,
	)
	if err != nil {
		j.logger.Error("refresh token cleanup failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to clean up refresh tokens: %w", err)
	}

	verifyDeleted, err := j.exec(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < $1 OR (consumed_at IS NOT NULL AND consumed_at < $1)`,
		cutoff,
	)
	if err != nil {
		j.logger.Error("verification token cleanup failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to clean up verification tokens: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("token cleanup job completed",
		slog.Int64("refresh_tokens_deleted", refreshDeleted),
		slog.Int64("verification_tokens_deleted", verifyDeleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// exec はDELETE文を実行し、削除件数を返す。
func (j *CleanupJob) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunPeriodically は指定間隔でRunを繰り返し実行する。
// コンテキストのキャンセルで停止する。起動直後に一度実行する。
func (j *CleanupJob) RunPeriodically(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("initial cleanup run failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup run failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			return
		}
	}
}
