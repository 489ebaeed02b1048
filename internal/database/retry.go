package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// RetryPolicy は再接続付きリトライの設定。
type RetryPolicy struct {
	// MaxAttempts は初回を含む最大試行回数。1以下の場合はリトライしない。
	MaxAttempts int
	// BaseDelay は指数バックオフの初回遅延。
	BaseDelay time.Duration
	// MaxDelay はバックオフ遅延の上限。
	MaxDelay time.Duration
	// Reset はリトライ前に呼ばれる再接続フック。nilの場合は呼ばない。
	Reset func(ctx context.Context) error
}

// DefaultRetryPolicy はデフォルトのリトライ設定を返す。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// jitter は[0, d]の範囲で遅延をランダム化する。テストで差し替える。
var jitter = func(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

// Retry はopを実行し、リトライ可能なエラーの場合に限り
// Resetで再接続してから指数バックオフ（フルジッター）で再試行する。
// 試行回数がMaxAttemptsに達するか、リトライ不可能なエラー、
// またはコンテキストのキャンセルで終了する。
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%w (last error: %v)", ctxErr, err)
			}
			return ctxErr
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= attempts {
			return err
		}

		delay := jitter(BackoffDelay(attempt, policy.BaseDelay, policy.MaxDelay))
		slog.Warn("database operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}

		if policy.Reset != nil {
			if resetErr := policy.Reset(ctx); resetErr != nil {
				slog.Warn("database reconnect failed",
					slog.String("error", resetErr.Error()),
				)
			}
		}
	}
}

// BackoffDelay はattempt回目の失敗後の遅延上限を返す。
// base * 2^(attempt-1) をmaxで頭打ちにする。
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// IsRetryable は再接続して再試行すべきエラーかどうかを判定する。
// プリペアドステートメントの重複・消失（プーラー経由の接続で発生する）と
// 接続断系のエラーのみを対象とする。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P05", // duplicate_prepared_statement
			"26000": // invalid_sql_statement_name
			return true
		}
		// Class 08: connection_exception
		return pqErr.Code.Class() == "08"
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// ResetIdleConns はプール内のアイドル接続を破棄する再接続フックを返す。
// 壊れたプリペアドステートメントを保持した接続を次回の取得時に作り直させる。
func ResetIdleConns(db *sqlx.DB, maxIdle int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		db.SetMaxIdleConns(0)
		db.SetMaxIdleConns(maxIdle)
		return db.PingContext(ctx)
	}
}

// PingWithRetry は再接続付きリトライでデータベースへの疎通を確認する。
func PingWithRetry(ctx context.Context, db *sqlx.DB, policy RetryPolicy) error {
	if policy.Reset == nil {
		policy.Reset = ResetIdleConns(db, DefaultPoolConfig().MaxIdleConns)
	}
	return Retry(ctx, policy, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
}
