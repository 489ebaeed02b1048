// Package periodic は名前付きジョブを一定間隔で実行するランナーを提供する。
package periodic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job は定期実行するジョブ。
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner は登録されたジョブを起動直後に1回実行し、以後は各ジョブの間隔で実行する。
// 同じジョブの実行は重ならない。前回の実行が間隔を超えた場合は次のティックを待つ。
type Runner struct {
	logger *slog.Logger
	jobs   []Job
}

// NewRunner はRunnerの新しいインスタンスを生成する。
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Add はジョブを登録する。Intervalが0以下のジョブは登録できない。
func (r *Runner) Add(job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run func is nil", job.Name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Start はすべてのジョブを起動し、ctxがキャンセルされて全ジョブが止まるまでブロックする。
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range r.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	r.logger.Info("定期ジョブを開始しました",
		slog.String("job", job.Name),
		slog.Duration("interval", job.Interval),
	)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	// 起動直後に1回実行
	r.runOnce(ctx, job)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("定期ジョブを停止しました", slog.String("job", job.Name))
			return
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

// runOnce はジョブを1回実行する。エラーとパニックはログに記録して継続する。
func (r *Runner) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("定期ジョブでパニックが発生しました",
				slog.String("job", job.Name),
				slog.Any("panic", p),
			)
		}
	}()

	if err := job.Run(ctx); err != nil {
		r.logger.Error("定期ジョブの実行に失敗しました",
			slog.String("job", job.Name),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		return
	}
	r.logger.Debug("定期ジョブが完了しました",
		slog.String("job", job.Name),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
