package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// MaxReconcileBatch は1回の照合で扱う最大行数。
const MaxReconcileBatch = 20

// Upstream は照合で参照する動画APIのインターフェース。
type Upstream interface {
	GetUpload(ctx context.Context, uploadID string) (*Upload, error)
	GetAsset(ctx context.Context, assetID string) (*Asset, error)
}

// SyncStore は照合で使う動画行の永続化インターフェース。
type SyncStore interface {
	FindByID(ctx context.Context, id string) (*model.Video, error)
	ListNeedingSync(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error)
	UpdateStatus(ctx context.Context, id string, update model.VideoStatusUpdate) error
}

// Result は1行分の照合結果。
type Result struct {
	ID             string            `json:"id"`
	Status         model.VideoStatus `json:"status"`
	PreviousStatus model.VideoStatus `json:"previous_status"`
	Updated        bool              `json:"updated"`
	Error          string            `json:"error,omitempty"`
}

// Report は1回の照合全体の結果。
type Report struct {
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Results   []Result `json:"results"`
}

// Reconciler はローカルの動画行を動画APIの状態に合わせる。
// 同一プロセス内で同時に呼ばれた照合は1回の実行を共有する。
// プロセスをまたぐ同時実行は制御しないため、同じ行への書き込みは後勝ちになる。
type Reconciler struct {
	store      SyncStore
	upstream   Upstream
	collector  metrics.MetricsCollector
	logger     *slog.Logger
	staleAfter time.Duration
	now        func() time.Time
	group      singleflight.Group
}

// NewReconciler はReconcilerを生成する。
// staleAfterはprocessingのまま放置された行を対象にするまでの時間（既定2分）。
func NewReconciler(store SyncStore, upstream Upstream, collector metrics.MetricsCollector, logger *slog.Logger, staleAfter time.Duration) *Reconciler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &Reconciler{
		store:      store,
		upstream:   upstream,
		collector:  collector,
		logger:     logger,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Reconcile は照合を実行する。videoIDが空の場合は照合が必要な行を最大20件選ぶ。
// 行ごとの失敗は結果に記録し、エラーとしては返さない。
func (r *Reconciler) Reconcile(ctx context.Context, videoID string) *Report {
	key := "batch"
	if videoID != "" {
		key = "video:" + videoID
	}

	v, _, shared := r.group.Do(key, func() (any, error) {
		return r.run(ctx, videoID), nil
	})
	if shared {
		r.logger.Debug("実行中の照合結果を共有しました", slog.String("key", key))
	}
	return v.(*Report)
}

func (r *Reconciler) run(ctx context.Context, videoID string) *Report {
	start := time.Now()

	videos, err := r.selectRows(ctx, videoID)
	if err != nil {
		r.logger.Error("照合対象の取得に失敗しました",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
		report := &Report{Results: []Result{}}
		if videoID != "" {
			report.Processed = 1
			report.Results = append(report.Results, Result{ID: videoID, Error: err.Error()})
			r.collector.RecordVideoReconcile(metrics.ReconcileError)
		}
		return report
	}

	results := make([]Result, len(videos))
	var wg sync.WaitGroup
	for i, v := range videos {
		wg.Add(1)
		go func(i int, v *model.Video) {
			defer wg.Done()
			results[i] = r.reconcileOne(ctx, v)
		}(i, v)
	}
	wg.Wait()

	report := &Report{Processed: len(results), Results: results}
	for _, res := range results {
		switch {
		case res.Error != "":
			r.collector.RecordVideoReconcile(metrics.ReconcileError)
		case res.Updated:
			report.Updated++
			r.collector.RecordVideoReconcile(metrics.ReconcileUpdated)
		default:
			r.collector.RecordVideoReconcile(metrics.ReconcileUnchanged)
		}
	}

	r.logger.Info("動画ステータスの照合が完了しました",
		slog.Int("processed", report.Processed),
		slog.Int("updated", report.Updated),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return report
}

func (r *Reconciler) selectRows(ctx context.Context, videoID string) ([]*model.Video, error) {
	if videoID == "" {
		videos, err := r.store.ListNeedingSync(ctx, MaxReconcileBatch, r.now().Add(-r.staleAfter))
		if err != nil {
			return nil, err
		}
		active := make([]*model.Video, 0, len(videos))
		for _, v := range videos {
			if v.InFlight() {
				active = append(active, v)
			}
		}
		return active, nil
	}
	v, err := r.store.FindByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.New("video not found")
	}
	return []*model.Video{v}, nil
}

// reconcileOne は1行を照合する。パニックも結果のエラーとして扱う。
func (r *Reconciler) reconcileOne(ctx context.Context, v *model.Video) (res Result) {
	res = Result{ID: v.ID, Status: v.Status, PreviousStatus: v.Status}
	defer func() {
		if p := recover(); p != nil {
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		if res.Error != "" {
			r.logger.Warn("動画の照合に失敗しました",
				slog.String("video_id", v.ID),
				slog.String("error", res.Error),
			)
		}
	}()

	update, err := r.observe(ctx, v)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	if update.Status != v.Status && !canReach(v.Status, update.Status) {
		res.Error = fmt.Sprintf("invalid transition %s -> %s", v.Status, update.Status)
		return res
	}

	if !changed(v, update) {
		return res
	}

	if err := r.store.UpdateStatus(ctx, v.ID, update); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Status = update.Status
	res.Updated = true
	return res
}

// observe は動画APIの状態から書き戻すべき値を組み立てる。
func (r *Reconciler) observe(ctx context.Context, v *model.Video) (model.VideoStatusUpdate, error) {
	update := model.VideoStatusUpdate{
		Status:        v.Status,
		MuxAssetID:    v.MuxAssetID,
		MuxPlaybackID: v.MuxPlaybackID,
		Duration:      v.Duration,
		AspectRatio:   v.AspectRatio,
	}

	assetID := v.MuxAssetID
	if assetID == "" {
		if v.MuxUploadID == "" {
			return update, errors.New("video has neither upload id nor asset id")
		}
		upload, err := r.upstream.GetUpload(ctx, v.MuxUploadID)
		if err != nil {
			return update, err
		}
		switch upload.Status {
		case UploadErrored, UploadCancelled:
			update.Status = model.VideoStatusError
			return update, nil
		case UploadTimedOut:
			update.Status = model.VideoStatusNeedsUpload
			return update, nil
		case UploadAssetCreated:
			assetID = upload.AssetID
		}
		if assetID == "" {
			return update, nil
		}
	}

	asset, err := r.upstream.GetAsset(ctx, assetID)
	if err != nil {
		return update, err
	}

	update.MuxAssetID = asset.ID
	if update.MuxAssetID == "" {
		update.MuxAssetID = assetID
	}
	if pid := asset.PrimaryPlaybackID(); pid != "" {
		update.MuxPlaybackID = pid
	}

	switch asset.Status {
	case AssetPreparing:
		update.Status = model.VideoStatusProcessing
	case AssetReady:
		update.Status = model.VideoStatusReady
		if asset.Duration > 0 {
			d := asset.Duration
			update.Duration = &d
		}
		if asset.AspectRatio != "" {
			update.AspectRatio = asset.AspectRatio
		}
	case AssetErrored:
		update.Status = model.VideoStatusError
	}
	return update, nil
}

func changed(v *model.Video, u model.VideoStatusUpdate) bool {
	if v.Status != u.Status || v.MuxAssetID != u.MuxAssetID ||
		v.MuxPlaybackID != u.MuxPlaybackID || v.AspectRatio != u.AspectRatio {
		return true
	}
	switch {
	case v.Duration == nil && u.Duration == nil:
		return false
	case v.Duration == nil || u.Duration == nil:
		return true
	default:
		return *v.Duration != *u.Duration
	}
}
