package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// --- モック ---

type mockSyncStore struct {
	mu        sync.Mutex
	findFn    func(ctx context.Context, id string) (*model.Video, error)
	listFn    func(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error)
	updateErr map[string]error
	updates   map[string]model.VideoStatusUpdate
}

func (m *mockSyncStore) FindByID(ctx context.Context, id string) (*model.Video, error) {
	if m.findFn != nil {
		return m.findFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSyncStore) ListNeedingSync(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, staleBefore)
	}
	return nil, nil
}

func (m *mockSyncStore) UpdateStatus(ctx context.Context, id string, update model.VideoStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[id]; err != nil {
		return err
	}
	if m.updates == nil {
		m.updates = make(map[string]model.VideoStatusUpdate)
	}
	m.updates[id] = update
	return nil
}

func rows(videos ...*model.Video) *mockSyncStore {
	return &mockSyncStore{
		listFn: func(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error) {
			return videos, nil
		},
	}
}

// one はFindByIDで指定の行を返すストアを作る。
func one(v *model.Video) *mockSyncStore {
	return &mockSyncStore{
		findFn: func(ctx context.Context, id string) (*model.Video, error) {
			if id == v.ID {
				return v, nil
			}
			return nil, nil
		},
	}
}

type mockUpstream struct {
	uploads map[string]*Upload
	assets  map[string]*Asset
	errs    map[string]error
	panicOn string
}

func (m *mockUpstream) GetUpload(ctx context.Context, id string) (*Upload, error) {
	if id == m.panicOn {
		panic("upstream exploded")
	}
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	if u, ok := m.uploads[id]; ok {
		return u, nil
	}
	return nil, ErrUpstreamNotFound
}

func (m *mockUpstream) GetAsset(ctx context.Context, id string) (*Asset, error) {
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	if a, ok := m.assets[id]; ok {
		return a, nil
	}
	return nil, ErrUpstreamNotFound
}

type mockCollector struct {
	metrics.NopCollector
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *mockCollector) RecordVideoReconcile(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func uploadingRow(id, uploadID string) *model.Video {
	return &model.Video{
		ID:            id,
		Status:        model.VideoStatusUploading,
		MuxUploadID:   uploadID,
		MuxPlaybackID: model.PlaceholderPlaybackPrefix + id,
	}
}

func newTestReconciler(store SyncStore, upstream Upstream, collector metrics.MetricsCollector) *Reconciler {
	return NewReconciler(store, upstream, collector, quietLogger(), 2*time.Minute)
}

// --- テスト ---

func TestReconciler_BatchSelection(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var gotLimit int
	var gotStale time.Time
	store := &mockSyncStore{
		listFn: func(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error) {
			gotLimit, gotStale = limit, staleBefore
			return nil, nil
		},
	}
	r := newTestReconciler(store, &mockUpstream{}, nil)
	r.now = func() time.Time { return now }

	report := r.Reconcile(context.Background(), "")

	if gotLimit != MaxReconcileBatch {
		t.Errorf("limit = %d, want %d", gotLimit, MaxReconcileBatch)
	}
	if !gotStale.Equal(now.Add(-2 * time.Minute)) {
		t.Errorf("staleBefore = %v", gotStale)
	}
	if report.Processed != 0 || report.Results == nil {
		t.Errorf("report = %+v, want empty results array", report)
	}
}

func TestReconciler_Transitions(t *testing.T) {
	store := rows(
		uploadingRow("ready", "up-ready"),
		uploadingRow("errored", "up-errored"),
		uploadingRow("cancelled", "up-cancelled"),
		uploadingRow("timedout", "up-timedout"),
		uploadingRow("preparing", "up-preparing"),
		uploadingRow("waiting", "up-waiting"),
	)
	upstream := &mockUpstream{
		uploads: map[string]*Upload{
			"up-ready":     {ID: "up-ready", Status: UploadAssetCreated, AssetID: "as-ready"},
			"up-errored":   {ID: "up-errored", Status: UploadErrored},
			"up-cancelled": {ID: "up-cancelled", Status: UploadCancelled},
			"up-timedout":  {ID: "up-timedout", Status: UploadTimedOut},
			"up-preparing": {ID: "up-preparing", Status: UploadAssetCreated, AssetID: "as-preparing"},
			"up-waiting":   {ID: "up-waiting", Status: UploadWaiting},
		},
		assets: map[string]*Asset{
			"as-ready": {ID: "as-ready", Status: AssetReady, Duration: 61.2, AspectRatio: "16:9",
				PlaybackIDs: []PlaybackID{{ID: "pb-ready", Policy: "signed"}}},
			"as-preparing": {ID: "as-preparing", Status: AssetPreparing,
				PlaybackIDs: []PlaybackID{{ID: "pb-preparing", Policy: "signed"}}},
		},
	}

	report := newTestReconciler(store, upstream, nil).Reconcile(context.Background(), "")

	if report.Processed != 6 || report.Updated != 5 {
		t.Fatalf("report = %+v, want 6 processed and 5 updated", report)
	}

	want := map[string]model.VideoStatus{
		"ready":     model.VideoStatusReady,
		"errored":   model.VideoStatusError,
		"cancelled": model.VideoStatusError,
		"timedout":  model.VideoStatusNeedsUpload,
		"preparing": model.VideoStatusProcessing,
	}
	for id, status := range want {
		if got := store.updates[id].Status; got != status {
			t.Errorf("%s status = %q, want %q", id, got, status)
		}
	}
	if _, ok := store.updates["waiting"]; ok {
		t.Error("waiting upload must not be written")
	}

	ready := store.updates["ready"]
	if ready.MuxAssetID != "as-ready" || ready.MuxPlaybackID != "pb-ready" || ready.AspectRatio != "16:9" {
		t.Errorf("ready update = %+v", ready)
	}
	if ready.Duration == nil || *ready.Duration != 61.2 {
		t.Errorf("ready duration = %v", ready.Duration)
	}
	if store.updates["preparing"].MuxPlaybackID != "pb-preparing" {
		t.Errorf("placeholder should be replaced once a playback id exists")
	}

	for i, res := range report.Results {
		if res.PreviousStatus != model.VideoStatusUploading {
			t.Errorf("results[%d].PreviousStatus = %q", i, res.PreviousStatus)
		}
	}
	if report.Results[0].ID != "ready" || report.Results[0].Status != model.VideoStatusReady || !report.Results[0].Updated {
		t.Errorf("results[0] = %+v", report.Results[0])
	}
}

func TestReconciler_UnchangedRowIsNotWritten(t *testing.T) {
	d := 30.0
	row := &model.Video{
		ID: "v1", Status: model.VideoStatusReady, MuxAssetID: "as1", MuxPlaybackID: "pb1",
		Duration: &d, AspectRatio: "9:16",
	}
	upstream := &mockUpstream{assets: map[string]*Asset{
		"as1": {ID: "as1", Status: AssetReady, Duration: 30, AspectRatio: "9:16", PlaybackIDs: []PlaybackID{{ID: "pb1"}}},
	}}
	store := one(row)
	collector := &mockCollector{}

	report := newTestReconciler(store, upstream, collector).Reconcile(context.Background(), "v1")

	if len(store.updates) != 0 {
		t.Errorf("updates = %v, want none", store.updates)
	}
	if report.Updated != 0 || report.Results[0].Updated {
		t.Errorf("report = %+v", report)
	}
	if collector.outcomes[metrics.ReconcileUnchanged] != 1 {
		t.Errorf("outcomes = %v", collector.outcomes)
	}
}

// TestReconciler_RowFailuresAreSettled は1行の失敗が他の行を妨げないことを検証する。
func TestReconciler_RowFailuresAreSettled(t *testing.T) {
	store := rows(
		uploadingRow("bad-upstream", "up-bad"),
		uploadingRow("panics", "up-panic"),
		uploadingRow("write-fails", "up-write"),
		&model.Video{ID: "no-ids", Status: model.VideoStatusProcessing},
		uploadingRow("ok", "up-ok"),
	)
	store.updateErr = map[string]error{"write-fails": errors.New("db down")}
	upstream := &mockUpstream{
		uploads: map[string]*Upload{
			"up-write": {Status: UploadErrored},
			"up-ok":    {Status: UploadErrored},
		},
		errs:    map[string]error{"up-bad": errors.New("503 from upstream")},
		panicOn: "up-panic",
	}
	collector := &mockCollector{}

	report := newTestReconciler(store, upstream, collector).Reconcile(context.Background(), "")

	if report.Processed != 5 || report.Updated != 1 {
		t.Fatalf("report = %+v", report)
	}
	for _, res := range report.Results {
		wantErr := res.ID != "ok"
		if (res.Error != "") != wantErr {
			t.Errorf("%s error = %q, wantErr %v", res.ID, res.Error, wantErr)
		}
	}
	if collector.outcomes[metrics.ReconcileError] != 4 || collector.outcomes[metrics.ReconcileUpdated] != 1 {
		t.Errorf("outcomes = %v", collector.outcomes)
	}
}

func TestReconciler_RejectsInvalidTransition(t *testing.T) {
	row := &model.Video{ID: "v1", Status: model.VideoStatusReady, MuxAssetID: "as1", MuxPlaybackID: "pb1"}
	upstream := &mockUpstream{assets: map[string]*Asset{
		"as1": {ID: "as1", Status: AssetErrored, PlaybackIDs: []PlaybackID{{ID: "pb1"}}},
	}}
	store := one(row)

	report := newTestReconciler(store, upstream, nil).Reconcile(context.Background(), "v1")

	if report.Results[0].Error == "" || len(store.updates) != 0 {
		t.Errorf("ready -> error must not be written: %+v", report.Results[0])
	}
}

// TestReconciler_TerminalRowsDoNotStarveBatch は仮IDのまま残る終端状態の行が
// 新しいアップロードの照合を妨げないことを検証する。
func TestReconciler_TerminalRowsDoNotStarveBatch(t *testing.T) {
	var batch []*model.Video
	for i := 0; i < MaxReconcileBatch; i++ {
		id := fmt.Sprintf("old-%02d", i)
		status := model.VideoStatusError
		if i%2 == 0 {
			status = model.VideoStatusNeedsUpload
		}
		batch = append(batch, &model.Video{
			ID:            id,
			Status:        status,
			MuxUploadID:   "up-" + id,
			MuxPlaybackID: model.PlaceholderPlaybackPrefix + id,
		})
	}
	batch = append(batch, uploadingRow("fresh", "up-fresh"))
	store := rows(batch...)
	upstream := &mockUpstream{
		uploads: map[string]*Upload{
			"up-fresh": {ID: "up-fresh", Status: UploadAssetCreated, AssetID: "as-fresh"},
		},
		assets: map[string]*Asset{
			"as-fresh": {ID: "as-fresh", Status: AssetReady, PlaybackIDs: []PlaybackID{{ID: "pb-fresh"}}},
		},
	}
	collector := &mockCollector{}

	report := newTestReconciler(store, upstream, collector).Reconcile(context.Background(), "")

	if report.Processed != 1 || report.Updated != 1 {
		t.Fatalf("report = %+v, want only the fresh upload", report)
	}
	if got := store.updates["fresh"].Status; got != model.VideoStatusReady {
		t.Errorf("fresh status = %q, want %q", got, model.VideoStatusReady)
	}
	if collector.outcomes[metrics.ReconcileError] != 0 {
		t.Errorf("terminal rows must not be reported as errors: %v", collector.outcomes)
	}
}

func TestReconciler_SingleVideo(t *testing.T) {
	store := &mockSyncStore{
		findFn: func(ctx context.Context, id string) (*model.Video, error) {
			if id == "v1" {
				return uploadingRow("v1", "up1"), nil
			}
			return nil, nil
		},
		listFn: func(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error) {
			t.Error("single-video reconcile must not list the batch")
			return nil, nil
		},
	}
	upstream := &mockUpstream{uploads: map[string]*Upload{"up1": {Status: UploadTimedOut}}}
	r := newTestReconciler(store, upstream, nil)

	report := r.Reconcile(context.Background(), "v1")
	if report.Processed != 1 || report.Results[0].Status != model.VideoStatusNeedsUpload {
		t.Errorf("report = %+v", report)
	}

	missing := r.Reconcile(context.Background(), "nope")
	if missing.Processed != 1 || missing.Results[0].ID != "nope" || missing.Results[0].Error == "" {
		t.Errorf("missing report = %+v", missing)
	}
}

func TestReconciler_SelectionFailureStillReports(t *testing.T) {
	store := &mockSyncStore{
		listFn: func(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error) {
			return nil, errors.New("connection reset")
		},
	}

	report := newTestReconciler(store, &mockUpstream{}, nil).Reconcile(context.Background(), "")
	if report == nil || report.Processed != 0 || report.Results == nil {
		t.Errorf("report = %+v", report)
	}
}

// TestReconciler_ConcurrentCallsShareOneRun は同時呼び出しが1回の実行を共有することを検証する。
func TestReconciler_ConcurrentCallsShareOneRun(t *testing.T) {
	var listCalls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &mockSyncStore{
		listFn: func(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error) {
			if listCalls.Add(1) == 1 {
				close(entered)
			}
			<-release
			return nil, nil
		},
	}
	r := newTestReconciler(store, &mockUpstream{}, nil)

	var wg sync.WaitGroup
	reports := make([]*Report, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0] = r.Reconcile(context.Background(), "")
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[1] = r.Reconcile(context.Background(), "")
	}()
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := listCalls.Load(); got != 1 {
		t.Errorf("list calls = %d, want 1", got)
	}
	if reports[0] != reports[1] {
		t.Error("concurrent callers should receive the shared report")
	}
}
