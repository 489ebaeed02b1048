package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bourbonbuddy/internal/auth"
	"github.com/hitoshi/bourbonbuddy/internal/comment"
	"github.com/hitoshi/bourbonbuddy/internal/config"
	"github.com/hitoshi/bourbonbuddy/internal/handler"
	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/hitoshi/bourbonbuddy/internal/middleware"
	"github.com/hitoshi/bourbonbuddy/internal/news"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
	"github.com/hitoshi/bourbonbuddy/internal/search"
	"github.com/hitoshi/bourbonbuddy/internal/security"
	"github.com/hitoshi/bourbonbuddy/internal/spirit"
	"github.com/hitoshi/bourbonbuddy/internal/storage"
	"github.com/hitoshi/bourbonbuddy/internal/telemetry"
	"github.com/hitoshi/bourbonbuddy/internal/user"
	"github.com/hitoshi/bourbonbuddy/internal/video"
	"github.com/hitoshi/bourbonbuddy/internal/worker/cleanup"
	"github.com/hitoshi/bourbonbuddy/internal/worker/periodic"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	upstreamTimeout    = 15 * time.Second
	profileSyncTimeout = 5 * time.Second
	imageImportTimeout = 10 * time.Second
	cleanupInterval    = 24 * time.Hour
	newsMaxConcurrency = 4
)

// buildRouter はserveモードの全依存関係を組み立ててルーターを返す。
// 戻り値のcleanupはレートリミッターの後始末に使う。
func buildRouter(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *slog.Logger) (http.Handler, func(), error) {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	spiritRepo := repository.NewPostgresSpiritRepo(db)
	videoRepo := repository.NewPostgresVideoRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	newsRepo := repository.NewPostgresNewsRepo(db)

	// 2. セキュリティ
	ssrfGuard := security.NewSSRFGuard()
	textSanitizer := security.NewTextSanitizer()

	// 3. メトリクス
	reg := newMetricsRegistry()
	collector := metrics.NewCollector(reg)

	// 4. 認証
	authService := auth.NewService(
		googleProvider(cfg),
		auth.NewTokenVerifier(cfg.AuthJWTSecret),
		userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	syncer := auth.NewProfileSyncer(identRepo, metadataClient(cfg), profileSyncTimeout)

	// 5. ドメインサービス
	userService := user.NewService(userRepo, sessionRepo, syncer)

	imageStore, objectStore, err := imageStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	spiritService := spirit.NewService(
		spiritRepo,
		imageStore,
		security.NewRemoteFetcher(ssrfGuard, imageImportTimeout),
		textSanitizer,
		cfg.ImageMaxSize,
	)

	uploader, upstream := videoClients(cfg)
	signer, err := playbackSigner(cfg)
	if err != nil {
		return nil, nil, err
	}
	videoService := video.NewService(videoRepo, uploader, signer, cfg.CORSAllowedOrigin)

	var reconciler handler.VideoReconciler
	if upstream != nil {
		reconciler = video.NewReconciler(videoRepo, upstream, collector, logger, cfg.VideoSyncStaleAfter)
	}

	commentService := comment.NewService(commentRepo, videoRepo, textSanitizer)
	newsService := news.NewService(newsRepo)

	// 6. 外部サービスのプロキシ
	searchClient := search.NewClient(cfg.SearchAPIURL, cfg.SearchAPIKey, cfg.SearchTimeout, textSanitizer, logger)
	tunnel, err := telemetry.NewTunnel(cfg.SentryDSN, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid telemetry dsn: %w", err)
	}

	// 7. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitUpload))

	deps := &handler.RouterDeps{
		Logger:            logger,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		BearerResolver:    authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.CORSAllowedOrigin,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:    userService,
		SpiritService:  spiritService,
		VideoService:   videoService,
		Reconciler:     reconciler,
		CommentService: commentService,
		NewsService:    newsService,

		ObjectStore: objectStore,
		Searcher:    searchClient,
		Telemetry:   tunnel,
	}

	logger.Info("dependencies wired",
		slog.Bool("google_oauth", cfg.GoogleOAuthEnabled()),
		slog.Bool("video", uploader != nil),
		slog.Bool("signed_playback", signer != nil),
		slog.Bool("storage", objectStore != nil),
		slog.Bool("search", cfg.SearchAPIKey != ""),
		slog.Bool("telemetry", tunnel.Configured()),
	)

	return handler.NewRouter(deps), rateLimiter.Stop, nil
}

// buildWorker はworkerモードの定期ジョブを登録したランナーを返す。
// 各ジョブの結果はcollectorに記録する。
func buildWorker(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *slog.Logger, collector metrics.MetricsCollector) (*periodic.Runner, error) {
	jobs, err := workerJobs(ctx, cfg, db, logger, collector)
	if err != nil {
		return nil, err
	}
	runner := periodic.NewRunner(logger)
	for _, job := range jobs {
		if err := runner.Add(job); err != nil {
			return nil, err
		}
	}
	return runner, nil
}

func workerJobs(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *slog.Logger, collector metrics.MetricsCollector) ([]periodic.Job, error) {
	var jobs []periodic.Job

	// 動画ステータスの照合。完了ログはReconcilerが出力する
	if _, upstream := videoClients(cfg); upstream != nil {
		reconciler := video.NewReconciler(
			repository.NewPostgresVideoRepo(db), upstream, collector, logger, cfg.VideoSyncStaleAfter,
		)
		jobs = append(jobs, periodic.Job{
			Name:     "video-reconcile",
			Interval: cfg.VideoSyncInterval,
			Run: func(ctx context.Context) error {
				reconciler.Reconcile(ctx, "")
				return nil
			},
		})
	} else {
		logger.Warn("動画APIが未設定のため照合ジョブを登録しません")
	}

	// ニュースフィードの取得
	newsRepo := repository.NewPostgresNewsRepo(db)
	fetcher := news.NewFetcher(
		newsRepo,
		security.NewSSRFGuard(),
		security.NewSummarySanitizer(),
		security.NewTextSanitizer(),
		collector,
		logger,
		news.FetcherConfig{
			Timeout:     cfg.NewsFetchTimeout,
			MaxBodySize: cfg.NewsFetchMaxSize,
			Interval:    cfg.NewsFetchInterval,
		},
	)
	scheduler := news.NewScheduler(newsRepo, fetcher, logger, newsMaxConcurrency)
	if err := scheduler.RegisterSources(ctx, cfg.NewsFeedURLs); err != nil {
		return nil, err
	}
	jobs = append(jobs, periodic.Job{
		Name:     "news-fetch",
		Interval: cfg.NewsFetchInterval,
		Run:      scheduler.RunOnce,
	})

	// 期限切れセッションと古いニュース記事の削除
	cleanupJob := cleanup.NewCleanupJob(db, logger)
	jobs = append(jobs, periodic.Job{
		Name:     "cleanup",
		Interval: cleanupInterval,
		Run:      cleanupJob.Run,
	})

	return jobs, nil
}

// newMetricsRegistry はGoランタイムとプロセスのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// newMetricsServer はworkerモードのスクレイプ用サーバーを返す。
// workerはAPIルーターを持たないため/metricsのみを公開する。
func newMetricsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(gatherer))
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// googleProvider はGoogle OAuthが設定されている場合のみプロバイダーを返す。
func googleProvider(cfg *config.Config) auth.OAuthProvider {
	if !cfg.GoogleOAuthEnabled() {
		return nil
	}
	return auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
}

// metadataClient は管理APIの接続先が設定されている場合のみクライアントを返す。
func metadataClient(cfg *config.Config) auth.MetadataClient {
	if cfg.AuthURL == "" || cfg.AuthServiceKey == "" {
		return nil
	}
	return auth.NewAdminClient(cfg.AuthURL, cfg.AuthServiceKey, profileSyncTimeout)
}

// imageStores はバケットが設定されている場合のみS3Storeを生成する。
// 未設定時はどちらもnilインターフェースを返す。
func imageStores(ctx context.Context, cfg *config.Config) (spirit.ImageStore, handler.ObjectGetter, error) {
	if !cfg.StorageEnabled() {
		return nil, nil, nil
	}
	store, err := storage.NewS3Store(ctx, storage.Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return store, store, nil
}

// videoClients は動画APIの認証情報が揃っている場合のみクライアントを返す。
func videoClients(cfg *config.Config) (video.Uploader, video.Upstream) {
	if !cfg.MuxEnabled() {
		return nil, nil
	}
	client := video.NewMuxClient("", cfg.MuxTokenID, cfg.MuxTokenSecret, upstreamTimeout)
	return client, client
}

// playbackSigner は署名鍵が設定されている場合のみPlaybackSignerを返す。
func playbackSigner(cfg *config.Config) (*video.PlaybackSigner, error) {
	if cfg.MuxSigningKeyID == "" && cfg.MuxSigningKey == "" {
		return nil, nil
	}
	signer, err := video.NewPlaybackSigner(cfg.MuxSigningKeyID, cfg.MuxSigningKey, cfg.PlaybackTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid playback signing key: %w", err)
	}
	return signer, nil
}
