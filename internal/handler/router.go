package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/hitoshi/bourbonbuddy/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler // nilの場合 /metrics を公開しない
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	BearerResolver    middleware.BearerResolver
	CORSAllowedOrigin string
	HSTS              bool
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	UserService    UserServiceInterface
	SpiritService  SpiritServiceInterface
	VideoService   VideoServiceInterface
	Reconciler     VideoReconciler
	CommentService CommentServiceInterface
	NewsService    NewsServiceInterface

	// 外部サービスのプロキシ
	ObjectStore ObjectGetter
	Searcher    Searcher
	Telemetry   EnvelopeForwarder
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SecurityHeaders
//	  公開ルート:   OptionalAuth → RateLimit(General)
//	  認証必須ルート: Auth → CSRF → RateLimit(General) [→ RateLimit(Upload)]
//
// 認証ルート（/auth/*）とヘルスチェックはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	spiritHandler := NewSpiritHandler(deps.SpiritService)
	videoHandler := NewVideoHandler(deps.VideoService, deps.Reconciler)
	commentHandler := NewCommentHandler(deps.CommentService)
	newsHandler := NewNewsHandler(deps.NewsService)
	storageHandler := NewStorageHandler(deps.ObjectStore)
	searchHandler := NewSearchHandler(deps.Searcher)
	telemetryHandler := NewTelemetryHandler(deps.Telemetry)

	requireAuth := middleware.NewAuthMiddleware(deps.SessionFinder, deps.BearerResolver)
	optionalAuth := middleware.NewOptionalAuthMiddleware(deps.SessionFinder, deps.BearerResolver)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
	r.Post("/monitoring", telemetryHandler.Tunnel)

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/session", authHandler.ProviderSession)
		r.Post("/logout", authHandler.Logout)
		r.With(requireAuth).Get("/me", authHandler.Me)
	})

	// 公開ルート（ログインしていれば所有者向けの出し分けを行う）
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/videos", videoHandler.ListPublic)
		r.Get("/api/videos/{id}", videoHandler.Get)
		r.Get("/api/news", newsHandler.ListLatest)
		r.Get("/api/storage/*", storageHandler.Get)
		r.Get("/api/users/{username}", userHandler.GetPublic)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		upload := deps.RateLimiter.UploadMiddleware()

		// ユーザー
		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/", userHandler.GetMe)
			r.Patch("/", userHandler.UpdateMe)
			r.Delete("/", userHandler.Withdraw)
		})

		// コレクション
		r.Route("/api/spirits", func(r chi.Router) {
			r.Get("/", spiritHandler.List)
			r.Post("/", spiritHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", spiritHandler.Get)
				r.Patch("/", spiritHandler.Update)
				r.Delete("/", spiritHandler.Delete)

				r.With(upload).Post("/image", spiritHandler.RequestImageUpload)
				r.With(upload).Post("/image/import", spiritHandler.ImportImage)
			})
		})

		// 動画
		r.With(upload).Post("/api/videos", videoHandler.Create)
		r.Get("/api/videos/mine", videoHandler.ListMine)
		r.Post("/api/videos/sync", videoHandler.Sync)
		r.Patch("/api/videos/{id}", videoHandler.Update)
		r.Delete("/api/videos/{id}", videoHandler.Delete)
		r.Get("/api/videos/{id}/playback", videoHandler.Playback)
		r.With(upload).Post("/api/videos/{id}/reupload", videoHandler.Reupload)

		// コメント
		r.Get("/api/videos/{id}/comments", commentHandler.ListForVideo)
		r.Post("/api/videos/{id}/comments", commentHandler.CreateForVideo)
		r.Get("/api/reviews/{id}/comments", commentHandler.ListForReview)
		r.Post("/api/reviews/{id}/comments", commentHandler.CreateForReview)
		r.Delete("/api/comments/{id}", commentHandler.Delete)

		// 検索
		r.Get("/api/search", searchHandler.Search)
	})

	return r
}
