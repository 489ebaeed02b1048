package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/auth"
	"github.com/hitoshi/bourbonbuddy/internal/config"
	"github.com/hitoshi/bourbonbuddy/internal/database"
	"github.com/hitoshi/bourbonbuddy/internal/logger"
	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/jmoiron/sqlx"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。wはログ出力先、コマンドの出力は標準出力に書く。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandDBCheck:
		return runDBCheck(cfg)
	case CommandAppleSecret:
		return runAppleSecret(cfg, os.Stdout, time.Now())
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, cleanup, err := buildRouter(ctx, cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 動画ステータスの照合、ニュースフィード取得、期限切れデータの削除を定期実行し、
// WorkerMetricsPortが設定されていれば各ジョブのメトリクスを/metricsで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := newMetricsRegistry()
	runner, err := buildWorker(ctx, cfg, db, slog.Default(), metrics.NewCollector(reg))
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.WorkerMetricsPort != "" {
		metricsServer = newMetricsServer(cfg.WorkerMetricsPort, reg)
		go func() {
			slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("worker metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	slog.Info("worker starting",
		slog.Duration("video_sync_interval", cfg.VideoSyncInterval),
		slog.Duration("news_fetch_interval", cfg.NewsFetchInterval),
		slog.Int("news_sources", len(cfg.NewsFeedURLs)),
	)

	runner.Start(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	err := database.Retry(ctx, retryPolicy(cfg, nil), func(context.Context) error {
		return database.RunMigrations(cfg.DatabaseURL)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		slog.Warn("failed to read migration version", slog.String("error", err.Error()))
	} else {
		slog.Info("database migrations completed successfully",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
	return nil
}

// runDBCheck は既知テーブルのカラム構成をログに出力する。
// 存在しないテーブルがあればエラーを返す。
func runDBCheck(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var report *database.SchemaReport
	err = database.Retry(ctx, retryPolicy(cfg, db), func(ctx context.Context) error {
		var checkErr error
		report, checkErr = database.CheckSchema(ctx, db)
		return checkErr
	})
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}

	return logSchemaReport(slog.Default(), report)
}

func logSchemaReport(l *slog.Logger, report *database.SchemaReport) error {
	for _, table := range database.KnownTables {
		cols, ok := report.Columns[table]
		if !ok {
			continue
		}
		names := make([]string, 0, len(cols))
		for _, c := range cols {
			names = append(names, c.Name+" "+c.DataType)
		}
		l.Info("table columns",
			slog.String("table", table),
			slog.Int("count", len(cols)),
			slog.Any("columns", names),
		)
	}

	if len(report.MissingTables) > 0 {
		l.Error("missing tables", slog.Any("tables", report.MissingTables))
		return fmt.Errorf("schema is missing tables: %v", report.MissingTables)
	}
	l.Info("schema check passed")
	return nil
}

// runAppleSecret はSign in with Appleのクライアントシークレットを生成してwに出力する。
func runAppleSecret(cfg *config.Config, w io.Writer, now time.Time) error {
	secret, err := auth.GenerateAppleClientSecret(auth.AppleConfig{
		TeamID:        cfg.AppleTeamID,
		ClientID:      cfg.AppleClientID,
		KeyID:         cfg.AppleKeyID,
		PrivateKeyPEM: cfg.ApplePrivateKey,
	}, now)
	if err != nil {
		return fmt.Errorf("failed to generate apple client secret: %w", err)
	}

	if _, err := fmt.Fprintln(w, secret); err != nil {
		return err
	}
	slog.Info("apple client secret generated", slog.String("key_id", cfg.AppleKeyID))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openDatabase はDB接続を開き、一時的な接続エラーをリトライしながら疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.PingWithRetry(ctx, db, retryPolicy(cfg, db)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// retryPolicy は設定値からリトライポリシーを組み立てる。
// dbが指定された場合はリトライ前にアイドル接続を破棄し、新しい接続で疎通を確認する。
func retryPolicy(cfg *config.Config, db *sqlx.DB) database.RetryPolicy {
	policy := database.DefaultRetryPolicy()
	if cfg.DBRetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.DBRetryMaxAttempts
	}
	if cfg.DBRetryBaseDelay > 0 {
		policy.BaseDelay = cfg.DBRetryBaseDelay
	}
	if db != nil {
		policy.Reset = database.ResetIdleConns(db, database.DefaultPoolConfig().MaxIdleConns)
	}
	return policy
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
