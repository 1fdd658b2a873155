package app

import (
	"context"
	"database/sql"
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/librarian/internal/catalog"
	"github.com/hitoshi/librarian/internal/config"
	"github.com/hitoshi/librarian/internal/database"
	"github.com/hitoshi/librarian/internal/handler"
	"github.com/hitoshi/librarian/internal/llm"
	"github.com/hitoshi/librarian/internal/logger"
	"github.com/hitoshi/librarian/internal/metrics"
	"github.com/hitoshi/librarian/internal/middleware"
	"github.com/hitoshi/librarian/internal/recommend"
	"github.com/hitoshi/librarian/internal/repository"
	"github.com/hitoshi/librarian/internal/security"
	"github.com/hitoshi/librarian/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

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
// argsにはos.Args[1:]を渡す。
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
		slog.String("ollama_host", cfg.OllamaHost),
		slog.String("ollama_model", cfg.OllamaModel),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// server はAPIサーバーの構成要素をまとめたもの。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// buildServer はリポジトリ、モデルクライアント、推薦サービスをワイヤリングし、
// ルーターを構築する。DBへの接続は行わない。
func buildServer(cfg *config.Config, db *sql.DB, log *slog.Logger, reg *prometheus.Registry) *server {
	// 1. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	borrowRepo := repository.NewPostgresBorrowRepo(db)
	bookRepo := repository.NewPostgresBookRepo(db)
	historyRepo := repository.NewPostgresRecommendationHistoryRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. モデルクライアントと推薦サービス
	modelClient := llm.NewClient(llm.Config{
		Host:            cfg.OllamaHost,
		Model:           cfg.OllamaModel,
		Timeout:         cfg.OllamaTimeout,
		MaxRetries:      cfg.OllamaMaxRetries,
		RetryBackoff:    cfg.OllamaRetryBackoff,
		Temperature:     cfg.OllamaTemperature,
		BreakerFailures: cfg.ModelBreakerFailures,
		BreakerTimeout:  cfg.ModelBreakerTimeout,
	}, &http.Client{}, log, collector)

	recService := recommend.NewService(
		borrowRepo, bookRepo, historyRepo,
		modelClient, security.NewTextSanitizer(), collector, log,
	)
	catalogService := catalog.NewService(bookRepo, borrowRepo)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralPerMinute:   cfg.RateLimitGeneral,
		RecommendPerMinute: cfg.RateLimitRecommend,
		CleanupInterval:    middleware.DefaultRateLimiterConfig().CleanupInterval,
	}, log)

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:         log,
		MetricsHandler: metrics.Handler(reg),

		RecommendationService: handler.NewRecommendationServiceAdapter(recService),
		RecommendationConfig: handler.RecommendationHandlerConfig{
			DefaultLimit: cfg.RecommendationDefaultLimit,
			MaxLimit:     cfg.RecommendationMaxLimit,
			DefaultModel: cfg.OllamaModel,
		},
		BookService:    handler.NewBookServiceAdapter(recService),
		CatalogService: handler.NewCatalogServiceAdapter(catalogService),
	}

	return &server{
		handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
	}
}

// newRegistry はアプリケーション用のPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv := buildServer(cfg, db, slog.Default(), newRegistry())
	defer srv.rateLimiter.Stop()

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: serverWriteTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// serverWriteTimeout はモデル呼び出しの全試行と再試行間隔に余裕を足した書き込みタイムアウトを返す。
func serverWriteTimeout(cfg *config.Config) time.Duration {
	retries := max(cfg.OllamaMaxRetries, 0)
	timeout := cfg.OllamaTimeout*time.Duration(retries+1) + 15*time.Second
	for i := 0; i < retries; i++ {
		timeout += llm.CalculateBackoff(cfg.OllamaRetryBackoff, i)
	}
	return timeout
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), cfg.SessionCleanupInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cleanupJob.Interval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(target string) error {
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
