package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/calmate/internal/auth"
	"github.com/hitoshi/calmate/internal/calendar"
	"github.com/hitoshi/calmate/internal/config"
	"github.com/hitoshi/calmate/internal/database"
	"github.com/hitoshi/calmate/internal/executor"
	"github.com/hitoshi/calmate/internal/handler"
	"github.com/hitoshi/calmate/internal/interpreter"
	"github.com/hitoshi/calmate/internal/llm"
	"github.com/hitoshi/calmate/internal/logger"
	"github.com/hitoshi/calmate/internal/metrics"
	"github.com/hitoshi/calmate/internal/middleware"
	"github.com/hitoshi/calmate/internal/repository"
	"github.com/hitoshi/calmate/internal/security"
	"github.com/hitoshi/calmate/internal/session"
	"github.com/hitoshi/calmate/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .env があれば環境変数に読み込み、Configを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .env の読み込み（既存の環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 3. 環境変数から設定を読み込む
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
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーと、その後始末に必要な資源を保持する。
type Server struct {
	// Handler はアプリケーションのルーター（ロギング・リカバリー込み）。
	Handler http.Handler
	// Metrics は /metrics を提供するハンドラー。
	Metrics http.Handler

	db          *sql.DB
	memory      *repository.MemoryRevocationRepo
	rateLimiter *middleware.RateLimiter
}

// NewServer は設定から全依存関係をワイヤリングする。
// DATABASE_URL が未設定の場合、失効リストはプロセス内メモリに保持する。
func NewServer(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*Server, error) {
	srv := &Server{}
	collector := metrics.NewCollector(reg)
	srv.Metrics = metrics.SetupMetricsRoute(reg)

	// 1. 失効リスト
	var revocations repository.RevocationRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		srv.db = db
		revocations = repository.NewPostgresRevocationRepo(db)
		slog.Info("database connection established")
	} else {
		srv.memory = repository.NewMemoryRevocationRepo()
		revocations = srv.memory
		slog.Warn("DATABASE_URL not set; session revocations are kept in memory")
	}

	// 2. 外向きHTTPクライアント
	googleHTTP, llmHTTP, err := outboundClients(cfg)
	if err != nil {
		srv.Close()
		return nil, err
	}

	// 3. 認証・セッション
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   googleHTTP,
	})

	codec, err := session.NewCodec(cfg.EncryptionKey, cfg.EncryptionIV)
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to build session codec: %w", err)
	}
	sessions, err := session.NewManager(codec, session.ManagerConfig{
		Secret:       []byte(cfg.JWTSecret),
		TTL:          cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
		OnReject:     collector.RecordSessionRejection,
	}, oauthProvider, revocations)
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to build session manager: %w", err)
	}
	authService := auth.NewService(oauthProvider, sessions)

	// 4. LLM・インタープリタ・エグゼキュータ
	settings := llm.DefaultSettings()
	if cfg.LLMSettingsFile != "" {
		settings, err = llm.LoadSettings(cfg.LLMSettingsFile)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("failed to load LLM settings: %w", err)
		}
	}
	llmClient := llm.NewClient(llm.Config{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		Settings:   settings,
		HTTPClient: llmHTTP,
	})
	interp := interpreter.New(llmClient, collector)
	exec := executor.New(executor.Config{
		Location:  cfg.TimeZone,
		Sanitizer: security.NewTextSanitizer(),
		Recorder:  collector,
	})
	provider := handler.NewCalendarFactoryAdapter(calendar.NewFactory(googleHTTP))

	// 5. ルーター
	srv.rateLimiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitAPI, cfg.RateLimitAI))
	router := handler.NewRouter(&handler.RouterDeps{
		Sessions:    sessions,
		RateLimiter: srv.rateLimiter,
		BaseURL:     cfg.BaseURL,
		HSTS:        cfg.CookieSecure,
		Auth:        handler.NewAuthHandler(authService, sessions, collector, handler.AuthHandlerConfig{CookieSecure: cfg.CookieSecure}),
		Calendar:    handler.NewCalendarHandler(provider, cfg.TimeZone, nil),
		AI:          handler.NewAIHandler(interp, exec, provider, cfg.TimeZone, nil),
	})

	// ミドルウェアスタック: Logging → Recovery → Router
	srv.Handler = middleware.NewLoggingMiddleware(slog.Default(), collector)(
		middleware.NewRecoveryMiddleware()(router),
	)

	slog.Info("application wired",
		slog.String("llm_model", llmClient.Model()),
		slog.String("time_zone", cfg.TimeZone.String()),
		slog.Bool("outbound_guard", cfg.OutboundGuard),
		slog.Bool("persistent_revocations", srv.db != nil),
	)
	return srv, nil
}

// StartBackground はプロセス内で動かすバックグラウンドジョブを開始する。
// メモリ上の失効リストはworkerから掃除できないため、ここで定期削除する。
func (s *Server) StartBackground(ctx context.Context, interval time.Duration) {
	if s.memory == nil {
		return
	}
	job := cleanup.NewCleanupJob(s.memory, slog.Default())
	go job.Start(ctx, interval)
}

// Close は保持している資源を解放する。
func (s *Server) Close() error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// outboundClients はGoogle向けとLLM向けのHTTPクライアントを返す。
// OUTBOUND_GUARD が有効な場合はSSRFガード付きクライアントを使い、LLMのベースURLも検証する。
func outboundClients(cfg *config.Config) (google, llmClient *http.Client, err error) {
	if !cfg.OutboundGuard {
		return &http.Client{Timeout: cfg.GoogleAPITimeout}, &http.Client{Timeout: cfg.LLMTimeout}, nil
	}

	guard := security.NewSSRFGuard()
	if err := guard.ValidateURL(cfg.LLMBaseURL); err != nil {
		return nil, nil, fmt.Errorf("invalid LLM_BASE_URL: %w", err)
	}
	return guard.NewSafeClient(cfg.GoogleAPITimeout), guard.NewSafeClient(cfg.LLMTimeout), nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	srv, err := NewServer(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer srv.Close()

	srv.StartBackground(ctx, cfg.RevocationCleanupInterval)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM呼び出しとカレンダー操作を直列に行うため長めに取る
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           srv.Metrics,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server listen error: %w", err)
		}
	}()
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics listen error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down API server...")
	case runErr = <-errCh:
		slog.Error("server stopped unexpectedly", slog.String("error", runErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	_ = metricsServer.Shutdown(shutdownCtx)

	if runErr != nil {
		return runErr
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 失効リストの期限切れエントリを REVOCATION_CLEANUP_INTERVAL ごとに削除する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("worker requires DATABASE_URL")
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(repository.NewPostgresRevocationRepo(db), slog.Default())

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.RevocationCleanupInterval),
	)

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.RevocationCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
