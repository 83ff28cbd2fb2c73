package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfedu/membergate/internal/auth"
	"github.com/wolfedu/membergate/internal/config"
	"github.com/wolfedu/membergate/internal/credential"
	"github.com/wolfedu/membergate/internal/database"
	"github.com/wolfedu/membergate/internal/handler"
	"github.com/wolfedu/membergate/internal/logger"
	"github.com/wolfedu/membergate/internal/membership"
	"github.com/wolfedu/membergate/internal/metrics"
	"github.com/wolfedu/membergate/internal/middleware"
	"github.com/wolfedu/membergate/internal/repository"
	syncpkg "github.com/wolfedu/membergate/internal/sync"
	"github.com/wolfedu/membergate/internal/vault"
	"github.com/wolfedu/membergate/internal/worker/cleanup"
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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandSync:
		return runSync(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newSyncEngine は外部会員システムとの同期エンジンを組み立てる。
// serveモードとsyncモードの両方から使用する。
func newSyncEngine(cfg *config.Config, db *sql.DB, credentials *credential.Manager, collector metrics.MetricsCollector) *syncpkg.Engine {
	source := membership.NewClient(
		&http.Client{Timeout: cfg.MembershipTimeout},
		slog.Default(),
		membership.Config{
			BaseURL:        cfg.MembershipURL,
			ConsumerKey:    cfg.MembershipConsumerKey,
			ConsumerSecret: cfg.MembershipConsumerSecret,
			PageSize:       cfg.MembershipPageSize,
		},
	)

	return syncpkg.NewEngine(
		source,
		repository.NewPostgresIdentityRepo(db),
		repository.NewPostgresAnalyticsRepo(db),
		credentials,
		collector,
		slog.Default(),
	)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	identityRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionTokenRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)
	cookieRepo := repository.NewPostgresCookieRepo(db)

	// 3. クレデンシャル管理の初期化
	credentials, err := credential.NewManager(cfg.TokenSigningKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(credentials, identityRepo, sessionRepo, analyticsRepo, slog.Default())
	vaultService := vault.NewService(cookieRepo, cfg.ReplayDomain)
	engine := newSyncEngine(cfg, db, credentials, collector)

	// 6. レート制限の初期化
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		TokenVerifier:       authService,
		APIKeyAuthenticator: authService,
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimiter:         rateLimiter,
		Logger:              slog.Default(),

		AuthService:  authService,
		UserService:  authService,
		SyncEngine:   engine,
		VaultService: vaultService,

		Collector:      collector,
		MetricsHandler: metrics.SetupMetricsRoute(registry),
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runSync は外部会員システムとの同期を1回実行して終了する。
// cronなどの外部スケジューラからの起動を想定する。
func runSync(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (sync)")

	credentials, err := credential.NewManager(cfg.TokenSigningKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	engine := newSyncEngine(cfg, db, credentials, collector)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	slog.Info("sync completed",
		slog.Int("members_total", result.MembersTotal),
		slog.Int("members_created", result.MembersCreated),
		slog.Int("orders_applied", result.OrdersApplied),
		slog.Bool("order_phase_ok", result.OrderPhaseOK),
	)
	return nil
}

// runCleanup は期限切れセッショントークンの削除を1回実行して終了する。
func runCleanup(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (cleanup)")

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.RetentionDays = cfg.SessionRetentionDays

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
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
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
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
