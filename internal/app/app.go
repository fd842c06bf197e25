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

	"github.com/RazK/Voyage-Voyage/internal/auth"
	"github.com/RazK/Voyage-Voyage/internal/config"
	"github.com/RazK/Voyage-Voyage/internal/credential"
	"github.com/RazK/Voyage-Voyage/internal/database"
	"github.com/RazK/Voyage-Voyage/internal/handler"
	"github.com/RazK/Voyage-Voyage/internal/logger"
	"github.com/RazK/Voyage-Voyage/internal/metrics"
	"github.com/RazK/Voyage-Voyage/internal/middleware"
	"github.com/RazK/Voyage-Voyage/internal/picker"
	"github.com/RazK/Voyage-Voyage/internal/repository"
	"github.com/RazK/Voyage-Voyage/internal/security"
	"github.com/RazK/Voyage-Voyage/internal/user"
	"github.com/RazK/Voyage-Voyage/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// pickerTimeout はPicker API呼び出しのタイムアウト。
	pickerTimeout = 30 * time.Second
	// databaseConnectTimeout は起動時のDB疎通確認のタイムアウト。
	databaseConnectTimeout = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

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

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
		return err
	}

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

	attrs := []any{slog.String("command", string(cmd))}
	for k, v := range cfg.Summary() {
		attrs = append(attrs, slog.String(k, v))
	}
	slog.Info("starting application", attrs...)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components は起動時に一度だけ構築される依存関係の集合。
type components struct {
	router    http.Handler
	sweepJob  *cleanup.StateSweepJob
	limiter   *middleware.RateLimiter
	collector *metrics.Collector
}

// buildComponents は設定とDB接続から全依存関係をワイヤリングする。
// 暗号鍵が不正な場合はここで失敗し、サーバーは起動しない。
func buildComponents(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*components, error) {
	// 1. 暗号化（起動時に鍵を検証）
	cipher, err := security.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	credentialRepo := repository.NewPostgresCredentialRepo(db)
	stateRepo := repository.NewPostgresStateRepo(db)
	txManager := repository.NewPostgresTxManager(db)

	// 4. ドメインサービス
	provider := auth.NewInstrumentedProvider(
		auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Timeout:      cfg.ProviderTimeout,
		}),
		collector,
	)
	stateStore := auth.NewStateStore(stateRepo, cfg.StateTokenTTL)
	directory := user.NewDirectory(userRepo)
	credentials := credential.NewService(credentialRepo, cipher, provider, collector)
	sessions := auth.NewSessionIssuer(cfg.JWTSecret, cfg.SessionTTL)

	authService := auth.NewService(auth.ServiceDeps{
		States:      stateStore,
		Provider:    provider,
		Tx:          txManager,
		Directory:   directory,
		Credentials: credentials,
		Sessions:    sessions,
		Observer:    collector,
	})

	pickerClient := picker.NewClient(&http.Client{Timeout: pickerTimeout}, slog.Default())
	pickerService := picker.NewService(credentials, pickerClient)

	// 5. ルーター
	limiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),
		RateLimiter:       limiter,
		StatusRecorder:    collector,

		AuthService:   authService,
		PickerService: pickerService,
		UserService:   directory,

		HealthChecker:  db,
		MetricsHandler: metrics.SetupMetricsRoute(reg),
	})

	return &components{
		router:    router,
		sweepJob:  cleanup.NewStateSweepJob(stateStore, collector, slog.Default()),
		limiter:   limiter,
		collector: collector,
	}, nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Connect(context.Background(), databaseURL, databaseConnectTimeout)
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 期限切れstateの削除もサーバープロセス内で定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	c, err := buildComponents(cfg, db, reg)
	if err != nil {
		return err
	}
	defer c.limiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      c.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.sweepJob.Start(ctx, cfg.StateSweepInterval)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れstateトークンの削除ジョブのみを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	stateStore := auth.NewStateStore(repository.NewPostgresStateRepo(db), cfg.StateTokenTTL)
	job := cleanup.NewStateSweepJob(stateStore, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.StateSweepInterval),
		slog.Duration("state_ttl", cfg.StateTokenTTL),
	)

	// メインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.StateSweepInterval)

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
		slog.Uint64("schema_version", uint64(version)),
	)
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
