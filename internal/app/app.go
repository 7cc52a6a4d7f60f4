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

	"github.com/hitoshi/userapi/internal/config"
	"github.com/hitoshi/userapi/internal/database"
	"github.com/hitoshi/userapi/internal/handler"
	"github.com/hitoshi/userapi/internal/logger"
	"github.com/hitoshi/userapi/internal/metrics"
	"github.com/hitoshi/userapi/internal/middleware"
	"github.com/hitoshi/userapi/internal/phone"
	"github.com/hitoshi/userapi/internal/repository"
	"github.com/hitoshi/userapi/internal/security"
	"github.com/hitoshi/userapi/internal/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// logLevel はグローバルロガーの出力レベル。設定読み込み後にLOG_LEVELで上書きする。
var logLevel = new(slog.LevelVar)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数（と.envファイル）からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logLevel.Set(slog.LevelInfo)
	logger.SetupDefault(w, logLevel)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルを反映する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info",
			slog.String("log_level", cfg.LogLevel),
		)
	}
	logLevel.Set(level)

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
		slog.String("database_driver", cfg.DatabaseDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, isMigrateDown(args))
	default:
		return runServe(cfg)
	}
}

// databaseOptions は設定からDB接続オプションを組み立てる。
func databaseOptions(cfg *config.Config) database.Options {
	return database.Options{
		Driver:       cfg.DatabaseDriver,
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}
}

// newMetrics はMETRICS_ENABLEDが有効な場合にメトリクスのレジストリとコレクターを構築する。
// 無効な場合はどちらもnilを返す。
func newMetrics(cfg *config.Config) (*prometheus.Registry, *metrics.Collector) {
	if !cfg.MetricsEnabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouterDeps はDB接続と設定から全依存関係をワイヤリングする。
func buildRouterDeps(cfg *config.Config, db handler.HealthChecker, repo repository.UserRepository) (*handler.RouterDeps, *middleware.RateLimiter) {
	reg, collector := newMetrics(cfg)

	// インターフェースにnilポインタを入れないよう、無効時は明示的にnilのままにする
	var recorder user.MetricsRecorder
	var httpRecorder middleware.HTTPMetricsRecorder
	var gatherer prometheus.Gatherer
	if collector != nil {
		recorder = collector
		httpRecorder = collector
		gatherer = reg
	}

	userService := user.NewService(
		repo,
		security.NewNameSanitizer(),
		phone.NewNormalizer(),
		recorder,
	)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitPerMinute, cfg.RateLimitStorePerMinute),
	)

	return &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           httpRecorder,
		Gatherer:          gatherer,
		HealthChecker:     db,
		UserService:       userService,
	}, rateLimiter
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(databaseOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	// 2. リポジトリとサービスの初期化、ルーターの構築
	deps, rateLimiter := buildRouterDeps(cfg, db, repository.NewPostgresUserRepo(db))
	defer rateLimiter.Stop()

	router := handler.NewRouter(deps)

	// 3. HTTPサーバーの起動
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
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("metrics_enabled", cfg.MetricsEnabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// downがfalseの場合は未適用マイグレーションをすべて適用し、trueの場合は1バージョン戻す。
func runMigrate(cfg *config.Config, down bool) error {
	direction := "up"
	if down {
		direction = "down"
	}
	slog.Info("running database migrations",
		slog.String("direction", direction),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	var (
		version uint
		err     error
	)
	if down {
		version, err = database.RollbackMigration(cfg.DatabaseURL)
	} else {
		version, err = database.RunMigrations(cfg.DatabaseURL)
	}
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
