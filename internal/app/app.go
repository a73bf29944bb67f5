package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/expenfyre/internal/analytics"
	"github.com/hitoshi/expenfyre/internal/auth"
	"github.com/hitoshi/expenfyre/internal/budget"
	"github.com/hitoshi/expenfyre/internal/category"
	"github.com/hitoshi/expenfyre/internal/config"
	"github.com/hitoshi/expenfyre/internal/database"
	"github.com/hitoshi/expenfyre/internal/expense"
	"github.com/hitoshi/expenfyre/internal/file"
	"github.com/hitoshi/expenfyre/internal/group"
	"github.com/hitoshi/expenfyre/internal/handler"
	"github.com/hitoshi/expenfyre/internal/kv"
	"github.com/hitoshi/expenfyre/internal/logger"
	"github.com/hitoshi/expenfyre/internal/metrics"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/repository"
	"github.com/hitoshi/expenfyre/internal/security"
	"github.com/hitoshi/expenfyre/internal/sheets"
	"github.com/hitoshi/expenfyre/internal/worker/cleanup"
)

// maxTextLength はグループ名や支出の説明など自由入力の最大文字数。
const maxTextLength = 1000

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.Options{})

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログを再構成する
	logger.SetupDefault(w, logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("sheets_backend", cfg.SheetsBackend),
		slog.String("kv_backend", cfg.KVBackend),
		slog.String("file_backend", cfg.FileBackend),
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

// App は設定から組み立てた依存関係一式。
type App struct {
	Handler   http.Handler
	Cleanup   *cleanup.CleanupJob
	Tokens    *auth.TokenService
	Registry  *prometheus.Registry
	rateLimit *middleware.RateLimiter
	closers   []func() error
}

// Close は開いた接続とバックグラウンド処理を解放する。
func (a *App) Close() error {
	if a.rateLimit != nil {
		a.rateLimit.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build は設定に従ってストレージ、ドメインサービス、ルーターをワイヤリングする。
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	collector := metrics.NewCollector(a.Registry)

	// 1. KVストア
	store, err := a.openKVStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 2. スプレッドシート
	table, err := openTable(ctx, cfg, collector)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 3. ファイルストレージ
	storage, err := openFileStorage(cfg, store)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 4. リポジトリの初期化
	userRepo := repository.NewSheetUserRepo(table)
	groupRepo := repository.NewSheetGroupRepo(table)
	memberRepo := repository.NewSheetGroupMemberRepo(table)
	expenseRepo := repository.NewSheetExpenseRepo(table)
	budgetRepo := repository.NewSheetBudgetRepo(table)
	categoryRepo := repository.NewSheetCategoryRepo(table)
	requestRepo := repository.NewSheetAccessRequestRepo(table)

	// 5. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer(maxTextLength)

	groupService := group.NewService(groupRepo, memberRepo, userRepo, sanitizer)
	expenseService := expense.NewService(expenseRepo, groupService, sanitizer)
	budgetService := budget.NewService(budgetRepo, groupService, expenseService)
	categoryService := category.NewService(categoryRepo)
	analyticsService := analytics.NewService(expenseService, budgetService, categoryService)
	fileService := file.NewService(storage, cfg.BaseURL)

	// 6. 認証
	a.Tokens = newTokenService(cfg, store, collector)
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(oauthProvider, userRepo, requestRepo, a.Tokens, store, groupService, collector)
	a.Cleanup = cleanup.NewCleanupJob(a.Tokens, collector, slog.Default())

	// 7. ルーターの構築
	a.rateLimit = middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral))

	a.Handler = handler.NewRouter(&handler.RouterDeps{
		Verifier:           a.Tokens,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        a.rateLimit,
		Logger:             slog.Default(),
		StatusRecorder:     collector,
		MetricsHandler:     metrics.Handler(a.Registry),

		AuthService: authService,
		Tokens:      a.Tokens,
		Cleanup:     a.Cleanup,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		Groups:     groupService,
		Expenses:   expenseService,
		Budgets:    budgetService,
		Analytics:  analyticsService,
		Categories: categoryService,
		Files:      fileService,
	})

	return a, nil
}

func newTokenService(cfg *config.Config, store kv.Store, collector *metrics.Collector) *auth.TokenService {
	return auth.NewTokenService(
		auth.NewTokenCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret),
		store,
		auth.TokenServiceConfig{
			CreateLimit:  cfg.RateLimitTokenCreate,
			RefreshLimit: cfg.RateLimitTokenRefresh,
			Events:       collector,
		},
	)
}

// openKVStore は設定されたバックエンドのKVストアを開く。
func (a *App) openKVStore(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.KVBackend {
	case config.KVBackendRedis:
		store, err := kv.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return store, nil

	case config.KVBackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		slog.Info("database connection established")
		return kv.NewPostgresStore(db), nil

	default:
		return kv.NewMemoryStore(), nil
	}
}

// openTable は設定されたバックエンドのスプレッドシートを開く。
func openTable(ctx context.Context, cfg *config.Config, observer sheets.Observer) (sheets.Table, error) {
	if cfg.SheetsBackend == config.SheetsBackendMemory {
		slog.Warn("using in-memory sheets backend; data is lost on restart")
		return sheets.NewMemoryTable(), nil
	}

	ts, err := sheets.NewServiceAccountTokenSource(sheets.ServiceAccountConfig{
		Email:         cfg.ServiceAccountEmail,
		PrivateKeyPEM: cfg.ServiceAccountPrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load service account: %w", err)
	}

	throttle := sheets.NewThrottle(sheets.ThrottleConfig{
		MaxConcurrent: cfg.SheetsMaxConcurrent,
		Pacing:        cfg.SheetsPacing,
		Backoff:       cfg.SheetsBackoff,
		Observer:      observer,
	})

	table, err := sheets.NewGoogleTable(ctx, cfg.SpreadsheetID, ts, throttle)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	return table, nil
}

// openFileStorage は設定されたバックエンドのファイルストレージを返す。
func openFileStorage(cfg *config.Config, store kv.Store) (file.Storage, error) {
	if cfg.FileBackend != config.FileBackendS3 {
		return file.NewKVStore(store), nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return file.NewS3Store(s3.New(sess), cfg.AWSBucketName), nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// メモリKVの場合は別プロセスのワーカーから掃除できないため、同じプロセスで回す
	if cfg.KVBackend == config.KVBackendMemory {
		go a.Cleanup.Start(ctx, cfg.CleanupInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.Handler,
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
		return nil
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
// 共有KVストアの期限切れキーを定期的に掃除し、シグナル受信で停止する。
func runWorker(cfg *config.Config) error {
	if cfg.KVBackend == config.KVBackendMemory {
		return errors.New("worker requires a shared KV backend (KV_BACKEND=redis or postgres)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &App{Registry: prometheus.NewRegistry()}
	defer a.Close()
	collector := metrics.NewCollector(a.Registry)

	store, err := a.openKVStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.Tokens = newTokenService(cfg, store, collector)
	a.Cleanup = cleanup.NewCleanupJob(a.Tokens, collector, slog.Default())

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// ブロッキング。ctxのキャンセルで戻る
	a.Cleanup.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はKVストア用のデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
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
	return probeHealth(fmt.Sprintf("http://localhost:%s/api/health", port))
}

func probeHealth(url string) error {
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
