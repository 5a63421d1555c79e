package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/vipchannel/internal/auth"
	"github.com/hitoshi/vipchannel/internal/cache"
	"github.com/hitoshi/vipchannel/internal/channel"
	"github.com/hitoshi/vipchannel/internal/config"
	"github.com/hitoshi/vipchannel/internal/database"
	"github.com/hitoshi/vipchannel/internal/handler"
	"github.com/hitoshi/vipchannel/internal/logger"
	"github.com/hitoshi/vipchannel/internal/metrics"
	"github.com/hitoshi/vipchannel/internal/middleware"
	"github.com/hitoshi/vipchannel/internal/prediction"
	"github.com/hitoshi/vipchannel/internal/repository"
	"github.com/hitoshi/vipchannel/internal/security"
	"github.com/hitoshi/vipchannel/internal/seed"
	"github.com/hitoshi/vipchannel/internal/storage"
	"github.com/hitoshi/vipchannel/internal/user"
	"github.com/hitoshi/vipchannel/internal/worker/cleanup"
	"github.com/hitoshi/vipchannel/internal/worker/relay"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、サブコマンド名を付与したJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, cmd Command) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	opts := logger.Options{Command: string(cmd)}
	logger.SetupDefault(w, opts)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	opts.Level = level
	logger.SetupDefault(w, opts)

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

	cfg, err := Init(w, cmd)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
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

// newMetricsRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// channelBackends はチャンネルサービスが利用する任意の外部バックエンド。
type channelBackends struct {
	images channel.ImageStore
	counts channel.SubscriberCountCache
	closer func()
}

// openChannelBackends はMinIOとRedisへ接続する。
// 未設定の場合はそれぞれ無効のまま起動し、画像投稿はIMAGE_STORAGE_UNAVAILABLEになる。
func openChannelBackends(ctx context.Context, cfg *config.Config) (*channelBackends, error) {
	b := &channelBackends{closer: func() {}}

	if cfg.MinioEndpoint != "" {
		store, err := storage.New(storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare bucket: %w", err)
		}
		b.images = store
		slog.Info("object storage enabled", slog.String("bucket", cfg.MinioBucket))
	} else {
		slog.Warn("MINIO_ENDPOINT is not set; prediction images are disabled")
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		b.counts = cache.NewSubscriberCountCache(rdb, cfg.SubscriberCountTTL)
		b.closer = func() { rdb.Close() }
		slog.Info("subscriber count cache enabled", slog.String("addr", cfg.RedisAddr))
	}

	return b, nil
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

	// 2. 外部バックエンドとメトリクス
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	backends, err := openChannelBackends(startCtx, cfg)
	cancelStart()
	if err != nil {
		return err
	}
	defer backends.closer()

	reg, collector := newMetricsRegistry()

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	subRepo := repository.NewPostgresChannelSubscriptionRepo(db)

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, profileRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	channelService := channel.NewService(channel.Deps{
		Channels:      repository.NewPostgresChannelRepo(db),
		Profiles:      profileRepo,
		Subscriptions: subRepo,
		Messages:      repository.NewPostgresMessageRepo(db),
		Predictions:   repository.NewPostgresPredictionRepo(db),
		Images:        backends.images,
		Fetcher:       security.NewImageFetcher(cfg.ImageFetchTimeout, prediction.MaxImageSize),
		Counts:        backends.counts,
		Sanitizer:     security.NewTextSanitizer(),
		Metrics:       collector,
		Logger:        slog.Default(),
		ImageURLTTL:   cfg.ImageURLTTL,
	})

	userService := user.NewService(userRepo, sessionRepo, subRepo)

	// 5. ハンドラーアダプタの構築
	channelAdapter := handler.NewChannelServiceAdapter(channelService)

	// 6. ルーターの構築（レート制限はreq/min単位の設定から生成する）
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPosting),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		SecurityHeaders:   middleware.SecurityHeadersConfig{HSTS: cfg.CookieSecure},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ChannelService: channelAdapter,
		ProfileService: channelAdapter,
		UserService:    handler.NewUserServiceAdapter(userService),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runWorker はワーカーモードで起動する。
// クリーンアップジョブを日次で実行し、KAFKA_BROKERSが設定されていればイベント中継を行う。
// メトリクスはSERVER_PORTの/metricsで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg, collector := newMetricsRegistry()

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.RetentionDays = cfg.EventRetentionDays

	// 3. イベント中継の初期化
	var eventRelay *relay.Relay
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := relay.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		defer publisher.Close()

		eventRelay = relay.New(
			repository.NewPostgresEventRepo(db), publisher, collector, slog.Default(),
			relay.Config{BatchSize: cfg.RelayBatchSize, MaxConcurrency: cfg.RelayMaxConcurrent},
		)
	} else {
		slog.Warn("KAFKA_BROKERS is not set; channel events will stay in the outbox")
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	slog.Info("worker starting",
		slog.Bool("relay_enabled", eventRelay != nil),
		slog.Duration("relay_interval", cfg.RelayInterval),
		slog.Int("event_retention_days", cfg.EventRetentionDays),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, 24*time.Hour)

	// イベント中継をメインgoroutineで実行（ブロッキング）
	if eventRelay != nil {
		eventRelay.Start(ctx, cfg.RelayInterval)
	} else {
		<-ctx.Done()
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

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if errors.Is(err, database.ErrDirtySchema) {
		slog.Error("schema is dirty; fix the failed migration and force the version before retrying",
			slog.Uint64("version", uint64(result.From)),
		)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(result.From)),
		slog.Uint64("to_version", uint64(result.To)),
		slog.Bool("applied", result.Applied()),
	)
	return nil
}

// runSeed はデモ用の作成者、チャンネル、予想を投入する。
// 既に存在する作成者はスキップするため、繰り返し実行できる。
func runSeed(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	channelService := channel.NewService(channel.Deps{
		Channels:      repository.NewPostgresChannelRepo(db),
		Profiles:      repository.NewPostgresProfileRepo(db),
		Subscriptions: repository.NewPostgresChannelSubscriptionRepo(db),
		Messages:      repository.NewPostgresMessageRepo(db),
		Predictions:   repository.NewPostgresPredictionRepo(db),
		Logger:        slog.Default(),
	})

	seeder := seed.NewSeeder(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresProfileRepo(db),
		channelService,
		slog.Default(),
		seed.Config{Seed: 1},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := seeder.Run(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
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
