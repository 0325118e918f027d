package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"suma_backend/internal/config"
	"suma_backend/internal/controller"
	"suma_backend/internal/jobs"
	"suma_backend/internal/repository"
	"suma_backend/internal/service"
	"suma_backend/pkg/configwatcher"
	"suma_backend/pkg/database"
	"suma_backend/pkg/logger"
	"suma_backend/pkg/monitoring"
	"suma_backend/pkg/security"
	"suma_backend/pkg/tracing"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Worker          *jobs.Worker
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user      *repository.UserRepository
	progress  *repository.ProgressRepository
	flashcard *repository.FlashcardRepository
	settings  *repository.SettingsRepository
}

type services struct {
	auth        *service.AuthService
	user        *service.UserService
	storage     *service.StorageService
	settings    *service.SettingsService
	notifier    *service.NotificationService
	course      *service.CourseService
	learning    *service.LearningService
	leaderboard *service.LeaderboardService
	flashcard   *service.FlashcardService
	answer      *service.AnswerService
	registry    *jobs.Registry
}

type controllers struct {
	auth        *controller.AuthController
	course      *controller.CourseController
	learning    *controller.LearningController
	leaderboard *controller.LeaderboardController
	flashcard   *controller.FlashcardController
	settings    *controller.SettingsController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		progress:  repository.NewProgressRepository(db),
		flashcard: repository.NewFlashcardRepository(db),
		settings:  repository.NewSettingsRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.user = service.NewUserService(repos.user, repos.progress, repos.flashcard)
	s.settings = service.NewSettingsService(repos.settings)
	s.notifier = service.NewNotificationService(service.NewMailer(cfg.Email), s.settings, repos.user, cfg.SiteURL)

	llm, err := service.NewLangchainModel(cfg.AI)
	if err != nil {
		logger.Log.Fatal("Failed to initialize language model", zap.Error(err))
	}

	// 搜索工具初始化失败时不做检索，小节仍可生成
	var researcher service.Researcher
	if r, err := service.NewWebResearcher(cfg.Search, llm); err != nil {
		logger.Log.Warn("Web research disabled", zap.Error(err))
	} else {
		researcher = r
	}

	var renderer service.VideoRenderer
	if cfg.Video.Enabled {
		renderer = service.NewHTTPVideoRenderer(cfg.Video)
	}

	var scraper service.Scraper
	if cfg.Scraper.APIKey != "" {
		scraper = service.NewFirecrawlClient(cfg.Scraper)
	} else {
		logger.Log.Warn("Scraper API key missing, URL flashcards will fail")
	}

	blocks := service.NewBlockGenerator(llm, researcher)
	s.course = service.NewCourseService(db)
	s.leaderboard = service.NewLeaderboardService(db, rdb, cfg.Leaderboard.CacheTTL)
	s.learning = service.NewLearningService(db, s.leaderboard)
	s.flashcard = service.NewFlashcardService(db, s.storage, cfg.Storage.MaxUploadMB, cfg.Generation.FlashcardTarget)
	s.answer = service.NewAnswerService(llm)

	s.registry = jobs.NewRegistry()
	s.registry.Register(service.NewCourseGenerationHandler(service.NewCurriculumGenerator(llm), blocks, renderer, s.notifier))
	s.registry.Register(service.NewSectionGenerationHandler(blocks))
	s.registry.Register(service.NewFlashcardGenerationHandler(llm, scraper, s.storage, s.notifier, cfg.AI.MaxSourceChars))

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:        controller.NewAuthController(s.auth, s.user),
		course:      controller.NewCourseController(s.course),
		learning:    controller.NewLearningController(s.learning, s.answer),
		leaderboard: controller.NewLeaderboardController(s.leaderboard),
		flashcard:   controller.NewFlashcardController(s.flashcard),
		settings:    controller.NewSettingsController(s.settings),
		health:      controller.NewHealthController(db, a.Config.Video.ProbeDuration),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if cfg.RateLimit.MaxRequests > 0 && window > 0 {
		router.Use(security.RateLimiter("global", cfg.RateLimit.MaxRequests, window, security.ClientIP))
	}

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// NewApp 初始化数据库、服务和路由；cfg.MigrateOnly 时迁移完成即返回
func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.ForceMigrate || cfg.Server.Mode == gin.DebugMode {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{Config: cfg, DB: db}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// 排行榜缓存不是必需的
		logger.Log.Warn("Redis unavailable, leaderboard cache off", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("suma-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, db, rdb)
	app.Worker = jobs.NewWorker(db, app.services.registry, jobs.PolicyFromConfig(cfg.Generation))
	controllers := app.initControllers(app.services, db)

	// 配置热更新：worker 轮询策略与排行榜缓存时间
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		app.Worker.UpdatePolicy(jobs.PolicyFromConfig(newCfg.Generation))
		app.services.leaderboard.SetCacheTTL(newCfg.Leaderboard.CacheTTL)
	})

	monitoring.Init()

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	return app
}

func (a *App) watchConfig(ctx context.Context) {
	path := filepath.Join(a.Config.ConfigDir, "config.yaml")
	go func() {
		err := configwatcher.WatchConfig(ctx, path, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

func (a *App) startWorkers(ctx context.Context) *sync.WaitGroup {
	n := a.Config.Generation.Workers
	if n <= 0 {
		n = 1
	}
	logger.Log.Info("Starting generation workers", zap.Int("workers", n))
	return a.Worker.Start(ctx, n)
}

func (a *App) shutdownTracer() {
	if a.tracer == nil {
		return
	}
	if err := a.tracer.Shutdown(context.Background()); err != nil {
		logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
	}
}

// Run 启动 HTTP 服务与生成任务 worker，收到退出信号后依次关闭
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.watchConfig(ctx)
	workers := a.startWorkers(ctx)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// 正在执行的任务会在下次启动时从断点继续
	cancel()
	workers.Wait()
	a.shutdownTracer()
	_ = logger.Log.Sync()

	log.Println("Server exiting")
}

// RunWorker 只运行生成任务，once 为 true 时处理一个任务后退出
func (a *App) RunWorker(once bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer a.shutdownTracer()

	if once {
		ran, err := a.Worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !ran {
			logger.Log.Info("No runnable generation job")
		}
		return nil
	}

	a.watchConfig(ctx)
	a.startWorkers(ctx).Wait()
	return nil
}
