package app

import (
	"strconv"
	"suma_backend/docs"
	"suma_backend/internal/config"
	"suma_backend/internal/middleware"
	"suma_backend/internal/util"
	"suma_backend/pkg/monitoring"
	"suma_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.NoRoute(util.NotFound)

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		generate := generationLimiter(cfg)
		a.registerCourseRoutes(authGroup, c, generate)
		a.registerLearningRoutes(authGroup, c)
		a.registerFlashcardRoutes(authGroup, c, generate)

		authGroup.GET("/leaderboard", c.leaderboard.GetLeaderboard)
		authGroup.GET("/leaderboard/me", c.leaderboard.GetMyRank)
		authGroup.GET("/streak", c.leaderboard.GetStreak)

		authGroup.GET("/settings", c.settings.GetSettings)
		authGroup.PUT("/settings", c.settings.UpdateSettings)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

// generationLimiter 按用户限制会触发模型调用的请求
func generationLimiter(cfg *config.Config) gin.HandlerFunc {
	if cfg.RateLimit.GenerationPerHour <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return security.RateLimiter("generation", cfg.RateLimit.GenerationPerHour, time.Hour, func(c *gin.Context) string {
		if claims := util.GetUserFromContext(c); claims != nil {
			return strconv.FormatUint(uint64(claims.UserID), 10)
		}
		return ""
	})
}

func (a *App) registerCourseRoutes(rg *gin.RouterGroup, c *controllers, generate gin.HandlerFunc) {
	rg.POST("/courses", generate, c.course.CreateCourse)
	rg.GET("/courses", c.course.ListCourses)
	rg.GET("/courses/:id", c.course.GetCourse)
	rg.GET("/courses/:id/progress", c.course.GetCourseProgress)
	rg.POST("/sections/:id/generate", generate, c.course.GenerateSection)
}

func (a *App) registerLearningRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/sections/:id/blocks", c.learning.GetSectionBlocks)
	rg.POST("/sections/:id/complete", c.learning.CompleteSection)

	rg.POST("/blocks/:id/complete", c.learning.CompleteBlock)
	rg.POST("/blocks/:id/answer", c.learning.SubmitAnswer)
	rg.POST("/blocks/:id/hint", c.learning.UseHint)

	rg.POST("/answers/verify", c.learning.VerifyAnswer)
}

func (a *App) registerFlashcardRoutes(rg *gin.RouterGroup, c *controllers, generate gin.HandlerFunc) {
	// stats 要注册在 :id 之前
	rg.GET("/flashcard-sets/stats", c.flashcard.Stats)
	rg.GET("/flashcard-sets", c.flashcard.ListSets)
	rg.POST("/flashcard-sets/upload", generate, c.flashcard.UploadSet)
	rg.POST("/flashcard-sets/urls", generate, c.flashcard.CreateFromURLs)
	rg.GET("/flashcard-sets/:id", c.flashcard.GetSet)
	rg.DELETE("/flashcard-sets/:id", c.flashcard.DeleteSet)

	rg.POST("/flashcards/:id/review", c.flashcard.Review)
}
