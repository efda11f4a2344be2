package app

import (
	"novaexam_backend/docs"
	"novaexam_backend/internal/config"
	"novaexam_backend/internal/middleware"
	"novaexam_backend/internal/model"
	"novaexam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerStudentRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.Profile)
	rg.GET("/dashboard", c.exam.Dashboard)
	rg.GET("/categories", c.category.List)

	// 考试
	exams := rg.Group("/exams")
	{
		exams.GET("/:id", c.exam.Detail)
		exams.POST("/:id/start", c.exam.Start)
		exams.GET("/:id/take", c.exam.Take)
		exams.GET("/:id/leaderboard", c.leaderboard.Exam)
	}

	// 作答
	attempts := rg.Group("/attempts")
	{
		attempts.PUT("/:id/answers/:questionId", c.attempt.SaveAnswer)
		attempts.POST("/:id/submit", c.attempt.Submit)
		attempts.GET("/:id/result", c.attempt.Result)
	}

	rg.GET("/results", c.attempt.MyResults)
	rg.GET("/leaderboard", c.leaderboard.Global)
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/dashboard", c.admin.Dashboard)

		admin.GET("/categories", c.category.List)
		admin.POST("/categories", c.category.Create)

		admin.GET("/exams", c.admin.ListExams)
		admin.POST("/exams", c.admin.CreateExam)
		admin.GET("/exams/:id", c.admin.GetExam)
		admin.PUT("/exams/:id", c.admin.UpdateExam)
		admin.DELETE("/exams/:id", c.admin.DeleteExam)
		admin.POST("/exams/:id/publish", c.admin.TogglePublish)
		admin.GET("/exams/:id/attempts", c.admin.ListAttempts)

		// 题目
		admin.GET("/exams/:id/questions", c.admin.ListQuestions)
		admin.POST("/exams/:id/questions", c.admin.CreateQuestion)
		admin.POST("/exams/:id/import", c.admin.ImportQuestions)
		admin.PUT("/questions/:id", c.admin.UpdateQuestion)
		admin.DELETE("/questions/:id", c.admin.DeleteQuestion)
		admin.POST("/questions/:id/image", c.admin.UploadQuestionImage)
	}
}
