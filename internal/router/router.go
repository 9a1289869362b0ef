package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/handler"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment *handler.AssessmentHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	ids middleware.TokenValidator,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware(log))

	router.Use(middleware.Brotli())

	// Liveness probe for load balancers.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. System Group ───────────────────────────────────────────────
	system := router.Group("/api/v1/system")
	system.Use(middleware.NoStore())
	{
		system.GET("/health", handlers.System.Health)
	}

	// ─── 2. Student API Group (Taker JWT) ──────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireTaker(ids),
		limiter.Middleware(),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/assessments", handlers.Assessment.ListAssessments)

		a := studentAPI.Group("/assessments/:test_id")
		a.POST("/start", handlers.Assessment.StartAssessment)
		a.GET("/session", handlers.Assessment.GetSession)
		a.DELETE("/session", handlers.Assessment.Abandon)
		a.PUT("/answers/:index", handlers.Assessment.SelectAnswer)
		a.DELETE("/answers/:index", handlers.Assessment.ClearAnswer)
		a.POST("/navigate", handlers.Assessment.Navigate)
		a.POST("/next", handlers.Assessment.NextQuestion)
		a.POST("/previous", handlers.Assessment.PreviousQuestion)
		a.POST("/submit", handlers.Assessment.Submit)
		a.POST("/review", handlers.Assessment.EnterReview)
		a.DELETE("/review", handlers.Assessment.ExitReview)
		a.GET("/review", handlers.Assessment.GetReview)
	}

	// ─── 3. WebSocket Group (Taker JWT via ?token=) ────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireTakerWSAuth(ids))
	{
		ws.GET("/student/assessments/:test_id/stream", handlers.WS.AssessmentStream)
	}

	return router
}
