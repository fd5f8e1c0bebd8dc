package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/identity"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Paper      *handler.PaperHandler
	Submission *handler.SubmissionHandler
	Proctor    *handler.ProctorHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil.
func SetupRouter(
	authority *identity.Authority,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireJWT := middleware.RequireJWT(authority)
	staff := middleware.RequireRole(model.RoleProctor, model.RoleAdmin)

	// ─── 1. Exam API (any authenticated role) ──────────────────────────
	exams := router.Group("/api/v1/exams/:exam_id")
	exams.Use(requireJWT)
	if limiter != nil {
		exams.Use(limiter.Middleware())
	}
	{
		exams.GET("/paper", handlers.Paper.GetPaper)
		exams.POST("/submissions", handlers.Submission.Submit)
		exams.POST("/proctor-events", handlers.Proctor.RecordEvents)

		// Staff only
		exams.GET("/submissions/:user_id", staff, handlers.Submission.GetReceipt)
		exams.GET("/proctor-events/live", staff, handlers.Proctor.LiveEvents)
		exams.PUT("/paper", middleware.RequireRole(model.RoleAdmin), handlers.Paper.PutPaper)
	}

	// ─── 2. WebSocket (token in query) ─────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireJWT)
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	return router
}
