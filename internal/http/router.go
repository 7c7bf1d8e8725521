package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/config"
	"github.com/vouh/Course-corner-sub000/internal/http/handlers"
	"github.com/vouh/Course-corner-sub000/internal/http/middleware"
	"github.com/vouh/Course-corner-sub000/internal/realtime"
	"github.com/vouh/Course-corner-sub000/internal/services"
)

type Dependencies struct {
	Config       *config.Config
	AuthService  *services.AuthService
	Intake       *services.IntakeService
	Status       *services.StatusService
	Callbacks    *services.CallbackService
	Redemption   *services.RedemptionService
	Sweeper      *services.Sweeper
	Transactions services.TransactionStore
	Hub          *realtime.Hub
	Logger       *slog.Logger
}

func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(deps.Config.AllowedOrigins))

	authHandler := handlers.NewAuthHandler(deps.AuthService)
	paymentHandler := handlers.NewPaymentHandler(
		deps.Intake,
		deps.Status,
		deps.Hub,
		middleware.OriginChecker(deps.Config.AllowedOrigins),
		deps.Logger,
	)
	callbackHandler := handlers.NewCallbackHandler(deps.Callbacks, deps.Logger)
	receiptHandler := handlers.NewReceiptHandler(deps.Redemption)
	adminHandler := handlers.NewAdminHandler(deps.Transactions, deps.Sweeper, deps.Config.PollQueryAfter)

	authLimiter := middleware.NewRateLimiter(deps.Config.RateLimitPerMinute, time.Minute)
	paymentLimiter := middleware.NewRateLimiter(deps.Config.RateLimitPerMinute, time.Minute)

	router.GET("/healthz", handlers.Health)

	api := router.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(authLimiter.Middleware())
		authGroup.POST("/login", authHandler.Login)

		payments := api.Group("/payments")
		payments.POST("", paymentLimiter.Middleware(), paymentHandler.Create)
		payments.GET("/:session_id", paymentHandler.Get)
		payments.GET("/:session_id/ws", paymentHandler.Stream)

		api.POST("/callbacks/stk", callbackHandler.STK)
		api.POST("/receipts/redeem", paymentLimiter.Middleware(), receiptHandler.Redeem)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.JWTAuth(middleware.AuthConfig{Secret: deps.Config.JWTSecret}))
	admin.Use(middleware.RequireRole("admin"))
	{
		admin.GET("/transactions", adminHandler.List)
		admin.POST("/sweep", adminHandler.Sweep)
	}

	return router
}
