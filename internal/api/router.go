package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumenfi/lending/internal/api/handler"
	"github.com/lumenfi/lending/internal/api/middleware"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
	"github.com/lumenfi/lending/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc         *service.AuthService
	LendingSvc      *service.LendingService
	HealthSvc       *service.HealthService
	LiquidationSvc  *service.LiquidationService
	PriceSvc        *service.PriceService
	UserRepo        *repository.UserRepository
	PositionRepo    *repository.PositionRepository
	ReserveRepo     *repository.ReserveRepository
	LiquidationRepo *repository.LiquidationRepository
	Hub             *ws.Hub
	Cfg             *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	userH := handler.NewUserHandler(deps.AuthSvc, deps.UserRepo)
	lendingH := handler.NewLendingHandler(deps.LendingSvc, deps.HealthSvc, deps.PositionRepo)
	riskH := handler.NewRiskHandler(deps.HealthSvc)
	liquidationH := handler.NewLiquidationHandler(deps.LiquidationSvc, deps.LiquidationRepo)
	reserveH := handler.NewReserveHandler(deps.ReserveRepo, deps.PriceSvc)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	authRL := middleware.RateLimitMiddleware(10)    // 10 req/s per IP for auth endpoints
	lendingRL := middleware.RateLimitMiddleware(30) // 30 req/s per IP for balance mutations

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ─────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", userH.Register)
			auth.POST("/login", userH.Login)
			auth.POST("/refresh", userH.Refresh)
		}

		// ── Reserves & prices (public) ───────────────────────────────────────
		reserves := api.Group("/reserves")
		{
			reserves.GET("", reserveH.ListReserves)
			reserves.GET("/:asset", reserveH.GetReserve)
		}
		api.GET("/prices/:asset", reserveH.GetIndexPrice)

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			// Profile
			authed.GET("/me", userH.Me)

			// Lending operations
			lending := authed.Group("/lending")
			lending.Use(lendingRL)
			{
				lending.POST("", lendingH.Execute)
			}

			// Positions & risk
			authed.GET("/positions", lendingH.GetPositions)
			authed.POST("/positions/collateral", lendingH.SetCollateral)
			authed.GET("/risk", riskH.GetRisk)
			authed.POST("/risk/refresh", riskH.RefreshRisk)

			// Liquidations
			liquidations := authed.Group("/liquidations")
			{
				liquidations.GET("/opportunities", liquidationH.ListOpportunities)
				liquidations.GET("/check/:user_id", liquidationH.CheckEligibility)
				liquidations.GET("/my", liquidationH.GetHistory)

				executed := liquidations.Group("")
				executed.Use(lendingRL)
				{
					executed.POST("", liquidationH.Execute)
				}
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := map[string]bool{
				"https://lumenfi.io":     true,
				"https://app.lumenfi.io": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
