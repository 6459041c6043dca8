package backoffice

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lumenfi/lending/internal/backoffice/handler"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
	"github.com/lumenfi/lending/internal/ws"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc         *service.AuthService
	HealthSvc       *service.HealthService
	PriceSvc        *service.PriceService
	UserRepo        *repository.UserRepository
	PositionRepo    *repository.PositionRepository
	ReserveRepo     *repository.ReserveRepository
	RiskRepo        *repository.RiskRepository
	LiquidationRepo *repository.LiquidationRepository
	Hub             *ws.Hub
	Cfg             *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine on port 8081.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.RiskRepo, deps.ReserveRepo, deps.LiquidationRepo, deps.PriceSvc, deps.Hub, deps.Cfg)
	reserveH := handler.NewReserveAdminHandler(deps.ReserveRepo, deps.Cfg)
	userH := handler.NewUserAdminHandler(deps.UserRepo, deps.PositionRepo, deps.RiskRepo, deps.Cfg)
	riskH := handler.NewRiskHandler(deps.RiskRepo, deps.HealthSvc, deps.PriceSvc, deps.Cfg)
	liqH := handler.NewLiquidationAdminHandler(deps.LiquidationRepo, deps.Cfg)

	jwtMW := adminJWTMiddleware(deps.AuthSvc)

	admin := r.Group("/admin")
	admin.Use(jwtMW)
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Reserves
		res := admin.Group("/reserves")
		{
			res.GET("", reserveH.List)
			res.POST("", reserveH.Create)
			res.PUT("/params", reserveH.UpdateParams)
			res.POST("/:id/flags", reserveH.SetFlags)
		}

		// Users
		u := admin.Group("/users")
		{
			u.GET("", userH.List)
			u.GET("/:id", userH.Detail)
			u.POST("/:id/suspend", userH.Suspend)
			u.POST("/:id/activate", userH.Activate)
			u.POST("/:id/role", userH.SetRole)
		}

		// Risk
		risk := admin.Group("/risk")
		{
			risk.GET("/at-risk", riskH.AtRisk)
			risk.GET("/stale", riskH.Stale)
			risk.POST("/recompute/:user_id", riskH.Recompute)
			risk.GET("/exchange-status", riskH.ExchangeStatus)
		}

		// Liquidation audit
		liq := admin.Group("/liquidations")
		{
			liq.GET("", liqH.List)
			liq.GET("/target/:user_id", liqH.ByTarget)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowed[clientIP] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: your IP is not whitelisted",
			})
			return
		}
		c.Next()
	}
}

// ── Admin JWT middleware ──────────────────────────────────────────────────────

// adminJWTMiddleware validates a JWT and requires the caller to have a
// backoffice-capable role (admin, risk, ops, readonly).
func adminJWTMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := authSvc.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil || claims.TokenType != "access" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Require at least one backoffice role
		backofficeRoles := map[string]bool{
			"admin":    true,
			"risk":     true,
			"ops":      true,
			"readonly": true,
		}
		if !backofficeRoles[claims.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		c.Set("userID", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}
