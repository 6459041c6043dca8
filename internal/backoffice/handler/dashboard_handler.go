package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
	"github.com/lumenfi/lending/internal/ws"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	riskRepo        *repository.RiskRepository
	reserveRepo     *repository.ReserveRepository
	liquidationRepo *repository.LiquidationRepository
	priceSvc        *service.PriceService
	hub             *ws.Hub
	cfg             *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	riskRepo *repository.RiskRepository,
	reserveRepo *repository.ReserveRepository,
	liquidationRepo *repository.LiquidationRepository,
	priceSvc *service.PriceService,
	hub *ws.Hub,
	cfg *config.Config,
) *DashboardHandler {
	return &DashboardHandler{
		riskRepo:        riskRepo,
		reserveRepo:     reserveRepo,
		liquidationRepo: liquidationRepo,
		priceSvc:        priceSvc,
		hub:             hub,
		cfg:             cfg,
	}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Platform aggregates ──────────────────────────────────────────────────
	totalCollateral, totalDebt, err := h.riskRepo.PlatformTotals(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}

	atRisk, _ := h.riskRepo.CountAtRisk(ctx)

	// ── Reserves ─────────────────────────────────────────────────────────────
	reserves, _ := h.reserveRepo.List(ctx, "")
	activeReserves := 0
	for _, r := range reserves {
		if r.IsActive {
			activeReserves++
		}
	}

	// ── Recent liquidations ──────────────────────────────────────────────────
	completed, _ := h.liquidationRepo.List(ctx, "completed", 10, 0)
	failed, _ := h.liquidationRepo.List(ctx, "failed", 10, 0)

	// ── Oracle & WS status ───────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":            time.Now().UTC(),
		"total_collateral_usd": totalCollateral,
		"total_debt_usd":       totalDebt,
		"accounts_at_risk":     atRisk,
		"risk_indicator":       riskIndicator(atRisk),
		"reserves": gin.H{
			"total":  len(reserves),
			"active": activeReserves,
		},
		"recent_liquidations": gin.H{
			"completed": completed,
			"failed":    failed,
		},
		"exchange_status": h.priceSvc.ExchangeStatus(),
		"ws_connections":  wsConnections,
	})
}

// riskIndicator returns GREEN/YELLOW/RED based on the at-risk account count.
func riskIndicator(atRisk int) string {
	switch {
	case atRisk >= 50:
		return "RED"
	case atRisk >= 10:
		return "YELLOW"
	default:
		return "GREEN"
	}
}
