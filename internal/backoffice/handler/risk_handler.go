package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
)

// RiskHandler serves /admin/risk endpoints: the at-risk dashboard, manual
// recompute, and oracle health.
type RiskHandler struct {
	riskRepo  *repository.RiskRepository
	healthSvc *service.HealthService
	priceSvc  *service.PriceService
	cfg       *config.Config
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(
	riskRepo *repository.RiskRepository,
	healthSvc *service.HealthService,
	priceSvc *service.PriceService,
	cfg *config.Config,
) *RiskHandler {
	return &RiskHandler{riskRepo: riskRepo, healthSvc: healthSvc, priceSvc: priceSvc, cfg: cfg}
}

// AtRisk godoc
// GET /admin/risk/at-risk?limit=50
// Lists cached snapshots below the liquidation cutoff, most at-risk first.
func (h *RiskHandler) AtRisk(c *gin.Context) {
	_, limit := adminPagination(c)

	snaps, err := h.riskRepo.ListAtRisk(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"count":     len(snaps),
		"snapshots": snaps,
	})
}

// Stale godoc
// GET /admin/risk/stale?limit=50
// Lists snapshots whose last recompute predates the configured stale age.
func (h *RiskHandler) Stale(c *gin.Context) {
	_, limit := adminPagination(c)
	cutoff := time.Now().UTC().Add(-h.cfg.Risk.SnapshotStaleAge)

	snaps, err := h.riskRepo.ListStale(c.Request.Context(), cutoff, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"cutoff":    cutoff,
		"count":     len(snaps),
		"snapshots": snaps,
	})
}

// Recompute godoc
// POST /admin/risk/recompute/:user_id?chain=ethereum
// Forces a fresh recompute for one account.
func (h *RiskHandler) Recompute(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}
	chain := c.DefaultQuery("chain", domain.DefaultChain)

	snap, err := h.healthSvc.Recompute(c.Request.Context(), userID, chain)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, snap)
}

// ExchangeStatus godoc
// GET /admin/risk/exchange-status
func (h *RiskHandler) ExchangeStatus(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{
		"exchanges": h.priceSvc.ExchangeStatus(),
	})
}
