package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumenfi/lending/internal/api/middleware"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/service"
)

// RiskHandler serves health-factor read endpoints.
type RiskHandler struct {
	healthSvc *service.HealthService
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(healthSvc *service.HealthService) *RiskHandler {
	return &RiskHandler{healthSvc: healthSvc}
}

// GetRisk godoc
// GET /api/risk?chain=ethereum [JWT]
// Returns the cached health-factor snapshot with an explicit staleness flag.
func (h *RiskHandler) GetRisk(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chain := c.DefaultQuery("chain", domain.DefaultChain)

	risk, err := h.healthSvc.GetAccountRisk(c.Request.Context(), userID, chain)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_NO_SNAPSHOT", "no risk snapshot for this account yet")
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch risk snapshot")
		return
	}
	respondSuccess(c, http.StatusOK, risk)
}

// RefreshRisk godoc
// POST /api/risk/refresh [JWT]
// Forces a recompute from live position rows and returns the fresh snapshot.
func (h *RiskHandler) RefreshRisk(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chain := c.DefaultQuery("chain", domain.DefaultChain)

	snap, err := h.healthSvc.Recompute(c.Request.Context(), userID, chain)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "recompute failed")
		return
	}
	respondSuccess(c, http.StatusOK, snap)
}
