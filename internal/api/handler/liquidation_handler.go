package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lumenfi/lending/internal/api/middleware"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
	"github.com/shopspring/decimal"
)

// LiquidationHandler serves liquidation discovery and execution endpoints.
type LiquidationHandler struct {
	liquidationSvc  *service.LiquidationService
	liquidationRepo *repository.LiquidationRepository
}

// NewLiquidationHandler creates a LiquidationHandler.
func NewLiquidationHandler(
	liquidationSvc *service.LiquidationService,
	liquidationRepo *repository.LiquidationRepository,
) *LiquidationHandler {
	return &LiquidationHandler{liquidationSvc: liquidationSvc, liquidationRepo: liquidationRepo}
}

// ListOpportunities godoc
// GET /api/liquidations/opportunities?limit=50 [JWT]
// Returns confirmed-eligible targets ranked by potential profit.
func (h *LiquidationHandler) ListOpportunities(c *gin.Context) {
	_, limit := parsePagination(c)

	opps, err := h.liquidationSvc.ListOpportunities(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not scan opportunities")
		return
	}
	respondSuccess(c, http.StatusOK, opps)
}

// CheckEligibility godoc
// GET /api/liquidations/check/:user_id?chain=ethereum [JWT]
// Recomputes the target's snapshot and returns liquidation terms, or 409 when
// the target is healthy.
func (h *LiquidationHandler) CheckEligibility(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_USER_ID", "invalid user id")
		return
	}
	chain := c.DefaultQuery("chain", domain.DefaultChain)

	opp, err := h.liquidationSvc.CheckEligibility(c.Request.Context(), targetID, chain)
	if err != nil {
		if errors.Is(err, domain.ErrNotLiquidatable) {
			respondError(c, http.StatusConflict, "ERR_NOT_LIQUIDATABLE", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "eligibility check failed")
		return
	}
	respondSuccess(c, http.StatusOK, opp)
}

// Execute godoc
// POST /api/liquidations [JWT]
// Body: {"target_user_id":"uuid","chain":"ethereum","collateral_asset":"WETH",
//
//	"debt_asset":"USDC","debt_to_cover":"500.00","debt_rate_mode":"variable"}
func (h *LiquidationHandler) Execute(c *gin.Context) {
	liquidatorID := middleware.GetUserID(c)

	var body struct {
		TargetUserID    string `json:"target_user_id"   binding:"required"`
		Chain           string `json:"chain"`
		CollateralAsset string `json:"collateral_asset" binding:"required"`
		DebtAsset       string `json:"debt_asset"       binding:"required"`
		DebtToCover     string `json:"debt_to_cover"    binding:"required"`
		DebtRateMode    string `json:"debt_rate_mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	targetID, err := uuid.Parse(body.TargetUserID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_USER_ID", "invalid target_user_id format")
		return
	}

	debtToCover, err := decimal.NewFromString(body.DebtToCover)
	if err != nil || !debtToCover.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "debt_to_cover must be a positive decimal string")
		return
	}

	req := domain.ExecuteLiquidationRequest{
		LiquidatorID:    liquidatorID,
		TargetUserID:    targetID,
		Chain:           body.Chain,
		CollateralAsset: body.CollateralAsset,
		DebtAsset:       body.DebtAsset,
		DebtRateMode:    domain.RateMode(body.DebtRateMode),
		DebtToCover:     debtToCover,
	}

	call, err := h.liquidationSvc.Execute(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSelfLiquidation):
			respondError(c, http.StatusBadRequest, "ERR_SELF_LIQUIDATION", err.Error())
		case errors.Is(err, domain.ErrNotLiquidatable):
			respondError(c, http.StatusConflict, "ERR_NOT_LIQUIDATABLE", err.Error())
		case errors.Is(err, domain.ErrInsufficientCollateral):
			respondError(c, http.StatusConflict, "ERR_INSUFFICIENT_COLLATERAL", err.Error())
		case errors.Is(err, domain.ErrLiquidationTooSmall):
			respondError(c, http.StatusBadRequest, "ERR_LIQUIDATION_TOO_SMALL", err.Error())
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		case domain.IsValidation(err):
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "liquidation failed")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, call)
}

// GetHistory godoc
// GET /api/liquidations/my?page=1&limit=20 [JWT]
// Returns liquidation calls executed against the caller's positions.
func (h *LiquidationHandler) GetHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	calls, err := h.liquidationRepo.ListByTarget(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch liquidation history")
		return
	}
	respondList(c, calls, len(calls), page, limit)
}
