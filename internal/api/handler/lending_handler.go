package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumenfi/lending/internal/api/middleware"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
	"github.com/shopspring/decimal"
)

// LendingHandler serves the supply/withdraw/borrow/repay endpoint and the
// position read endpoints.
type LendingHandler struct {
	lendingSvc   *service.LendingService
	healthSvc    *service.HealthService
	positionRepo *repository.PositionRepository
}

// NewLendingHandler creates a LendingHandler.
func NewLendingHandler(
	lendingSvc *service.LendingService,
	healthSvc *service.HealthService,
	positionRepo *repository.PositionRepository,
) *LendingHandler {
	return &LendingHandler{lendingSvc: lendingSvc, healthSvc: healthSvc, positionRepo: positionRepo}
}

// Execute godoc
// POST /api/lending [JWT]
// Body: {"action":"supply","asset":"USDC","amount":"1000.00","chain":"ethereum","rate_mode":"variable"}
func (h *LendingHandler) Execute(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Action   string `json:"action"    binding:"required"`
		Asset    string `json:"asset"     binding:"required"`
		Amount   string `json:"amount"    binding:"required"`
		Chain    string `json:"chain"`
		RateMode string `json:"rate_mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	req := domain.LendingRequest{
		UserID:   userID,
		Action:   domain.LendingAction(body.Action),
		Asset:    body.Asset,
		Chain:    body.Chain,
		Amount:   amount,
		RateMode: domain.RateMode(body.RateMode),
	}

	result, err := h.lendingSvc.Execute(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAction):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_ACTION", err.Error())
		case errors.Is(err, domain.ErrInvalidRateMode):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_RATE_MODE", err.Error())
		case errors.Is(err, domain.ErrBorrowExceedsLimit):
			respondError(c, http.StatusBadRequest, "ERR_BORROW_LIMIT", err.Error())
		case errors.Is(err, domain.ErrWithdrawUnhealthy):
			respondError(c, http.StatusConflict, "ERR_WITHDRAW_UNHEALTHY", err.Error())
		case errors.Is(err, domain.ErrInsufficientSupply):
			respondError(c, http.StatusBadRequest, "ERR_INSUFFICIENT_SUPPLY", err.Error())
		case errors.Is(err, domain.ErrInsufficientDebt):
			respondError(c, http.StatusBadRequest, "ERR_INSUFFICIENT_DEBT", err.Error())
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		case domain.IsValidation(err):
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "lending operation failed")
		}
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// GetPositions godoc
// GET /api/positions?chain=ethereum [JWT]
func (h *LendingHandler) GetPositions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	chain := c.DefaultQuery("chain", domain.DefaultChain)

	supplies, err := h.positionRepo.ListSupplies(c.Request.Context(), userID, chain)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch positions")
		return
	}
	borrows, err := h.positionRepo.ListBorrows(c.Request.Context(), userID, chain)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch positions")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"chain":    chain,
		"supplies": supplies,
		"borrows":  borrows,
	})
}

// SetCollateral godoc
// POST /api/positions/collateral [JWT]
// Body: {"asset":"WETH","chain":"ethereum","used_as_collateral":true}
func (h *LendingHandler) SetCollateral(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Asset            string `json:"asset" binding:"required"`
		Chain            string `json:"chain"`
		UsedAsCollateral *bool  `json:"used_as_collateral" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if body.Chain == "" {
		body.Chain = domain.DefaultChain
	}

	err := h.positionRepo.SetCollateralFlag(c.Request.Context(), userID, body.Asset, body.Chain, *body.UsedAsCollateral)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_POSITION_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not update collateral flag")
		return
	}
	// The flag changes the collateral aggregate, so refresh the snapshot.
	snap, err := h.healthSvc.Recompute(c.Request.Context(), userID, body.Chain)
	if err != nil {
		respondSuccess(c, http.StatusOK, gin.H{
			"asset":              body.Asset,
			"chain":              body.Chain,
			"used_as_collateral": *body.UsedAsCollateral,
			"risk_cache_stale":   true,
		})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"asset":              body.Asset,
		"chain":              body.Chain,
		"used_as_collateral": *body.UsedAsCollateral,
		"health_factor":      snap,
	})
}
