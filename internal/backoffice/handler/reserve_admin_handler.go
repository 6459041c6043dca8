package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/shopspring/decimal"
)

// ReserveAdminHandler serves /admin/reserves endpoints.
type ReserveAdminHandler struct {
	reserveRepo *repository.ReserveRepository
	cfg         *config.Config
}

// NewReserveAdminHandler creates a ReserveAdminHandler.
func NewReserveAdminHandler(reserveRepo *repository.ReserveRepository, cfg *config.Config) *ReserveAdminHandler {
	return &ReserveAdminHandler{reserveRepo: reserveRepo, cfg: cfg}
}

// List godoc
// GET /admin/reserves?chain=
func (h *ReserveAdminHandler) List(c *gin.Context) {
	reserves, err := h.reserveRepo.List(c.Request.Context(), c.Query("chain"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, reserves)
}

// reserveParamsBody is the shared request shape for Create and UpdateParams.
type reserveParamsBody struct {
	Asset                string `json:"asset"                 binding:"required"`
	Chain                string `json:"chain"`
	LTV                  string `json:"ltv"                   binding:"required"`
	LiquidationThreshold string `json:"liquidation_threshold" binding:"required"`
	LiquidationBonus     string `json:"liquidation_bonus"     binding:"required"`
}

// parseParams converts the string decimals and validates them as a reserve.
func (b *reserveParamsBody) parseParams() (ltv, threshold, bonus decimal.Decimal, err error) {
	if ltv, err = decimal.NewFromString(b.LTV); err != nil {
		return
	}
	if threshold, err = decimal.NewFromString(b.LiquidationThreshold); err != nil {
		return
	}
	bonus, err = decimal.NewFromString(b.LiquidationBonus)
	return
}

// Create godoc
// POST /admin/reserves
// Body: {"asset":"WETH","chain":"ethereum","ltv":"0.80",
//
//	"liquidation_threshold":"0.85","liquidation_bonus":"0.05"}
func (h *ReserveAdminHandler) Create(c *gin.Context) {
	var body reserveParamsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if body.Chain == "" {
		body.Chain = domain.DefaultChain
	}

	ltv, threshold, bonus, err := body.parseParams()
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PARAMS", "risk parameters must be decimal strings")
		return
	}

	now := time.Now().UTC()
	reserve := &domain.AssetReserve{
		ID:                   uuid.New(),
		Asset:                body.Asset,
		Chain:                body.Chain,
		LTV:                  ltv,
		LiquidationThreshold: threshold,
		LiquidationBonus:     bonus,
		IsActive:             true,
		IsFrozen:             false,
		BorrowEnabled:        true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err = reserve.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PARAMS", err.Error())
		return
	}

	if err = h.reserveRepo.Create(c.Request.Context(), reserve); err != nil {
		if domain.IsConflict(err) {
			respondError(c, http.StatusConflict, "ERR_RESERVE_EXISTS", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusCreated, reserve)
}

// UpdateParams godoc
// PUT /admin/reserves/params
// Body: same shape as Create.
func (h *ReserveAdminHandler) UpdateParams(c *gin.Context) {
	var body reserveParamsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if body.Chain == "" {
		body.Chain = domain.DefaultChain
	}

	ltv, threshold, bonus, err := body.parseParams()
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PARAMS", "risk parameters must be decimal strings")
		return
	}

	reserve := &domain.AssetReserve{
		Asset:                body.Asset,
		Chain:                body.Chain,
		LTV:                  ltv,
		LiquidationThreshold: threshold,
		LiquidationBonus:     bonus,
	}
	if err = reserve.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PARAMS", err.Error())
		return
	}

	if err = h.reserveRepo.UpdateRiskParams(c.Request.Context(), reserve); err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, reserve)
}

// SetFlags godoc
// POST /admin/reserves/:id/flags
// Body: {"is_active":true,"is_frozen":false,"borrow_enabled":true}
func (h *ReserveAdminHandler) SetFlags(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid reserve id")
		return
	}

	var body struct {
		IsActive      *bool `json:"is_active"      binding:"required"`
		IsFrozen      *bool `json:"is_frozen"      binding:"required"`
		BorrowEnabled *bool `json:"borrow_enabled" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err = h.reserveRepo.SetFlags(c.Request.Context(), id, *body.IsActive, *body.IsFrozen, *body.BorrowEnabled); err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"id":             id,
		"is_active":      *body.IsActive,
		"is_frozen":      *body.IsFrozen,
		"borrow_enabled": *body.BorrowEnabled,
	})
}
