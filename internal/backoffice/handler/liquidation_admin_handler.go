package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lumenfi/lending/internal/config"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
)

// LiquidationAdminHandler serves /admin/liquidations audit endpoints.
type LiquidationAdminHandler struct {
	liquidationRepo *repository.LiquidationRepository
	cfg             *config.Config
}

// NewLiquidationAdminHandler creates a LiquidationAdminHandler.
func NewLiquidationAdminHandler(liquidationRepo *repository.LiquidationRepository, cfg *config.Config) *LiquidationAdminHandler {
	return &LiquidationAdminHandler{liquidationRepo: liquidationRepo, cfg: cfg}
}

// List godoc
// GET /admin/liquidations?status=completed&page=1&limit=50
// Status filter: pending | completed | failed | "" (all).
func (h *LiquidationAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit
	status := domain.LiquidationStatus(c.Query("status"))

	calls, err := h.liquidationRepo.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, calls, len(calls), page, limit)
}

// ByTarget godoc
// GET /admin/liquidations/target/:user_id?page=1&limit=50
func (h *LiquidationAdminHandler) ByTarget(c *gin.Context) {
	targetID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return
	}
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	calls, err := h.liquidationRepo.ListByTarget(c.Request.Context(), targetID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, calls, len(calls), page, limit)
}
