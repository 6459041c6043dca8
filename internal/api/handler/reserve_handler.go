package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumenfi/lending/internal/domain"
	"github.com/lumenfi/lending/internal/repository"
	"github.com/lumenfi/lending/internal/service"
)

// ReserveHandler serves public reserve and oracle price endpoints.
type ReserveHandler struct {
	reserveRepo *repository.ReserveRepository
	priceSvc    *service.PriceService
}

// NewReserveHandler creates a ReserveHandler.
func NewReserveHandler(reserveRepo *repository.ReserveRepository, priceSvc *service.PriceService) *ReserveHandler {
	return &ReserveHandler{reserveRepo: reserveRepo, priceSvc: priceSvc}
}

// ListReserves godoc
// GET /api/reserves?chain=ethereum
func (h *ReserveHandler) ListReserves(c *gin.Context) {
	chain := c.Query("chain")

	reserves, err := h.reserveRepo.List(c.Request.Context(), chain)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch reserves")
		return
	}
	respondSuccess(c, http.StatusOK, reserves)
}

// GetReserve godoc
// GET /api/reserves/:asset?chain=ethereum
func (h *ReserveHandler) GetReserve(c *gin.Context) {
	asset := c.Param("asset")
	chain := c.DefaultQuery("chain", domain.DefaultChain)

	reserve, err := h.reserveRepo.Get(c.Request.Context(), asset, chain)
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_RESERVE_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch reserve")
		return
	}
	respondSuccess(c, http.StatusOK, reserve)
}

// GetIndexPrice godoc
// GET /api/prices/:asset
// Returns the oracle's weighted USD index price for the asset.
func (h *ReserveHandler) GetIndexPrice(c *gin.Context) {
	asset := c.Param("asset")

	price, err := h.priceSvc.GetIndexPrice(c.Request.Context(), asset)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ERR_ORACLE_UNAVAILABLE", "index price unavailable")
		return
	}
	respondSuccess(c, http.StatusOK, price)
}
