package handler

import (
	"surplus-ledger/internal/adapter/http/dto"
	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"
	"surplus-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BasketHandler handles suspended basket donation and claims.
type BasketHandler struct {
	basketSvc ports.SuspendedBasketService
}

// NewBasketHandler creates a new BasketHandler.
func NewBasketHandler(basketSvc ports.SuspendedBasketService) *BasketHandler {
	return &BasketHandler{basketSvc: basketSvc}
}

// List handles GET /api/v1/suspended-baskets.
// Defaults to available baskets; merchant_id narrows to one shop.
func (h *BasketHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	status := domain.SuspendedBasketStatus(c.DefaultQuery("status", string(domain.SuspendedBasketStatusAvailable)))
	switch status {
	case domain.SuspendedBasketStatusAvailable, domain.SuspendedBasketStatusReserved,
		domain.SuspendedBasketStatusClaimed, domain.SuspendedBasketStatusExpired:
	default:
		response.Error(c, apperror.Validation("Statut inconnu : "+string(status)))
		return
	}

	params := ports.BasketListParams{Status: &status, Page: page, PageSize: pageSize}
	if m := c.Query("merchant_id"); m != "" {
		merchantID, err := uuid.Parse(m)
		if err != nil {
			response.Error(c, apperror.Validation("Champ invalide : merchant_id"))
			return
		}
		params.MerchantID = &merchantID
	}

	baskets, total, err := h.basketSvc.ListSuspendedBaskets(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, baskets, page, pageSize, total)
}

// Get handles GET /api/v1/suspended-baskets/:id.
func (h *BasketHandler) Get(c *gin.Context) {
	basketID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	basket, err := h.basketSvc.GetSuspendedBasket(c.Request.Context(), basketID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, basket)
}

// Create handles POST /api/v1/suspended-baskets.
func (h *BasketHandler) Create(c *gin.Context) {
	donorID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateBasketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindingError(err))
		return
	}
	dto.SanitizeStruct(&req)

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	basket, err := h.basketSvc.CreateSuspendedBasket(c.Request.Context(), ports.BasketCreateRequest{
		DonorID:       donorID,
		LotID:         uuid.MustParse(req.LotID),
		Quantity:      quantity,
		Notes:         req.Notes,
		PayWithWallet: req.PayWithWallet,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, basket)
}

// Reserve handles POST /api/v1/suspended-baskets/:id/reserve.
func (h *BasketHandler) Reserve(c *gin.Context) {
	beneficiaryID, ok := currentUser(c)
	if !ok {
		return
	}
	basketID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	basket, err := h.basketSvc.ReserveSuspendedBasket(c.Request.Context(), basketID, beneficiaryID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, basket)
}

// Claim handles POST /api/v1/suspended-baskets/:id/claim.
func (h *BasketHandler) Claim(c *gin.Context) {
	beneficiaryID, ok := currentUser(c)
	if !ok {
		return
	}
	basketID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	claim, err := h.basketSvc.ClaimSuspendedBasket(c.Request.Context(), basketID, beneficiaryID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, claim)
}

// Expire handles POST /api/v1/admin/suspended-baskets/:id/expire.
func (h *BasketHandler) Expire(c *gin.Context) {
	basketID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	basket, err := h.basketSvc.ExpireSuspendedBasket(c.Request.Context(), basketID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, basket)
}
