package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the reservation engine.
type StockHandler struct {
	*BaseHandler
	service         *stock.Service
	defaultLocation string
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *stock.Service, defaultLocation string) *StockHandler {
	return &StockHandler{
		BaseHandler:     base,
		service:         service,
		defaultLocation: defaultLocation,
	}
}

// Reserve handles POST /stock/reservations
func (h *StockHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, err := req.ToKey(h.defaultLocation)
	if err != nil {
		h.Error(c, err)
		return
	}

	reservation, err := h.service.Reserve(c.Request.Context(), stock.ReserveInput{
		StockKey:  key,
		Quantity:  req.Quantity,
		Reference: req.Reference,
		WalkIn:    req.WalkIn,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, reservation)
}

// Release handles POST /stock/reservations/:id/release
func (h *StockHandler) Release(c *gin.Context) {
	reservationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	m, err := h.service.Release(c.Request.Context(), reservationID, "")
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// Commit handles POST /stock/reservations/:id/commit
func (h *StockHandler) Commit(c *gin.Context) {
	reservationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	m, err := h.service.CommitAsSale(c.Request.Context(), reservationID, "")
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// ApplyMovement handles POST /stock/movements
func (h *StockHandler) ApplyMovement(c *gin.Context) {
	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, err := req.ToKey(h.defaultLocation)
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.service.ApplyBusinessMovement(c.Request.Context(), stock.BusinessMovementInput{
		StockKey:       key,
		Type:           entity.MovementType(req.MovementType),
		SignedQuantity: req.Quantity,
		Notes:          req.Notes,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// Transfer handles POST /stock/transfers
func (h *StockHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, err := dto.KeyRequest{ProductID: req.ProductID, VariantID: req.VariantID, Location: req.From}.
		ToKey(h.defaultLocation)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Transfer(c.Request.Context(), stock.TransferInput{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		From:      key.Location,
		To:        req.To,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// SetReorderLevel handles PUT /stock/reorder-level
func (h *StockHandler) SetReorderLevel(c *gin.Context) {
	var req dto.ReorderLevelRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key, err := req.ToKey(h.defaultLocation)
	if err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.service.SetReorderLevel(c.Request.Context(), key, *req.ReorderLevel)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockRecord(rec))
}

// GetRecord handles GET /stock/records
func (h *StockHandler) GetRecord(c *gin.Context) {
	key, ok := h.bindKey(c)
	if !ok {
		return
	}

	rec, err := h.service.GetRecord(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockRecord(rec))
}

// Consistency handles GET /stock/consistency
func (h *StockHandler) Consistency(c *gin.Context) {
	key, ok := h.bindKey(c)
	if !ok {
		return
	}

	report, err := h.service.Verify(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

func (h *StockHandler) bindKey(c *gin.Context) (entity.StockKey, bool) {
	var req dto.KeyRequest
	if !h.BindQuery(c, &req) {
		return entity.StockKey{}, false
	}
	key, err := req.ToKey(h.defaultLocation)
	if err != nil {
		h.Error(c, err)
		return entity.StockKey{}, false
	}
	return key, true
}
