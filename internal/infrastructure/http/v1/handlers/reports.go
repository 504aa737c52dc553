package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReportsHandler serves the read side: movement history, alerts and the audit trail.
type ReportsHandler struct {
	*BaseHandler
	ledger *ledger.Service
	alerts *alerts.Service
	audit  *audit.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, ledgerSvc *ledger.Service, alertSvc *alerts.Service, auditSvc *audit.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		ledger:      ledgerSvc,
		alerts:      alertSvc,
		audit:       auditSvc,
	}
}

// Movements handles GET /movements
func (h *ReportsHandler) Movements(c *gin.Context) {
	params := h.QueryParams(c)

	filter, err := ledger.ParseFilter(params, h.ledger.Location())
	if err != nil {
		h.Error(c, err)
		return
	}
	page, err := ledger.ParsePageRequest(params)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.ledger.Query(c.Request.Context(), filter, page)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovementPage(result, filter))
}

// Alerts handles GET /reports/alerts
func (h *ReportsHandler) Alerts(c *gin.Context) {
	report, err := h.alerts.Report(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// AuditTrail handles GET /reports/audit-trail
func (h *ReportsHandler) AuditTrail(c *gin.Context) {
	filter, err := ledger.ParseFilter(h.QueryParams(c), h.ledger.Location())
	if err != nil {
		h.Error(c, err)
		return
	}

	trail, err := h.audit.Build(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, trail)
}
