package v1

import (
	"github.com/gin-gonic/gin"
)

// StockRouteHandler defines the write-side endpoints of the reservation engine.
type StockRouteHandler interface {
	Reserve(c *gin.Context)
	Release(c *gin.Context)
	Commit(c *gin.Context)
	ApplyMovement(c *gin.Context)
	Transfer(c *gin.Context)
	SetReorderLevel(c *gin.Context)
	GetRecord(c *gin.Context)
	Consistency(c *gin.Context)
}

// ReportRouteHandler defines the read-side endpoints.
type ReportRouteHandler interface {
	Movements(c *gin.Context)
	Alerts(c *gin.Context)
	AuditTrail(c *gin.Context)
}

// RegisterStockRoutes registers stock routes on group (mounted at /stock).
func RegisterStockRoutes(group *gin.RouterGroup, handler StockRouteHandler) {
	group.POST("/reservations", handler.Reserve)
	group.POST("/reservations/:id/release", handler.Release)
	group.POST("/reservations/:id/commit", handler.Commit)
	group.POST("/movements", handler.ApplyMovement)
	group.POST("/transfers", handler.Transfer)
	group.PUT("/reorder-level", handler.SetReorderLevel)
	group.GET("/records", handler.GetRecord)
	group.GET("/consistency", handler.Consistency)
}

// RegisterReportRoutes registers the movement history and report routes on the API root.
func RegisterReportRoutes(group *gin.RouterGroup, handler ReportRouteHandler) {
	group.GET("/movements", handler.Movements)

	reports := group.Group("/reports")
	reports.GET("/alerts", handler.Alerts)
	reports.GET("/audit-trail", handler.AuditTrail)
}
