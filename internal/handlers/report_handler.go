package handlers

import (
	"caisse/internal/models"
	"caisse/internal/services"

	"github.com/gin-gonic/gin"
)

// ReportHandler 报表：format=json/csv/xlsx/pdf
type ReportHandler struct {
	service *services.ReportService
	auditRecorder
}

func NewReportHandler(service *services.ReportService, audit *services.AuditService) *ReportHandler {
	return &ReportHandler{service: service, auditRecorder: auditRecorder{audit: audit}}
}

// Sales 销售报表
func (h *ReportHandler) Sales(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}

	report, err := h.service.Sales(actor(c).EntityID, r)
	if err != nil {
		handleError(c, err, "生成报表失败")
		return
	}
	h.exported(c, "sales")
	writeExport(c, "ventes", report)
}

// Stock 库存报表
func (h *ReportHandler) Stock(c *gin.Context) {
	report, err := h.service.Stock(actor(c).EntityID)
	if err != nil {
		handleError(c, err, "生成报表失败")
		return
	}
	h.exported(c, "stock")
	writeExport(c, "stock", report)
}

// Cash 收银报表
func (h *ReportHandler) Cash(c *gin.Context) {
	r, ok := dateRange(c)
	if !ok {
		return
	}

	report, err := h.service.Cash(actor(c).EntityID, r)
	if err != nil {
		handleError(c, err, "生成报表失败")
		return
	}
	h.exported(c, "cash")
	writeExport(c, "caisse", report)
}

// exported 文件导出记审计，JSON 查看不记
func (h *ReportHandler) exported(c *gin.Context, name string) {
	format := c.Query("format")
	if format == "" || format == "json" {
		return
	}
	h.record(c, "export", models.ResourceReports, nil, gin.H{
		"report": name,
		"format": format,
		"from":   c.Query("from"),
		"to":     c.Query("to"),
	})
}
