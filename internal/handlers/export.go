package handlers

import (
	"time"

	"caisse/internal/middleware"
	"caisse/pkg/export"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
)

// tabular 可导出为表格和打印文档的结果
type tabular interface {
	Tables() []export.Table
	Document() export.Document
}

// formatter 按当前经营主体的货币格式化金额
func formatter(c *gin.Context) *export.Formatter {
	currency := ""
	if user, ok := middleware.GetUser(c); ok && user.Entity != nil {
		currency = user.Entity.Currency
	}
	return export.NewFormatter("fr", currency)
}

// renderDocument 输出可打印 HTML
func renderDocument(c *gin.Context, doc export.Document) {
	renderer, err := export.NewRenderer(formatter(c))
	if err != nil {
		handleError(c, err, "生成文档失败")
		return
	}
	data, err := renderer.Render(doc)
	if err != nil {
		handleError(c, err, "生成文档失败")
		return
	}
	response.HTML(c, data)
}

// writeExport 按 format 参数输出：json（默认）/csv/xlsx/html(pdf)
func writeExport(c *gin.Context, base string, result tabular) {
	raw := c.DefaultQuery("format", string(export.FormatJSON))
	format, ok := export.ParseFormat(raw)
	if !ok {
		response.BadRequest(c, "不支持的导出格式: "+raw)
		return
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case export.FormatJSON:
		response.Success(c, result)
		return
	case export.FormatHTML:
		renderDocument(c, result.Document())
		return
	case export.FormatCSV:
		data, err = export.WriteCSV(result.Tables()...)
	case export.FormatXLSX:
		data, err = export.WriteXLSX(result.Tables()...)
	}
	if err != nil {
		handleError(c, err, "导出失败")
		return
	}
	response.File(c, format.Filename(base, time.Now()), format.ContentType(), data)
}
