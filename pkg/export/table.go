package export

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Table 一张报表（CSV 中的一个分段、XLSX 中的一个工作表）
type Table struct {
	Name    string
	Title   string
	Headers []string
	Rows    [][]interface{}
}

// AddRow 追加一行
func (t *Table) AddRow(values ...interface{}) {
	t.Rows = append(t.Rows, values)
}

// Field 文档中的键值信息
type Field struct {
	Label string
	Value interface{}
}

// Format 导出格式
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// ParseFormat 解析格式参数，未知值返回 false
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, true
	case FormatCSV:
		return FormatCSV, true
	case FormatXLSX:
		return FormatXLSX, true
	case FormatHTML, "pdf":
		return FormatHTML, true
	}
	return "", false
}

// ContentType 响应内容类型
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Filename 下载文件名，如 sales_20260101.csv
func (f Format) Filename(base string, at time.Time) string {
	return base + "_" + at.Format("20060102") + "." + string(f)
}

const dateTimeLayout = "02/01/2006 15:04"

// CellText 单元格文本：金额使用小数逗号，时间为日/月/年
func CellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return DecimalComma(val)
	case Money:
		return DecimalComma(val.Amount)
	case *decimal.Decimal:
		if val == nil {
			return ""
		}
		return DecimalComma(*val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(dateTimeLayout)
	case *time.Time:
		if val == nil || val.IsZero() {
			return ""
		}
		return val.Format(dateTimeLayout)
	case bool:
		if val {
			return "oui"
		}
		return "non"
	case float64:
		return DecimalComma(decimal.NewFromFloat(val))
	}
	return toString(v)
}

// DecimalComma 以逗号为小数点输出，至少保留两位小数，更高精度（如称重数量）保持原样
func DecimalComma(d decimal.Decimal) string {
	var s string
	if d.Exponent() < -2 {
		s = d.String()
		if !strings.Contains(s, ".") {
			s = d.StringFixed(2)
		}
	} else {
		s = d.StringFixed(2)
	}
	return strings.Replace(s, ".", ",", 1)
}
