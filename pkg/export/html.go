package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

// Document 可打印文档（客户端转换为 PDF）
type Document struct {
	Title       string
	Subtitle    string
	EntityName  string
	Meta        []Field
	Tables      []Table
	Summary     []Field
	Footer      string
	GeneratedAt time.Time
}

const documentTemplate = `<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  @page { size: A4; margin: 14mm; }
  body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 12px; color: #1f2937; }
  header { border-bottom: 2px solid #4f46e5; margin-bottom: 16px; padding-bottom: 8px; }
  header h1 { font-size: 20px; margin: 0; color: #312e81; }
  header .entity { font-weight: bold; font-size: 14px; }
  header .subtitle { color: #6b7280; }
  dl.meta { display: grid; grid-template-columns: max-content auto; gap: 2px 12px; margin: 0 0 12px; }
  dl.meta dt { color: #6b7280; }
  dl.meta dd { margin: 0; }
  h2 { font-size: 14px; margin: 18px 0 6px; color: #312e81; }
  table { width: 100%; border-collapse: collapse; margin-bottom: 12px; }
  th { background: #e0e7ff; text-align: left; padding: 6px; border-bottom: 1px solid #c7d2fe; }
  td { padding: 5px 6px; border-bottom: 1px solid #e5e7eb; }
  td.num { text-align: right; white-space: nowrap; }
  table.summary { width: auto; margin-left: auto; }
  table.summary td { border: none; }
  table.summary tr:last-child td { font-weight: bold; font-size: 14px; border-top: 2px solid #1f2937; }
  footer { margin-top: 24px; color: #6b7280; font-size: 10px; text-align: center; }
</style>
</head>
<body>
<header>
  {{if .EntityName}}<div class="entity">{{.EntityName}}</div>{{end}}
  <h1>{{.Title}}</h1>
  {{if .Subtitle}}<div class="subtitle">{{.Subtitle}}</div>{{end}}
</header>
{{if .Meta}}<dl class="meta">{{range .Meta}}<dt>{{.Label}}</dt><dd>{{cell .Value}}</dd>{{end}}</dl>{{end}}
{{range .Tables}}
{{if .Title}}<h2>{{.Title}}</h2>{{end}}
<table>
  <thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
  <tbody>
  {{range .Rows}}<tr>{{range .}}<td{{if numeric .}} class="num"{{end}}>{{cell .}}</td>{{end}}</tr>
  {{end}}
  </tbody>
</table>
{{end}}
{{if .Summary}}<table class="summary">{{range .Summary}}<tr><td>{{.Label}}</td><td class="num">{{cell .Value}}</td></tr>{{end}}</table>{{end}}
<footer>{{if .Footer}}{{.Footer}} · {{end}}{{formatTime .GeneratedAt}}</footer>
</body>
</html>
`

// Renderer 渲染可打印文档
type Renderer struct {
	tmpl      *template.Template
	formatter *Formatter
}

// NewRenderer 创建渲染器
func NewRenderer(formatter *Formatter) (*Renderer, error) {
	if formatter == nil {
		formatter = NewFormatter("fr", "")
	}
	r := &Renderer{formatter: formatter}

	funcMap := template.FuncMap{
		"cell":       r.cell,
		"numeric":    isNumeric,
		"formatTime": func(t time.Time) string { return t.Format(dateTimeLayout) },
	}
	tmpl, err := template.New("document").Funcs(funcMap).Parse(documentTemplate)
	if err != nil {
		return nil, fmt.Errorf("解析文档模板失败: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Render 渲染为 HTML
func (r *Renderer) Render(doc Document) ([]byte, error) {
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now()
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("渲染文档失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) cell(v interface{}) string {
	switch val := v.(type) {
	case decimal.Decimal:
		return r.formatter.Number(val)
	case Money:
		return r.formatter.Money(val.Amount)
	}
	return CellText(v)
}

// Money 在文档中按货币格式显示的金额
type Money struct {
	Amount decimal.Decimal
}

// M 包装金额
func M(d decimal.Decimal) Money {
	return Money{Amount: d}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case decimal.Decimal, Money, int, int64, uint, float64:
		return true
	}
	return false
}
