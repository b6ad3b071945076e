package services

import (
	"fmt"
	"sort"
	"time"

	"caisse/internal/models"
	"caisse/pkg/export"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Report 可导出的报表
type Report interface {
	Tables() []export.Table
	Document() export.Document
}

type ReportService struct {
	db *gorm.DB
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// Period 报表期间
type Period struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"` // 开区间
}

func (p Period) label() string {
	switch {
	case p.From != nil && p.To != nil:
		return fmt.Sprintf("Du %s au %s", p.From.Format("02/01/2006"), p.To.AddDate(0, 0, -1).Format("02/01/2006"))
	case p.From != nil:
		return "À partir du " + p.From.Format("02/01/2006")
	case p.To != nil:
		return "Jusqu'au " + p.To.AddDate(0, 0, -1).Format("02/01/2006")
	}
	return "Toutes périodes"
}

// SalesBucket 分组汇总
type SalesBucket struct {
	Key   string          `json:"key"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ProductSales 商品销售汇总
type ProductSales struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SalesReport 销售报表（仅统计已确认发票）
type SalesReport struct {
	EntityName    string          `json:"entity_name"`
	Period        Period          `json:"period"`
	Count         int             `json:"count"`
	Gross         decimal.Decimal `json:"gross"`
	Discount      decimal.Decimal `json:"discount"`
	Net           decimal.Decimal `json:"net"`
	AverageBasket decimal.Decimal `json:"average_basket"`
	Cancelled     int64           `json:"cancelled"`
	ByDay         []SalesBucket   `json:"by_day"`
	ByPayment     []SalesBucket   `json:"by_payment"`
	ByCashier     []SalesBucket   `json:"by_cashier"`
	TopProducts   []ProductSales  `json:"top_products"`
}

const topProductsLimit = 10

func (s *ReportService) entityName(entityID uint) string {
	var name string
	s.db.Model(&models.Entity{}).Select("name").Where("id = ?", entityID).Scan(&name)
	return name
}

// Sales 销售报表，按确认时间统计
func (s *ReportService) Sales(entityID uint, r DateRange) (*SalesReport, error) {
	var invoices []models.Invoice
	query := s.db.Where("entity_id = ? AND status = ?", entityID, models.InvoiceStatusValidated)
	query = r.Apply(query, "validated_at")
	if err := query.Preload("Lines").Preload("Creator").Order("validated_at").Find(&invoices).Error; err != nil {
		return nil, err
	}

	report := &SalesReport{
		EntityName: s.entityName(entityID),
		Period:     Period{From: r.From, To: r.To},
		Gross:      decimal.Zero,
		Discount:   decimal.Zero,
		Net:        decimal.Zero,
	}

	cancelled := s.db.Model(&models.Invoice{}).Where("entity_id = ? AND status = ?", entityID, models.InvoiceStatusCancelled)
	cancelled = r.Apply(cancelled, "cancelled_at")
	if err := cancelled.Count(&report.Cancelled).Error; err != nil {
		return nil, err
	}

	days := newBuckets()
	payments := newBuckets()
	cashiers := newBuckets()
	products := make(map[uint]*ProductSales)

	for _, inv := range invoices {
		report.Count++
		gross := decimal.Zero
		for _, l := range inv.Lines {
			gross = gross.Add(l.UnitPrice.Mul(l.Quantity))

			p, ok := products[l.ProductID]
			if !ok {
				p = &ProductSales{ProductID: l.ProductID, Name: l.ProductName, Quantity: decimal.Zero, Revenue: decimal.Zero}
				products[l.ProductID] = p
			}
			p.Quantity = p.Quantity.Add(l.Quantity)
			p.Revenue = p.Revenue.Add(l.LineTotal)
		}
		gross = gross.Round(2)
		report.Gross = report.Gross.Add(gross)
		report.Net = report.Net.Add(inv.Total)

		day := inv.CreatedAt
		if inv.ValidatedAt != nil {
			day = *inv.ValidatedAt
		}
		days.add(day.Format("2006-01-02"), inv.Total)
		payments.add(inv.PaymentMethod, inv.Total)
		cashier := fmt.Sprintf("#%d", inv.CreatedBy)
		if inv.Creator != nil {
			cashier = inv.Creator.Username
		}
		cashiers.add(cashier, inv.Total)
	}

	report.Gross = report.Gross.Round(2)
	report.Net = report.Net.Round(2)
	report.Discount = report.Gross.Sub(report.Net)
	if report.Count > 0 {
		report.AverageBasket = report.Net.Div(decimal.NewFromInt(int64(report.Count))).Round(2)
	} else {
		report.AverageBasket = decimal.Zero
	}

	report.ByDay = days.sorted(false)
	report.ByPayment = payments.sorted(true)
	report.ByCashier = cashiers.sorted(true)

	for _, p := range products {
		p.Revenue = p.Revenue.Round(2)
		report.TopProducts = append(report.TopProducts, *p)
	}
	sort.Slice(report.TopProducts, func(i, j int) bool {
		a, b := report.TopProducts[i], report.TopProducts[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.Name < b.Name
	})
	if len(report.TopProducts) > topProductsLimit {
		report.TopProducts = report.TopProducts[:topProductsLimit]
	}
	return report, nil
}

type buckets map[string]*SalesBucket

func newBuckets() buckets {
	return make(buckets)
}

func (b buckets) add(key string, amount decimal.Decimal) {
	bucket, ok := b[key]
	if !ok {
		bucket = &SalesBucket{Key: key, Total: decimal.Zero}
		b[key] = bucket
	}
	bucket.Count++
	bucket.Total = bucket.Total.Add(amount)
}

// sorted byTotal 为真时按金额降序，否则按键升序
func (b buckets) sorted(byTotal bool) []SalesBucket {
	out := make([]SalesBucket, 0, len(b))
	for _, bucket := range b {
		bucket.Total = bucket.Total.Round(2)
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool {
		if byTotal && !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Tables 导出表
func (r *SalesReport) Tables() []export.Table {
	summary := export.Table{Name: "synthese", Title: "Synthèse des ventes", Headers: []string{"Indicateur", "Valeur"}}
	summary.AddRow("Factures", r.Count)
	summary.AddRow("Chiffre brut", r.Gross)
	summary.AddRow("Remises", r.Discount)
	summary.AddRow("Chiffre net", r.Net)
	summary.AddRow("Panier moyen", r.AverageBasket)
	summary.AddRow("Factures annulées", r.Cancelled)

	days := export.Table{Name: "par_jour", Title: "Ventes par jour", Headers: []string{"Date", "Factures", "Total"}}
	for _, b := range r.ByDay {
		days.AddRow(b.Key, b.Count, b.Total)
	}

	payments := export.Table{Name: "par_paiement", Title: "Ventes par mode de paiement", Headers: []string{"Mode", "Factures", "Total"}}
	for _, b := range r.ByPayment {
		payments.AddRow(paymentLabel(b.Key), b.Count, b.Total)
	}

	cashiers := export.Table{Name: "par_caissier", Title: "Ventes par caissier", Headers: []string{"Caissier", "Factures", "Total"}}
	for _, b := range r.ByCashier {
		cashiers.AddRow(b.Key, b.Count, b.Total)
	}

	products := export.Table{Name: "top_produits", Title: "Meilleurs produits", Headers: []string{"Produit", "Quantité", "Chiffre"}}
	for _, p := range r.TopProducts {
		products.AddRow(p.Name, p.Quantity, p.Revenue)
	}

	return []export.Table{summary, days, payments, cashiers, products}
}

// Document 打印文档
func (r *SalesReport) Document() export.Document {
	tables := r.Tables()[1:]
	for i := range tables {
		moneyColumn(&tables[i], len(tables[i].Headers)-1)
	}
	return export.Document{
		Title:      "Rapport des ventes",
		Subtitle:   r.Period.label(),
		EntityName: r.EntityName,
		Tables:     tables,
		Summary: []export.Field{
			{Label: "Factures", Value: r.Count},
			{Label: "Chiffre brut", Value: export.M(r.Gross)},
			{Label: "Remises", Value: export.M(r.Discount)},
			{Label: "Panier moyen", Value: export.M(r.AverageBasket)},
			{Label: "Chiffre net", Value: export.M(r.Net)},
		},
	}
}

func paymentLabel(method string) string {
	if label, ok := paymentLabels[method]; ok {
		return label
	}
	return method
}

// moneyColumn 将文档表格的指定列显示为金额
func moneyColumn(t *export.Table, col int) {
	for _, row := range t.Rows {
		if col < len(row) {
			if d, ok := row[col].(decimal.Decimal); ok {
				row[col] = export.M(d)
			}
		}
	}
}

// StockReportRow 库存报表行
type StockReportRow struct {
	ProductID     uint            `json:"product_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	Quantity      decimal.Decimal `json:"quantity"`
	MinQuantity   decimal.Decimal `json:"min_quantity"`
	Status        string          `json:"status"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Value         decimal.Decimal `json:"value"`
}

// StockReport 库存报表
type StockReport struct {
	EntityName  string           `json:"entity_name"`
	GeneratedAt time.Time        `json:"generated_at"`
	Rows        []StockReportRow `json:"rows"`
	TotalValue  decimal.Decimal  `json:"total_value"`
	LowCount    int              `json:"low_count"`
	OutCount    int              `json:"out_count"`
}

// Stock 库存报表，库存价值按进价计算
func (s *ReportService) Stock(entityID uint) (*StockReport, error) {
	var rows []StockReportRow
	err := s.db.Model(&models.Stock{}).
		Select("products.id AS product_id, products.sku, products.name, products.unit, "+
			"COALESCE(product_categories.name, '') AS category, stocks.quantity, stocks.min_quantity, products.purchase_price").
		Joins("JOIN products ON products.id = stocks.product_id").
		Joins("LEFT JOIN product_categories ON product_categories.id = products.category_id").
		Where("stocks.entity_id = ?", entityID).
		Order("products.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	report := &StockReport{
		EntityName:  s.entityName(entityID),
		GeneratedAt: time.Now(),
		Rows:        rows,
		TotalValue:  decimal.Zero,
	}
	for i := range report.Rows {
		row := &report.Rows[i]
		view := StockView{Quantity: row.Quantity, MinQuantity: row.MinQuantity, PurchasePrice: row.PurchasePrice}
		fillStockView(&view)
		row.Status = view.Status
		row.Value = view.Value
		report.TotalValue = report.TotalValue.Add(row.Value)
		switch row.Status {
		case models.StockStatusLow:
			report.LowCount++
		case models.StockStatusOut:
			report.OutCount++
		}
	}
	report.TotalValue = report.TotalValue.Round(2)
	return report, nil
}

var stockStatusLabels = map[string]string{
	models.StockStatusOK:  "OK",
	models.StockStatusLow: "Bas",
	models.StockStatusOut: "Rupture",
}

// Tables 导出表
func (r *StockReport) Tables() []export.Table {
	t := export.Table{
		Name:    "stock",
		Title:   "État du stock",
		Headers: []string{"SKU", "Produit", "Catégorie", "Unité", "Quantité", "Seuil", "Statut", "Prix d'achat", "Valeur"},
	}
	for _, row := range r.Rows {
		t.AddRow(row.SKU, row.Name, row.Category, row.Unit, row.Quantity, row.MinQuantity,
			stockStatusLabels[row.Status], row.PurchasePrice, row.Value)
	}
	return []export.Table{t}
}

// Document 打印文档
func (r *StockReport) Document() export.Document {
	tables := r.Tables()
	moneyColumn(&tables[0], 7)
	moneyColumn(&tables[0], 8)
	return export.Document{
		Title:       "État du stock",
		EntityName:  r.EntityName,
		Tables:      tables,
		GeneratedAt: r.GeneratedAt,
		Summary: []export.Field{
			{Label: "Produits", Value: len(r.Rows)},
			{Label: "Stock bas", Value: r.LowCount},
			{Label: "Rupture", Value: r.OutCount},
			{Label: "Valeur totale", Value: export.M(r.TotalValue)},
		},
	}
}

// CashReportRow 钱箱报表行
type CashReportRow struct {
	SessionID uint             `json:"session_id"`
	Cashier   string           `json:"cashier"`
	Status    string           `json:"status"`
	OpenedAt  time.Time        `json:"opened_at"`
	ClosedAt  *time.Time       `json:"closed_at"`
	Opening   decimal.Decimal  `json:"opening"`
	Expected  *decimal.Decimal `json:"expected"`
	Declared  *decimal.Decimal `json:"declared"`
	Variance  *decimal.Decimal `json:"variance"`
	Level     string           `json:"level"`
}

// CashReport 钱箱报表
type CashReport struct {
	EntityName    string          `json:"entity_name"`
	Period        Period          `json:"period"`
	Rows          []CashReportRow `json:"rows"`
	TotalVariance decimal.Decimal `json:"total_variance"`
	Levels        map[string]int  `json:"levels"`
	OpenCount     int             `json:"open_count"`
}

// Cash 钱箱报表，按开箱时间统计
func (s *ReportService) Cash(entityID uint, r DateRange) (*CashReport, error) {
	var sessions []models.CashSession
	query := s.db.Where("entity_id = ?", entityID)
	query = r.Apply(query, "opened_at")
	if err := query.Preload("User").Order("opened_at").Find(&sessions).Error; err != nil {
		return nil, err
	}

	report := &CashReport{
		EntityName:    s.entityName(entityID),
		Period:        Period{From: r.From, To: r.To},
		TotalVariance: decimal.Zero,
		Levels: map[string]int{
			models.VarianceBalanced: 0,
			models.VarianceMinor:    0,
			models.VarianceMajor:    0,
		},
	}
	for _, session := range sessions {
		cashier := fmt.Sprintf("#%d", session.UserID)
		if session.User != nil {
			cashier = session.User.Username
		}
		report.Rows = append(report.Rows, CashReportRow{
			SessionID: session.ID,
			Cashier:   cashier,
			Status:    session.Status,
			OpenedAt:  session.OpenedAt,
			ClosedAt:  session.ClosedAt,
			Opening:   session.OpeningBalance,
			Expected:  session.ExpectedBalance,
			Declared:  session.DeclaredBalance,
			Variance:  session.Variance,
			Level:     session.VarianceLevel,
		})
		if session.Status == models.CashSessionOpen {
			report.OpenCount++
			continue
		}
		if session.Variance != nil {
			report.TotalVariance = report.TotalVariance.Add(*session.Variance)
		}
		report.Levels[session.VarianceLevel]++
	}
	report.TotalVariance = report.TotalVariance.Round(2)
	return report, nil
}

var varianceLabels = map[string]string{
	models.VarianceBalanced: "Équilibrée",
	models.VarianceMinor:    "Écart mineur",
	models.VarianceMajor:    "Écart important",
}

// Tables 导出表
func (r *CashReport) Tables() []export.Table {
	t := export.Table{
		Name:    "caisse",
		Title:   "Sessions de caisse",
		Headers: []string{"Session", "Caissier", "Ouverture", "Clôture", "Fond de caisse", "Attendu", "Déclaré", "Écart", "Niveau"},
	}
	for _, row := range r.Rows {
		level := varianceLabels[row.Level]
		if row.Status == models.CashSessionOpen {
			level = "Ouverte"
		}
		t.AddRow(row.SessionID, row.Cashier, row.OpenedAt, row.ClosedAt, row.Opening, row.Expected, row.Declared, row.Variance, level)
	}
	return []export.Table{t}
}

// Document 打印文档
func (r *CashReport) Document() export.Document {
	return export.Document{
		Title:      "Rapport de caisse",
		Subtitle:   r.Period.label(),
		EntityName: r.EntityName,
		Tables:     r.Tables(),
		Summary: []export.Field{
			{Label: "Sessions équilibrées", Value: r.Levels[models.VarianceBalanced]},
			{Label: "Écarts mineurs", Value: r.Levels[models.VarianceMinor]},
			{Label: "Écarts importants", Value: r.Levels[models.VarianceMajor]},
			{Label: "Sessions ouvertes", Value: r.OpenCount},
			{Label: "Écart cumulé", Value: export.M(r.TotalVariance)},
		},
	}
}
