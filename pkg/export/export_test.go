package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() Table {
	t := Table{Name: "Ventes", Title: "Ventes par jour", Headers: []string{"Jour", "Factures", "Total"}}
	t.AddRow("2026-03-01", 4, decimal.RequireFromString("1250.5"))
	t.AddRow("2026-03-02", 1, decimal.RequireFromString("-3"))
	return t
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatJSON, true},
		{"CSV", FormatCSV, true},
		{"xlsx", FormatXLSX, true},
		{"pdf", FormatHTML, true},
		{"html", FormatHTML, true},
		{"doc", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseFormat(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "sales_20260304.csv", FormatCSV.Filename("sales", at))
}

func TestDecimalComma(t *testing.T) {
	assert.Equal(t, "1250,50", DecimalComma(decimal.RequireFromString("1250.5")))
	assert.Equal(t, "12,00", DecimalComma(decimal.NewFromInt(12)))
	assert.Equal(t, "0,125", DecimalComma(decimal.RequireFromString("0.125")))
	assert.Equal(t, "-3,00", DecimalComma(decimal.NewFromInt(-3)))
}

func TestCellText(t *testing.T) {
	at := time.Date(2026, 3, 4, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "04/03/2026 09:05", CellText(at))
	assert.Equal(t, "", CellText((*time.Time)(nil)))
	assert.Equal(t, "oui", CellText(true))
	assert.Equal(t, "7", CellText(uint(7)))
	assert.Equal(t, "2,50", CellText(M(decimal.RequireFromString("2.5"))))
}

func TestWriteCSV(t *testing.T) {
	data, err := WriteCSV(sampleTable())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	lines := strings.Split(strings.TrimRight(string(data[3:]), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Jour;Factures;Total", lines[0])
	assert.Equal(t, "2026-03-01;4;1250,50", lines[1])
}

func TestWriteCSV_MultipleSections(t *testing.T) {
	second := Table{Title: "Résumé", Headers: []string{"Clé", "Valeur"}}
	second.AddRow("Total; net", decimal.NewFromInt(10))

	data, err := WriteCSV(sampleTable(), second)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "Ventes par jour\n")
	assert.Contains(t, content, "\n\nRésumé\n")
	assert.Contains(t, content, `"Total; net";10,00`)
}

func TestWriteXLSX(t *testing.T) {
	other := Table{Name: "Ventes", Headers: []string{"x"}}
	other.AddRow(1)

	data, err := WriteXLSX(sampleTable(), other)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Ventes", "Ventes_2"}, f.GetSheetList())
	v, err := f.GetCellValue("Ventes", "C2")
	require.NoError(t, err)
	assert.Equal(t, "1250.5", v)
	h, err := f.GetCellValue("Ventes", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Jour", h)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "a_b", sheetName(Table{Name: "a/b"}))
	assert.Len(t, []rune(sheetName(Table{Name: strings.Repeat("x", 40)})), 31)
	assert.Equal(t, "Sheet", sheetName(Table{}))
}

func TestFormatter(t *testing.T) {
	fr := NewFormatter("fr", "XOF")
	money := fr.Money(decimal.RequireFromString("1234.5"))
	assert.Contains(t, money, "234,50")
	assert.True(t, strings.HasSuffix(money, " XOF"))

	en := NewFormatter("en", "")
	assert.Equal(t, "1,234.50", en.Money(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "0.125", en.Number(decimal.RequireFromString("0.125")))
}

func TestRenderer(t *testing.T) {
	r, err := NewRenderer(NewFormatter("en", "EUR"))
	require.NoError(t, err)

	table := Table{Title: "Lignes", Headers: []string{"Produit", "Qté", "Total"}}
	table.AddRow("<script>alert(1)</script>", decimal.NewFromInt(2), M(decimal.RequireFromString("25")))

	html, err := r.Render(Document{
		Title:      "Facture FAC-BSB-20260304-0001",
		EntityName: "Boutique Saba",
		Meta:       []Field{{Label: "Client", Value: "Awa"}},
		Tables:     []Table{table},
		Summary:    []Field{{Label: "Total", Value: M(decimal.RequireFromString("25"))}},
	})
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "Facture FAC-BSB-20260304-0001")
	assert.Contains(t, out, "Boutique Saba")
	assert.Contains(t, out, "25.00 EUR")
	assert.Contains(t, out, `class="num"`)
	assert.NotContains(t, out, "<script>alert(1)</script>")
}
