package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// WriteXLSX 每张表一个工作表
func WriteXLSX(tables ...Table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0E7FF"}},
	})
	if err != nil {
		return nil, fmt.Errorf("创建表头样式失败: %w", err)
	}

	first := f.GetSheetName(f.GetActiveSheetIndex())
	used := make(map[string]bool)

	for i, t := range tables {
		name := uniqueSheetName(sheetName(t), used)
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("创建工作表失败: %w", err)
		}

		row := 1
		if len(t.Headers) > 0 {
			header := make([]interface{}, len(t.Headers))
			for j, h := range t.Headers {
				header[j] = h
			}
			if err := f.SetSheetRow(name, "A1", &header); err != nil {
				return nil, fmt.Errorf("写入表头失败: %w", err)
			}
			last, _ := excelize.CoordinatesToCellName(len(t.Headers), 1)
			if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
				return nil, err
			}
			row++
		}

		for _, values := range t.Rows {
			excelRow := make([]interface{}, len(values))
			for j, v := range values {
				excelRow[j] = xlsxValue(v)
			}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(name, cell, &excelRow); err != nil {
				return nil, fmt.Errorf("写入数据行失败: %w", err)
			}
			row++
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("写入工作簿失败: %w", err)
	}
	return buf.Bytes(), nil
}

// xlsxValue 金额保留为数值，方便在表格软件中计算
func xlsxValue(v interface{}) interface{} {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.InexactFloat64()
	case Money:
		return val.Amount.InexactFloat64()
	case *decimal.Decimal:
		if val == nil {
			return ""
		}
		return val.InexactFloat64()
	case time.Time, *time.Time, bool, nil:
		return CellText(val)
	}
	return v
}

func sheetName(t Table) string {
	name := t.Name
	if name == "" {
		name = t.Title
	}
	if name == "" {
		name = "Sheet"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf("_%d", i)
		r := []rune(name)
		if len(r)+len(suffix) > 31 {
			r = r[:31-len(suffix)]
		}
		candidate = string(r) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
