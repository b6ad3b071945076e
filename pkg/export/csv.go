package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// utf8BOM 让表格软件按 UTF-8 识别中文/法文字符
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV 生成分号分隔、带 UTF-8 BOM 的 CSV；多张表之间以空行分隔，并以标题行开头
func WriteCSV(tables ...Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Comma = ';'

	for i, t := range tables {
		if i > 0 {
			if err := w.Write([]string{}); err != nil {
				return nil, err
			}
		}
		if len(tables) > 1 && t.Title != "" {
			if err := w.Write([]string{t.Title}); err != nil {
				return nil, err
			}
		}
		if len(t.Headers) > 0 {
			if err := w.Write(t.Headers); err != nil {
				return nil, fmt.Errorf("写入表头失败: %w", err)
			}
		}
		for _, row := range t.Rows {
			record := make([]string, len(row))
			for j, v := range row {
				record[j] = CellText(v)
			}
			if err := w.Write(record); err != nil {
				return nil, fmt.Errorf("写入数据行失败: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
