package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxText renders every sheet as tab-separated rows, streaming rows to bound memory.
func xlsxText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for rows.Next() {
			cols, err := rows.Columns()
			if err != nil {
				_ = rows.Close()
				return "", fmt.Errorf("read sheet %q: %w", sheet, err)
			}
			if len(cols) == 0 {
				continue
			}
			b.WriteString(strings.Join(cols, "\t"))
			b.WriteByte('\n')
		}
		if err := rows.Close(); err != nil {
			return "", fmt.Errorf("close sheet %q: %w", sheet, err)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
