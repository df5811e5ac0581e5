package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX flattens every sheet the same way extractCSV flattens a table:
// a summary line per sheet, then one prose line per record.
func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx failed: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q failed: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		header := rows[0]
		records := rows[1:]
		fmt.Fprintf(&b, "Sheet %q with %d records and columns: %s\n", sheet, len(records), strings.Join(header, ", "))
		for _, row := range records {
			b.WriteString(flattenRow(header, row))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
