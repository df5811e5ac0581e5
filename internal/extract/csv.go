package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// extractCSV flattens a table into prose: a summary line naming the columns
// followed by one line per record, so tabular data stays searchable as text.
func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv failed: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	rows := records[1:]

	var b strings.Builder
	fmt.Fprintf(&b, "Table with %d records and columns: %s\n", len(rows), strings.Join(header, ", "))
	for _, row := range rows {
		b.WriteString(flattenRow(header, row))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// flattenRow renders one record as "column: value; ..." prose.
func flattenRow(header, row []string) string {
	pairs := make([]string, 0, len(row))
	for i, cell := range row {
		if i < len(header) {
			pairs = append(pairs, header[i]+": "+cell)
		} else {
			pairs = append(pairs, cell)
		}
	}
	return strings.Join(pairs, "; ")
}
