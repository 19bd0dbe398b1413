package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Column maps a record key to its CSV header label.
type Column struct {
	Key   string
	Label string
}

// Record is one exported row keyed by column key.
type Record = map[string]any

// ToCSV renders records as CSV with a header row of column labels. Rows are
// joined by "\n" with no trailing newline.
func ToCSV(records []Record, columns []Column) string {
	lines := make([]string, 0, len(records)+1)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = escapeCSV(c.Label)
	}
	lines = append(lines, strings.Join(header, ","))

	for _, rec := range records {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = escapeCSV(formatValue(rec[c.Key]))
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	return strings.Join(lines, "\n")
}

// ToJSON renders records as a two-space indented JSON array.
func ToJSON(records []Record) (string, error) {
	if records == nil {
		records = []Record{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	return string(b), nil
}

func escapeCSV(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return fmt.Sprint(t)
	case json.RawMessage:
		return string(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
