package helpers

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/spektr-org/chartspec/schema"
)

// ============================================================================
// CSV HELPER — Parses CSV data into inline Vega-Lite rows
// ============================================================================
// Consumer reads the CSV from wherever it lives (file, bucket, HTTP).
// This helper converts the raw bytes into data.values rows using the schema:
// quantitative and ordinal columns become numbers, the rest stay strings.
// Header names are kept verbatim so expressions like datum['Job Title'] work.
// ============================================================================

// Row is one inline data row.
type Row = map[string]interface{}

// ParseCSVValues parses CSV bytes into rows typed by sch.
// Columns the schema does not know are kept as strings. Empty cells and
// numeric cells that fail to parse become nil.
func ParseCSVValues(data []byte, sch schema.Config) ([]Row, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read CSV headers")
	}

	numeric := make([]bool, len(headers))
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
		if f, ok := sch.Field(headers[i]); ok {
			numeric[i] = f.Type == schema.TypeQuantitative || f.Type == schema.TypeOrdinal
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		row := make(Row, len(headers))
		for i, key := range headers {
			if i >= len(record) {
				row[key] = nil
				continue
			}
			val := strings.TrimSpace(record[i])
			switch {
			case val == "":
				row[key] = nil
			case numeric[i]:
				if f, ok := schema.ParseNumber(val); ok {
					row[key] = f
				} else {
					row[key] = nil
				}
			default:
				row[key] = val
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseCSVValuesAuto discovers the schema first, then parses.
// Consumers can use this for quick demos before pinning a schema.
func ParseCSVValuesAuto(data []byte) ([]Row, *schema.Config, error) {
	sch, err := schema.DiscoverFromCSV(data)
	if err != nil {
		return nil, nil, err
	}
	rows, err := ParseCSVValues(data, *sch)
	if err != nil {
		return nil, nil, err
	}
	return rows, sch, nil
}
