package schema

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ============================================================================
// AUTO-DISCOVERY — Heuristic field typing for CSV sources
// ============================================================================
// Classification pipeline per column:
//   1. Sample values → detect type (numeric, date, bool, string)
//   2. Type + cardinality → Vega-Lite type (quantitative, temporal, ordinal, nominal)
//   3. Stats → cardinality hint, identifier flag
//
// Keys are kept exactly as written in the header: Vega-Lite reads
// datum['Years of Experience'], not a normalized name.
// ============================================================================

var (
	// ErrNoColumns is returned for a payload without a header row.
	ErrNoColumns = errors.New("source has no columns")
	// ErrNoRows is returned for a CSV with a header but no data rows.
	ErrNoRows = errors.New("source has no data rows")
)

// DiscoverOptions controls discovery behavior.
type DiscoverOptions struct {
	SampleSize int    // Max rows to inspect (0 = all). Default: 1000
	Name       string // Source name override
}

// DefaultDiscoverOptions returns sensible defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		SampleSize: 1000,
	}
}

// DiscoverFromCSV generates a Config by inspecting CSV data.
func DiscoverFromCSV(data []byte, opts ...DiscoverOptions) (*Config, error) {
	opt := DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	// 1. Read headers
	headers, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoColumns
	}
	if err != nil {
		return nil, errors.Wrap(err, "read CSV headers")
	}
	if len(headers) == 0 || (len(headers) == 1 && strings.TrimSpace(headers[0]) == "") {
		return nil, ErrNoColumns
	}

	// 2. Read sample rows
	var rows [][]string
	limit := opt.SampleSize
	if limit <= 0 {
		limit = 100000 // safety cap
	}
	for i := 0; i < limit; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	// 3. Analyze each column
	config := &Config{
		Name:         opt.Name,
		Format:       "csv",
		Rows:         len(rows),
		DiscoveredAt: time.Now().Format(time.RFC3339),
	}
	if config.Name == "" {
		config.Name = "Auto-discovered CSV"
	}
	for i, header := range headers {
		values := make([]string, 0, len(rows))
		nulls := 0
		for _, row := range rows {
			if i >= len(row) {
				nulls++
				continue
			}
			values = append(values, row[i])
		}
		col := analyzeColumn(strings.TrimSpace(header), values)
		col.NullCount += nulls
		config.Fields = append(config.Fields, col)
	}
	return config, nil
}

// ============================================================================
// COLUMN ANALYSIS
// ============================================================================

type columnType int

const (
	typeString columnType = iota
	typeNumeric
	typeDate
	typeBool
)

// analyzeColumn inspects all values of one field and classifies it.
func analyzeColumn(key string, raw []string) FieldMeta {
	meta := FieldMeta{
		Key:         key,
		DisplayName: toDisplayName(key),
		Type:        TypeNominal,
	}

	values := make([]string, 0, len(raw))
	uniqueSet := make(map[string]bool)
	hasDecimals := false
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if isNull(v) {
			meta.NullCount++
			continue
		}
		values = append(values, v)
		uniqueSet[v] = true
		if strings.Contains(v, ".") {
			hasDecimals = true
		}
	}
	if len(values) == 0 {
		return meta
	}

	meta.SampleValues = collectSamples(uniqueSet, 10)
	unique := len(uniqueSet)
	total := len(raw)

	switch detectType(values) {
	case typeNumeric:
		// Few distinct integer codes (1-5 ratings) read better as ordinal.
		ratio := float64(unique) / float64(total)
		if !hasDecimals && unique < 20 && ratio < 0.3 {
			meta.Type = TypeOrdinal
		} else {
			meta.Type = TypeQuantitative
		}
	case typeDate:
		meta.Type = TypeTemporal
	default:
		meta.Type = TypeNominal
	}

	meta.Identifier = unique == total && total > 10
	switch {
	case unique <= 10:
		meta.CardinalityHint = "low"
	case unique <= 100:
		meta.CardinalityHint = "medium"
	default:
		meta.CardinalityHint = "high"
	}
	return meta
}

func isNull(v string) bool {
	return v == "" || v == "null" || v == "NULL" || v == "N/A" || v == "n/a" || v == "NaN"
}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// detectType inspects values to determine column type.
// Requires 80%+ of non-null values to match for numeric/date/bool.
func detectType(values []string) columnType {
	if len(values) == 0 {
		return typeString
	}

	numCount := 0
	dateCount := 0
	boolCount := 0

	for _, v := range values {
		if isNumeric(v) {
			numCount++
		}
		if isDate(v) {
			dateCount++
		}
		if isBool(v) {
			boolCount++
		}
	}

	threshold := int(float64(len(values)) * 0.8)
	if threshold == 0 {
		threshold = 1
	}

	if boolCount >= threshold && numCount < threshold {
		return typeBool
	}
	// A bare year column ("2022") parses as both; keep it numeric.
	if dateCount >= threshold && numCount < threshold {
		return typeDate
	}
	if numCount >= threshold {
		return typeNumeric
	}
	return typeString
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "") // handle "1,234.56"
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "RM")
	s = strings.TrimPrefix(s, "$")
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// ParseNumber parses a value isNumeric accepts.
func ParseNumber(s string) (float64, bool) {
	if !isNumeric(s) {
		return 0, false
	}
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "RM")
	s = strings.TrimPrefix(s, "$")
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"Jan-2006",
	"January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func isDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "false" || s == "yes" || s == "no"
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// toDisplayName cleans a key for human display.
// "income_mean" → "Income Mean", "Years of Experience" stays as is.
func toDisplayName(s string) string {
	if strings.Contains(s, " ") {
		return strings.TrimSpace(s)
	}

	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, ".", " ")

	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

// collectSamples picks up to maxSamples representative values.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}

	// Sort for deterministic output
	sort.Strings(samples)

	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}
