package schema

import "fmt"

// ============================================================================
// SCHEMA — Describes the fields a data source provides
// ============================================================================
// Discovered from the raw payload (CSV header + sample rows, or a TopoJSON
// object's geometries). The spec builder uses it to close the scope of a data
// source; the prober uses it to catch charts that read columns a source no
// longer has.
// ============================================================================

// Vega-Lite measurement types.
const (
	TypeQuantitative = "quantitative"
	TypeTemporal     = "temporal"
	TypeOrdinal      = "ordinal"
	TypeNominal      = "nominal"
)

// Config describes the complete shape of a data source.
type Config struct {
	Name    string      `json:"name"`
	Format  string      `json:"format"`            // "csv" or "topojson"
	Feature string      `json:"feature,omitempty"` // topojson object name
	Rows    int         `json:"rows"`
	Fields  []FieldMeta `json:"fields"`

	DiscoveredAt string `json:"discoveredAt,omitempty"`
}

// FieldMeta describes one field as the Vega runtime will see it.
type FieldMeta struct {
	Key             string   `json:"key"` // exact name used in specs, e.g. "Years of Experience"
	DisplayName     string   `json:"displayName"`
	Type            string   `json:"type"`
	SampleValues    []string `json:"sampleValues,omitempty"`
	CardinalityHint string   `json:"cardinalityHint,omitempty"` // "low", "medium", "high"
	NullCount       int      `json:"nullCount,omitempty"`
	Identifier      bool     `json:"identifier,omitempty"` // unique per row
}

// FieldKeys returns all field keys in source order.
func (c Config) FieldKeys() []string {
	keys := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Field looks a field up by key.
func (c Config) Field(key string) (FieldMeta, bool) {
	for _, f := range c.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// Has reports whether the source provides key.
func (c Config) Has(key string) bool {
	_, ok := c.Field(key)
	return ok
}

// Missing returns the keys the source does not provide, in the given order.
func (c Config) Missing(keys []string) []string {
	var out []string
	for _, k := range keys {
		if !c.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (c Config) String() string {
	return fmt.Sprintf("%s (%d fields, %d rows)", c.Name, len(c.Fields), c.Rows)
}
