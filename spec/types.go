package spec

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// ============================================================================
// CHARTSPEC TYPES — Declarative chart description
// ============================================================================
// A ChartSpec describes a chart; it never computes one. Transforms are
// carried as tagged variants (see transform.go) so Build can check the
// field and parameter references they make before anything is rendered.
//
// Everything except a Param's live value is fixed once Build returns.
// ============================================================================

// SchemaURL is the Vega-Lite schema every encoded spec declares.
const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

// ============================================================================
// DATA
// ============================================================================

// Data format types understood by the Vega loader.
const (
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatTopoJSON = "topojson"
)

// Format describes how a remote payload is parsed.
// Feature names the TopoJSON object to extract (topojson only).
type Format struct {
	Type    string `json:"type,omitempty"`
	Feature string `json:"feature,omitempty"`
}

// DataRef points a spec at its rows: either a URL or inline values.
//
// Fields optionally declares the source schema. When it is empty the source
// is treated as open: any field may be read until a transform (aggregate)
// narrows the set.
type DataRef struct {
	URL    string
	Format Format
	Values []map[string]interface{}
	Fields []string
}

// IsInline reports whether the rows are carried in the spec itself.
func (d DataRef) IsInline() bool { return d.URL == "" && d.Values != nil }

// Key identifies the source: its URL, plus "#feature" for a TopoJSON object.
func (d DataRef) Key() string {
	if d.Format.Feature == "" {
		return d.URL
	}
	return d.URL + "#" + d.Format.Feature
}

func (d DataRef) validate(where string) error {
	switch {
	case d.URL == "" && d.Values == nil:
		return invalid(where, "data needs a url or inline values")
	case d.URL != "" && d.Values != nil:
		return invalid(where, "data cannot have both a url and inline values")
	}
	switch d.Format.Type {
	case "", FormatCSV, FormatJSON:
		if d.Format.Feature != "" {
			return invalid(where, "format feature is only valid for topojson")
		}
	case FormatTopoJSON:
		if d.Format.Feature == "" {
			return invalid(where, "topojson format needs a feature")
		}
	default:
		return invalid(where, fmt.Sprintf("unknown data format %q", d.Format.Type))
	}
	return nil
}

func (d DataRef) clone() DataRef {
	out := d
	out.Fields = append([]string(nil), d.Fields...)
	if d.Values != nil {
		out.Values = make([]map[string]interface{}, len(d.Values))
		for i, row := range d.Values {
			cp := make(map[string]interface{}, len(row))
			for k, v := range row {
				cp[k] = v
			}
			out.Values[i] = cp
		}
	}
	return out
}

// ============================================================================
// MARK + ENCODING
// ============================================================================

// Mark is a mark type plus its static style attributes (fill, stroke, size...).
type Mark struct {
	Type  string
	Style map[string]interface{}
}

// SortDef sorts a channel by an aggregated field ("sort by mean amount").
type SortDef struct {
	Field string
	Op    string
	Order string
}

// Condition switches a channel value on a predicate expression or a
// selection parameter.
type Condition struct {
	Test  string
	Param string
	Value interface{}
}

// FieldDef binds one encoding channel.
//
// Props carries static formatting (title, format, axis, scale, legend...) and
// is encoded verbatim. A nil value in Props encodes as JSON null, which is how
// Vega-Lite switches a legend or title off.
type FieldDef struct {
	Field     string
	Type      string
	Aggregate string
	Sort      *SortDef
	Condition *Condition
	Value     interface{}
	Props     map[string]interface{}
}

// Encoding maps channel names (x, y, color, size, xOffset, detail, text,
// opacity...) to field definitions. Tooltip is kept apart since it is a list.
type Encoding struct {
	Channels map[string]FieldDef
	Tooltip  []FieldDef
}

// IsEmpty reports whether no channel is bound.
func (e Encoding) IsEmpty() bool { return len(e.Channels) == 0 && len(e.Tooltip) == 0 }

// vegaChannels is the Vega-Lite v5 encoding channel set, tooltip excluded.
var vegaChannels = map[string]bool{
	"x": true, "y": true, "x2": true, "y2": true, "xOffset": true, "yOffset": true,
	"xError": true, "yError": true, "xError2": true, "yError2": true,
	"theta": true, "theta2": true, "radius": true, "radius2": true,
	"longitude": true, "latitude": true, "longitude2": true, "latitude2": true,
	"color": true, "fill": true, "stroke": true,
	"opacity": true, "fillOpacity": true, "strokeOpacity": true,
	"strokeWidth": true, "strokeDash": true, "size": true, "angle": true, "shape": true,
	"text": true, "href": true, "url": true, "description": true,
	"detail": true, "key": true, "order": true,
	"row": true, "column": true, "facet": true,
}

// inherit returns e with the channels of parent it does not bind itself.
// A layer's own tooltip list replaces the parent's.
func (e Encoding) inherit(parent Encoding) Encoding {
	out := e.clone()
	for ch, def := range parent.Channels {
		if _, ok := out.Channels[ch]; ok {
			continue
		}
		if out.Channels == nil {
			out.Channels = map[string]FieldDef{}
		}
		out.Channels[ch] = def
	}
	if len(out.Tooltip) == 0 {
		out.Tooltip = append([]FieldDef(nil), parent.Tooltip...)
	}
	return out
}

func (e Encoding) clone() Encoding {
	out := Encoding{Tooltip: append([]FieldDef(nil), e.Tooltip...)}
	if e.Channels != nil {
		out.Channels = make(map[string]FieldDef, len(e.Channels))
		for k, v := range e.Channels {
			out.Channels[k] = v
		}
	}
	return out
}

// Layer is one mark drawn over the shared view. A layer may bring its own
// data; otherwise it reads the rows produced by the spec's transforms.
type Layer struct {
	Data       *DataRef
	Transforms []TransformStep
	Mark       Mark
	Encoding   Encoding
}

// ============================================================================
// VIEW
// ============================================================================

// Title is a chart title. A Title with only Text encodes as a plain string.
type Title struct {
	Text     string
	FontSize float64
	Anchor   string
}

// Projection describes a cartographic projection for geoshape marks.
type Projection struct {
	Type   string
	Center []float64
	Scale  float64
}

// ============================================================================
// INTERACTIVE PARAMETERS
// ============================================================================

// Input widget kinds for a Bind.
const (
	InputRange    = "range"
	InputSelect   = "select"
	InputRadio    = "radio"
	InputCheckbox = "checkbox"
)

// Bind describes the input widget a parameter is bound to.
type Bind struct {
	Input   string
	Min     *float64
	Max     *float64
	Step    *float64
	Options []interface{}
	Labels  []string
	Name    string
}

// Param is a named interactive parameter.
//
// Specs hold parameters by pointer. Two specs built from the same *Param
// observe the same value: moving a shared slider is one Set call.
type Param struct {
	name string
	bind *Bind

	mu    sync.RWMutex
	value interface{}
}

// NewParam creates a parameter with a default value and an optional binding.
func NewParam(name string, value interface{}, bind *Bind) *Param {
	var b *Bind
	if bind != nil {
		cp := *bind
		cp.Options = append([]interface{}(nil), bind.Options...)
		cp.Labels = append([]string(nil), bind.Labels...)
		b = &cp
	}
	return &Param{name: name, value: value, bind: b}
}

// Float returns a pointer to v, for Bind bounds.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for window frame bounds.
func Int(v int) *int { return &v }

func (p *Param) Name() string { return p.name }

// Value returns the current bound value.
func (p *Param) Value() interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Bind returns a copy of the widget binding, or nil.
func (p *Param) Bind() *Bind {
	if p.bind == nil {
		return nil
	}
	cp := *p.bind
	return &cp
}

// Set changes the bound value. Range bindings reject numbers outside
// [min, max]; select and radio bindings reject values not among the options.
func (p *Param) Set(v interface{}) error {
	if err := p.check(v); err != nil {
		return err
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return nil
}

func (p *Param) check(v interface{}) error {
	if p.bind == nil {
		return nil
	}
	switch p.bind.Input {
	case InputRange:
		values := []interface{}{v}
		switch list := v.(type) {
		case []interface{}:
			values = list
		case []float64:
			values = make([]interface{}, len(list))
			for i, f := range list {
				values[i] = f
			}
		case []int:
			values = make([]interface{}, len(list))
			for i, n := range list {
				values[i] = n
			}
		}
		for _, item := range values {
			f, ok := toFloat(item)
			if !ok {
				return errors.Errorf("param %q: %v is not a number", p.name, item)
			}
			if p.bind.Min != nil && f < *p.bind.Min {
				return errors.Errorf("param %q: %v is below min %v", p.name, item, *p.bind.Min)
			}
			if p.bind.Max != nil && f > *p.bind.Max {
				return errors.Errorf("param %q: %v is above max %v", p.name, item, *p.bind.Max)
			}
		}
	case InputSelect, InputRadio:
		if len(p.bind.Options) == 0 {
			return nil
		}
		for _, opt := range p.bind.Options {
			if sameValue(opt, v) {
				return nil
			}
		}
		return errors.Errorf("param %q: %v is not one of %v", p.name, v, p.bind.Options)
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func sameValue(a, b interface{}) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
