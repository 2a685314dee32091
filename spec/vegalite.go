package spec

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ============================================================================
// VEGA-LITE ENCODING — ChartSpec → Vega-Lite v5 JSON
// ============================================================================
// Parameters are written with their current value, so a spec encoded after
// Set reflects the moved control.
// ============================================================================

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalJSON encodes the spec as Vega-Lite JSON.
func (s *ChartSpec) MarshalJSON() ([]byte, error) {
	return jsonAPI.Marshal(s.VegaLite())
}

// Encode renders s as Vega-Lite JSON, indented when pretty is set.
func Encode(s *ChartSpec, pretty bool) ([]byte, error) {
	if s == nil {
		return nil, errors.New("encode: nil spec")
	}
	var (
		out []byte
		err error
	)
	if pretty {
		out, err = jsonAPI.MarshalIndent(s.VegaLite(), "", "  ")
	} else {
		out, err = jsonAPI.Marshal(s.VegaLite())
	}
	if err != nil {
		return nil, errors.Wrap(err, "encode vega-lite")
	}
	return out, nil
}

// VegaLite returns the spec as a generic JSON object tree.
func (s *ChartSpec) VegaLite() map[string]interface{} {
	out := map[string]interface{}{"$schema": SchemaURL}
	if t := titleJSON(s.title); t != nil {
		out["title"] = t
	}
	if s.width > 0 {
		out["width"] = s.width
	}
	if s.height > 0 {
		out["height"] = s.height
	}
	if len(s.autosize) > 0 {
		out["autosize"] = s.autosize
	}
	if s.projection != nil {
		out["projection"] = projectionJSON(*s.projection)
	}
	if len(s.params) > 0 {
		params := make([]map[string]interface{}, 0, len(s.params))
		for _, p := range s.params {
			params = append(params, paramJSON(p))
		}
		out["params"] = params
	}
	if s.hasData {
		out["data"] = dataJSON(s.data)
	}
	if len(s.transforms) > 0 {
		out["transform"] = transformsJSON(s.transforms)
	}
	if len(s.layers) > 0 {
		layers := make([]map[string]interface{}, 0, len(s.layers))
		for _, l := range s.layers {
			layers = append(layers, layerJSON(l))
		}
		out["layer"] = layers
		if !s.encoding.IsEmpty() {
			out["encoding"] = encodingJSON(s.encoding)
		}
	} else {
		out["mark"] = markJSON(s.mark)
		if !s.encoding.IsEmpty() {
			out["encoding"] = encodingJSON(s.encoding)
		}
	}
	if len(s.view) > 0 {
		out["config"] = map[string]interface{}{"view": s.view}
	}
	return out
}

func titleJSON(t Title) interface{} {
	if t.Text == "" {
		return nil
	}
	if t.FontSize == 0 && t.Anchor == "" {
		return t.Text
	}
	m := map[string]interface{}{"text": t.Text}
	if t.FontSize > 0 {
		m["fontSize"] = t.FontSize
	}
	if t.Anchor != "" {
		m["anchor"] = t.Anchor
	}
	return m
}

func projectionJSON(p Projection) map[string]interface{} {
	m := map[string]interface{}{"type": p.Type}
	if len(p.Center) > 0 {
		m["center"] = p.Center
	}
	if p.Scale != 0 {
		m["scale"] = p.Scale
	}
	return m
}

func paramJSON(p *Param) map[string]interface{} {
	m := map[string]interface{}{"name": p.Name(), "value": p.Value()}
	if b := p.Bind(); b != nil {
		bind := map[string]interface{}{"input": b.Input}
		if b.Min != nil {
			bind["min"] = *b.Min
		}
		if b.Max != nil {
			bind["max"] = *b.Max
		}
		if b.Step != nil {
			bind["step"] = *b.Step
		}
		if len(b.Options) > 0 {
			bind["options"] = b.Options
		}
		if len(b.Labels) > 0 {
			bind["labels"] = b.Labels
		}
		if b.Name != "" {
			bind["name"] = b.Name
		}
		m["bind"] = bind
	}
	return m
}

func dataJSON(d DataRef) map[string]interface{} {
	if d.IsInline() {
		return map[string]interface{}{"values": d.Values}
	}
	m := map[string]interface{}{"url": d.URL}
	if d.Format.Type != "" {
		f := map[string]interface{}{"type": d.Format.Type}
		if d.Format.Feature != "" {
			f["feature"] = d.Format.Feature
		}
		m["format"] = f
	}
	return m
}

func transformsJSON(steps []TransformStep) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(steps))
	for _, st := range steps {
		out = append(out, st.vegaLite())
	}
	return out
}

func layerJSON(l Layer) map[string]interface{} {
	m := map[string]interface{}{"mark": markJSON(l.Mark)}
	if l.Data != nil {
		m["data"] = dataJSON(*l.Data)
	}
	if len(l.Transforms) > 0 {
		m["transform"] = transformsJSON(l.Transforms)
	}
	if !l.Encoding.IsEmpty() {
		m["encoding"] = encodingJSON(l.Encoding)
	}
	return m
}

func markJSON(mk Mark) interface{} {
	if len(mk.Style) == 0 {
		return map[string]interface{}{"type": mk.Type}
	}
	m := make(map[string]interface{}, len(mk.Style)+1)
	for k, v := range mk.Style {
		m[k] = v
	}
	m["type"] = mk.Type
	return m
}

func encodingJSON(e Encoding) map[string]interface{} {
	out := make(map[string]interface{}, len(e.Channels)+1)
	for ch, def := range e.Channels {
		out[ch] = fieldDefJSON(def)
	}
	if len(e.Tooltip) > 0 {
		tips := make([]map[string]interface{}, 0, len(e.Tooltip))
		for _, def := range e.Tooltip {
			tips = append(tips, fieldDefJSON(def))
		}
		out["tooltip"] = tips
	}
	return out
}

func fieldDefJSON(def FieldDef) map[string]interface{} {
	m := make(map[string]interface{}, len(def.Props)+4)
	for k, v := range def.Props {
		m[k] = v
	}
	if def.Field != "" {
		m["field"] = def.Field
	}
	if def.Type != "" {
		m["type"] = def.Type
	}
	if def.Aggregate != "" {
		m["aggregate"] = def.Aggregate
	}
	if def.Sort != nil {
		sort := map[string]interface{}{"field": def.Sort.Field}
		if def.Sort.Op != "" {
			sort["op"] = def.Sort.Op
		}
		if def.Sort.Order != "" {
			sort["order"] = def.Sort.Order
		}
		m["sort"] = sort
	}
	if def.Condition != nil {
		c := map[string]interface{}{"value": def.Condition.Value}
		if def.Condition.Test != "" {
			c["test"] = def.Condition.Test
		}
		if def.Condition.Param != "" {
			c["param"] = def.Condition.Param
		}
		m["condition"] = c
	}
	if def.Value != nil {
		m["value"] = def.Value
	}
	return m
}
