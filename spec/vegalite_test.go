package spec

import (
	"encoding/json"
	"strings"
	"testing"
)

func encodeMap(t *testing.T, s *ChartSpec) map[string]interface{} {
	t.Helper()
	raw, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, raw)
	}
	return out
}

func TestEncodeVegaLite(t *testing.T) {
	pov := povSlider()
	s, err := Build(barConfig(pov))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	out := encodeMap(t, s)

	if out["$schema"] != SchemaURL {
		t.Errorf("$schema = %v", out["$schema"])
	}
	title := out["title"].(map[string]interface{})
	if title["text"] != "Mean Income vs Mean Expenditure by State (2022)" || title["fontSize"] != 16.0 {
		t.Errorf("title = %v", title)
	}
	if out["width"] != 850.0 || out["height"] != 450.0 {
		t.Errorf("size = %vx%v", out["width"], out["height"])
	}

	params := out["params"].([]interface{})
	p := params[0].(map[string]interface{})
	bind := p["bind"].(map[string]interface{})
	if p["name"] != "pov_slider" || p["value"] != 15.0 || bind["input"] != "range" || bind["step"] != 0.5 {
		t.Errorf("params[0] = %v", p)
	}

	data := out["data"].(map[string]interface{})
	if data["url"] != hiesURL || data["format"].(map[string]interface{})["type"] != "csv" {
		t.Errorf("data = %v", data)
	}
	if _, leaked := data["fields"]; leaked {
		t.Error("declared fields are not part of the Vega-Lite data block")
	}

	steps := out["transform"].([]interface{})
	if len(steps) != 4 {
		t.Fatalf("got %d transforms", len(steps))
	}
	if steps[0].(map[string]interface{})["filter"] != "datum.poverty <= pov_slider" {
		t.Errorf("transform[0] = %v", steps[0])
	}
	agg := steps[1].(map[string]interface{})
	if len(agg["aggregate"].([]interface{})) != 2 || agg["groupby"].([]interface{})[0] != "state" {
		t.Errorf("transform[1] = %v", agg)
	}
	fold := steps[2].(map[string]interface{})
	if as := fold["as"].([]interface{}); as[0] != "category" || as[1] != "amount" {
		t.Errorf("transform[2] = %v", fold)
	}

	if out["mark"].(map[string]interface{})["type"] != "bar" {
		t.Errorf("mark = %v", out["mark"])
	}
	enc := out["encoding"].(map[string]interface{})
	x := enc["x"].(map[string]interface{})
	if x["sort"].(map[string]interface{})["order"] != "descending" {
		t.Errorf("x = %v", x)
	}
	if len(enc["tooltip"].([]interface{})) != 1 {
		t.Errorf("tooltip = %v", enc["tooltip"])
	}
}

func TestEncodeCurrentParamValue(t *testing.T) {
	pov := povSlider()
	s := MustBuild(barConfig(pov))
	if err := pov.Set(4.5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	p := encodeMap(t, s)["params"].([]interface{})[0].(map[string]interface{})
	if p["value"] != 4.5 {
		t.Errorf("value = %v, want the current 4.5", p["value"])
	}
}

func TestEncodeNullsAndPlainTitle(t *testing.T) {
	s := MustBuild(Config{
		Title:  Title{Text: "Slope"},
		View:   map[string]interface{}{"stroke": nil},
		Source: &DataRef{Values: []map[string]interface{}{{"state": "Johor", "rank": 1}}},
		Layers: []Layer{{
			Mark: Mark{Type: "geoshape", Style: map[string]interface{}{"fill": nil}},
			Encoding: Encoding{Channels: map[string]FieldDef{
				"x": {Field: "state", Type: "nominal", Props: map[string]interface{}{"title": nil}},
			}},
		}},
	})
	out := encodeMap(t, s)
	if out["title"] != "Slope" {
		t.Errorf("title = %v, want plain string", out["title"])
	}
	view := out["config"].(map[string]interface{})["view"].(map[string]interface{})
	if v, ok := view["stroke"]; !ok || v != nil {
		t.Errorf("config.view = %v", view)
	}
	layer := out["layer"].([]interface{})[0].(map[string]interface{})
	if v, ok := layer["mark"].(map[string]interface{})["fill"]; !ok || v != nil {
		t.Errorf("mark = %v", layer["mark"])
	}
	x := layer["encoding"].(map[string]interface{})["x"].(map[string]interface{})
	if v, ok := x["title"]; !ok || v != nil {
		t.Errorf("x = %v", x)
	}
	if _, ok := out["mark"]; ok {
		t.Error("layered chart should not carry a top-level mark")
	}
	rows := out["data"].(map[string]interface{})["values"].([]interface{})
	if len(rows) != 1 {
		t.Errorf("values = %v", rows)
	}
}

func TestEncodePretty(t *testing.T) {
	s := MustBuild(barConfig(povSlider()))
	compact, err := Encode(s, false)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	pretty, err := Encode(s, true)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(string(compact), "\n") || !strings.Contains(string(pretty), "\n  ") {
		t.Error("pretty flag should control indentation")
	}
	if !json.Valid(pretty) {
		t.Error("pretty output is not JSON")
	}
}
