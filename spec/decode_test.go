package spec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

const salaryCSV = `Education Level,Years of Experience,Salary
Bachelor's,5,90000
Master's,3,65000
PhD,15,150000
Bachelor's,7,60000
`

const boxplotBatch = `
renderer: svg
controls: false
params:
  - name: exp_range
    value: 30
    bind: {input: range, min: 0, max: 30, step: 1, name: "Max Years of Experience: "}
charts:
  - mount: "#boxplot"
    spec:
      title: {text: Salary Distribution by Education Level, fontSize: 16, anchor: middle}
      width: 850
      height: 450
      autosize: {type: fit, contains: padding}
      params: [{name: exp_range}]
      data: {path: salary.csv}
      transform:
        - filter: "datum['Years of Experience'] <= exp_range"
      mark: {type: boxplot, extent: 1.5}
      encoding:
        x: {field: Education Level, type: nominal}
        y: {field: Salary, type: quantitative, scale: {zero: false}}
        tooltip: {field: Education Level, type: nominal, title: Education Level}
  - mount: "#average"
    overlay: {base: "#boxplot", op: mean, field: Salary, mark: {type: rule, color: red}}
`

func writeSalary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "salary.csv"), []byte(salaryCSV), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return dir
}

func TestLoadBatchSharesParams(t *testing.T) {
	dir := writeSalary(t)
	b, err := LoadBatch([]byte(boxplotBatch), dir)
	if err != nil {
		t.Fatalf("LoadBatch failed: %v", err)
	}
	if b.Renderer != "svg" || b.Controls {
		t.Errorf("render options = %q/%v", b.Renderer, b.Controls)
	}
	if len(b.Params) != 1 || len(b.Charts) != 2 {
		t.Fatalf("got %d params and %d charts", len(b.Params), len(b.Charts))
	}
	shared := b.Params[0]
	if shared.Value() != 30.0 {
		t.Errorf("exp_range = %v, want 30", shared.Value())
	}

	box, avg := b.Charts[0], b.Charts[1]
	if box.Mount != "#boxplot" || avg.Mount != "#average" {
		t.Errorf("mounts = %s, %s", box.Mount, avg.Mount)
	}
	p1, _ := box.Spec.Param("exp_range")
	p2, _ := avg.Spec.Param("exp_range")
	if p1 != shared || p2 != shared {
		t.Fatal("charts should hold the batch's exp_range instance")
	}
	if err := shared.Set(10); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if p2.Value() != 10 {
		t.Errorf("overlay exp_range = %v, want 10", p2.Value())
	}

	if box.Spec.Title().FontSize != 16 {
		t.Errorf("title = %+v", box.Spec.Title())
	}
	d, _ := box.Spec.Data()
	if !d.IsInline() || len(d.Values) != 4 {
		t.Fatalf("data.path should inline 4 rows, got %+v", d)
	}
	if d.Values[2]["Salary"] != 150000.0 || d.Values[2]["Education Level"] != "PhD" {
		t.Errorf("row = %v", d.Values[2])
	}
	if len(box.Spec.Encoding().Tooltip) != 1 {
		t.Errorf("single tooltip entry should decode as a list of one")
	}
	if y := box.Spec.Encoding().Channels["y"]; y.Props["scale"] == nil {
		t.Errorf("y props = %v, want scale kept", y.Props)
	}
	if m := avg.Spec.Mark(); m.Type != "rule" || m.Style["color"] != "red" {
		t.Errorf("overlay mark = %+v", m)
	}
}

func TestLoadBatchUnknownSharedParam(t *testing.T) {
	batch := `
charts:
  - mount: "#scatter"
    spec:
      params: [{name: gender_select}]
      data: {url: "https://example.org/salary.csv"}
      mark: point
`
	_, err := LoadBatch([]byte(batch), "")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Problem != UndefinedParam || ve.Name != "gender_select" {
		t.Fatalf("err = %v, want undefined parameter gender_select", err)
	}
}

func TestLoadBatchValidatesCharts(t *testing.T) {
	batch := `
charts:
  - mount: "#bar"
    spec:
      data: {url: "https://example.org/hies.csv", fields: [state, poverty]}
      transform:
        - filter: "datum.poverty <= pov_slider"
      mark: bar
`
	_, err := LoadBatch([]byte(batch), "")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Name != "pov_slider" {
		t.Fatalf("err = %v, want undefined parameter pov_slider", err)
	}
}

func TestLoadBatchTransforms(t *testing.T) {
	batch := `{
  "charts": [{
    "mount": "#slopechart",
    "spec": {
      "params": [{"name": "top_n", "value": 10, "bind": {"input": "select", "options": [5, 10, 16]}}],
      "data": {"url": "https://example.org/hies.csv", "format": {"type": "csv"}},
      "transform": [
        {"aggregate": [{"op": "mean", "field": "income_mean", "as": "avg_income"}], "groupby": ["state"]},
        {"window": [{"op": "rank", "as": "income_rank"}], "sort": [{"field": "avg_income", "order": "descending"}]},
        {"filter": "datum.income_rank <= top_n"},
        {"fold": ["avg_income"], "as": ["measure", "amount"]},
        {"calculate": "datum.amount / 1000", "as": "amount_k"}
      ],
      "config": {"view": {"stroke": null}},
      "layer": [
        {"mark": "line", "encoding": {"x": {"field": "measure"}, "y": {"field": "income_rank"}, "detail": {"field": "state"}}},
        {"mark": {"type": "text", "dx": 10}, "encoding": {
          "text": {"field": "state"},
          "opacity": {"condition": {"test": "datum.measure == 'avg_income'", "value": 1}, "value": 0}
        }}
      ]
    }
  }]
}`
	b, err := LoadBatch([]byte(batch), "")
	if err != nil {
		t.Fatalf("LoadBatch failed: %v", err)
	}
	s := b.Charts[0].Spec
	kinds := []StepKind{KindAggregate, KindWindow, KindFilter, KindFold, KindCalculate}
	steps := s.Transforms()
	if len(steps) != len(kinds) {
		t.Fatalf("got %d steps, want %d", len(steps), len(kinds))
	}
	for i, k := range kinds {
		if steps[i].Kind() != k {
			t.Errorf("steps[%d] = %s, want %s", i, steps[i].Kind(), k)
		}
	}
	if fold := steps[3].(Fold); fold.As != [2]string{"measure", "amount"} {
		t.Errorf("fold as = %v", fold.As)
	}
	layers := s.Layers()
	if len(layers) != 2 {
		t.Fatalf("got %d layers", len(layers))
	}
	op := layers[1].Encoding.Channels["opacity"]
	if op.Condition == nil || op.Condition.Test != "datum.measure == 'avg_income'" || op.Value != 0.0 {
		t.Errorf("opacity = %+v", op)
	}
}

func TestLoadBatchFile(t *testing.T) {
	dir := writeSalary(t)
	path := filepath.Join(dir, "batch.yaml")
	if err := os.WriteFile(path, []byte(boxplotBatch), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	b, err := LoadBatchFile(path)
	if err != nil {
		t.Fatalf("LoadBatchFile failed: %v", err)
	}
	if len(b.Charts) != 2 {
		t.Errorf("got %d charts", len(b.Charts))
	}
	if _, err := LoadBatchFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadBatchReadsYAMLChannelKeys(t *testing.T) {
	batch := `
charts:
  - mount: "#scatterplot"
    spec:
      data: {url: "https://example.org/salary.csv"}
      encoding:
        x: {field: Years of Experience, type: quantitative}
        y: {field: Salary, type: quantitative}
      layer:
        - mark: point
        - mark: {type: text, dx: 4}
          encoding:
            text: {field: Job Title, type: nominal}
`
	b, err := LoadBatch([]byte(batch), "")
	if err != nil {
		t.Fatalf("LoadBatch failed: %v", err)
	}
	s := b.Charts[0].Spec
	enc := s.Encoding()
	if _, ok := enc.Channels["true"]; ok {
		t.Fatal("y key decoded as a boolean")
	}
	if y := enc.Channels["y"]; y.Field != "Salary" {
		t.Errorf("y = %+v, want Salary", y)
	}
	if len(s.Layers()) != 2 || s.Encoding().Channels["x"].Field != "Years of Experience" {
		t.Errorf("chart-level encoding is not kept next to the layers: %+v", enc)
	}
	raw, err := Encode(s, false)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(raw), `"encoding":{"x":`) || strings.Contains(string(raw), `"true"`) {
		t.Errorf("encoded = %s", raw)
	}
}

func TestLoadBatchWindowFrame(t *testing.T) {
	batch := `
charts:
  - mount: "#running"
    spec:
      data: {values: [{t: 1, v: 2}, {t: 2, v: 5}]}
      transform:
        - {window: [{op: sum, field: v, as: run}], sort: [{field: t}], frame: [-2, 0], ignorePeers: true}
      mark: line
      encoding:
        x: {field: t, type: ordinal}
        y: {field: run, type: quantitative}
`
	b, err := LoadBatch([]byte(batch), "")
	if err != nil {
		t.Fatalf("LoadBatch failed: %v", err)
	}
	w, ok := b.Charts[0].Spec.Transforms()[0].(Window)
	if !ok || w.Frame == nil || w.Frame.Lower == nil || *w.Frame.Lower != -2 || w.Frame.Upper == nil || *w.Frame.Upper != 0 {
		t.Fatalf("window = %+v, want frame [-2, 0]", w)
	}
	if !w.IgnorePeers {
		t.Error("ignorePeers dropped")
	}
	raw, _ := Encode(b.Charts[0].Spec, false)
	if !strings.Contains(string(raw), `"frame":[-2,0]`) || !strings.Contains(string(raw), `"ignorePeers":true`) {
		t.Errorf("encoded = %s", raw)
	}
}

func TestLoadBatchRejectsBadCharts(t *testing.T) {
	tests := map[string]string{
		"no mount":        "charts:\n  - spec: {data: {url: a.csv}, mark: bar}\n",
		"no spec":         "charts:\n  - mount: '#a'\n",
		"unknown base":    "charts:\n  - mount: '#a'\n    overlay: {base: '#b', op: mean, field: x}\n",
		"unknown step":    "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv}, transform: [{bin: true}], mark: bar}\n",
		"path with url":   "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv, path: b.csv}, mark: bar}\n",
		"bad fold as":     "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv}, transform: [{fold: [x], as: [k]}], mark: bar}\n",
		"not yaml":        "charts: [\n",
		"dup shared":      "params: [{name: a, value: 1}, {name: a, value: 2}]\ncharts: []\n",
		"layer no mark":   "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv}, layer: [{encoding: {}}]}\n",
		"missing path":    "charts:\n  - mount: '#a'\n    spec: {data: {path: nope.csv}, mark: bar}\n",
		"unknown key":     "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv}, mark: bar, selection: {}}\n",
		"step extra key":  "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv}, transform: [{filter: 'true', as: x}], mark: bar}\n",
		"frame one bound": "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv}, transform: [{window: [{op: rank, as: r}], frame: [0]}], mark: bar}\n",
		"unknown channel": "charts:\n  - mount: '#a'\n    spec: {data: {url: a.csv}, mark: bar, encoding: {yy: {field: v}}}\n",
	}
	for name, batch := range tests {
		if _, err := LoadBatch([]byte(batch), t.TempDir()); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
