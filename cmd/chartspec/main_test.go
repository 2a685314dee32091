package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const inlineBatch = `
renderer: svg
params:
  - {name: pov_slider, value: 15, bind: {input: range, min: 0, max: 15}}
charts:
  - mount: "#barchart"
    spec:
      params: [{name: pov_slider}]
      data:
        values:
          - {state: Johor, poverty_absolute: 3.9}
          - {state: Sabah, poverty_absolute: 19.5}
      transform:
        - {filter: "datum.poverty_absolute <= pov_slider"}
      mark: bar
      encoding:
        x: {field: state, type: nominal}
        y: {field: poverty_absolute, type: quantitative}
`

func TestBuildCatalog(t *testing.T) {
	out, err := run(t, "build", "--log-level", "error")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	var charts []struct {
		Mount string                 `json:"mount"`
		Spec  map[string]interface{} `json:"spec"`
	}
	if err := jsoniter.Unmarshal([]byte(out), &charts); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	var mounts []string
	for _, c := range charts {
		mounts = append(mounts, c.Mount)
	}
	if strings.Join(mounts, ",") != "#map,#barchart,#slopechart,#boxplot,#scatterplot" {
		t.Errorf("mounts = %v", mounts)
	}
}

func TestRenderBatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	if err := os.WriteFile(path, []byte(inlineBatch), 0o644); err != nil {
		t.Fatal(err)
	}
	page := filepath.Join(dir, "page.html")

	if _, err := run(t, "render", path, "-o", page, "--log-level", "error"); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	html, err := os.ReadFile(page)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`<div id="barchart">`, `"renderer":"svg"`, "pov_slider"} {
		if !strings.Contains(string(html), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestCatalogPrintsOneChart(t *testing.T) {
	out, err := run(t, "catalog", "--mount", "#map")
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if !strings.Contains(out, `"geoshape"`) {
		t.Errorf("map spec missing geoshape mark:\n%s", out)
	}
	if _, err := run(t, "catalog", "--mount", "#nope"); err == nil {
		t.Error("expected error for unknown mount")
	}
}

func TestInvalidLogFormat(t *testing.T) {
	if _, err := run(t, "version", "--log-format", "xml"); err == nil {
		t.Error("expected error for --log-format xml")
	}
}

func TestRenderCatalogHidesActions(t *testing.T) {
	page := filepath.Join(t.TempDir(), "page.html")
	if _, err := run(t, "render", "-o", page, "--log-level", "error"); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	html, err := os.ReadFile(page)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(html), `var opts = {"actions":false,"renderer":"canvas"};`) {
		t.Errorf("catalog page should embed with actions off:\n%s", html)
	}

	if _, err := run(t, "render", "-o", page, "--controls", "--log-level", "error"); err != nil {
		t.Fatalf("render --controls failed: %v", err)
	}
	html, _ = os.ReadFile(page)
	if !strings.Contains(string(html), `"actions":true`) {
		t.Error("--controls should turn the action menu on")
	}
}

func TestBuildYAML(t *testing.T) {
	out, err := run(t, "build", "--format", "yaml", "--log-level", "error")
	if err != nil {
		t.Fatalf("build --format yaml failed: %v", err)
	}
	if strings.HasPrefix(out, "[") || !strings.Contains(out, "mount:") || !strings.Contains(out, "geoshape") {
		t.Errorf("unexpected yaml output:\n%.400s", out)
	}
	if _, err := run(t, "build", "--format", "xml"); err == nil {
		t.Error("expected error for --format xml")
	}
}
