package spec

import (
	stdjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/spektr-org/chartspec/helpers"
	"github.com/spektr-org/chartspec/schema"
)

// ============================================================================
// BATCH FILES — YAML/JSON chart batches → validated specs
// ============================================================================
// A batch file lists charts in render order. Each chart's spec uses the
// Vega-Lite shape. Two additions:
//   - batch-level params are shared: a chart param entry holding only a name
//     resolves to the shared instance
//   - a chart may be an overlay of an earlier chart instead of a spec
//
//	renderer: svg
//	params:
//	  - {name: pov_slider, value: 15, bind: {input: range, min: 0, max: 15}}
//	charts:
//	  - mount: "#barchart"
//	    spec: {params: [{name: pov_slider}], data: {url: ...}, transform: [...], mark: bar, ...}
//	  - mount: "#average"
//	    overlay: {base: "#barchart", op: mean, field: income_mean, as: national_avg}
//
// data.path reads a local CSV (relative to the batch file) and inlines it.
//
// YAML is read with YAML 1.2 rules, so the channel keys y and n stay strings.
// Unknown keys are rejected rather than dropped.
// ============================================================================

// batchJSON decodes the normalized batch tree.
var batchJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()

// Batch is a decoded, validated chart batch.
type Batch struct {
	Renderer string
	Controls bool
	Params   []*Param
	Charts   []Chart
}

// Chart is one mount point and the spec rendered into it.
type Chart struct {
	Mount string
	Spec  *ChartSpec
}

type batchFile struct {
	Renderer string      `json:"renderer"`
	Controls bool        `json:"controls"`
	Params   []paramFile `json:"params"`
	Charts   []chartFile `json:"charts"`
}

type chartFile struct {
	Mount   string       `json:"mount"`
	Spec    *specFile    `json:"spec"`
	Overlay *overlayFile `json:"overlay"`
}

type overlayFile struct {
	Base    string                 `json:"base"`
	Op      string                 `json:"op"`
	Field   string                 `json:"field"`
	As      string                 `json:"as"`
	GroupBy []string               `json:"groupby"`
	Channel string                 `json:"channel"`
	Mark    stdjson.RawMessage     `json:"mark"`
	Props   map[string]interface{} `json:"props"`
}

type specFile struct {
	Schema     string                 `json:"$schema"`
	Title      stdjson.RawMessage     `json:"title"`
	Width      int                    `json:"width"`
	Height     int                    `json:"height"`
	Autosize   map[string]interface{} `json:"autosize"`
	Projection *projectionFile        `json:"projection"`
	Config     *struct {
		View map[string]interface{} `json:"view"`
	} `json:"config"`
	Params    []paramFile                   `json:"params"`
	Data      *dataFile                     `json:"data"`
	Transform []stdjson.RawMessage          `json:"transform"`
	Mark      stdjson.RawMessage            `json:"mark"`
	Encoding  map[string]stdjson.RawMessage `json:"encoding"`
	Layer     []layerFile                   `json:"layer"`
}

type layerFile struct {
	Data      *dataFile                     `json:"data"`
	Transform []stdjson.RawMessage          `json:"transform"`
	Mark      stdjson.RawMessage            `json:"mark"`
	Encoding  map[string]stdjson.RawMessage `json:"encoding"`
}

type projectionFile struct {
	Type   string    `json:"type"`
	Center []float64 `json:"center"`
	Scale  float64   `json:"scale"`
}

type dataFile struct {
	URL    string                   `json:"url"`
	Format *Format                  `json:"format"`
	Values []map[string]interface{} `json:"values"`
	Path   string                   `json:"path"`
	Fields []string                 `json:"fields"`
}

type paramFile struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
	Bind  *struct {
		Input   string        `json:"input"`
		Min     *float64      `json:"min"`
		Max     *float64      `json:"max"`
		Step    *float64      `json:"step"`
		Options []interface{} `json:"options"`
		Labels  []string      `json:"labels"`
		Name    string        `json:"name"`
	} `json:"bind"`
}

// LoadBatchFile reads and decodes the batch file at path.
func LoadBatchFile(path string, opts ...Option) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read batch file")
	}
	return LoadBatch(data, filepath.Dir(path), opts...)
}

// LoadBatch decodes a YAML or JSON batch. Local data paths resolve against
// baseDir.
func LoadBatch(data []byte, baseDir string, opts ...Option) (*Batch, error) {
	var f batchFile
	if err := decodeYAML(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode batch file")
	}

	b := &Batch{Renderer: f.Renderer, Controls: f.Controls}
	shared := map[string]*Param{}
	for i, pf := range f.Params {
		p, err := pf.param()
		if err != nil {
			return nil, errors.Wrapf(err, "params[%d]", i)
		}
		if _, dup := shared[p.Name()]; dup {
			return nil, &ValidationError{Problem: DuplicateParam, Name: p.Name(), Where: fmt.Sprintf("params[%d]", i)}
		}
		shared[p.Name()] = p
		b.Params = append(b.Params, p)
	}

	d := decoder{baseDir: baseDir, shared: shared, opts: opts}
	built := map[string]*ChartSpec{}
	for i, cf := range f.Charts {
		if cf.Mount == "" {
			return nil, invalid(fmt.Sprintf("charts[%d]", i), "chart needs a mount")
		}
		var (
			s   *ChartSpec
			err error
		)
		switch {
		case cf.Spec != nil && cf.Overlay != nil:
			err = invalid("chart", "use either spec or overlay, not both")
		case cf.Spec != nil:
			s, err = d.spec(cf.Spec)
		case cf.Overlay != nil:
			s, err = d.overlay(cf.Overlay, built)
		default:
			err = invalid("chart", "chart needs a spec or an overlay")
		}
		if err != nil {
			return nil, errors.Wrapf(err, "chart %q", cf.Mount)
		}
		built[cf.Mount] = s
		b.Charts = append(b.Charts, Chart{Mount: cf.Mount, Spec: s})
	}
	return b, nil
}

// decodeYAML reads YAML (or JSON) into a generic tree, then decodes that
// tree as JSON into out so the json tags of the file types apply.
func decodeYAML(data []byte, out interface{}) error {
	var tree interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	norm, err := normalizeYAML(tree)
	if err != nil {
		return err
	}
	raw, err := batchJSON.Marshal(norm)
	if err != nil {
		return err
	}
	return batchJSON.Unmarshal(raw, out)
}

func normalizeYAML(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			n, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			key, ok := k.(string)
			if !ok {
				return nil, errors.Errorf("non-string map key %v", k)
			}
			n, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			n, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case time.Time:
		if t.Equal(t.Truncate(24 * time.Hour)) {
			return t.Format("2006-01-02"), nil
		}
		return t.Format(time.RFC3339), nil
	}
	return v, nil
}

type decoder struct {
	baseDir string
	shared  map[string]*Param
	opts    []Option
}

func (d decoder) spec(sf *specFile) (*ChartSpec, error) {
	cfg := Config{
		Width:    sf.Width,
		Height:   sf.Height,
		Autosize: sf.Autosize,
	}
	var err error
	if cfg.Title, err = decodeTitle(sf.Title); err != nil {
		return nil, err
	}
	if sf.Projection != nil {
		cfg.Projection = &Projection{Type: sf.Projection.Type, Center: sf.Projection.Center, Scale: sf.Projection.Scale}
	}
	if sf.Config != nil {
		cfg.View = sf.Config.View
	}
	for i, pf := range sf.Params {
		if pf.Value == nil && pf.Bind == nil {
			p, ok := d.shared[pf.Name]
			if !ok {
				return nil, undefinedParam(pf.Name, fmt.Sprintf("params[%d]", i))
			}
			cfg.Params = append(cfg.Params, p)
			continue
		}
		p, err := pf.param()
		if err != nil {
			return nil, errors.Wrapf(err, "params[%d]", i)
		}
		cfg.Params = append(cfg.Params, p)
	}
	if sf.Data != nil {
		if cfg.Source, err = d.data(sf.Data); err != nil {
			return nil, err
		}
	}
	if cfg.Transforms, err = decodeTransforms(sf.Transform, d); err != nil {
		return nil, err
	}
	if len(sf.Mark) > 0 {
		m, err := decodeMark(sf.Mark)
		if err != nil {
			return nil, err
		}
		cfg.Mark = &m
	}
	if cfg.Encoding, err = decodeEncoding(sf.Encoding); err != nil {
		return nil, err
	}
	for i, lf := range sf.Layer {
		l, err := d.layer(lf)
		if err != nil {
			return nil, errors.Wrapf(err, "layer[%d]", i)
		}
		cfg.Layers = append(cfg.Layers, l)
	}
	return Build(cfg, d.opts...)
}

func (d decoder) layer(lf layerFile) (Layer, error) {
	var (
		l   Layer
		err error
	)
	if lf.Data != nil {
		if l.Data, err = d.data(lf.Data); err != nil {
			return l, err
		}
	}
	if l.Transforms, err = decodeTransforms(lf.Transform, d); err != nil {
		return l, err
	}
	if len(lf.Mark) == 0 {
		return l, invalid("mark", "layer needs a mark")
	}
	if l.Mark, err = decodeMark(lf.Mark); err != nil {
		return l, err
	}
	l.Encoding, err = decodeEncoding(lf.Encoding)
	return l, err
}

func (d decoder) overlay(of *overlayFile, built map[string]*ChartSpec) (*ChartSpec, error) {
	base, ok := built[of.Base]
	if !ok {
		return nil, invalid("overlay", fmt.Sprintf("base %q is not an earlier chart", of.Base))
	}
	agg := AggregateOverlay{
		Op:      of.Op,
		Field:   of.Field,
		As:      of.As,
		GroupBy: of.GroupBy,
		Channel: of.Channel,
		Props:   of.Props,
	}
	if len(of.Mark) > 0 {
		m, err := decodeMark(of.Mark)
		if err != nil {
			return nil, err
		}
		agg.Mark = &m
	}
	return DeriveAggregateOverlay(base, agg, d.opts...)
}

func (d decoder) data(df *dataFile) (*DataRef, error) {
	ref := &DataRef{URL: df.URL, Values: df.Values, Fields: df.Fields}
	if df.Format != nil {
		ref.Format = *df.Format
	}
	if df.Path == "" {
		return ref, nil
	}
	if df.URL != "" || df.Values != nil {
		return nil, invalid("data", "data.path cannot be combined with url or values")
	}
	path := df.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.baseDir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read data.path")
	}
	sch, err := schema.DiscoverFromCSV(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "discover %s", df.Path)
	}
	values, err := helpers.ParseCSVValues(raw, *sch)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", df.Path)
	}
	ref.Values = values
	if len(ref.Fields) == 0 {
		ref.Fields = sch.FieldKeys()
	}
	return ref, nil
}

func (pf paramFile) param() (*Param, error) {
	if pf.Name == "" {
		return nil, invalid("param", "parameter needs a name")
	}
	var bind *Bind
	if pf.Bind != nil {
		bind = &Bind{
			Input:   pf.Bind.Input,
			Min:     pf.Bind.Min,
			Max:     pf.Bind.Max,
			Step:    pf.Bind.Step,
			Options: pf.Bind.Options,
			Labels:  pf.Bind.Labels,
			Name:    pf.Bind.Name,
		}
	}
	return NewParam(pf.Name, pf.Value, bind), nil
}

// ============================================================================
// VEGA-LITE SHAPES
// ============================================================================

func decodeTitle(raw stdjson.RawMessage) (Title, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Title{}, nil
	}
	var text string
	if err := stdjson.Unmarshal(raw, &text); err == nil {
		return Title{Text: text}, nil
	}
	var t struct {
		Text     string  `json:"text"`
		FontSize float64 `json:"fontSize"`
		Anchor   string  `json:"anchor"`
	}
	if err := stdjson.Unmarshal(raw, &t); err != nil {
		return Title{}, errors.Wrap(err, "decode title")
	}
	return Title{Text: t.Text, FontSize: t.FontSize, Anchor: t.Anchor}, nil
}

func decodeMark(raw stdjson.RawMessage) (Mark, error) {
	var v interface{}
	if err := stdjson.Unmarshal(raw, &v); err != nil {
		return Mark{}, errors.Wrap(err, "decode mark")
	}
	switch m := v.(type) {
	case string:
		return Mark{Type: m}, nil
	case map[string]interface{}:
		t, _ := m["type"].(string)
		delete(m, "type")
		if len(m) == 0 {
			m = nil
		}
		return Mark{Type: t, Style: m}, nil
	}
	return Mark{}, invalid("mark", "mark must be a string or an object")
}

func decodeTransforms(raws []stdjson.RawMessage, d decoder) ([]TransformStep, error) {
	steps := make([]TransformStep, 0, len(raws))
	for i, raw := range raws {
		st, err := decodeStep(raw, d)
		if err != nil {
			return nil, errors.Wrapf(err, "transform[%d]", i)
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func decodeStep(raw stdjson.RawMessage, d decoder) (TransformStep, error) {
	var keys map[string]stdjson.RawMessage
	if err := stdjson.Unmarshal(raw, &keys); err != nil {
		return nil, errors.Wrap(err, "decode transform")
	}
	field := func(k string, dst interface{}) error {
		v, ok := keys[k]
		if !ok {
			return nil
		}
		return errors.Wrapf(stdjson.Unmarshal(v, dst), "decode %s", k)
	}
	for kind, allowed := range stepKeys {
		if keys[kind] == nil {
			continue
		}
		if err := onlyKeys(keys, kind, allowed); err != nil {
			return nil, err
		}
		break
	}

	switch {
	case keys["filter"] != nil:
		var f Filter
		if err := field("filter", &f.Expr); err != nil {
			return nil, errors.Wrap(err, "only expression filters are supported")
		}
		return f, nil

	case keys["aggregate"] != nil:
		var ops []struct {
			Op    string `json:"op"`
			Field string `json:"field"`
			As    string `json:"as"`
		}
		var a Aggregate
		if err := field("aggregate", &ops); err != nil {
			return nil, err
		}
		if err := field("groupby", &a.GroupBy); err != nil {
			return nil, err
		}
		for _, op := range ops {
			a.Ops = append(a.Ops, AggregateOp{Op: op.Op, Field: op.Field, As: op.As})
		}
		return a, nil

	case keys["window"] != nil:
		var ops []struct {
			Op    string `json:"op"`
			Field string `json:"field"`
			As    string `json:"as"`
		}
		var sorts []struct {
			Field string `json:"field"`
			Order string `json:"order"`
		}
		var (
			w     Window
			frame []*int
		)
		if err := field("window", &ops); err != nil {
			return nil, err
		}
		if err := field("frame", &frame); err != nil {
			return nil, err
		}
		if err := field("ignorePeers", &w.IgnorePeers); err != nil {
			return nil, err
		}
		switch len(frame) {
		case 0:
			if keys["frame"] != nil {
				return nil, invalid("window", "window frame needs two bounds")
			}
		case 2:
			w.Frame = &Frame{Lower: frame[0], Upper: frame[1]}
		default:
			return nil, invalid("window", "window frame needs two bounds")
		}
		if err := field("sort", &sorts); err != nil {
			return nil, err
		}
		if err := field("groupby", &w.GroupBy); err != nil {
			return nil, err
		}
		for _, op := range ops {
			w.Ops = append(w.Ops, WindowOp{Op: op.Op, Field: op.Field, As: op.As})
		}
		for _, s := range sorts {
			w.Sort = append(w.Sort, SortField{Field: s.Field, Order: s.Order})
		}
		return w, nil

	case keys["fold"] != nil:
		var f Fold
		var as []string
		if err := field("fold", &f.Fields); err != nil {
			return nil, err
		}
		if err := field("as", &as); err != nil {
			return nil, err
		}
		switch len(as) {
		case 0:
		case 2:
			f.As = [2]string{as[0], as[1]}
		default:
			return nil, invalid("fold", "fold as needs exactly two names")
		}
		return f, nil

	case keys["calculate"] != nil:
		var c Calculate
		if err := field("calculate", &c.Expr); err != nil {
			return nil, err
		}
		if err := field("as", &c.As); err != nil {
			return nil, err
		}
		return c, nil

	case keys["lookup"] != nil:
		var l Lookup
		var from struct {
			Data   *dataFile `json:"data"`
			Key    string    `json:"key"`
			Fields []string  `json:"fields"`
		}
		if err := field("lookup", &l.Key); err != nil {
			return nil, err
		}
		if err := field("from", &from); err != nil {
			return nil, err
		}
		if from.Data == nil {
			return nil, invalid("lookup", "lookup needs from.data")
		}
		ref, err := d.data(from.Data)
		if err != nil {
			return nil, err
		}
		l.From, l.FromKey, l.Fields = *ref, from.Key, from.Fields
		return l, nil
	}
	return nil, invalid("transform", "unsupported transform")
}

// stepKeys lists the keys each transform kind may carry.
var stepKeys = map[string][]string{
	"filter":    {"filter"},
	"aggregate": {"aggregate", "groupby"},
	"window":    {"window", "sort", "groupby", "frame", "ignorePeers"},
	"fold":      {"fold", "as"},
	"calculate": {"calculate", "as"},
	"lookup":    {"lookup", "from"},
}

func onlyKeys(keys map[string]stdjson.RawMessage, kind string, allowed []string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	var extra []string
	for k := range keys {
		if !ok[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return invalid(kind, fmt.Sprintf("unsupported %s keys %v", kind, extra))
}

func decodeEncoding(raw map[string]stdjson.RawMessage) (Encoding, error) {
	var e Encoding
	for ch, v := range raw {
		if ch == "tooltip" {
			var list []map[string]interface{}
			if err := stdjson.Unmarshal(v, &list); err != nil {
				var one map[string]interface{}
				if err := stdjson.Unmarshal(v, &one); err != nil {
					return e, errors.Wrap(err, "decode encoding.tooltip")
				}
				list = append(list, one)
			}
			for _, m := range list {
				e.Tooltip = append(e.Tooltip, fieldDefFromMap(m))
			}
			continue
		}
		var m map[string]interface{}
		if err := stdjson.Unmarshal(v, &m); err != nil {
			return e, errors.Wrapf(err, "decode encoding.%s", ch)
		}
		if e.Channels == nil {
			e.Channels = map[string]FieldDef{}
		}
		e.Channels[ch] = fieldDefFromMap(m)
	}
	return e, nil
}

func fieldDefFromMap(m map[string]interface{}) FieldDef {
	var def FieldDef
	take := func(k string) string {
		s, _ := m[k].(string)
		delete(m, k)
		return s
	}
	def.Field = take("field")
	def.Type = take("type")
	def.Aggregate = take("aggregate")
	if s, ok := m["sort"].(map[string]interface{}); ok {
		if f, ok := s["field"].(string); ok {
			op, _ := s["op"].(string)
			order, _ := s["order"].(string)
			def.Sort = &SortDef{Field: f, Op: op, Order: order}
			delete(m, "sort")
		}
	}
	if c, ok := m["condition"].(map[string]interface{}); ok {
		test, _ := c["test"].(string)
		param, _ := c["param"].(string)
		def.Condition = &Condition{Test: test, Param: param, Value: c["value"]}
		delete(m, "condition")
	}
	if v, ok := m["value"]; ok {
		def.Value = v
		delete(m, "value")
	}
	if len(m) > 0 {
		def.Props = m
	}
	return def
}
