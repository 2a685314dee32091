package spec

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ============================================================================
// SPEC BUILDER — Config → validated, immutable ChartSpec
// ============================================================================
// Validation walks the chart the way the runtime will:
//   1. Parameters: declared once each
//   2. Source schema → scope
//   3. Each transform: its reads must be in scope, its params declared;
//      then the scope becomes what the step produces
//   4. Encodings (top level or per layer) against the final scope
// ============================================================================

// Config enumerates everything a chart is built from.
//
// Supply either Mark (+ Encoding) or Layers. Layers without their own Data
// read the rows produced by Transforms.
type Config struct {
	Title      Title
	Width      int
	Height     int
	Autosize   map[string]interface{}
	Projection *Projection
	View       map[string]interface{} // config.view, e.g. {"stroke": nil}

	Source     *DataRef
	Transforms []TransformStep
	Mark       *Mark
	Encoding   Encoding
	Layers     []Layer
	Params     []*Param
}

// ChartSpec is an immutable, validated chart description.
type ChartSpec struct {
	title      Title
	width      int
	height     int
	autosize   map[string]interface{}
	projection *Projection
	view       map[string]interface{}

	hasData    bool
	data       DataRef
	transforms []TransformStep
	mark       Mark
	encoding   Encoding
	layers     []Layer
	params     []*Param
}

// Build validates cfg and returns the chart it describes.
//
// It fails with a *ValidationError when a transform or encoding reads a field
// no earlier step (or the source schema) provides, or references a parameter
// cfg.Params does not declare.
func Build(cfg Config, opts ...Option) (*ChartSpec, error) {
	o := applyOptions(opts)

	params, err := indexParams(cfg.Params)
	if err != nil {
		return nil, err
	}

	in := openScope()
	if cfg.Source != nil {
		if err := cfg.Source.validate("data"); err != nil {
			return nil, err
		}
		in = o.sourceScope(*cfg.Source)
	} else if len(cfg.Layers) == 0 {
		return nil, invalid("data", "a chart without layers needs a data source")
	}

	out, err := walk(cfg.Transforms, in, params, "transform")
	if err != nil {
		return nil, err
	}

	switch {
	case cfg.Mark != nil && len(cfg.Layers) > 0:
		return nil, invalid("mark", "use either a mark or layers, not both")
	case cfg.Mark != nil:
		if cfg.Mark.Type == "" {
			return nil, invalid("mark", "mark needs a type")
		}
		if err := checkEncoding(cfg.Encoding, out, params, "encoding"); err != nil {
			return nil, err
		}
	case len(cfg.Layers) > 0:
		for i, l := range cfg.Layers {
			if err := checkLayer(l, cfg.Encoding, cfg.Source != nil, out, params, o, fmt.Sprintf("layer[%d]", i)); err != nil {
				return nil, err
			}
		}
	default:
		return nil, invalid("mark", "a chart needs a mark or layers")
	}

	s := &ChartSpec{
		title:      cfg.Title,
		width:      cfg.Width,
		height:     cfg.Height,
		autosize:   copyProps(cfg.Autosize),
		view:       copyProps(cfg.View),
		transforms: append([]TransformStep(nil), cfg.Transforms...),
		encoding:   cfg.Encoding.clone(),
		params:     append([]*Param(nil), cfg.Params...),
	}
	if cfg.Projection != nil {
		p := *cfg.Projection
		p.Center = append([]float64(nil), cfg.Projection.Center...)
		s.projection = &p
	}
	if cfg.Source != nil {
		s.hasData = true
		s.data = cfg.Source.clone()
	}
	if cfg.Mark != nil {
		s.mark = Mark{Type: cfg.Mark.Type, Style: copyProps(cfg.Mark.Style)}
	}
	for _, l := range cfg.Layers {
		s.layers = append(s.layers, cloneLayer(l))
	}

	o.Logger.WithFields(logrus.Fields{
		"title":      cfg.Title.Text,
		"transforms": len(cfg.Transforms),
		"layers":     len(cfg.Layers),
		"params":     len(cfg.Params),
	}).Debug("🧩 chartspec: built spec")
	return s, nil
}

// MustBuild is Build for package-level chart definitions; it panics on error.
func MustBuild(cfg Config, opts ...Option) *ChartSpec {
	s, err := Build(cfg, opts...)
	if err != nil {
		panic(errors.Wrap(err, "spec.MustBuild"))
	}
	return s
}

// ============================================================================
// VALIDATION
// ============================================================================

func indexParams(list []*Param) (paramSet, error) {
	params := make(paramSet, len(list))
	for i, p := range list {
		where := fmt.Sprintf("params[%d]", i)
		if p == nil || p.Name() == "" {
			return nil, invalid(where, "parameter needs a name")
		}
		if params.has(p.Name()) {
			return nil, &ValidationError{Problem: DuplicateParam, Name: p.Name(), Where: where}
		}
		params[p.Name()] = p
	}
	return params, nil
}

// walk checks each step against the scope produced by the steps before it
// and returns the scope after the last one.
func walk(steps []TransformStep, in scope, params paramSet, prefix string) (scope, error) {
	cur := in
	for i, st := range steps {
		if st == nil {
			return scope{}, invalid(fmt.Sprintf("%s[%d]", prefix, i), "nil transform step")
		}
		where := fmt.Sprintf("%s[%d] %s", prefix, i, st.Kind())
		if err := st.validate(where); err != nil {
			return scope{}, err
		}
		if err := checkRefs(st.Refs(), cur, params, where); err != nil {
			return scope{}, err
		}
		cur = st.apply(cur)
	}
	return cur, nil
}

func checkRefs(r Refs, in scope, params paramSet, where string) error {
	for _, p := range r.Params {
		if !params.has(p) {
			return undefinedParam(p, where)
		}
	}
	for _, f := range r.Fields {
		if !in.has(f) {
			return undefinedField(f, where)
		}
	}
	return nil
}

// checkLayer validates one layer. The chart-level encoding is inherited by
// every layer, so its channels are checked against each layer's rows.
func checkLayer(l Layer, parent Encoding, hasTopData bool, in scope, params paramSet, o *config, where string) error {
	cur := in
	if l.Data != nil {
		if err := l.Data.validate(where + ".data"); err != nil {
			return err
		}
		cur = o.sourceScope(*l.Data)
	} else if !hasTopData {
		return invalid(where, "layer has no data and the chart has no data source")
	}
	if l.Mark.Type == "" {
		return invalid(where+".mark", "mark needs a type")
	}
	out, err := walk(l.Transforms, cur, params, where+".transform")
	if err != nil {
		return err
	}
	if err := checkEncoding(inherited(parent, l.Encoding), out, params, "encoding"); err != nil {
		return err
	}
	return checkEncoding(l.Encoding, out, params, where+".encoding")
}

// inherited is the part of parent a layer with own encoding e still reads.
func inherited(parent, e Encoding) Encoding {
	var out Encoding
	for ch, def := range parent.Channels {
		if _, ok := e.Channels[ch]; ok {
			continue
		}
		if out.Channels == nil {
			out.Channels = map[string]FieldDef{}
		}
		out.Channels[ch] = def
	}
	if len(e.Tooltip) == 0 {
		out.Tooltip = parent.Tooltip
	}
	return out
}

func knownChannel(ch string) bool { return vegaChannels[ch] }

func checkEncoding(e Encoding, in scope, params paramSet, where string) error {
	names := make([]string, 0, len(e.Channels))
	for ch := range e.Channels {
		names = append(names, ch)
	}
	sort.Strings(names) // deterministic first error
	for _, ch := range names {
		if !knownChannel(ch) {
			return invalid(where+"."+ch, fmt.Sprintf("unknown encoding channel %q", ch))
		}
		if err := checkFieldDef(e.Channels[ch], in, params, where+"."+ch); err != nil {
			return err
		}
	}
	for i, def := range e.Tooltip {
		if err := checkFieldDef(def, in, params, fmt.Sprintf("%s.tooltip[%d]", where, i)); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldDef(def FieldDef, in scope, params paramSet, where string) error {
	if def.Field != "" && !in.has(def.Field) {
		return undefinedField(def.Field, where)
	}
	if def.Sort != nil && def.Sort.Field != "" && !in.has(def.Sort.Field) {
		return undefinedField(def.Sort.Field, where+".sort")
	}
	if c := def.Condition; c != nil {
		if c.Param != "" && !params.has(c.Param) {
			return undefinedParam(c.Param, where+".condition")
		}
		if c.Test != "" {
			if err := checkRefs(ScanExpr(c.Test), in, params, where+".condition"); err != nil {
				return err
			}
		}
	}
	return nil
}

// ============================================================================
// ACCESSORS — copies; only *Param values are shared
// ============================================================================

func (s *ChartSpec) Title() Title { return s.title }
func (s *ChartSpec) Width() int { return s.width }
func (s *ChartSpec) Height() int { return s.height }

// Data returns the top-level data reference, and false for a chart whose
// layers each bring their own.
func (s *ChartSpec) Data() (DataRef, bool) { return s.data.clone(), s.hasData }

func (s *ChartSpec) Transforms() []TransformStep {
	return append([]TransformStep(nil), s.transforms...)
}

func (s *ChartSpec) Mark() Mark { return Mark{Type: s.mark.Type, Style: copyProps(s.mark.Style)} }

func (s *ChartSpec) Encoding() Encoding { return s.encoding.clone() }

func (s *ChartSpec) Layers() []Layer {
	out := make([]Layer, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, cloneLayer(l))
	}
	return out
}

// Params returns the spec's parameters. The slice is a copy; the parameters
// are the same instances the spec was built with.
func (s *ChartSpec) Params() []*Param { return append([]*Param(nil), s.params...) }

// Param looks a parameter up by name.
func (s *ChartSpec) Param(name string) (*Param, bool) {
	for _, p := range s.params {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Sources lists every data reference the chart reads: the top-level data,
// per-layer data and lookup sources, in encounter order, without duplicates.
func (s *ChartSpec) Sources() []DataRef {
	var out []DataRef
	seen := map[string]bool{}
	add := func(d DataRef) {
		key := d.Key() + "|" + d.Format.Type
		if d.IsInline() || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, d.clone())
	}
	addSteps := func(steps []TransformStep) {
		for _, st := range steps {
			if l, ok := st.(Lookup); ok {
				add(l.From)
			}
		}
	}
	if s.hasData {
		add(s.data)
	}
	addSteps(s.transforms)
	for _, l := range s.layers {
		if l.Data != nil {
			add(*l.Data)
		}
		addSteps(l.Transforms)
	}
	return out
}

// Fields lists the source fields the chart reads from each data source
// before any transform renames or drops them. Keys are DataRef.Key values.
func (s *ChartSpec) Fields() map[string][]string {
	out := map[string][]string{}
	collect := func(d *DataRef, steps []TransformStep, enc Encoding) {
		if d == nil || d.IsInline() {
			return
		}
		produced := map[string]bool{}
		var reads []string
		note := func(f string) {
			if f != "" && !produced[f] {
				reads = append(reads, f)
			}
		}
		for _, st := range steps {
			for _, f := range st.Refs().Fields {
				note(f)
			}
			switch v := st.(type) {
			case Aggregate:
				// downstream reads come from aggregate outputs
				appendFields(out, d.Key(), reads)
				return
			case Lookup:
				if !v.From.IsInline() {
					appendFields(out, v.From.Key(), append([]string{v.FromKey}, v.Fields...))
				}
			}
			for f := range st.apply(closedScope()).fields {
				produced[f] = true
			}
		}
		for _, def := range enc.allDefs() {
			note(def.Field)
		}
		appendFields(out, d.Key(), reads)
	}
	var top *DataRef
	if s.hasData {
		top = &s.data
	}
	if len(s.layers) == 0 {
		collect(top, s.transforms, s.encoding)
		return out
	}
	for _, l := range s.layers {
		enc := l.Encoding.inherit(s.encoding)
		if l.Data != nil {
			collect(l.Data, l.Transforms, enc)
			continue
		}
		collect(top, append(append([]TransformStep(nil), s.transforms...), l.Transforms...), enc)
	}
	return out
}

func appendFields(out map[string][]string, key string, fields []string) {
	seen := map[string]bool{}
	for _, f := range out[key] {
		seen[f] = true
	}
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out[key] = append(out[key], f)
		}
	}
}

func (e Encoding) allDefs() []FieldDef {
	channels := make([]string, 0, len(e.Channels))
	for ch := range e.Channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	out := make([]FieldDef, 0, len(channels)+len(e.Tooltip))
	for _, ch := range channels {
		out = append(out, e.Channels[ch])
	}
	return append(out, e.Tooltip...)
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func copyProps(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneLayer(l Layer) Layer {
	out := Layer{
		Transforms: append([]TransformStep(nil), l.Transforms...),
		Mark:       Mark{Type: l.Mark.Type, Style: copyProps(l.Mark.Style)},
		Encoding:   l.Encoding.clone(),
	}
	if l.Data != nil {
		d := l.Data.clone()
		out.Data = &d
	}
	return out
}
