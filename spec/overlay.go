package spec

import (
	"fmt"

	"github.com/pkg/errors"
)

// ============================================================================
// AGGREGATE OVERLAYS — Reference marks derived from a base chart
// ============================================================================
// An overlay reads the same data through the same leading filters as its
// base, then collapses it with one aggregate ("national average"). Filter
// parameters are shared by pointer, so a slider moved on the base moves the
// overlay too without rebuilding anything.
// ============================================================================

// AggregateOverlay describes the single aggregation an overlay performs.
type AggregateOverlay struct {
	Op      string
	Field   string
	As      string
	GroupBy []string

	Channel string // encoding channel for the result; default "y"
	Mark    *Mark  // default {type: "rule"}
	Props   map[string]interface{}
	Tooltip []FieldDef
}

// DeriveAggregateOverlay builds a secondary chart from base: same data, the
// leading run of base's filter steps, then exactly one Aggregate. Every
// parameter of base is carried over as the same instance.
func DeriveAggregateOverlay(base *ChartSpec, agg AggregateOverlay, opts ...Option) (*ChartSpec, error) {
	if base == nil {
		return nil, errors.New("derive overlay: nil base spec")
	}
	if !base.hasData {
		return nil, invalid("data", "overlay base has no top-level data source")
	}
	as := agg.As
	if as == "" {
		as = agg.Op
		if agg.Field != "" {
			as = fmt.Sprintf("%s_%s", agg.Op, agg.Field)
		}
	}
	channel := agg.Channel
	if channel == "" {
		channel = "y"
	}
	mark := Mark{Type: "rule"}
	if agg.Mark != nil {
		mark = *agg.Mark
	}

	steps := append(leadingFilters(base.transforms), Aggregate{
		Ops:     []AggregateOp{{Op: agg.Op, Field: agg.Field, As: as}},
		GroupBy: agg.GroupBy,
	})
	data := base.data.clone()
	enc := Encoding{
		Channels: map[string]FieldDef{
			channel: {Field: as, Type: "quantitative", Props: copyProps(agg.Props)},
		},
		Tooltip: append([]FieldDef(nil), agg.Tooltip...),
	}

	overlay, err := Build(Config{
		Width:      base.width,
		Height:     base.height,
		Source:     &data,
		Transforms: steps,
		Mark:       &mark,
		Encoding:   enc,
		Params:     base.params,
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "derive overlay")
	}
	return overlay, nil
}

// LayerOverlays draws overlays on top of base in one chart. Each overlay
// must read base's data through the same leading filters, which become the
// shared top-level transforms; the rest of base's chain moves into its own
// layer(s). Parameters of every input are kept as the same instances.
func LayerOverlays(base *ChartSpec, overlays ...*ChartSpec) (*ChartSpec, error) {
	if base == nil {
		return nil, errors.New("layer overlays: nil base spec")
	}
	if !base.hasData {
		return nil, invalid("data", "overlay base has no top-level data source")
	}
	shared := leadingFilters(base.transforms)
	rest := base.transforms[len(shared):]

	var layers []Layer
	if len(base.layers) == 0 {
		layers = append(layers, Layer{
			Transforms: append([]TransformStep(nil), rest...),
			Mark:       base.mark,
			Encoding:   base.encoding,
		})
	} else {
		for _, l := range base.layers {
			l = cloneLayer(l)
			l.Encoding = l.Encoding.inherit(base.encoding)
			if l.Data == nil {
				l.Transforms = append(append([]TransformStep(nil), rest...), l.Transforms...)
			}
			layers = append(layers, l)
		}
	}

	params := append([]*Param(nil), base.params...)
	seen := map[*Param]bool{}
	for _, p := range params {
		seen[p] = true
	}
	for i, ov := range overlays {
		where := fmt.Sprintf("overlay[%d]", i)
		if ov == nil || !ov.hasData || len(ov.layers) > 0 {
			return nil, invalid(where, "overlay must be a single-mark chart with data")
		}
		if ov.data.URL != base.data.URL || ov.data.Format != base.data.Format {
			return nil, invalid(where, "overlay reads a different data source than its base")
		}
		ovFilters := leadingFilters(ov.transforms)
		if !sameFilters(ovFilters, shared) {
			return nil, invalid(where, "overlay filters differ from the base filters")
		}
		layers = append(layers, Layer{
			Transforms: append([]TransformStep(nil), ov.transforms[len(ovFilters):]...),
			Mark:       ov.mark,
			Encoding:   ov.encoding,
		})
		for _, p := range ov.params {
			if !seen[p] {
				seen[p] = true
				params = append(params, p)
			}
		}
	}

	data := base.data.clone()
	combined, err := Build(Config{
		Title:      base.title,
		Width:      base.width,
		Height:     base.height,
		Autosize:   base.autosize,
		Projection: base.projection,
		View:       base.view,
		Source:     &data,
		Transforms: shared,
		Layers:     layers,
		Params:     params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "layer overlays")
	}
	return combined, nil
}

func leadingFilters(steps []TransformStep) []TransformStep {
	var out []TransformStep
	for _, st := range steps {
		f, ok := st.(Filter)
		if !ok {
			break
		}
		out = append(out, f)
	}
	return out
}

func sameFilters(a, b []TransformStep) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].(Filter).Expr != b[i].(Filter).Expr {
			return false
		}
	}
	return true
}
