package spec

import "fmt"

// ============================================================================
// TRANSFORM STEPS — Tagged variants of the Vega-Lite transform array
// ============================================================================
// Each variant knows:
//   Refs         the fields it reads and the parameters it references
//   apply        the fields visible after it
//   vegaLite     its JSON form
//
// The set is closed: only the variants in this file implement TransformStep.
// ============================================================================

// StepKind tags a TransformStep variant.
type StepKind string

const (
	KindFilter    StepKind = "filter"
	KindAggregate StepKind = "aggregate"
	KindWindow    StepKind = "window"
	KindFold      StepKind = "fold"
	KindCalculate StepKind = "calculate"
	KindLookup    StepKind = "lookup"
)

// TransformStep is one entry of a transform chain.
type TransformStep interface {
	Kind() StepKind
	Refs() Refs
	validate(where string) error
	apply(in scope) scope
	vegaLite() map[string]interface{}
}

var aggregateOps = map[string]bool{
	"count": true, "valid": true, "missing": true, "distinct": true,
	"sum": true, "product": true, "mean": true, "average": true,
	"variance": true, "variancep": true, "stdev": true, "stdevp": true, "stderr": true,
	"median": true, "q1": true, "q3": true, "ci0": true, "ci1": true,
	"min": true, "max": true, "argmin": true, "argmax": true, "values": true,
}

var windowOnlyOps = map[string]bool{
	"row_number": true, "rank": true, "dense_rank": true, "percent_rank": true,
	"cume_dist": true, "ntile": true, "lag": true, "lead": true,
	"first_value": true, "last_value": true, "nth_value": true,
}

// countLike ops need no input field.
var countLike = map[string]bool{
	"count": true, "row_number": true, "rank": true, "dense_rank": true,
	"percent_rank": true, "cume_dist": true, "ntile": true,
}

// ============================================================================
// FILTER
// ============================================================================

// Filter keeps the rows for which Expr is true.
type Filter struct {
	Expr string
}

func (Filter) Kind() StepKind { return KindFilter }
func (f Filter) Refs() Refs { return ScanExpr(f.Expr) }

func (f Filter) validate(where string) error {
	if f.Expr == "" {
		return invalid(where, "filter needs an expression")
	}
	return nil
}

func (Filter) apply(in scope) scope { return in }

func (f Filter) vegaLite() map[string]interface{} {
	return map[string]interface{}{"filter": f.Expr}
}

// ============================================================================
// AGGREGATE
// ============================================================================

// AggregateOp computes one summary field.
type AggregateOp struct {
	Op    string
	Field string
	As    string
}

// Aggregate groups rows by GroupBy and reduces each group with Ops.
// Only the group keys and the Ops outputs survive.
type Aggregate struct {
	Ops     []AggregateOp
	GroupBy []string
}

func (Aggregate) Kind() StepKind { return KindAggregate }

func (a Aggregate) Refs() Refs {
	var r Refs
	for _, op := range a.Ops {
		if op.Field != "" {
			r.Fields = append(r.Fields, op.Field)
		}
	}
	r.Fields = append(r.Fields, a.GroupBy...)
	return r
}

func (a Aggregate) validate(where string) error {
	if len(a.Ops) == 0 {
		return invalid(where, "aggregate needs at least one op")
	}
	for _, op := range a.Ops {
		if !aggregateOps[op.Op] {
			return invalid(where, fmt.Sprintf("unknown aggregate op %q", op.Op))
		}
		if op.As == "" {
			return invalid(where, fmt.Sprintf("aggregate op %q needs an output name", op.Op))
		}
		if op.Field == "" && !countLike[op.Op] {
			return invalid(where, fmt.Sprintf("aggregate op %q needs a field", op.Op))
		}
	}
	return nil
}

func (a Aggregate) apply(scope) scope {
	out := closedScope(a.GroupBy...)
	for _, op := range a.Ops {
		out.fields[op.As] = true
	}
	return out
}

func (a Aggregate) vegaLite() map[string]interface{} {
	ops := make([]map[string]interface{}, 0, len(a.Ops))
	for _, op := range a.Ops {
		m := map[string]interface{}{"op": op.Op, "as": op.As}
		if op.Field != "" {
			m["field"] = op.Field
		}
		ops = append(ops, m)
	}
	out := map[string]interface{}{"aggregate": ops}
	if len(a.GroupBy) > 0 {
		out["groupby"] = a.GroupBy
	}
	return out
}

// ============================================================================
// WINDOW
// ============================================================================

// WindowOp computes one windowed field.
type WindowOp struct {
	Op    string
	Field string
	As    string
}

// SortField orders rows inside a window.
type SortField struct {
	Field string
	Order string // "ascending" or "descending"
}

// Frame bounds a window relative to the current row. A nil end is
// unbounded, so {nil, Int(0)} is a running window.
type Frame struct {
	Lower *int
	Upper *int
}

// Window adds ranking / running fields without collapsing rows.
// A nil Frame leaves the Vega-Lite default (null, 0).
type Window struct {
	Ops         []WindowOp
	Sort        []SortField
	GroupBy     []string
	Frame       *Frame
	IgnorePeers bool
}

func (Window) Kind() StepKind { return KindWindow }

func (w Window) Refs() Refs {
	var r Refs
	for _, op := range w.Ops {
		if op.Field != "" {
			r.Fields = append(r.Fields, op.Field)
		}
	}
	for _, s := range w.Sort {
		r.Fields = append(r.Fields, s.Field)
	}
	r.Fields = append(r.Fields, w.GroupBy...)
	return r
}

func (w Window) validate(where string) error {
	if len(w.Ops) == 0 {
		return invalid(where, "window needs at least one op")
	}
	for _, op := range w.Ops {
		if !aggregateOps[op.Op] && !windowOnlyOps[op.Op] {
			return invalid(where, fmt.Sprintf("unknown window op %q", op.Op))
		}
		if op.As == "" {
			return invalid(where, fmt.Sprintf("window op %q needs an output name", op.Op))
		}
	}
	for _, s := range w.Sort {
		if s.Order != "" && s.Order != "ascending" && s.Order != "descending" {
			return invalid(where, fmt.Sprintf("unknown sort order %q", s.Order))
		}
	}
	if f := w.Frame; f != nil && f.Lower != nil && f.Upper != nil && *f.Lower > *f.Upper {
		return invalid(where, fmt.Sprintf("window frame [%d, %d] is empty", *f.Lower, *f.Upper))
	}
	return nil
}

func (w Window) apply(in scope) scope {
	as := make([]string, 0, len(w.Ops))
	for _, op := range w.Ops {
		as = append(as, op.As)
	}
	return in.with(as...)
}

func (w Window) vegaLite() map[string]interface{} {
	ops := make([]map[string]interface{}, 0, len(w.Ops))
	for _, op := range w.Ops {
		m := map[string]interface{}{"op": op.Op, "as": op.As}
		if op.Field != "" {
			m["field"] = op.Field
		}
		ops = append(ops, m)
	}
	out := map[string]interface{}{"window": ops}
	if len(w.Sort) > 0 {
		sorts := make([]map[string]interface{}, 0, len(w.Sort))
		for _, s := range w.Sort {
			m := map[string]interface{}{"field": s.Field}
			if s.Order != "" {
				m["order"] = s.Order
			}
			sorts = append(sorts, m)
		}
		out["sort"] = sorts
	}
	if len(w.GroupBy) > 0 {
		out["groupby"] = w.GroupBy
	}
	if w.Frame != nil {
		out["frame"] = []interface{}{frameBound(w.Frame.Lower), frameBound(w.Frame.Upper)}
	}
	if w.IgnorePeers {
		out["ignorePeers"] = true
	}
	return out
}

func frameBound(b *int) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

// ============================================================================
// FOLD
// ============================================================================

// Fold turns Fields into key/value rows. As defaults to ("key", "value").
type Fold struct {
	Fields []string
	As     [2]string
}

func (Fold) Kind() StepKind { return KindFold }
func (f Fold) Refs() Refs { return Refs{Fields: append([]string(nil), f.Fields...)} }

func (f Fold) validate(where string) error {
	if len(f.Fields) == 0 {
		return invalid(where, "fold needs at least one field")
	}
	if (f.As[0] == "") != (f.As[1] == "") {
		return invalid(where, "fold output names must be given together")
	}
	return nil
}

func (f Fold) names() (string, string) {
	if f.As[0] == "" {
		return "key", "value"
	}
	return f.As[0], f.As[1]
}

func (f Fold) apply(in scope) scope {
	k, v := f.names()
	return in.with(k, v)
}

func (f Fold) vegaLite() map[string]interface{} {
	out := map[string]interface{}{"fold": f.Fields}
	if f.As[0] != "" {
		out["as"] = []string{f.As[0], f.As[1]}
	}
	return out
}

// ============================================================================
// CALCULATE
// ============================================================================

// Calculate derives a new field from an expression.
type Calculate struct {
	Expr string
	As   string
}

func (Calculate) Kind() StepKind { return KindCalculate }
func (c Calculate) Refs() Refs { return ScanExpr(c.Expr) }

func (c Calculate) validate(where string) error {
	if c.Expr == "" || c.As == "" {
		return invalid(where, "calculate needs an expression and an output name")
	}
	return nil
}

func (c Calculate) apply(in scope) scope { return in.with(c.As) }

func (c Calculate) vegaLite() map[string]interface{} {
	return map[string]interface{}{"calculate": c.Expr, "as": c.As}
}

// ============================================================================
// LOOKUP
// ============================================================================

// Lookup joins Fields from a secondary source, matching Key in the primary
// rows against FromKey in From.
type Lookup struct {
	Key     string
	From    DataRef
	FromKey string
	Fields  []string
}

func (Lookup) Kind() StepKind { return KindLookup }
func (l Lookup) Refs() Refs { return Refs{Fields: []string{l.Key}} }

func (l Lookup) validate(where string) error {
	if l.Key == "" || l.FromKey == "" || len(l.Fields) == 0 {
		return invalid(where, "lookup needs a key, a from key and fields")
	}
	if err := l.From.validate(where + ".from"); err != nil {
		return err
	}
	if len(l.From.Fields) == 0 {
		return nil
	}
	secondary := closedScope(l.From.Fields...)
	if !secondary.has(l.FromKey) {
		return undefinedField(l.FromKey, where+".from")
	}
	for _, f := range l.Fields {
		if !secondary.has(f) {
			return undefinedField(f, where+".from")
		}
	}
	return nil
}

func (l Lookup) apply(in scope) scope { return in.with(l.Fields...) }

func (l Lookup) vegaLite() map[string]interface{} {
	return map[string]interface{}{
		"lookup": l.Key,
		"from": map[string]interface{}{
			"data":   dataJSON(l.From),
			"key":    l.FromKey,
			"fields": l.Fields,
		},
	}
}
