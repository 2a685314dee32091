package render

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/spektr-org/chartspec/spec"
)

// ============================================================================
// SEQUENCER TESTS
// ============================================================================

func chart(title string) *spec.ChartSpec {
	return spec.MustBuild(spec.Config{
		Title:    spec.Title{Text: title},
		Source:   &spec.DataRef{Values: []map[string]interface{}{{"state": "Johor", "poverty": 3.9}}},
		Mark:     &spec.Mark{Type: "bar"},
		Encoding: spec.Encoding{Channels: map[string]spec.FieldDef{"x": {Field: "state", Type: "nominal"}}},
	})
}

func targets(mounts ...string) []Target {
	out := make([]Target, len(mounts))
	for i, m := range mounts {
		out[i] = Target{Mount: m, Spec: chart(m)}
	}
	return out
}

// recorder is a renderOne double that records call order and checks that
// no two calls overlap.
type recorder struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	overlap  bool
	fail     map[string]error
	delay    time.Duration
}

func (r *recorder) render(ctx context.Context, t Target) error {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > 1 {
		r.overlap = true
	}
	r.calls = append(r.calls, t.Mount)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.fail[t.Mount]
}

func TestRenderAllPreservesOrder(t *testing.T) {
	rec := &recorder{delay: time.Millisecond}
	in := targets("#map", "#barchart", "#slopechart", "#boxplot", "#scatterplot")

	out, err := RenderAll(context.Background(), in, rec.render)
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if out.State != AllSucceeded {
		t.Errorf("State = %v, want all_succeeded", out.State)
	}
	if strings.Join(rec.calls, ",") != "#map,#barchart,#slopechart,#boxplot,#scatterplot" {
		t.Errorf("call order = %v", rec.calls)
	}
	if rec.overlap {
		t.Error("render calls overlapped")
	}
	if out.Err() != nil {
		t.Errorf("Err() = %v, want nil", out.Err())
	}
}

func TestRenderAllPartialFailure(t *testing.T) {
	rec := &recorder{fail: map[string]error{"B": errors.New("fetch timeout")}}

	out, err := RenderAll(context.Background(), targets("A", "B", "C"), rec.render)
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("expected all 3 render calls, got %v", rec.calls)
	}
	if out.State != PartialFailure {
		t.Errorf("State = %v, want partial_failure", out.State)
	}
	if len(out.Failures) != 1 || out.Failures[0].Target.Mount != "B" {
		t.Fatalf("Failures = %+v, want exactly B", out.Failures)
	}
	if got := errors.Cause(out.Failures[0].Err).Error(); got != "fetch timeout" {
		t.Errorf("cause = %q, want %q", got, "fetch timeout")
	}
	var re *RenderError
	if !errors.As(out.Err(), &re) || re.Mount != "B" {
		t.Errorf("Err() = %v, want *RenderError for B", out.Err())
	}
	if len(out.Succeeded) != 2 || out.Succeeded[0].Mount != "A" || out.Succeeded[1].Mount != "C" {
		t.Errorf("Succeeded = %+v, want A and C", out.Succeeded)
	}
	if _, failed := out.Failed("A"); failed {
		t.Error("A should not be reported as failed")
	}
}

func TestRenderAllKeepsExistingRenderError(t *testing.T) {
	orig := &RenderError{Mount: "B", Err: errors.New("schema mismatch")}
	rec := &recorder{fail: map[string]error{"B": orig}}

	out, _ := RenderAll(context.Background(), targets("A", "B"), rec.render)
	if out.Failures[0].Err != orig {
		t.Errorf("expected the renderer's own *RenderError to be kept, got %v", out.Failures[0].Err)
	}
}

func TestRenderAllAllFailed(t *testing.T) {
	boom := errors.New("unreachable")
	rec := &recorder{fail: map[string]error{"A": boom, "B": boom}}

	out, err := RenderAll(context.Background(), targets("A", "B"), rec.render)
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if out.State != AllFailed {
		t.Errorf("State = %v, want all_failed", out.State)
	}
	if len(out.Failures) != 2 || len(rec.calls) != 2 {
		t.Errorf("expected 2 failures from 2 calls, got %d from %v", len(out.Failures), rec.calls)
	}
}

func TestRenderAllEmptyBatch(t *testing.T) {
	out, err := RenderAll(context.Background(), nil, (&recorder{}).render)
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if out.State != AllSucceeded {
		t.Errorf("State = %v, want all_succeeded", out.State)
	}
}

func TestRenderAllRejectsMalformedBatch(t *testing.T) {
	rec := &recorder{}
	_, err := RenderAll(context.Background(), targets("#map", "#barchart", "#map"), rec.render)
	if errors.Cause(err) != ErrDuplicateMount {
		t.Errorf("err = %v, want ErrDuplicateMount", err)
	}
	_, err = RenderAll(context.Background(), targets("#map", ""), rec.render)
	if errors.Cause(err) != ErrEmptyMount {
		t.Errorf("err = %v, want ErrEmptyMount", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("nothing should render for a malformed batch, got %v", rec.calls)
	}
	if _, err := RenderAll(context.Background(), targets("A"), nil); err == nil {
		t.Error("expected error for nil render function")
	}
}

func TestRenderAllTimeout(t *testing.T) {
	rec := &recorder{delay: time.Second}

	start := time.Now()
	out, err := RenderAll(context.Background(), targets("A", "B"), rec.render, WithTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
	if out.State != AllFailed || len(rec.calls) != 2 {
		t.Fatalf("State = %v after %v, want all_failed after 2 calls", out.State, rec.calls)
	}
	if errors.Cause(out.Failures[1].Err) != context.DeadlineExceeded {
		t.Errorf("cause = %v, want deadline exceeded", errors.Cause(out.Failures[1].Err))
	}
}

func TestRenderAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	renderOne := func(_ context.Context, tg Target) error {
		calls = append(calls, tg.Mount)
		if tg.Mount == "A" {
			cancel()
		}
		return nil
	}

	out, err := RenderAll(ctx, targets("A", "B", "C"), renderOne)
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("expected only A to render, got %v", calls)
	}
	if out.State != PartialFailure || len(out.Failures) != 2 {
		t.Fatalf("State = %v with %d failures, want partial_failure with 2", out.State, len(out.Failures))
	}
	if errors.Cause(out.Failures[0].Err) != context.Canceled {
		t.Errorf("cause = %v, want context.Canceled", errors.Cause(out.Failures[0].Err))
	}
}

func TestRenderAllNilContext(t *testing.T) {
	rec := &recorder{}
	out, err := RenderAll(nil, targets("A", "B"), rec.render)
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if out.State != AllSucceeded || len(rec.calls) != 2 {
		t.Errorf("State = %v after %v, want all_succeeded after 2 calls", out.State, rec.calls)
	}
}

func TestRenderAllRecoversPanic(t *testing.T) {
	renderOne := func(_ context.Context, tg Target) error {
		if tg.Mount == "B" {
			panic("draw failed")
		}
		return nil
	}
	out, err := RenderAll(context.Background(), targets("A", "B", "C"), renderOne)
	if err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	f, ok := out.Failed("B")
	if !ok || !strings.Contains(f.Err.Error(), "draw failed") {
		t.Errorf("expected B to fail with the panic value, got %+v", out.Failures)
	}
	if len(out.Succeeded) != 2 {
		t.Errorf("Succeeded = %d, want 2", len(out.Succeeded))
	}
}

func TestRenderAllNilSpec(t *testing.T) {
	rec := &recorder{}
	in := []Target{{Mount: "A", Spec: chart("A")}, {Mount: "B"}}
	out, _ := RenderAll(context.Background(), in, rec.render)
	if _, failed := out.Failed("B"); !failed {
		t.Error("target without a spec should fail")
	}
	if len(rec.calls) != 1 {
		t.Errorf("renderer should not see a nil spec, got %v", rec.calls)
	}
}

func TestRenderAllObserver(t *testing.T) {
	rec := &recorder{fail: map[string]error{"B": errors.New("fetch timeout")}}
	var seen []string
	obs := func(tg Target, err error) {
		mark := "ok"
		if err != nil {
			mark = "err"
		}
		seen = append(seen, tg.Mount+"="+mark)
	}
	if _, err := RenderAll(context.Background(), targets("A", "B", "C"), rec.render, WithObserver(obs)); err != nil {
		t.Fatalf("RenderAll failed: %v", err)
	}
	if strings.Join(seen, ",") != "A=ok,B=err,C=ok" {
		t.Errorf("observer saw %v", seen)
	}
}

func TestOutcomeReport(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	rec := &recorder{fail: map[string]error{"B": errors.New("fetch timeout")}}

	out, _ := RenderAll(context.Background(), targets("A", "B", "C"), rec.render, WithLogger(logger))
	hook.Reset()
	out.Report(logger)

	var failed []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failed = append(failed, e)
		}
	}
	if len(failed) != 1 || failed[0].Data["mount"] != "B" {
		t.Fatalf("expected one error entry for B, got %+v", failed)
	}
	if err, _ := failed[0].Data[logrus.ErrorKey].(error); err == nil || err.Error() != "fetch timeout" {
		t.Errorf("error field = %v, want fetch timeout", failed[0].Data[logrus.ErrorKey])
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		AllSucceeded:   "all_succeeded",
		PartialFailure: "partial_failure",
		AllFailed:      "all_failed",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
