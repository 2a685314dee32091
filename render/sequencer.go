package render

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spektr-org/chartspec/spec"
)

// ============================================================================
// RENDER SEQUENCER — Ordered, failure-isolating batch driver
// ============================================================================
// Flow:
//   1. Validate the batch (mount ids present and unique)
//   2. For each target, in order: call renderOne and wait for it to settle
//   3. Record success or failure, notify observers, continue
//   4. Classify the outcome (all succeeded / partial / all failed)
//
// Exactly one render call is in flight at any time. A failing target never
// stops the ones after it; only a cancelled context does.
// ============================================================================

// Target is one chart to mount.
type Target struct {
	Mount string // e.g. "#map"
	Spec  *spec.ChartSpec
}

// RenderFunc mounts one target. It is the capability supplied by the
// rendering adapter and must return only once the chart is drawn or failed.
type RenderFunc func(ctx context.Context, t Target) error

// State classifies a finished batch.
type State int

const (
	AllSucceeded State = iota
	PartialFailure
	AllFailed
)

func (s State) String() string {
	switch s {
	case AllSucceeded:
		return "all_succeeded"
	case PartialFailure:
		return "partial_failure"
	case AllFailed:
		return "all_failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Failure pairs a target with the error it failed with.
type Failure struct {
	Target Target
	Err    error // always a *RenderError
}

// Outcome is the result of one batch.
type Outcome struct {
	State     State
	Succeeded []Target
	Failures  []Failure
}

// Err returns the first failure encountered, or nil.
func (o *Outcome) Err() error {
	if o == nil || len(o.Failures) == 0 {
		return nil
	}
	return o.Failures[0].Err
}

// Failed reports whether the target mounted at mount failed.
func (o *Outcome) Failed(mount string) (Failure, bool) {
	for _, f := range o.Failures {
		if f.Target.Mount == mount {
			return f, true
		}
	}
	return Failure{}, false
}

// Report logs every failure of the batch, after the batch.
func (o *Outcome) Report(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	entry := l.WithFields(logrus.Fields{
		"state":     o.State.String(),
		"succeeded": len(o.Succeeded),
		"failed":    len(o.Failures),
	})
	if len(o.Failures) == 0 {
		entry.Info("✅ render: all charts mounted")
		return
	}
	entry.Warn("⚠️  render: batch finished with failures")
	for _, f := range o.Failures {
		l.WithField("mount", f.Target.Mount).WithError(errors.Cause(f.Err)).Error("❌ render: chart failed")
	}
}

// RenderAll drives targets through renderOne one at a time, in order.
// The returned error is non-nil only when the batch itself is malformed,
// in which case nothing is rendered. Per-target failures live in the Outcome.
// A nil ctx is treated as context.Background().
func RenderAll(ctx context.Context, targets []Target, renderOne RenderFunc, opts ...Option) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if renderOne == nil {
		return nil, errors.New("render: nil render function")
	}
	if err := validate(targets); err != nil {
		return nil, err
	}
	cfg := applyOptions(opts)
	log := cfg.Logger

	out := &Outcome{}
	for i, t := range targets {
		entry := log.WithFields(logrus.Fields{"mount": t.Mount, "index": i})

		var err error
		if cerr := ctx.Err(); cerr != nil {
			err = asRenderError(t.Mount, cerr)
			entry.Debug("⏭️  render: skipped, batch cancelled")
		} else {
			entry.Debug("🎨 render: mounting")
			err = renderTarget(ctx, cfg, t, renderOne)
		}

		if err != nil {
			out.Failures = append(out.Failures, Failure{Target: t, Err: err})
			entry.WithError(err).Debug("render: target failed, continuing")
		} else {
			out.Succeeded = append(out.Succeeded, t)
			entry.Debug("render: mounted")
		}
		for _, obs := range cfg.Observers {
			obs(t, err)
		}
	}

	switch {
	case len(out.Failures) == 0:
		out.State = AllSucceeded
	case len(out.Succeeded) == 0:
		out.State = AllFailed
	default:
		out.State = PartialFailure
	}
	return out, nil
}

// renderTarget runs one call under the per-target deadline. A panicking
// renderer fails its own target only.
func renderTarget(ctx context.Context, cfg *config, t Target, renderOne RenderFunc) (err error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &RenderError{Mount: t.Mount, Err: errors.Errorf("panic: %v", r)}
		}
	}()
	if t.Spec == nil {
		return &RenderError{Mount: t.Mount, Err: errors.New("nil chart spec")}
	}
	if rerr := renderOne(ctx, t); rerr != nil {
		return asRenderError(t.Mount, rerr)
	}
	return nil
}

func validate(targets []Target) error {
	seen := make(map[string]int, len(targets))
	for i, t := range targets {
		if t.Mount == "" {
			return errors.Wrapf(ErrEmptyMount, "target %d", i)
		}
		if j, dup := seen[t.Mount]; dup {
			return errors.Wrapf(ErrDuplicateMount, "%q at %d and %d", t.Mount, j, i)
		}
		seen[t.Mount] = i
	}
	return nil
}
