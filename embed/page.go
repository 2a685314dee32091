package embed

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spektr-org/chartspec/render"
	"github.com/spektr-org/chartspec/spec"
)

// ============================================================================
// PAGE — Vega-Embed adapter for the render sequencer
// ============================================================================
// Page.Render is the renderOne capability: it encodes the chart, optionally
// probes its remote data, and mounts it. WriteTo emits one HTML document in
// which the mounted charts are embedded one after another, in mount order,
// each with its own catch so one broken chart leaves the rest drawn.
// ============================================================================

// Renderer is the Vega rendering backend.
type Renderer string

const (
	RendererCanvas Renderer = "canvas"
	RendererSVG    Renderer = "svg"
)

// RenderOptions are handed to vegaEmbed for every chart of a page.
type RenderOptions struct {
	InteractiveControlsVisible bool     // vega-embed "actions" menu
	Renderer                   Renderer // default canvas
}

// Validate normalizes and checks the options.
func (o *RenderOptions) Validate() error {
	switch o.Renderer {
	case "":
		o.Renderer = RendererCanvas
	case RendererCanvas, RendererSVG:
	default:
		return errors.Errorf("embed: unknown renderer %q (want canvas or svg)", o.Renderer)
	}
	return nil
}

type embedOptions struct {
	Actions  bool   `json:"actions"`
	Renderer string `json:"renderer"`
}

var mountPattern = regexp.MustCompile(`^#?[A-Za-z][A-Za-z0-9_-]*$`)

type mountedChart struct {
	ID   string
	Spec []byte
}

// Page collects mounted charts for one HTML document.
type Page struct {
	opts   RenderOptions
	title  string
	prober *Prober
	logger logrus.FieldLogger

	mu     sync.Mutex
	charts []mountedChart
	ids    map[string]bool
}

// PageOption configures a Page.
type PageOption func(*Page)

// WithProber checks each chart's remote data before mounting it.
func WithProber(p *Prober) PageOption {
	return func(pg *Page) {
		pg.prober = p
	}
}

// WithLogger sets the logger mount progress goes to.
func WithLogger(l logrus.FieldLogger) PageOption {
	return func(pg *Page) {
		if l != nil {
			pg.logger = l
		}
	}
}

// WithTitle sets the document title.
func WithTitle(title string) PageOption {
	return func(pg *Page) {
		pg.title = title
	}
}

// NewPage returns an empty page.
func NewPage(opts RenderOptions, pageOpts ...PageOption) (*Page, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p := &Page{
		opts:   opts,
		title:  "Charts",
		logger: logrus.StandardLogger(),
		ids:    map[string]bool{},
	}
	for _, o := range pageOpts {
		o(p)
	}
	return p, nil
}

// Options returns the normalized render options.
func (p *Page) Options() RenderOptions { return p.opts }

// Render mounts t on the page. It satisfies render.RenderFunc.
func (p *Page) Render(ctx context.Context, t render.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !mountPattern.MatchString(t.Mount) {
		return errors.Errorf("embed: invalid mount %q", t.Mount)
	}
	if t.Spec == nil {
		return errors.New("embed: nil chart spec")
	}
	raw, err := spec.Encode(t.Spec, false)
	if err != nil {
		return errors.Wrap(err, "embed: encode spec")
	}
	if !jsoniter.Valid(raw) {
		return errors.New("embed: encoded spec is not valid JSON")
	}
	if p.prober != nil {
		if err := p.prober.Check(ctx, t.Spec); err != nil {
			return err
		}
	}

	id := strings.TrimPrefix(t.Mount, "#")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ids[id] {
		return errors.Errorf("embed: %s is already mounted", t.Mount)
	}
	p.ids[id] = true
	p.charts = append(p.charts, mountedChart{ID: id, Spec: raw})
	p.logger.WithFields(logrus.Fields{
		"mount": t.Mount,
		"bytes": len(raw),
	}).Debug("📌 embed: chart mounted")
	return nil
}

// Mounts returns the mounted targets in mount order.
func (p *Page) Mounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.charts))
	for i, c := range p.charts {
		out[i] = "#" + c.ID
	}
	return out
}

// ============================================================================
// HTML OUTPUT
// ============================================================================

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
  <script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
  <script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
</head>
<body>
{{- range .IDs}}
  <div id="{{.}}"></div>
{{- end}}
  <script type="text/javascript">
{{.Script}}
  </script>
</body>
</html>
`))

// WriteTo writes the HTML document. It implements io.WriterTo.
func (p *Page) WriteTo(w io.Writer) (int64, error) {
	p.mu.Lock()
	charts := append([]mountedChart(nil), p.charts...)
	p.mu.Unlock()

	script, err := p.script(charts)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(charts))
	for i, c := range charts {
		ids[i] = c.ID
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, struct {
		Title  string
		IDs    []string
		Script template.JS
	}{p.title, ids, template.JS(script)})
	if err != nil {
		return 0, errors.Wrap(err, "embed: execute page template")
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// script builds the sequential embed chain. Spec bytes come from the
// HTML-escaping encoder and mount ids are restricted by mountPattern.
func (p *Page) script(charts []mountedChart) (string, error) {
	opts, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(embedOptions{
		Actions:  p.opts.InteractiveControlsVisible,
		Renderer: string(p.opts.Renderer),
	})
	if err != nil {
		return "", errors.Wrap(err, "embed: encode options")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "    var opts = %s;\n", opts)
	for i, c := range charts {
		fmt.Fprintf(&b, "    var spec%d = %s;\n", i, c.Spec)
	}
	b.WriteString("    Promise.resolve()\n")
	for i, c := range charts {
		fmt.Fprintf(&b, "      .then(function () { return vegaEmbed('#%s', spec%d, opts).catch(console.error); })\n", c.ID, i)
	}
	b.WriteString("      .catch(console.error);")
	return b.String(), nil
}
