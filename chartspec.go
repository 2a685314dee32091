// Package chartspec builds validated Vega-Lite chart specifications and renders
// ordered batches of them with per-chart failure isolation.
//
// Usage:
//
//	import (
//	    "github.com/spektr-org/chartspec/embed"
//	    "github.com/spektr-org/chartspec/render"
//	    "github.com/spektr-org/chartspec/spec"
//	)
//
//	bar, err := spec.Build(spec.Config{...})
//	page, _ := embed.NewPage(embed.RenderOptions{Renderer: embed.RendererSVG})
//	outcome, err := render.RenderAll(ctx, []render.Target{{Mount: "#barchart", Spec: bar}}, page.Render)
//	page.WriteTo(os.Stdout)
//
// The spec package only describes transforms (filter, aggregate, window, fold,
// calculate, lookup); evaluating them is left to the Vega runtime in the browser.
package chartspec
