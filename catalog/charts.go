package catalog

import (
	"fmt"

	"github.com/spektr-org/chartspec/spec"
)

// ============================================================================
// CHARTS
// ============================================================================

// Shared color scale for the three education levels.
var educationScale = map[string]interface{}{
	"domain": []interface{}{"Bachelor's", "Master's", "PhD"},
	"range":  []interface{}{"#1f77b4", "#ff7f0e", "#2ca02c"},
}

var topRightLegend = map[string]interface{}{
	"orient":        "top-right",
	"titleFontSize": 12,
	"labelFontSize": 11,
}

func tip(field, typ, title string) spec.FieldDef {
	return spec.FieldDef{Field: field, Type: typ, Props: map[string]interface{}{"title": title}}
}

func tipf(field, title, format string) spec.FieldDef {
	return spec.FieldDef{Field: field, Type: "quantitative", Props: map[string]interface{}{"title": title, "format": format}}
}

// Map is the mean household income choropleth: ocean, graticules, then
// states joined to the income survey by name.
func Map(opts ...spec.Option) (*spec.ChartSpec, error) {
	return spec.Build(spec.Config{
		Title:  spec.Title{Text: "Mean Household Income by State in Malaysia (2022)"},
		Width:  850,
		Height: 400,
		Projection: &spec.Projection{
			Type:   "mercator",
			Center: []float64{109.5, 3},
			Scale:  2500,
		},
		Layers: []spec.Layer{
			{
				Data: mapData(FeatureOcean),
				Mark: spec.Mark{Type: "geoshape", Style: map[string]interface{}{"fill": "lightblue"}},
			},
			{
				Data: mapData(FeatureGraticules),
				Mark: spec.Mark{Type: "geoshape", Style: map[string]interface{}{
					"fill":        nil,
					"stroke":      "lightgray",
					"strokeWidth": 0.5,
				}},
			},
			{
				Data: mapData(FeatureStates),
				Transforms: []spec.TransformStep{
					spec.Lookup{
						Key:     "properties.name",
						From:    spec.DataRef{URL: HIESURL, Fields: HIESFields},
						FromKey: "state",
						Fields:  []string{"income_mean", "income_median", "expenditure_mean", "gini", "poverty"},
					},
				},
				Mark: spec.Mark{Type: "geoshape", Style: map[string]interface{}{"stroke": "white", "strokeWidth": 1}},
				Encoding: spec.Encoding{
					Channels: map[string]spec.FieldDef{
						"color": {Field: "income_mean", Type: "quantitative", Props: map[string]interface{}{
							"scale":  map[string]interface{}{"scheme": "oranges"},
							"legend": map[string]interface{}{"title": "Mean Income (RM)"},
						}},
					},
					Tooltip: []spec.FieldDef{
						tip("properties.name", "nominal", "State"),
						tipf("income_mean", "Mean Income (RM)", ",.0f"),
						tipf("income_median", "Median Income (RM)", ",.0f"),
						tipf("gini", "Gini Coefficient", ".4f"),
						tipf("poverty", "Poverty Rate (%)", ".1f"),
					},
				},
			},
		},
	}, opts...)
}

func barBase(pov *spec.Param) spec.Config {
	return spec.Config{
		Title:  spec.Title{Text: "Mean Income vs Mean Expenditure by State (2022)", FontSize: 16, Anchor: "middle"},
		Width:  850,
		Height: 450,
		Params: []*spec.Param{pov},
		Source: hiesData(),
		Transforms: []spec.TransformStep{
			spec.Filter{Expr: "datum.poverty <= pov_slider"},
			spec.Aggregate{
				Ops: []spec.AggregateOp{
					{Op: "mean", Field: "income_mean", As: "income"},
					{Op: "mean", Field: "expenditure_mean", As: "expenditure"},
					{Op: "mean", Field: "poverty", As: "poverty_avg"},
					{Op: "mean", Field: "gini", As: "gini_avg"},
				},
				GroupBy: []string{"state"},
			},
			spec.Fold{Fields: []string{"income", "expenditure"}, As: [2]string{"category", "amount"}},
			spec.Calculate{Expr: "datum.category == 'income' ? 'Mean Income' : 'Mean Expenditure'", As: "category_name"},
			spec.Calculate{Expr: "(datum.income - datum.expenditure) / datum.income * 100", As: "savings_rate"},
		},
		Layers: []spec.Layer{{
			Mark: spec.Mark{Type: "bar"},
			Encoding: spec.Encoding{
				Channels: map[string]spec.FieldDef{
					"x": {
						Field: "state", Type: "nominal",
						Sort: &spec.SortDef{Field: "amount", Op: "mean", Order: "descending"},
						Props: map[string]interface{}{
							"title": "State",
							"axis":  map[string]interface{}{"labelAngle": -45, "labelFontSize": 11},
						},
					},
					"y": {Field: "amount", Type: "quantitative", Props: map[string]interface{}{
						"title": "Amount (RM)",
						"axis":  map[string]interface{}{"format": ",.0f", "grid": true},
					}},
					"xOffset": {Field: "category_name"},
					"color": {Field: "category_name", Type: "nominal", Props: map[string]interface{}{
						"title": "Category",
						"scale": map[string]interface{}{
							"domain": []interface{}{"Mean Income", "Mean Expenditure"},
							"range":  []interface{}{"#ff7f0e", "#1f77b4"},
						},
						"legend": topRightLegend,
					}},
				},
				Tooltip: []spec.FieldDef{
					tip("state", "nominal", "State"),
					tip("category_name", "nominal", "Category"),
					tipf("amount", "Amount (RM)", ",.2f"),
					tipf("poverty_avg", "Poverty Rate (%)", ".2f"),
					tipf("gini_avg", "Gini Coefficient", ".4f"),
					tipf("savings_rate", "Savings Rate (%)", ".2f"),
				},
			},
		}},
	}
}

// Bar compares mean income and expenditure per state, limited to states
// under the pov_slider poverty rate.
func Bar(opts ...spec.Option) (*spec.ChartSpec, error) {
	return spec.Build(barBase(PovSlider()), opts...)
}

// BarAverage is Bar with a national mean income rule drawn over it. The rule
// is filtered by the same pov_slider instance as the bars.
func BarAverage(bar *spec.ChartSpec, opts ...spec.Option) (*spec.ChartSpec, error) {
	avg, err := spec.DeriveAggregateOverlay(bar, spec.AggregateOverlay{
		Op:    "mean",
		Field: "income_mean",
		As:    "national_income",
		Mark:  &spec.Mark{Type: "rule", Style: map[string]interface{}{"color": "#d62728", "strokeDash": []interface{}{6, 4}}},
		Tooltip: []spec.FieldDef{
			tipf("national_income", "National Mean Income (RM)", ",.2f"),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}
	return spec.LayerOverlays(bar, avg)
}

func rankAxis(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{"scale": map[string]interface{}{"reverse": true}}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func rankLabels(align string, dx int, measure string) spec.Layer {
	return spec.Layer{
		Mark: spec.Mark{Type: "text", Style: map[string]interface{}{"align": align, "dx": dx, "fontSize": 11}},
		Encoding: spec.Encoding{Channels: map[string]spec.FieldDef{
			"x":    {Field: "measure_label", Type: "nominal"},
			"y":    {Field: "rank", Type: "quantitative", Props: rankAxis(nil)},
			"text": {Field: "state", Type: "nominal"},
			"opacity": {
				Condition: &spec.Condition{Test: "datum.measure == '" + measure + "'", Value: 1},
				Value:     0,
			},
		}},
	}
}

// Slope ranks states by mean income and mean expenditure and joins each
// state's two ranks with a line. top_n keeps the top and bottom states.
func Slope(opts ...spec.Option) (*spec.ChartSpec, error) {
	noLegend := map[string]interface{}{"legend": nil}
	return spec.Build(spec.Config{
		Title:  spec.Title{Text: "State Rankings: Mean Income vs Mean Expenditure (2022)", FontSize: 16, Anchor: "middle"},
		Width:  850,
		Height: 600,
		View:   map[string]interface{}{"stroke": nil},
		Params: []*spec.Param{TopN()},
		Source: hiesData(),
		Transforms: []spec.TransformStep{
			spec.Aggregate{
				Ops: []spec.AggregateOp{
					{Op: "mean", Field: "income_mean", As: "avg_income"},
					{Op: "mean", Field: "expenditure_mean", As: "avg_expenditure"},
				},
				GroupBy: []string{"state"},
			},
			spec.Calculate{Expr: "(datum.avg_income - datum.avg_expenditure) / datum.avg_income * 100", As: "savings_rate"},
			spec.Window{
				Ops:  []spec.WindowOp{{Op: "rank", As: "income_rank"}},
				Sort: []spec.SortField{{Field: "avg_income", Order: "descending"}},
			},
			spec.Window{
				Ops:  []spec.WindowOp{{Op: "rank", As: "expenditure_rank"}},
				Sort: []spec.SortField{{Field: "avg_expenditure", Order: "descending"}},
			},
			spec.Filter{Expr: fmt.Sprintf("datum.income_rank <= top_n || datum.income_rank > (%d - top_n)", StateCount)},
			spec.Fold{Fields: []string{"income_rank", "expenditure_rank"}, As: [2]string{"measure", "rank"}},
			spec.Calculate{Expr: "datum.measure == 'income_rank' ? 'Income' : 'Expenditure'", As: "measure_label"},
			spec.Calculate{Expr: "datum.measure == 'income_rank' ? datum.avg_income : datum.avg_expenditure", As: "value"},
		},
		Layers: []spec.Layer{
			{
				Mark: spec.Mark{Type: "line", Style: map[string]interface{}{"strokeWidth": 2, "opacity": 0.7}},
				Encoding: spec.Encoding{
					Channels: map[string]spec.FieldDef{
						"x": {Field: "measure_label", Type: "nominal", Props: map[string]interface{}{
							"title": nil,
							"axis":  map[string]interface{}{"labelFontSize": 14, "labelAngle": 0},
						}},
						"y": {Field: "rank", Type: "quantitative", Props: rankAxis(map[string]interface{}{
							"title": "Rank",
							"axis":  map[string]interface{}{"grid": true},
						})},
						"color":  {Field: "state", Type: "nominal", Props: noLegend},
						"detail": {Field: "state"},
					},
					Tooltip: []spec.FieldDef{
						tip("state", "nominal", "State"),
						tipf("avg_income", "Mean Income (RM)", ",.2f"),
						tipf("avg_expenditure", "Mean Expenditure (RM)", ",.2f"),
						tipf("savings_rate", "Savings Rate (%)", ".2f"),
					},
				},
			},
			{
				Mark: spec.Mark{Type: "circle", Style: map[string]interface{}{"size": 150}},
				Encoding: spec.Encoding{
					Channels: map[string]spec.FieldDef{
						"x":     {Field: "measure_label", Type: "nominal"},
						"y":     {Field: "rank", Type: "quantitative", Props: rankAxis(nil)},
						"color": {Field: "state", Type: "nominal", Props: noLegend},
					},
					Tooltip: []spec.FieldDef{
						tip("state", "nominal", "State"),
						tipf("value", "Amount (RM)", ",.2f"),
						tipf("savings_rate", "Savings Rate (%)", ".2f"),
					},
				},
			},
			rankLabels("right", -10, "income_rank"),
			rankLabels("left", 10, "expenditure_rank"),
		},
	}, opts...)
}

// Boxplot shows the salary spread per education level for people with at
// most exp_range years of experience.
func Boxplot(opts ...spec.Option) (*spec.ChartSpec, error) {
	return spec.Build(spec.Config{
		Title:    spec.Title{Text: "Salary Distribution by Education Level", FontSize: 16, Anchor: "middle"},
		Width:    850,
		Height:   450,
		Autosize: map[string]interface{}{"type": "fit", "contains": "padding"},
		Params:   []*spec.Param{ExpRange()},
		Source:   salaryData(),
		Transforms: []spec.TransformStep{
			spec.Filter{Expr: "datum['Years of Experience'] <= exp_range"},
		},
		Layers: []spec.Layer{{
			Mark: spec.Mark{Type: "boxplot", Style: map[string]interface{}{"extent": 1.5}},
			Encoding: spec.Encoding{
				Channels: map[string]spec.FieldDef{
					"x": {Field: "Education Level", Type: "nominal", Props: map[string]interface{}{
						"title": "Education Level",
						"axis":  map[string]interface{}{"labelAngle": 0, "labelFontSize": 12},
					}},
					"y": {Field: "Salary", Type: "quantitative", Props: map[string]interface{}{
						"title": "Salary (RM)",
						"scale": map[string]interface{}{"zero": false},
						"axis":  map[string]interface{}{"format": ",.0f", "grid": true},
					}},
					"color": {Field: "Education Level", Type: "nominal", Props: map[string]interface{}{
						"legend": nil,
						"scale":  educationScale,
					}},
				},
				Tooltip: []spec.FieldDef{tip("Education Level", "nominal", "Education Level")},
			},
		}},
	}, opts...)
}

// Scatter plots salary against experience, sized by age, optionally
// filtered to one gender.
func Scatter(opts ...spec.Option) (*spec.ChartSpec, error) {
	return spec.Build(spec.Config{
		Title:  spec.Title{Text: "Salary vs Years of Experience by Education Level", FontSize: 16, Anchor: "middle"},
		Width:  850,
		Height: 450,
		Params: []*spec.Param{GenderSelect()},
		Source: salaryData(),
		Transforms: []spec.TransformStep{
			spec.Filter{Expr: "gender_select == 'All' || datum.Gender == gender_select"},
		},
		Mark: &spec.Mark{Type: "circle", Style: map[string]interface{}{"opacity": 0.6}},
		Encoding: spec.Encoding{
			Channels: map[string]spec.FieldDef{
				"x": {Field: "Years of Experience", Type: "quantitative", Props: map[string]interface{}{
					"title": "Years of Experience",
					"scale": map[string]interface{}{"zero": false},
					"axis":  map[string]interface{}{"grid": true},
				}},
				"y": {Field: "Salary", Type: "quantitative", Props: map[string]interface{}{
					"title": "Salary (RM)",
					"scale": map[string]interface{}{"zero": false},
					"axis":  map[string]interface{}{"format": ",.0f", "grid": true},
				}},
				"color": {Field: "Education Level", Type: "nominal", Props: map[string]interface{}{
					"title":  "Education Level",
					"scale":  educationScale,
					"legend": topRightLegend,
				}},
				"size": {Field: "Age", Type: "quantitative", Props: map[string]interface{}{
					"title":  "Age",
					"scale":  map[string]interface{}{"range": []interface{}{30, 400}},
					"legend": topRightLegend,
				}},
			},
			Tooltip: []spec.FieldDef{
				tip("Age", "quantitative", "Age"),
				tip("Gender", "nominal", "Gender"),
				tip("Education Level", "nominal", "Education Level"),
				tip("Job Title", "nominal", "Job Title"),
				tip("Years of Experience", "quantitative", "Years of Experience"),
				tipf("Salary", "Salary (RM)", ",.2f"),
			},
		},
	}, opts...)
}
