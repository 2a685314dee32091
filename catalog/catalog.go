// Package catalog holds the Malaysian household income and salary charts:
// a state choropleth, income vs expenditure bars, a ranking slope chart, a
// salary boxplot and a salary scatter plot, in page order.
package catalog

import (
	"github.com/pkg/errors"

	"github.com/spektr-org/chartspec/render"
	"github.com/spektr-org/chartspec/spec"
)

// Data sources.
const (
	MapURL    = "https://raw.githubusercontent.com/ylee0132/FIT3179/refs/heads/main/W9_hw/malaysia_map.json"
	HIESURL   = "https://raw.githubusercontent.com/ylee0132/FIT3179/refs/heads/main/W9_hw/hies_district.csv"
	SalaryURL = "https://raw.githubusercontent.com/ylee0132/FIT3179/refs/heads/main/A2/Malaysia_Salary_Data_cleaned.csv"
)

// TopoJSON objects inside MapURL.
const (
	FeatureOcean      = "ne_10m_ocean"
	FeatureGraticules = "ne_10m_graticules_30"
	FeatureStates     = "ne_10m_admin_1_states_provinces"
)

// Source columns.
var (
	HIESFields   = []string{"state", "income_mean", "income_median", "expenditure_mean", "gini", "poverty"}
	SalaryFields = []string{"Age", "Gender", "Education Level", "Job Title", "Years of Experience", "Salary"}
)

// Mount ids, in page order.
const (
	MountMap     = "#map"
	MountBar     = "#barchart"
	MountSlope   = "#slopechart"
	MountBoxplot = "#boxplot"
	MountScatter = "#scatterplot"
)

// StateCount is the number of states and federal territories ranked by the
// slope chart.
const StateCount = 16

func hiesData() *spec.DataRef {
	return &spec.DataRef{URL: HIESURL, Format: spec.Format{Type: spec.FormatCSV}, Fields: HIESFields}
}

func salaryData() *spec.DataRef {
	return &spec.DataRef{URL: SalaryURL, Format: spec.Format{Type: spec.FormatCSV}, Fields: SalaryFields}
}

func mapData(feature string) *spec.DataRef {
	return &spec.DataRef{URL: MapURL, Format: spec.Format{Type: spec.FormatTopoJSON, Feature: feature}}
}

// ============================================================================
// PARAMETERS
// ============================================================================

// PovSlider caps the poverty rate of the states the bar chart shows.
func PovSlider() *spec.Param {
	return spec.NewParam("pov_slider", 15, &spec.Bind{
		Input: spec.InputRange,
		Min:   spec.Float(0),
		Max:   spec.Float(15),
		Step:  spec.Float(0.5),
		Name:  "Max Poverty Rate (%): ",
	})
}

// TopN picks how many top and bottom ranked states the slope chart keeps.
func TopN() *spec.Param {
	return spec.NewParam("top_n", 10, &spec.Bind{
		Input:   spec.InputSelect,
		Options: []interface{}{5, 10, 16},
		Labels:  []string{"Top/Bottom 5", "Top/Bottom 10", "All States"},
		Name:    "Show States: ",
	})
}

// ExpRange caps years of experience in the boxplot.
func ExpRange() *spec.Param {
	return spec.NewParam("exp_range", []interface{}{0, 30}, &spec.Bind{
		Input: spec.InputRange,
		Min:   spec.Float(0),
		Max:   spec.Float(30),
		Step:  spec.Float(1),
		Name:  "Max Years of Experience: ",
	})
}

// GenderSelect filters the scatter plot by gender.
func GenderSelect() *spec.Param {
	return spec.NewParam("gender_select", "All", &spec.Bind{
		Input:   spec.InputSelect,
		Options: []interface{}{"All", "Male", "Female"},
		Name:    "Filter by Gender: ",
	})
}

// ============================================================================
// PAGE
// ============================================================================

// Targets returns the five charts in page order.
func Targets(opts ...spec.Option) ([]render.Target, error) {
	builders := []struct {
		mount string
		build func(...spec.Option) (*spec.ChartSpec, error)
	}{
		{MountMap, Map},
		{MountBar, Bar},
		{MountSlope, Slope},
		{MountBoxplot, Boxplot},
		{MountScatter, Scatter},
	}
	targets := make([]render.Target, 0, len(builders))
	for _, b := range builders {
		s, err := b.build(opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog %s", b.mount)
		}
		targets = append(targets, render.Target{Mount: b.mount, Spec: s})
	}
	return targets, nil
}
