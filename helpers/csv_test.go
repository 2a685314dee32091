package helpers

import (
	"testing"

	"github.com/spektr-org/chartspec/schema"
)

var stateCSV = []byte(`state,income_mean,poverty
Johor,8517.5,3.9
Kedah,5550.4,
Kelantan,4874.1,13.2
`)

func TestParseCSVValues(t *testing.T) {
	sch := schema.Config{Fields: []schema.FieldMeta{
		{Key: "state", Type: schema.TypeNominal},
		{Key: "income_mean", Type: schema.TypeQuantitative},
		{Key: "poverty", Type: schema.TypeQuantitative},
	}}
	rows, err := ParseCSVValues(stateCSV, sch)
	if err != nil {
		t.Fatalf("ParseCSVValues failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0]["state"] != "Johor" {
		t.Errorf("state = %v, want Johor", rows[0]["state"])
	}
	if rows[0]["income_mean"] != 8517.5 {
		t.Errorf("income_mean = %v (%T), want 8517.5", rows[0]["income_mean"], rows[0]["income_mean"])
	}
	if v, ok := rows[1]["poverty"]; !ok || v != nil {
		t.Errorf("empty poverty cell = %v, %v; want nil, true", v, ok)
	}
}

func TestParseCSVValuesUnknownColumnsStayStrings(t *testing.T) {
	rows, err := ParseCSVValues(stateCSV, schema.Config{})
	if err != nil {
		t.Fatalf("ParseCSVValues failed: %v", err)
	}
	if rows[2]["poverty"] != "13.2" {
		t.Errorf("poverty = %v (%T), want string 13.2", rows[2]["poverty"], rows[2]["poverty"])
	}
}

func TestParseCSVValuesAuto(t *testing.T) {
	rows, sch, err := ParseCSVValuesAuto([]byte("Job Title,Salary\nEngineer,90000\nAnalyst,65000\nDirector,200000\n"))
	if err != nil {
		t.Fatalf("ParseCSVValuesAuto failed: %v", err)
	}
	if !sch.Has("Job Title") {
		t.Errorf("schema keys = %v, want raw header", sch.FieldKeys())
	}
	if rows[1]["Salary"] != 65000.0 {
		t.Errorf("Salary = %v (%T), want 65000", rows[1]["Salary"], rows[1]["Salary"])
	}
}

func TestParseCSVValuesNonFiniteBecomesNil(t *testing.T) {
	sch := schema.Config{Fields: []schema.FieldMeta{{Key: "gini", Type: schema.TypeQuantitative}}}
	rows, err := ParseCSVValues([]byte("gini\n0.39\ninf\nNaN\n"), sch)
	if err != nil {
		t.Fatalf("ParseCSVValues failed: %v", err)
	}
	if rows[0]["gini"] != 0.39 {
		t.Errorf("gini = %v, want 0.39", rows[0]["gini"])
	}
	for _, i := range []int{1, 2} {
		if rows[i]["gini"] != nil {
			t.Errorf("row %d gini = %v, want nil", i, rows[i]["gini"])
		}
	}
}
