package schema

import (
	"path/filepath"
	"testing"

	"github.com/PArns/v4.ml.park.fan/internal/features"
)

func buildTable(t *testing.T, numeric map[string][]float64, categorical map[string][]string, n int) *features.Table {
	t.Helper()
	tbl := features.NewTable(n)
	if err := tbl.SetCategorical("park_id", fill(n, "park-1")); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetCategorical("attraction_id", fill(n, "a1")); err != nil {
		t.Fatal(err)
	}
	for name, vals := range numeric {
		if err := tbl.SetNumeric(name, vals); err != nil {
			t.Fatal(err)
		}
	}
	for name, vals := range categorical {
		if err := tbl.SetCategorical(name, vals); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func fill(n int, v string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func testSchema() *ModelFeatureSchema {
	return &ModelFeatureSchema{
		Version: "v-test",
		Columns: []Column{
			{Name: "park_id", Categorical: true, DefaultCategory: "UNKNOWN"},
			{Name: "attraction_id", Categorical: true, DefaultCategory: "UNKNOWN"},
			{Name: "hour"},
			{Name: "temperature_avg", Default: 20},
			{Name: "attraction_type", Categorical: true, DefaultCategory: "UNKNOWN"},
		},
	}
}

func TestReconcileInsertsDefaultsForMissingColumns(t *testing.T) {
	// The current computation no longer produces temperature_avg or
	// attraction_type; both must come back as documented defaults.
	tbl := buildTable(t, map[string][]float64{"hour": {9, 10}}, nil, 2)

	s := testSchema()
	if err := s.Reconcile(tbl); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	temps, ok := tbl.Numeric("temperature_avg")
	if !ok || temps[0] != 20 || temps[1] != 20 {
		t.Errorf("temperature_avg = %v, want defaults of 20", temps)
	}
	types, ok := tbl.Categorical("attraction_type")
	if !ok || types[0] != "UNKNOWN" {
		t.Errorf("attraction_type = %v, want UNKNOWN sentinel", types)
	}
}

func TestReconcileDropsUnknownColumns(t *testing.T) {
	tbl := buildTable(t, map[string][]float64{
		"hour":            {9},
		"temperature_avg": {18},
		"brand_new_thing": {1},
	}, map[string][]string{"attraction_type": {"COASTER"}}, 1)

	s := testSchema()
	if err := s.Reconcile(tbl); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if tbl.Has("brand_new_thing") {
		t.Errorf("column absent from persisted schema must be dropped")
	}
}

func TestReconcileRestoresColumnOrder(t *testing.T) {
	tbl := buildTable(t, map[string][]float64{
		"temperature_avg": {18},
		"hour":            {9},
	}, map[string][]string{"attraction_type": {"COASTER"}}, 1)

	s := testSchema()
	if err := s.Reconcile(tbl); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	got := tbl.Columns()
	want := s.ColumnNames()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column order = %v, want %v", got, want)
		}
	}
}

func TestReconcileFailsOnMissingIdentifiers(t *testing.T) {
	tbl := features.NewTable(1)
	if err := tbl.SetNumeric("hour", []float64{9}); err != nil {
		t.Fatal(err)
	}

	if err := testSchema().Reconcile(tbl); err == nil {
		t.Fatalf("missing identifier columns must fail loudly")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	s := testSchema()
	if err := s.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Version != s.Version || len(loaded.Columns) != len(s.Columns) {
		t.Errorf("loaded schema differs: %+v", loaded)
	}
	cats := loaded.CategoricalNames()
	if len(cats) != 3 {
		t.Errorf("categorical subset = %v, want 3 entries", cats)
	}
}
