package features

import (
	"math"
	"testing"
	"time"
)

func testRows(n int) []Row {
	rows := make([]Row, n)
	base := time.Date(2025, time.July, 1, 10, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = Row{
			EntityID: "a",
			ParkID:   "park-1",
			UTC:      base.Add(time.Duration(i) * time.Hour),
			Local:    base.Add(time.Duration(i) * time.Hour),
		}
	}
	return rows
}

func constFeature(name string, v float64, deps ...string) Feature {
	return Feature{
		Name: name, Kind: Numeric, Deps: deps,
		Compute: perRow(func(_ *Context, _ int, _ Row) float64 { return v }),
	}
}

func TestResolveOrdersDependencies(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Feature{
		Name: "c", Kind: Numeric, Deps: []string{"b"},
		Compute: perRow(func(_ *Context, _ int, _ Row) float64 { return 0 }),
	})
	r.MustRegister(constFeature("a", 1))
	r.MustRegister(constFeature("b", 2, "a"))

	order, err := r.Resolve([]string{"c"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(constFeature("x", 1, "y"))
	r.MustRegister(constFeature("y", 2, "x"))

	if _, err := r.Resolve([]string{"x"}); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestResolveUnknownFeature(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve([]string{"ghost"}); err == nil {
		t.Fatalf("expected unknown-feature error")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(constFeature("dup", 1)); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := r.Register(constFeature("dup", 2)); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestComputeFillsNonFiniteWithDefault(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Feature{
		Name: "sometimes_nan", Kind: Numeric, Default: 7,
		Compute: perRow(func(_ *Context, i int, _ Row) float64 {
			if i == 1 {
				return math.NaN()
			}
			return 1
		}),
	})

	ctx := &Context{Rows: testRows(3)}
	tbl, err := r.Compute(ctx, []string{"sometimes_nan"})
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	vals, _ := tbl.Numeric("sometimes_nan")
	if vals[1] != 7 {
		t.Errorf("NaN row = %v, want default 7", vals[1])
	}
	if err := tbl.CheckFinite(); err != nil {
		t.Errorf("table not NaN-free: %v", err)
	}
}

func TestComputeEachFeatureOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.MustRegister(Feature{
		Name: "counted", Kind: Numeric,
		Compute: func(ctx *Context, _ *Table) ([]float64, error) {
			calls++
			return make([]float64, len(ctx.Rows)), nil
		},
	})
	r.MustRegister(constFeature("u1", 1, "counted"))
	r.MustRegister(constFeature("u2", 2, "counted"))

	ctx := &Context{Rows: testRows(2)}
	if _, err := r.Compute(ctx, []string{"u1", "u2", "counted"}); err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("shared dependency computed %d times, want 1", calls)
	}
}

func TestCatalogComputesWithoutReferenceData(t *testing.T) {
	// The full catalog on a bare context: every feature must fall back to
	// its documented default and the table must come out finite.
	b := NewBuilder()
	ctx := &Context{Rows: testRows(2)}

	tbl, err := b.Registry().Compute(ctx, b.Registry().Names())
	if err != nil {
		t.Fatalf("catalog compute failed: %v", err)
	}
	if got := len(tbl.Columns()); got != len(b.Registry().Names()) {
		t.Errorf("table has %d columns, want %d", got, len(b.Registry().Names()))
	}
	if occ, _ := tbl.Numeric("occupancy_pct"); occ[0] != 100 {
		t.Errorf("occupancy default = %v, want 100", occ[0])
	}
	if temp, _ := tbl.Numeric("temperature_avg"); temp[0] != 20 {
		t.Errorf("temperature default = %v, want 20", temp[0])
	}
	if sched, _ := tbl.Numeric("schedule_present"); sched[0] != 1 {
		t.Errorf("schedule_present default = %v, want 1", sched[0])
	}
}
