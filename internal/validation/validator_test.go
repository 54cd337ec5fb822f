package validation

import (
	"testing"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

func obs(id string, minute int, wait float64) models.Observation {
	base := time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)
	return models.Observation{
		ParkID:       "park-1",
		AttractionID: id,
		Timestamp:    base.Add(time.Duration(minute) * time.Minute),
		WaitMinutes:  wait,
	}
}

// series generates n samples spaced 5 minutes apart with a fixed wait.
func series(id string, n int, wait float64) []models.Observation {
	out := make([]models.Observation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, obs(id, i*5, wait))
	}
	return out
}

func TestRangeFilter(t *testing.T) {
	rows := series("a", 12, 30)
	rows = append(rows, obs("a", 500, -5), obs("a", 505, 700))

	v := New(Options{Steps: Steps{Range: true}})
	cleaned, report := v.Clean(rows)

	if len(cleaned) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(cleaned))
	}
	if report.RemovedByStep[StepRange] != 2 {
		t.Errorf("range removals = %d, want 2", report.RemovedByStep[StepRange])
	}
}

func TestOutlierFilterNeedsBothConditions(t *testing.T) {
	tests := []struct {
		name     string
		baseWait float64
		spike    float64
		dropped  bool
	}{
		// IQR is ~0 for a flat series, so any spike beats Q3+3*IQR; only
		// values above the absolute floor may be removed.
		{"spike above floor is removed", 20, 300, true},
		{"spike below floor survives", 20, 150, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := series("a", 20, tt.baseWait)
			rows = append(rows, obs("a", 200, tt.spike))

			v := New(Options{Steps: Steps{Outlier: true}})
			cleaned, report := v.Clean(rows)

			removed := report.RemovedByStep[StepOutlier]
			if tt.dropped && (removed != 1 || len(cleaned) != 20) {
				t.Errorf("expected spike removed, removed=%d rows=%d", removed, len(cleaned))
			}
			if !tt.dropped && removed != 0 {
				t.Errorf("expected spike kept, removed=%d", removed)
			}
		})
	}
}

func TestOutlierFilterSkipsSmallEntities(t *testing.T) {
	rows := series("tiny", 5, 20)
	rows = append(rows, obs("tiny", 100, 400))

	v := New(Options{Steps: Steps{Outlier: true}})
	_, report := v.Clean(rows)

	if report.RemovedByStep[StepOutlier] != 0 {
		t.Errorf("entities under 10 samples must not be outlier-filtered")
	}
}

func TestDedupeKeepsFirst(t *testing.T) {
	rows := series("a", 12, 30)
	dup := rows[3]
	dup.WaitMinutes = 99
	rows = append(rows, dup)

	v := New(Options{Steps: Steps{Dedupe: true}})
	cleaned, report := v.Clean(rows)

	if report.RemovedByStep[StepDedupe] != 1 {
		t.Fatalf("dedupe removals = %d, want 1", report.RemovedByStep[StepDedupe])
	}
	for _, r := range cleaned {
		if r.Timestamp.Equal(dup.Timestamp) && r.WaitMinutes != 30 {
			t.Errorf("duplicate kept the later value %v, want first", r.WaitMinutes)
		}
	}
}

func TestDowntimeAnomalyFilter(t *testing.T) {
	rows := series("a", 20, 40)
	// One sudden near-zero reading inside a busy stretch.
	rows[10].WaitMinutes = 2

	v := New(Options{Steps: Steps{Downtime: true}})
	cleaned, report := v.Clean(rows)

	if report.RemovedByStep[StepDowntime] != 1 {
		t.Fatalf("downtime removals = %d, want 1", report.RemovedByStep[StepDowntime])
	}
	for _, r := range cleaned {
		if r.WaitMinutes == 2 {
			t.Errorf("anomalous drop survived cleaning")
		}
	}
}

func TestAdaptiveMinSamples(t *testing.T) {
	// Short span: base threshold 10. One rich entity, one sparse entity.
	rows := series("rich", 30, 25)
	rows = append(rows, series("sparse", 4, 25)...)

	v := New(Options{Steps: Steps{MinSamples: true}})
	cleaned, report := v.Clean(rows)

	if report.EntitiesOut != 1 {
		t.Fatalf("entities out = %d, want 1", report.EntitiesOut)
	}
	for _, r := range cleaned {
		if r.AttractionID == "sparse" {
			t.Errorf("sparse entity survived min-samples filter")
		}
	}
	if report.MinSamplesThreshold < 10 {
		t.Errorf("threshold = %d, must never drop below 10", report.MinSamplesThreshold)
	}
}

func TestCleanSortsAndReports(t *testing.T) {
	rows := []models.Observation{
		obs("b", 10, 20),
		obs("a", 20, 25),
		obs("a", 0, 15),
		obs("b", 5, 10),
	}

	// MinSamples stays off: both entities are tiny and would be dropped.
	v := New(Options{Steps: Steps{Range: true, Dedupe: true}})
	cleaned, report := v.Clean(rows)

	for i := 1; i < len(cleaned); i++ {
		prev, cur := cleaned[i-1], cleaned[i]
		if prev.AttractionID > cur.AttractionID {
			t.Fatalf("rows not sorted by entity")
		}
		if prev.AttractionID == cur.AttractionID && cur.Timestamp.Before(prev.Timestamp) {
			t.Fatalf("rows not sorted by timestamp within entity")
		}
	}
	if report.BackwardJumps != 2 {
		t.Errorf("backward jumps = %d, want 2", report.BackwardJumps)
	}
	if report.RowsIn != 4 {
		t.Errorf("rows in = %d, want 4", report.RowsIn)
	}
}
