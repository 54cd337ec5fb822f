package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/model"
	"github.com/PArns/v4.ml.park.fan/internal/schema"
	"github.com/PArns/v4.ml.park.fan/internal/validation"
)

func TestNewServer(t *testing.T) {
	s := NewServer(model.NewManager())

	if s.mux == nil {
		t.Error("NewServer() mux should not be nil")
	}
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(model.NewManager())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("handleHealth() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("handleHealth() content-type = %v, want application/json", contentType)
	}

	var response map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "healthy" {
		t.Errorf("handleHealth() status in body = %v, want healthy", response["status"])
	}

	if response["time"] == "" {
		t.Error("handleHealth() time should not be empty")
	}
}

func TestHandleModel_NoModelLoaded(t *testing.T) {
	s := NewServer(model.NewManager())

	req := httptest.NewRequest(http.MethodGet, "/model", nil)
	w := httptest.NewRecorder()

	s.handleModel(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("handleModel() status = %v, want %v", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestHandleModel_AfterSwap(t *testing.T) {
	manager := model.NewManager()
	manager.Swap(&model.Artifact{
		Regressor: &model.Baseline{GlobalMean: 12},
		Schema: &schema.ModelFeatureSchema{
			Version: "v1.1.0",
			Columns: []schema.Column{
				{Name: "park_id", Categorical: true},
				{Name: "attraction_id", Categorical: true},
				{Name: "hour"},
			},
		},
		Version:   "v1.1.0",
		TrainedAt: time.Date(2025, time.July, 1, 3, 0, 0, 0, time.UTC),
	})
	s := NewServer(manager)

	req := httptest.NewRequest(http.MethodGet, "/model", nil)
	w := httptest.NewRecorder()

	s.handleModel(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleModel() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["version"] != "v1.1.0" {
		t.Errorf("handleModel() version = %v, want v1.1.0", response["version"])
	}
	if response["features"] != float64(3) {
		t.Errorf("handleModel() features = %v, want 3", response["features"])
	}
}

func TestHandleValidationReport_NoRun(t *testing.T) {
	s := NewServer(model.NewManager())

	req := httptest.NewRequest(http.MethodGet, "/validation-report", nil)
	w := httptest.NewRecorder()

	s.handleValidationReport(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("handleValidationReport() status = %v, want %v", resp.StatusCode, http.StatusNotFound)
	}
}

func TestHandleValidationReport_AfterRun(t *testing.T) {
	s := NewServer(model.NewManager())
	s.RecordRun(validation.Report{RowsIn: 1000, RowsOut: 950})

	req := httptest.NewRequest(http.MethodGet, "/validation-report", nil)
	w := httptest.NewRecorder()

	s.handleValidationReport(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handleValidationReport() status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	var response struct {
		RunAt  time.Time         `json:"run_at"`
		Report validation.Report `json:"report"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Report.RowsIn != 1000 || response.Report.RowsOut != 950 {
		t.Errorf("handleValidationReport() report = %+v, want RowsIn 1000, RowsOut 950", response.Report)
	}
	if response.RunAt.IsZero() {
		t.Error("handleValidationReport() run_at should not be zero")
	}
}
