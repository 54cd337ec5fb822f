package config

import (
	"os"
	"sync"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempConfig := `training:
  lookback_years: 1
  validation_days: 14
  max_wait_minutes: 500
  volatility_cap_std: 35
prediction:
  hourly_steps: 12
  daily_steps: 90
  channel: "forecasts"
park_meta:
  ttl: 30m
  refresh_per_min: 10
model:
  dir: "/tmp/models"
  version: "v2.0.0"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(tempConfig)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()

	instance = nil
	once = *new(sync.Once)

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Training.LookbackYears != 1 {
		t.Errorf("Expected lookback_years 1, got %d", cfg.Training.LookbackYears)
	}

	if cfg.Prediction.HourlySteps != 12 {
		t.Errorf("Expected hourly_steps 12, got %d", cfg.Prediction.HourlySteps)
	}

	if time.Duration(cfg.ParkMeta.TTL) != 30*time.Minute {
		t.Errorf("Expected park_meta ttl 30m, got %v", cfg.ParkMeta.TTL)
	}

	if cfg.Model.Version != "v2.0.0" {
		t.Errorf("Expected model version 'v2.0.0', got '%s'", cfg.Model.Version)
	}

	// Fields absent from the file keep their defaults.
	if cfg.Training.OutlierIQRFactor != 3.0 {
		t.Errorf("Expected default outlier_iqr_factor 3.0, got %v", cfg.Training.OutlierIQRFactor)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	tmpFile.Write([]byte("invalid: [yaml: content"))
	tmpFile.Close()

	instance = nil
	once = *new(sync.Once)

	_, err = Load(tmpFile.Name())
	if err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	instance = nil
	once = *new(sync.Once)

	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tempConfig := `training:
  lookback_years: 0
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	tmpFile.Write([]byte(tempConfig))
	tmpFile.Close()

	instance = nil
	once = *new(sync.Once)

	_, err = Load(tmpFile.Name())
	if err == nil {
		t.Error("Expected validation error for zero lookback_years, got nil")
	}
}

func TestGet_Panic(t *testing.T) {
	instance = nil
	once = *new(sync.Once)

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected Get() to panic when config not loaded")
		}
	}()

	Get()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Training.MaxWaitMinutes != 600 {
		t.Errorf("Expected default max wait 600, got %v", cfg.Training.MaxWaitMinutes)
	}
	if cfg.Training.VolatilityCapStd != 40 {
		t.Errorf("Expected default volatility cap 40, got %v", cfg.Training.VolatilityCapStd)
	}
	if cfg.Prediction.DailySteps != 365 {
		t.Errorf("Expected default daily steps 365, got %d", cfg.Prediction.DailySteps)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("Default config must validate, got %v", err)
	}
}
