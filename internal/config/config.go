package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	instance *Config
	once     sync.Once
)

// Duration accepts "1h"/"30m" style values in the yaml file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config - can/will add more later
type Config struct {
	Training struct {
		LookbackYears    int     `yaml:"lookback_years"`
		ValidationDays   int     `yaml:"validation_days"`
		MaxWaitMinutes   float64 `yaml:"max_wait_minutes"`
		VolatilityCapStd float64 `yaml:"volatility_cap_std"`
		OutlierIQRFactor float64 `yaml:"outlier_iqr_factor"`
		OutlierFloorWait float64 `yaml:"outlier_floor_wait"`
	} `yaml:"training"`
	Prediction struct {
		HourlySteps int    `yaml:"hourly_steps"`
		DailySteps  int    `yaml:"daily_steps"`
		Channel     string `yaml:"channel"`
	} `yaml:"prediction"`
	ParkMeta struct {
		TTL           Duration `yaml:"ttl"`
		RefreshPerMin int      `yaml:"refresh_per_min"`
	} `yaml:"park_meta"`
	Model struct {
		Dir     string `yaml:"dir"`
		Version string `yaml:"version"`
	} `yaml:"model"`
}

func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		instance.applyDefaults()

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

// Default returns a config with defaults applied and no file loaded.
// Used by tests and by commands that run without a config file.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	c.Training.LookbackYears = 2
	c.Training.ValidationDays = 30
	c.Training.MaxWaitMinutes = 600
	c.Training.VolatilityCapStd = 40
	c.Training.OutlierIQRFactor = 3.0
	c.Training.OutlierFloorWait = 200
	c.Prediction.HourlySteps = 24
	c.Prediction.DailySteps = 365
	c.Prediction.Channel = "predictions"
	c.ParkMeta.TTL = Duration(time.Hour)
	c.ParkMeta.RefreshPerMin = 30
	c.Model.Dir = "models"
	c.Model.Version = "v1.1.0"
}

func (c *Config) validate() error {
	if c.Training.LookbackYears <= 0 {
		return fmt.Errorf("training.lookback_years must be positive")
	}
	if c.Training.MaxWaitMinutes <= 0 {
		return fmt.Errorf("training.max_wait_minutes must be positive")
	}
	if c.Prediction.HourlySteps <= 0 || c.Prediction.DailySteps <= 0 {
		return fmt.Errorf("prediction step counts must be positive")
	}
	return nil
}
