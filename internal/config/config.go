package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the application.
type Config struct {
	HTTPPort    int    `json:"http_port" validate:"gte=0"`
	MetricsPort int    `json:"metrics_port" validate:"gte=0"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	DBPath      string `json:"db_path" validate:"required"`

	Weather struct {
		BaseURL string   `json:"base_url" validate:"required,url"`
		APIKey  string   `json:"api_key" validate:"required"`
		Units   string   `json:"units" validate:"oneof=metric imperial standard"`
		Timeout Duration `json:"timeout" validate:"min=1s"`
	} `json:"weather"`

	Location struct {
		DefaultLatitude  float64 `json:"default_latitude" validate:"gte=-90,lte=90"`
		DefaultLongitude float64 `json:"default_longitude" validate:"gte=-180,lte=180"`
	} `json:"location"`

	Sync struct {
		Interval  Duration `json:"interval" validate:"min=15m"`
		Flex      Duration `json:"flex"`
		Freshness Duration `json:"freshness" validate:"min=1m"`
		Retention Duration `json:"retention" validate:"min=24h"`
	} `json:"sync"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads configuration from a file and overrides with environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in the settings a config file may omit.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Weather.Units == "" {
		c.Weather.Units = "metric"
	}
	if c.Weather.Timeout.Duration == 0 {
		c.Weather.Timeout = Duration{30 * time.Second}
	}
	if c.Sync.Interval.Duration == 0 {
		c.Sync.Interval = Duration{90 * time.Minute}
	}
	if c.Sync.Freshness.Duration == 0 {
		c.Sync.Freshness = Duration{6 * time.Hour}
	}
	if c.Sync.Retention.Duration == 0 {
		c.Sync.Retention = Duration{30 * 24 * time.Hour}
	}
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	// Weather overrides. The API key in particular normally arrives through
	// the environment rather than the config file.
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		c.Weather.APIKey = v
	}
	if v := os.Getenv("WEATHER_BASE_URL"); v != "" {
		c.Weather.BaseURL = v
	}
	if v := os.Getenv("WEATHER_UNITS"); v != "" {
		c.Weather.Units = v
	}

	// HTTPPort overrides
	if v := os.Getenv("HTTP_PORT"); v != "" {
		var err error
		c.HTTPPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing HTTP_PORT: %w", err)
		}
	}

	// MetricsPort overrides
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var err error
		c.MetricsPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing METRICS_PORT: %w", err)
		}
	}

	// LogLevel overrides
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// DBPath overrides
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}

	// Location overrides
	if v := os.Getenv("DEFAULT_LATITUDE"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing DEFAULT_LATITUDE: %w", err)
		}
		c.Location.DefaultLatitude = lat
	}
	if v := os.Getenv("DEFAULT_LONGITUDE"); v != "" {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing DEFAULT_LONGITUDE: %w", err)
		}
		c.Location.DefaultLongitude = lon
	}

	// Sync overrides
	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SYNC_INTERVAL: %w", err)
		}
		c.Sync.Interval = Duration{d}
	}
	if v := os.Getenv("SYNC_FRESHNESS"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SYNC_FRESHNESS: %w", err)
		}
		c.Sync.Freshness = Duration{d}
	}

	return nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if c.Sync.Flex.Duration > c.Sync.Interval.Duration {
		return fmt.Errorf("sync flex %s exceeds interval %s", c.Sync.Flex, c.Sync.Interval)
	}

	return nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
