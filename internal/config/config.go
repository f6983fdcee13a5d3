package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultPath       = "qlang.toml"
	DefaultDeviceID   = "edge-01"
	DefaultAddr       = ":9400"
	DefaultIterations = 100000
	DefaultDuration   = "1s"
	DefaultPayload    = "model_weights_v2_data_payload_test"
	DefaultOutput     = "results/benchmark_results.json"
)

type Config struct {
	Device DeviceConfig `toml:"device"`
	Bench  BenchConfig  `toml:"bench"`
}

type DeviceConfig struct {
	ID          string   `toml:"id"`
	Addr        string   `toml:"addr"`
	Context     uint8    `toml:"context"`
	Table       string   `toml:"table"`
	CorsOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
}

type BenchConfig struct {
	Iterations int    `toml:"iterations"`
	Duration   string `toml:"duration"`
	Payload    string `toml:"payload"`
	Output     string `toml:"output"`
}

func Default() Config {
	return Config{
		Device: DeviceConfig{
			ID:   DefaultDeviceID,
			Addr: DefaultAddr,
		},
		Bench: BenchConfig{
			Iterations: DefaultIterations,
			Duration:   DefaultDuration,
			Payload:    DefaultPayload,
			Output:     DefaultOutput,
		},
	}
}

// Load reads path over the defaults. A missing file at DefaultPath yields
// the defaults; a missing file anywhere else is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err = Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return Config{}, err
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Device.ID = strings.TrimSpace(c.Device.ID)
	c.Device.Addr = strings.TrimSpace(c.Device.Addr)
	c.Device.Table = strings.TrimSpace(c.Device.Table)
	c.Device.AuthToken = strings.TrimSpace(c.Device.AuthToken)
	c.Bench.Duration = strings.TrimSpace(c.Bench.Duration)
	origins := make([]string, 0, len(c.Device.CorsOrigins))
	for _, o := range c.Device.CorsOrigins {
		if v := strings.TrimSpace(o); v != "" {
			origins = append(origins, v)
		}
	}
	c.Device.CorsOrigins = origins
}

// Validate checks the values that do not depend on the resolver table. The
// device context is checked against the table once it is loaded.
func Validate(cfg Config) error {
	if cfg.Device.ID == "" {
		return fmt.Errorf("device config missing id")
	}
	if cfg.Device.Addr == "" {
		return fmt.Errorf("device config missing addr")
	}
	if cfg.Bench.Iterations <= 0 {
		return fmt.Errorf("bench iterations must be positive, got %d", cfg.Bench.Iterations)
	}
	d, err := time.ParseDuration(cfg.Bench.Duration)
	if err != nil {
		return fmt.Errorf("parse bench duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("bench duration must be positive, got %s", d)
	}
	if strings.TrimSpace(cfg.Bench.Output) == "" {
		return fmt.Errorf("bench config missing output")
	}
	return nil
}

// BenchDuration returns the parsed throughput window.
func (c Config) BenchDuration() time.Duration {
	d, err := time.ParseDuration(c.Bench.Duration)
	if err != nil {
		return time.Second
	}
	return d
}
