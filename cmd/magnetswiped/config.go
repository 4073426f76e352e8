package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"magnetswipe"
)

// Config is the top-level YAML configuration for the magnetswipe daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	// Magnetometers offered to the detector; the first one is used.
	Sensors []SensorConfig `yaml:"sensors"`

	Detector DetectorConfig `yaml:"detector"`

	IPC IPCConfig `yaml:"ipc"`

	HTTP HTTPConfig `yaml:"http"`

	Journal JournalConfig `yaml:"journal"`

	Logging LoggingConfig `yaml:"logging"`
}

// Sensor backend kinds.
const (
	SensorKindEvdev  = "evdev"
	SensorKindSerial = "serial"
	SensorKindSim    = "sim"
)

type SensorConfig struct {
	Name  string  `yaml:"name"`
	Kind  string  `yaml:"kind"`
	Path  string  `yaml:"path,omitempty"`
	Scale float32 `yaml:"scale,omitempty"` // raw unit multiplier; 0 means 1

	Serial PortOptions `yaml:"serial,omitempty"`
	Sim    SimConfig   `yaml:"sim,omitempty"`
}

type SimConfig struct {
	Baseline       [3]float32 `yaml:"baseline"`
	Noise          float32    `yaml:"noise"`
	SwipeEveryMS   int        `yaml:"swipe_every_ms"`
	SwipeMagnitude float32    `yaml:"swipe_magnitude"`
	Seed           int64      `yaml:"seed,omitempty"`
}

type DetectorConfig struct {
	Autostart         bool    `yaml:"autostart"`
	StartTimeoutMS    int     `yaml:"start_timeout_ms"`
	BaselineThreshold float32 `yaml:"baseline_threshold"`
	SwipeThreshold    float32 `yaml:"swipe_threshold"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	// ListenAddr is the HTTP listen address; empty disables the HTTP surface.
	ListenAddr string `yaml:"listen_addr"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultSimSensor is the sensor used when no config file is given.
func DefaultSimSensor() SensorConfig {
	return SensorConfig{
		Name: "simulated magnetometer",
		Kind: SensorKindSim,
		Sim: SimConfig{
			Baseline:       [3]float32{20, -5, -42},
			Noise:          0.5,
			SwipeEveryMS:   8000,
			SwipeMagnitude: 200,
		},
	}
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Sensors: []SensorConfig{DefaultSimSensor()},
		Detector: DetectorConfig{
			Autostart:         true,
			StartTimeoutMS:    int(magnetswipe.DefaultStartTimeout / time.Millisecond),
			BaselineThreshold: magnetswipe.DefaultBaselineThreshold,
			SwipeThreshold:    magnetswipe.DefaultSwipeThreshold,
		},
		IPC: IPCConfig{
			SocketPath: magnetswipe.DefaultIPCSocket,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":3002",
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "~/.local/state/magnetswipe/journal.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true). A
// sensors list in the file replaces the default list entirely.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Sensors = nil

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only one document is allowed.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies command-line overrides on top of a loaded config.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	Autostart      *bool
	StartTimeoutMS *int
	IPCSocketPath  *string
	HTTPListenAddr *string
	JournalPath    *string
	LogLevel       *string

	// SimOnly replaces the configured sensors with the default simulator.
	SimOnly *bool
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a "zero value").
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Autostart != nil {
		cfg.Detector.Autostart = *o.Autostart
	}
	if o.StartTimeoutMS != nil {
		cfg.Detector.StartTimeoutMS = *o.StartTimeoutMS
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListenAddr != nil {
		cfg.HTTP.ListenAddr = *o.HTTPListenAddr
	}
	if o.JournalPath != nil {
		cfg.Journal.Enabled = *o.JournalPath != ""
		cfg.Journal.Path = *o.JournalPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.SimOnly != nil && *o.SimOnly {
		cfg.Sensors = []SensorConfig{DefaultSimSensor()}
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
//
// An empty sensors list is valid: the detector then reports that no sensor
// is available when started.
func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Sensors))
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("sensor%d", i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("sensors[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = struct{}{}

		switch s.Kind {
		case SensorKindEvdev:
			if s.Path == "" {
				return fmt.Errorf("sensors[%d]: evdev sensor needs a path", i)
			}
		case SensorKindSerial:
			if s.Path == "" {
				return fmt.Errorf("sensors[%d]: serial sensor needs a path", i)
			}
			opts, err := s.Serial.Normalize()
			if err != nil {
				return fmt.Errorf("sensors[%d].serial: %w", i, err)
			}
			s.Serial = opts
		case SensorKindSim:
			if s.Sim.SwipeEveryMS < 0 {
				return fmt.Errorf("sensors[%d].sim.swipe_every_ms must be >= 0", i)
			}
			if s.Sim.Noise < 0 {
				return fmt.Errorf("sensors[%d].sim.noise must be >= 0", i)
			}
		default:
			return fmt.Errorf("sensors[%d]: kind must be %q, %q or %q", i, SensorKindEvdev, SensorKindSerial, SensorKindSim)
		}
	}

	if c.Detector.StartTimeoutMS <= 0 {
		return errors.New("detector.start_timeout_ms must be > 0")
	}
	if c.Detector.BaselineThreshold <= 0 {
		return errors.New("detector.baseline_threshold must be > 0")
	}
	if c.Detector.SwipeThreshold <= 0 {
		return errors.New("detector.swipe_threshold must be > 0")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.New("journal.enabled is true but journal.path is empty")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := magnetswipe.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToDetectorConfig converts the file config into the detector's config.
func (c *Config) ToDetectorConfig() magnetswipe.Config {
	return magnetswipe.Config{
		Thresholds: magnetswipe.Thresholds{
			Baseline: c.Detector.BaselineThreshold,
			Swipe:    c.Detector.SwipeThreshold,
		},
		StartTimeout: time.Duration(c.Detector.StartTimeoutMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
