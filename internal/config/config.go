// Package config loads the gasmeter TOML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gasmeter/internal/dial"
	"gasmeter/internal/stabilize"
	"gasmeter/pkg/geometry"

	"github.com/BurntSushi/toml"
)

// File represents the TOML configuration file.
type File struct {
	Camera      CameraConfig      `toml:"camera"`
	ROI         geometry.RectInt  `toml:"roi"`
	Dials       []dial.DialConfig `toml:"dials"`
	Detect      DetectConfig      `toml:"detect"`
	Stabilize   StabilizeConfig   `toml:"stabilize"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	MQTT        MQTTConfig        `toml:"mqtt"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Store       StoreConfig       `toml:"store"`
}

// CameraConfig describes frame acquisition.
type CameraConfig struct {
	Device int `toml:"device"`
	Width  int `toml:"width"`
	Height int `toml:"height"`
	Frames int `toml:"frames"` // Frames captured per cycle
}

// DetectConfig selects the edge mask used by the angle estimator.
type DetectConfig struct {
	Mask      string  `toml:"mask"`      // "canny" or "threshold"
	Threshold float32 `toml:"threshold"` // Binarization level for "threshold"
}

// StabilizeConfig maps onto stabilize.Policy plus the range file location.
type StabilizeConfig struct {
	RangeFile        string  `toml:"range_file"`
	RoundStep        float64 `toml:"round_step"`
	OutlierPolicy    string  `toml:"outlier_policy"`
	OutlierThreshold float64 `toml:"outlier_threshold"`
	OutlierFloor     float64 `toml:"outlier_floor"`
}

// ScheduleConfig sets the cycle cadence.
type ScheduleConfig struct {
	Period Duration `toml:"period"`
}

// MQTTConfig describes the broker readings are published to.
type MQTTConfig struct {
	Broker         string   `toml:"broker"`
	ClientID       string   `toml:"client_id"`
	Topic          string   `toml:"topic"`
	ConnectTimeout Duration `toml:"connect_timeout"`
}

// DiagnosticsConfig controls the per-cycle debug images.
type DiagnosticsConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	ArchiveDir string `toml:"archive_dir"`
}

// StoreConfig locates the reading log.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Duration is a time.Duration written as a string such as "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() File {
	policy := stabilize.DefaultPolicy()
	return File{
		Camera: CameraConfig{Device: 0, Width: 1280, Height: 1024, Frames: 5},
		ROI:    geometry.RectInt{X: 218, Y: 20, Width: 1018, Height: 391},
		Dials:  dial.DefaultDials(),
		Detect: DetectConfig{Mask: "canny"},
		Stabilize: StabilizeConfig{
			RangeFile:        DefaultRangePath(),
			RoundStep:        policy.RoundStep,
			OutlierPolicy:    string(policy.Outlier),
			OutlierThreshold: policy.Threshold,
			OutlierFloor:     policy.Floor,
		},
		Schedule: ScheduleConfig{Period: Duration{5 * time.Minute}},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			ClientID:       "GasMeter",
			Topic:          "gasmeter/reading",
			ConnectTimeout: Duration{30 * time.Second},
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:    true,
			Dir:        DefaultWorkDir(),
			ArchiveDir: DefaultArchiveDir(),
		},
		Store: StoreConfig{Path: DefaultDBPath()},
	}
}

// Load reads a TOML config on top of Default. A missing file is not an
// error and yields the defaults.
func Load(path string) (File, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to stat config: %w", err)
	}

	// A [[dials]] table replaces the default layout rather than merging
	// into it.
	cfg.Dials = nil
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Default(), fmt.Errorf("failed to decode config: %w", err)
	}
	if len(cfg.Dials) == 0 {
		cfg.Dials = dial.DefaultDials()
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys: %v", undecoded)
	}
	return cfg, nil
}

// Policy returns the stabilization policy described by the file.
func (f File) Policy() stabilize.Policy {
	return stabilize.Policy{
		RoundStep: f.Stabilize.RoundStep,
		Outlier:   stabilize.OutlierPolicy(f.Stabilize.OutlierPolicy),
		Threshold: f.Stabilize.OutlierThreshold,
		Floor:     f.Stabilize.OutlierFloor,
	}
}

// MaskStrategy returns the configured edge mask.
func (f File) MaskStrategy() (dial.MaskStrategy, error) {
	return dial.ParseMaskStrategy(f.Detect.Mask, f.Detect.Threshold)
}

// Validate checks the whole file.
func (f File) Validate() error {
	if f.Camera.Frames < 1 {
		return fmt.Errorf("camera.frames must be at least 1, got %d", f.Camera.Frames)
	}
	if f.Camera.Width < 0 || f.Camera.Height < 0 {
		return fmt.Errorf("camera resolution must not be negative")
	}
	if f.ROI.Width < 0 || f.ROI.Height < 0 {
		return fmt.Errorf("roi size must not be negative")
	}
	if len(f.Dials) == 0 {
		return fmt.Errorf("no dials configured")
	}
	for i, d := range f.Dials {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("dial %d: %w", i, err)
		}
	}
	if dial.ExpectedLen(f.Dials) == 0 {
		return fmt.Errorf("no dial contributes a digit")
	}
	if _, err := f.MaskStrategy(); err != nil {
		return err
	}
	if err := f.Policy().Validate(); err != nil {
		return fmt.Errorf("stabilize: %w", err)
	}
	if f.Stabilize.RangeFile == "" {
		return fmt.Errorf("stabilize.range_file is empty")
	}
	if f.Schedule.Period.Duration <= 0 {
		return fmt.Errorf("schedule.period must be positive")
	}
	if f.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic is empty")
	}
	if f.MQTT.ConnectTimeout.Duration <= 0 {
		return fmt.Errorf("mqtt.connect_timeout must be positive")
	}
	if f.Diagnostics.Enabled && f.Diagnostics.Dir == "" {
		return fmt.Errorf("diagnostics.dir is empty")
	}
	return nil
}

// Template is the commented config written by "gasmeter config".
func Template() string {
	return `# gasmeter configuration

[camera]
device = 0
width = 1280
height = 1024
frames = 5

# Crop of the raw frame holding the dials.
[roi]
x = 218
y = 20
width = 1018
height = 391

# Dials from left to right.
[[dials]]
offset = 0.0
clockwise = false
digit = true

[[dials]]
offset = 0.0
clockwise = true
digit = true

[[dials]]
offset = 0.0
clockwise = false
digit = true

[[dials]]
offset = 0.0
clockwise = true
digit = true

[detect]
mask = "canny"   # or "threshold"
threshold = 100.0

[stabilize]
round_step = 0.2
outlier_policy = "absolute"   # or "relative"
outlier_threshold = 1.0
outlier_floor = 1.0           # smallest jump "relative" rejects

[schedule]
period = "5m"

[mqtt]
broker = "tcp://localhost:1883"
client_id = "GasMeter"
topic = "gasmeter/reading"
connect_timeout = "30s"

[diagnostics]
enabled = true
`
}
