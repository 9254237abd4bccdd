package pogo

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	Pt "github.com/maroda/pogo/types"
)

// Config is what the analyzer reads at the start of each sample.
// It is replaced whole, never field by field.
type Config struct {
	Sensitivity         float64        `json:"sensitivity"`         // m/s² deviation threshold
	DebounceTimeMs      int64          `json:"debounceTimeMs"`      // minimum gap between bounces
	VibrationDurationMs int            `json:"vibrationDurationMs"` // haptic pulse length
	AudioMode           Pt.AudioMode   `json:"audioMode"`
	AudioVolume         float64        `json:"audioVolume"` // 0.0 - 1.0
	GravityMode         Pt.GravityMode `json:"gravityMode"`
	MaxAudioDeviation   float64        `json:"maxAudioDeviation"` // m/s² for full pitch and volume
}

// DefaultConfig is used for anything a config file leaves out
func DefaultConfig() Config {
	return Config{
		Sensitivity:         3.0,
		DebounceTimeMs:      300,
		VibrationDurationMs: 100,
		AudioMode:           Pt.AudioDiscrete,
		AudioVolume:         0.5,
		GravityMode:         Pt.GravitySensor,
		MaxAudioDeviation:   10.0,
	}
}

// Validate range checks everything the analyzer divides or compares by
func (c Config) Validate() error {
	if c.Sensitivity <= 0 || math.IsNaN(c.Sensitivity) {
		return fmt.Errorf("sensitivity must be positive, got %v", c.Sensitivity)
	}
	if c.DebounceTimeMs < 0 {
		return fmt.Errorf("debounceTimeMs must be non-negative, got %d", c.DebounceTimeMs)
	}
	if c.VibrationDurationMs < 0 {
		return fmt.Errorf("vibrationDurationMs must be non-negative, got %d", c.VibrationDurationMs)
	}
	if c.AudioVolume < 0 || c.AudioVolume > 1 || math.IsNaN(c.AudioVolume) {
		return fmt.Errorf("audioVolume must be between 0 and 1, got %v", c.AudioVolume)
	}
	if c.MaxAudioDeviation <= 0 || math.IsNaN(c.MaxAudioDeviation) {
		return fmt.Errorf("maxAudioDeviation must be positive, got %v", c.MaxAudioDeviation)
	}
	switch c.AudioMode {
	case Pt.AudioOff, Pt.AudioDiscrete, Pt.AudioFrequency, Pt.AudioFrequencyFadeout:
	default:
		return fmt.Errorf("unknown audioMode %q", c.AudioMode)
	}
	switch c.GravityMode {
	case Pt.GravitySensor, Pt.GravityFilter:
	default:
		return fmt.Errorf("unknown gravityMode %q", c.GravityMode)
	}
	return nil
}

// WithSettings overlays the persisted user choices onto c.
// Baseline and gravity belong to the analyzer state, not the config.
func (c Config) WithSettings(s Pt.Settings) Config {
	if s.Sensitivity > 0 {
		c.Sensitivity = s.Sensitivity
	}
	if s.AudioMode != "" {
		c.AudioMode = s.AudioMode
	}
	if s.AudioVolume >= 0 && s.AudioVolume <= 1 {
		c.AudioVolume = s.AudioVolume
	}
	if s.GravityMode != "" {
		c.GravityMode = s.GravityMode
	}
	return c
}

// SourceConfig describes one place samples come from
type SourceConfig struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`       // "mqtt", "http", "replay"
	URL        string            `json:"url"`        // broker, poll URL, or file path
	Topic      string            `json:"topic"`      // mqtt only
	Decoder    string            `json:"decoder"`    // "native" or "json_key"
	Keys       map[string]string `json:"keys"`       // json_key paths by axis, e.g. "ax": "acc.x"
	IntervalMs int               `json:"intervalMs"` // http poll interval
}

// ConfigFile is the on-disk configuration
type ConfigFile struct {
	Analyzer  Config         `json:"analyzer"`
	Listen    string         `json:"listen"`
	StorePath string         `json:"store"`
	MIDIPort  int            `json:"midiPort"`
	Sources   []SourceConfig `json:"sources"`
}

// DefaultConfigFile is a runnable config with no sources beyond the websocket ingest
func DefaultConfigFile() *ConfigFile {
	return &ConfigFile{
		Analyzer:  DefaultConfig(),
		Listen:    ":8090",
		StorePath: "./pogo_db",
		MIDIPort:  0,
	}
}

// LoadConfigFileName pulls a given filename config off local disk
// Validation is performed on the file before opening
func LoadConfigFileName(filename string) (*ConfigFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// validation
	err = validateLoad(file)
	if err != nil {
		slog.Error("Validation failed", slog.Any("Error", err))
		return nil, err
	}

	return LoadConfig(file)
}

func validateLoad(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		slog.Error("could not stat file")
		return err
	}

	if info.Size() == 0 {
		slog.Error("file is empty")
		return errors.New("file is empty")
	}

	return nil
}

// LoadConfig decodes on top of the defaults, so partial files are safe
func LoadConfig(file *os.File) (*ConfigFile, error) {
	cf := DefaultConfigFile()
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cf); err != nil {
		slog.Error("could not decode file", slog.Any("Error", err))
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cf.Analyzer.Validate(); err != nil {
		slog.Error("invalid analyzer config", slog.Any("Error", err))
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	for i, s := range cf.Sources {
		switch s.Type {
		case "mqtt", "http", "replay":
		default:
			return nil, fmt.Errorf("source %d (%s): unknown type %q", i, s.ID, s.Type)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("source %d (%s): url is required", i, s.ID)
		}
	}

	return cf, nil
}

// ApplyEnv lets POGO_* environment variables override the file
func (cf *ConfigFile) ApplyEnv() {
	a := &cf.Analyzer
	a.Sensitivity = FillEnvVarFloat("POGO_SENSITIVITY", a.Sensitivity)
	a.DebounceTimeMs = int64(FillEnvVarInt("POGO_DEBOUNCE_MS", int(a.DebounceTimeMs)))
	a.VibrationDurationMs = FillEnvVarInt("POGO_VIBRATION_MS", a.VibrationDurationMs)
	a.AudioVolume = FillEnvVarFloat("POGO_AUDIO_VOLUME", a.AudioVolume)
	a.MaxAudioDeviation = FillEnvVarFloat("POGO_MAX_AUDIO_DEVIATION", a.MaxAudioDeviation)
	if v := FillEnvVar("POGO_AUDIO_MODE"); v != "ENOENT" {
		a.AudioMode = Pt.AudioMode(v)
	}
	if v := FillEnvVar("POGO_GRAVITY_MODE"); v != "ENOENT" {
		a.GravityMode = Pt.GravityMode(v)
	}
	if v := FillEnvVar("POGO_LISTEN"); v != "ENOENT" {
		cf.Listen = v
	}
	if v := FillEnvVar("POGO_STORE"); v != "ENOENT" {
		cf.StorePath = v
	}
	cf.MIDIPort = FillEnvVarInt("POGO_MIDI_PORT", cf.MIDIPort)
}
