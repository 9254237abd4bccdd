package plugin

/*

	The Adapter sits aside /pogo/
	Contains core interfaces for Plugin

*/

import (
	"errors"
	"time"

	Pt "github.com/maroda/pogo/types"
)

// ErrNotFound is returned by a SettingsStore that has nothing saved yet
var ErrNotFound = errors.New("settings not found")

// Feedback is every output the analyzer produces.
// Haptics, audio, and the visual indicator are all Feedback,
// each implementation ignores what it cannot render.
type Feedback interface {
	OnMagnitudeUpdate(magnitude float64)              // every processed sample
	OnBounceDetected(count int)                       // each debounced threshold crossing
	OnCalibrationComplete(baseline float64)           // once, at the end of calibration
	OnStatusChanged(status Pt.Status, message string) // ready, active, calibrating, warning, error
	SetAudioTarget(frequencyHz, volume float64)       // continuous modes, once per sample
	TriggerDiscreteTone()                             // discrete mode, on bounce
	TriggerVibration(durationMs int)                  // on bounce
	StopAudio()                                       // synchronous oscillator stop
	Type() string                                     // ID for output
}

// SettingsStore round-trips the persisted schema.
// The format is owned by the implementation.
type SettingsStore interface {
	LoadSettings() (Pt.Settings, error)
	SaveSettings(s Pt.Settings) error
}

// BounceLog can be used to keep a history of bounces,
// bounce-by-bounce or in batches if supported by the output type.
type BounceLog interface {
	WriteBounce(b *Pt.BounceRecord) error                          // Write singleton bounce data
	QueryRange(startMs, endMs int64) ([]*Pt.BounceRecord, error) // Time range query tool
	Flush() error                                                  // Flush any buffered data
}

// SampleDecoder turns a transport payload into zero or more samples
type SampleDecoder interface {
	Decode(payload []byte, received time.Time) ([]Pt.Sample, error)
	Type() string // Unique ID for the decoder
}
