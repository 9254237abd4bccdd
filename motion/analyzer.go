package pogo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	Po "github.com/maroda/pogo/obvy"
	Mp "github.com/maroda/pogo/plugin"
	Pt "github.com/maroda/pogo/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/stat"
)

const CalibrationSamples = 50

var (
	ErrDetecting   = errors.New("cannot calibrate while detecting")
	ErrCalibrating = errors.New("cannot detect while calibrating")
)

var tracer = otel.Tracer("pogo")

// Analyzer turns a stream of accelerometer samples into bounces.
//
// It is driven by exactly one goroutine. Every method except
// UpdateConfig and Config must be called from that goroutine.
type Analyzer struct {
	MU      sync.Mutex // guards pending
	pending *Config

	cfg     Config
	gravity *Gravity
	state   Pt.State

	baseline     float64
	lastBounceMs int64
	bounced      bool // lastBounceMs is meaningful
	bounceCount  int
	calSamples   []float64

	magnitude float64
	deviation float64
	target    AudioTarget
	sessionID string
	cadence   *Mp.Cadence

	Out   Mp.Feedback      // never nil after NewAnalyzer
	Store Mp.SettingsStore // optional
	Log   Mp.BounceLog     // optional
	Stats *Po.StatsInternal
}

// NewAnalyzer returns an Idle analyzer with the default baseline.
// A nil out is replaced with a no-op so callers can skip feedback entirely.
func NewAnalyzer(cfg Config, out Mp.Feedback) *Analyzer {
	if out == nil {
		out = Mp.NopFeedback{}
	}
	return &Analyzer{
		cfg:        cfg,
		gravity:    NewGravity(),
		state:      Pt.Idle,
		baseline:   StandardGravity,
		calSamples: make([]float64, 0, CalibrationSamples),
		cadence:    &Mp.Cadence{},
		Out:        out,
	}
}

// UpdateConfig stages a whole replacement config.
// It takes effect before the next sample, or at the next StartDetection.
func (a *Analyzer) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		slog.Warn("Rejected config update", slog.Any("Error", err))
		return err
	}
	a.MU.Lock()
	defer a.MU.Unlock()
	a.pending = &cfg
	return nil
}

// Config is the config the next sample will see
func (a *Analyzer) Config() Config {
	a.MU.Lock()
	defer a.MU.Unlock()
	if a.pending != nil {
		return *a.pending
	}
	return a.cfg
}

func (a *Analyzer) applyPending() {
	a.MU.Lock()
	p := a.pending
	a.pending = nil
	a.MU.Unlock()

	if p != nil {
		a.cfg = *p
		slog.Debug("Applied config update",
			slog.Float64("sensitivity", a.cfg.Sensitivity),
			slog.String("audioMode", string(a.cfg.AudioMode)),
			slog.String("gravityMode", string(a.cfg.GravityMode)))
	}
}

// ApplySettings restores persisted state.
// Gravity is only restored in filter mode, the sensor recomputes it on every sample.
func (a *Analyzer) ApplySettings(s Pt.Settings) {
	if s.BaselineMagnitude > 0 && !math.IsNaN(s.BaselineMagnitude) {
		a.baseline = s.BaselineMagnitude
	}

	a.MU.Lock()
	cfg := a.cfg
	if a.pending != nil {
		cfg = *a.pending
	}
	cfg = cfg.WithSettings(s)
	if cfg.Validate() == nil {
		a.pending = &cfg
	}
	a.MU.Unlock()

	if cfg.GravityMode == Pt.GravityFilter {
		a.gravity.Restore(Pt.Vec3{X: s.GravityX, Y: s.GravityY, Z: s.GravityZ})
	}
	if a.Stats != nil {
		a.Stats.SetBaseline(a.baseline)
	}
}

// Settings is the state worth persisting
func (a *Analyzer) Settings() Pt.Settings {
	cfg := a.Config()
	return Pt.Settings{
		Sensitivity:       cfg.Sensitivity,
		BaselineMagnitude: a.baseline,
		AudioMode:         cfg.AudioMode,
		AudioVolume:       cfg.AudioVolume,
		GravityMode:       cfg.GravityMode,
		GravityX:          a.gravity.Est.X,
		GravityY:          a.gravity.Est.Y,
		GravityZ:          a.gravity.Est.Z,
	}
}

func (a *Analyzer) save() {
	if a.Store == nil {
		return
	}
	if err := a.Store.SaveSettings(a.Settings()); err != nil {
		slog.Error("Could not save settings", slog.Any("Error", err))
		a.Out.OnStatusChanged(Pt.StatusError, "could not save settings")
	}
}

////////// TRANSITIONS

// StartDetection begins a new session. Already detecting is a no-op.
func (a *Analyzer) StartDetection() error {
	switch a.state {
	case Pt.Detecting:
		return nil
	case Pt.Calibrating:
		slog.Warn("Detection requested during calibration")
		a.Out.OnStatusChanged(Pt.StatusWarning, "finish calibration before starting detection")
		return ErrCalibrating
	}

	_, span := tracer.Start(context.Background(), "StartDetection")
	defer span.End()

	a.applyPending()
	a.state = Pt.Detecting
	a.bounceCount = 0
	a.bounced = false
	a.lastBounceMs = 0
	a.sessionID = uuid.NewString()
	a.cadence.Reset()
	if a.Stats != nil {
		a.Stats.SetCadence(0)
	}

	span.SetAttributes(
		attribute.String("session", a.sessionID),
		attribute.Float64("baseline", a.baseline),
		attribute.String("audioMode", string(a.cfg.AudioMode)))

	slog.Info("Detection started",
		slog.String("session", a.sessionID),
		slog.Float64("baseline", a.baseline),
		slog.Float64("sensitivity", a.cfg.Sensitivity))
	a.Out.OnStatusChanged(Pt.StatusActive, "detecting")
	return nil
}

// StopDetection ends the session and silences audio before returning.
// Calling it when not detecting does nothing.
func (a *Analyzer) StopDetection() {
	if a.state != Pt.Detecting {
		return
	}

	_, span := tracer.Start(context.Background(), "StopDetection")
	defer span.End()
	span.SetAttributes(
		attribute.String("session", a.sessionID),
		attribute.Int("bounces", a.bounceCount))

	a.Out.StopAudio()
	a.state = Pt.Idle
	a.target = AudioTarget{}

	if a.Log != nil {
		if err := a.Log.Flush(); err != nil {
			slog.Error("Could not flush bounce log", slog.Any("Error", err))
		}
	}
	a.save()

	slog.Info("Detection stopped",
		slog.String("session", a.sessionID),
		slog.Int("bounces", a.bounceCount))
	a.Out.OnStatusChanged(Pt.StatusReady, fmt.Sprintf("stopped after %d bounces", a.bounceCount))
}

// StartCalibration is rejected while detecting.
// Calling it again while calibrating starts over.
func (a *Analyzer) StartCalibration() error {
	if a.state == Pt.Detecting {
		slog.Warn("Calibration requested during detection")
		a.Out.OnStatusChanged(Pt.StatusWarning, "stop detection before calibrating")
		return ErrDetecting
	}

	a.applyPending()
	a.state = Pt.Calibrating
	a.calSamples = a.calSamples[:0]
	a.gravity.Reset()

	slog.Info("Calibration started", slog.Int("samples", CalibrationSamples))
	a.Out.OnStatusChanged(Pt.StatusCalibrating, "hold still")
	return nil
}

// CancelCalibration abandons calibration, the baseline is untouched
func (a *Analyzer) CancelCalibration() {
	if a.state != Pt.Calibrating {
		return
	}
	a.state = Pt.Idle
	a.calSamples = a.calSamples[:0]
	slog.Info("Calibration cancelled", slog.Float64("baseline", a.baseline))
	a.Out.OnStatusChanged(Pt.StatusReady, "calibration cancelled")
}

func (a *Analyzer) finishCalibration() {
	_, span := tracer.Start(context.Background(), "finishCalibration")
	defer span.End()

	mean := stat.Mean(a.calSamples, nil)
	spread := stat.StdDev(a.calSamples, nil)

	a.baseline = mean
	a.state = Pt.Idle
	a.calSamples = a.calSamples[:0]

	span.SetAttributes(
		attribute.Float64("baseline", mean),
		attribute.Float64("stddev", spread))
	slog.Info("Calibration complete",
		slog.Float64("baseline", mean),
		slog.Float64("stddev", spread))

	if a.Stats != nil {
		a.Stats.RecCalibration(mean)
	}
	a.Out.OnCalibrationComplete(mean)
	a.Out.OnStatusChanged(Pt.StatusReady, fmt.Sprintf("baseline %.2f m/s²", mean))
	a.save()
}

////////// SAMPLES

// ProcessSample consumes one sample.
// Samples are ignored while Idle, and dropped when any acceleration axis is missing or not finite.
// An incomplete linear reading is treated as no linear reading.
// It returns true when the sample produced a bounce.
func (a *Analyzer) ProcessSample(s Pt.Sample) bool {
	if a.state == Pt.Idle {
		return false
	}

	acc, ok := ReadingVec(&s.Accel)
	if !ok {
		a.drop(s, "acceleration")
		return false
	}
	// An unusable linear reading counts as absent, gravity falls back to the filter
	var lin *Vec
	if s.Linear != nil {
		if l, ok := ReadingVec(s.Linear); ok {
			lin = &l
		} else {
			slog.Debug("Ignoring incomplete linear reading", slog.Int64("t", s.TimestampMs))
		}
	}

	a.applyPending()
	calibrating := a.state == Pt.Calibrating

	d := a.gravity.Update(acc, lin, a.cfg.GravityMode, calibrating)
	magnitude := a.gravity.VerticalMagnitude(d, acc, lin, a.baseline)
	a.magnitude = magnitude

	if a.Stats != nil {
		a.Stats.RecSample()
		a.Stats.SetMagnitude(magnitude)
	}
	a.Out.OnMagnitudeUpdate(magnitude)

	if calibrating {
		a.calSamples = append(a.calSamples, magnitude)
		if len(a.calSamples) >= CalibrationSamples {
			a.finishCalibration()
		}
		return false
	}

	a.deviation = math.Abs(magnitude - a.baseline)

	if IsContinuous(a.cfg.AudioMode) {
		a.target = MapAudio(a.cfg.AudioMode, a.deviation, a.cfg.MaxAudioDeviation, a.cfg.AudioVolume)
		a.Out.SetAudioTarget(a.target.Frequency, a.target.Volume)
	}

	if a.bounced && s.TimestampMs-a.lastBounceMs < a.cfg.DebounceTimeMs {
		return false
	}
	if a.deviation <= a.cfg.Sensitivity {
		return false
	}

	a.bounce(s.TimestampMs, magnitude)
	return true
}

func (a *Analyzer) bounce(tMs int64, magnitude float64) {
	a.lastBounceMs = tMs
	a.bounced = true
	a.bounceCount++

	bpm := a.cadence.Mark(tMs)
	if a.Stats != nil {
		a.Stats.RecBounce()
		a.Stats.SetCadence(bpm)
	}

	slog.Debug("Bounce",
		slog.Int("count", a.bounceCount),
		slog.Int64("t", tMs),
		slog.Float64("deviation", a.deviation))

	a.Out.OnBounceDetected(a.bounceCount)
	a.Out.TriggerVibration(a.cfg.VibrationDurationMs)
	if a.cfg.AudioMode == Pt.AudioDiscrete {
		a.Out.TriggerDiscreteTone()
	}

	if a.Log != nil {
		err := a.Log.WriteBounce(NewBounceRecord(a.sessionID, a.bounceCount, tMs, magnitude, a.deviation))
		if err != nil {
			slog.Error("Could not log bounce", slog.Any("Error", err))
		}
	}
}

func (a *Analyzer) drop(s Pt.Sample, which string) {
	if a.Stats != nil {
		a.Stats.RecDropped()
	}
	slog.Debug("Dropped sample",
		slog.Int64("t", s.TimestampMs),
		slog.String("reading", which))
}

////////// READERS

func (a *Analyzer) State() Pt.State     { return a.state }
func (a *Analyzer) BounceCount() int    { return a.bounceCount }
func (a *Analyzer) Baseline() float64   { return a.baseline }
func (a *Analyzer) Gravity() Pt.Vec3    { return Pt.Vec3(a.gravity.Est) }
func (a *Analyzer) SessionID() string   { return a.sessionID }
func (a *Analyzer) Deviation() float64  { return a.deviation }
func (a *Analyzer) Target() AudioTarget { return a.target }

// LastBounceMs is -1 before the first bounce of a session
func (a *Analyzer) LastBounceMs() int64 {
	if !a.bounced {
		return -1
	}
	return a.lastBounceMs
}

// Snapshot copies everything a reader on another goroutine might want
func (a *Analyzer) Snapshot() *Pt.Snapshot {
	progress := 0
	if a.state == Pt.Calibrating {
		progress = len(a.calSamples)
	}
	return &Pt.Snapshot{
		State:               a.state,
		StateName:           StateName(a.state),
		SessionID:           a.sessionID,
		BounceCount:         a.bounceCount,
		LastBounceMs:        a.LastBounceMs(),
		Baseline:            a.baseline,
		Magnitude:           a.magnitude,
		Deviation:           a.deviation,
		Gravity:             a.Gravity(),
		CalibrationProgress: progress,
		CadenceBPM:          a.cadence.Rate(),
		TargetFrequency:     a.target.Frequency,
		TargetVolume:        a.target.Volume,
	}
}

func StateName(s Pt.State) string {
	switch s {
	case Pt.Detecting:
		return "detecting"
	case Pt.Calibrating:
		return "calibrating"
	default:
		return "idle"
	}
}
