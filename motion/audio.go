package pogo

import (
	"math"
	"time"

	Pt "github.com/maroda/pogo/types"
)

const (
	MinFrequency = 200.0  // Hz at zero deviation
	MaxFrequency = 1000.0 // Hz at MaxAudioDeviation and beyond
	MinVolume    = 0.01   // fadeout floor, near silent
	MaxVolume    = 1.0

	FrequencyTau = 50 * time.Millisecond  // pitch glide
	RiseTau      = 20 * time.Millisecond  // fadeout attack
	FallTau      = 150 * time.Millisecond // fadeout release

	DiscreteToneDuration = 150 * time.Millisecond
)

// AudioTarget is what the analyzer publishes, the renderer smooths toward it
type AudioTarget struct {
	Frequency float64
	Volume    float64
}

// NormalizeDeviation maps deviation into [0,1] against the full-scale deviation
func NormalizeDeviation(deviation, maxDeviation float64) float64 {
	if maxDeviation <= 0 || deviation <= 0 || math.IsNaN(deviation) {
		return 0
	}
	return math.Min(deviation/maxDeviation, 1)
}

// TargetFrequency is a linear map from normalized deviation to pitch
func TargetFrequency(n float64) float64 {
	return MinFrequency + (MaxFrequency-MinFrequency)*n
}

// TargetVolume holds a fixed level for "frequency" and follows deviation for "frequency-fadeout".
// Other modes are silent.
func TargetVolume(mode Pt.AudioMode, n, level float64) float64 {
	switch mode {
	case Pt.AudioFrequency:
		return level
	case Pt.AudioFrequencyFadeout:
		return (MinVolume + (MaxVolume-MinVolume)*n) * level
	default:
		return 0
	}
}

// MapAudio computes the target for one deviation reading
func MapAudio(mode Pt.AudioMode, deviation, maxDeviation, level float64) AudioTarget {
	n := NormalizeDeviation(deviation, maxDeviation)
	return AudioTarget{
		Frequency: TargetFrequency(n),
		Volume:    TargetVolume(mode, n, level),
	}
}

// IsContinuous reports whether the mode drives the oscillator on every sample
func IsContinuous(mode Pt.AudioMode) bool {
	return mode == Pt.AudioFrequency || mode == Pt.AudioFrequencyFadeout
}

// Smoother is a one-pole follower with separate rise and fall time constants.
// Equal constants give ordinary exponential smoothing.
type Smoother struct {
	Value   float64
	RiseTau time.Duration
	FallTau time.Duration
}

func NewFrequencySmoother() *Smoother {
	return &Smoother{Value: MinFrequency, RiseTau: FrequencyTau, FallTau: FrequencyTau}
}

// NewVolumeSmoother is asymmetric: punch in, fade out
func NewVolumeSmoother() *Smoother {
	return &Smoother{Value: 0, RiseTau: RiseTau, FallTau: FallTau}
}

// Step advances the follower by dt toward target and returns the new value
func (s *Smoother) Step(target float64, dt time.Duration) float64 {
	if dt <= 0 {
		return s.Value
	}

	tau := s.FallTau
	if target > s.Value {
		tau = s.RiseTau
	}
	if tau <= 0 {
		s.Value = target
		return s.Value
	}

	alpha := 1 - math.Exp(-dt.Seconds()/tau.Seconds())
	s.Value += (target - s.Value) * alpha
	return s.Value
}

// Reset jumps straight to v
func (s *Smoother) Reset(v float64) {
	s.Value = v
}
