package plugin

import (
	Pt "github.com/maroda/pogo/types"
)

// NopFeedback can be embedded by outputs that only care about some signals
type NopFeedback struct{}

func (NopFeedback) OnMagnitudeUpdate(float64)         {}
func (NopFeedback) OnBounceDetected(int)              {}
func (NopFeedback) OnCalibrationComplete(float64)     {}
func (NopFeedback) OnStatusChanged(Pt.Status, string) {}
func (NopFeedback) SetAudioTarget(float64, float64)   {}
func (NopFeedback) TriggerDiscreteTone()              {}
func (NopFeedback) TriggerVibration(int)              {}
func (NopFeedback) StopAudio()                        {}
func (NopFeedback) Type() string                      { return "nop" }

// Fanout delivers every signal to each output in order
type Fanout []Feedback

func (f Fanout) OnMagnitudeUpdate(m float64) {
	for _, o := range f {
		o.OnMagnitudeUpdate(m)
	}
}

func (f Fanout) OnBounceDetected(count int) {
	for _, o := range f {
		o.OnBounceDetected(count)
	}
}

func (f Fanout) OnCalibrationComplete(baseline float64) {
	for _, o := range f {
		o.OnCalibrationComplete(baseline)
	}
}

func (f Fanout) OnStatusChanged(status Pt.Status, message string) {
	for _, o := range f {
		o.OnStatusChanged(status, message)
	}
}

func (f Fanout) SetAudioTarget(frequencyHz, volume float64) {
	for _, o := range f {
		o.SetAudioTarget(frequencyHz, volume)
	}
}

func (f Fanout) TriggerDiscreteTone() {
	for _, o := range f {
		o.TriggerDiscreteTone()
	}
}

func (f Fanout) TriggerVibration(durationMs int) {
	for _, o := range f {
		o.TriggerVibration(durationMs)
	}
}

func (f Fanout) StopAudio() {
	for _, o := range f {
		o.StopAudio()
	}
}

func (f Fanout) Type() string { return "fanout" }
