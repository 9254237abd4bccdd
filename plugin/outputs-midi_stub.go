//go:build nomidi

package plugin

import (
	"fmt"
	"time"
)

type Smoother interface {
	Step(target float64, dt time.Duration) float64
	Reset(v float64)
}

type MIDIOutput struct {
	NopFeedback
}

func NewMIDIOutput(port int, freq, vol Smoother) (*MIDIOutput, error) {
	return nil, fmt.Errorf("MIDI support not compiled in this build")
}

func (m *MIDIOutput) Start()       {}
func (m *MIDIOutput) Flush() error { return nil }
func (m *MIDIOutput) Close() error { return nil }
func (m *MIDIOutput) Type() string { return "midi-disabled" }
