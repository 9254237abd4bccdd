//go:build !nomidi

package plugin

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const (
	toneChannel   uint8 = 0
	droneChannel  uint8 = 1
	toneNote      uint8 = 84 // C6
	droneNote     uint8 = 69 // A4, the pitch bend center
	droneHz             = 440.0
	squareLead    uint8 = 80 // GM "Lead 1 (square)"
	bendRange           = 24 // semitones each way, covers 110 Hz to 1760 Hz
	channelVolume uint8 = 7

	GlideInterval = 10 * time.Millisecond
)

// Smoother is what the glide loop steps on every tick.
// motion.Smoother satisfies it.
type Smoother interface {
	Step(target float64, dt time.Duration) float64
	Reset(v float64)
}

// MIDIOutput renders audio feedback on a MIDI synth.
// Discrete mode plays a short note per bounce on one channel,
// continuous modes hold a drone on a second channel and glide it
// with pitch bend and channel volume.
type MIDIOutput struct {
	NopFeedback
	MU   sync.Mutex
	Port drivers.Out
	Send func(msg midi.Message) error
	WG   sync.WaitGroup

	ToneDuration time.Duration
	Freq         Smoother
	Vol          Smoother

	targetHz  float64
	targetVol float64
	active    bool // drone note is sounding
	lastBend  int16
	lastCC7   uint8

	stop chan struct{}
	once sync.Once
}

func NewMIDIOutput(port int, freq, vol Smoother) (*MIDIOutput, error) {
	out, err := midi.OutPort(port)
	if err != nil {
		slog.Error("Error opening MIDI port", slog.Int("port", port))
		return nil, fmt.Errorf("error opening MIDI port: %w", err)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		slog.Error("Error sending to MIDI port", slog.Int("port", port))
		return nil, fmt.Errorf("error sending to MIDI port: %w", err)
	}

	mo := NewMIDIOutputWithSend(send, freq, vol)
	mo.Port = out
	if err := mo.Setup(); err != nil {
		return nil, err
	}
	return mo, nil
}

// NewMIDIOutputWithSend skips the driver, tests pass a recording func
func NewMIDIOutputWithSend(send func(msg midi.Message) error, freq, vol Smoother) *MIDIOutput {
	return &MIDIOutput{
		Send:         send,
		ToneDuration: 150 * time.Millisecond,
		Freq:         freq,
		Vol:          vol,
		lastBend:     math.MinInt16,
		stop:         make(chan struct{}),
	}
}

// Setup selects the square lead on both channels and widens the bend range
func (mo *MIDIOutput) Setup() error {
	for _, ch := range []uint8{toneChannel, droneChannel} {
		if err := mo.Send(midi.ProgramChange(ch, squareLead)); err != nil {
			return fmt.Errorf("program change: %w", err)
		}
	}
	rpn := []midi.Message{
		midi.ControlChange(droneChannel, 101, 0),
		midi.ControlChange(droneChannel, 100, 0),
		midi.ControlChange(droneChannel, 6, bendRange),
		midi.ControlChange(droneChannel, 38, 0),
	}
	for _, m := range rpn {
		if err := mo.Send(m); err != nil {
			return fmt.Errorf("pitch bend range: %w", err)
		}
	}
	return nil
}

// Start runs the glide loop until Close
func (mo *MIDIOutput) Start() {
	mo.WG.Add(1)
	go func() {
		defer mo.WG.Done()
		ticker := time.NewTicker(GlideInterval)
		defer ticker.Stop()

		last := time.Now()
		for {
			select {
			case <-mo.stop:
				return
			case now := <-ticker.C:
				mo.Tick(now.Sub(last))
				last = now
			}
		}
	}()
}

// SetAudioTarget only records the target, the glide loop does the rest
func (mo *MIDIOutput) SetAudioTarget(frequencyHz, volume float64) {
	mo.MU.Lock()
	defer mo.MU.Unlock()

	mo.targetHz = frequencyHz
	mo.targetVol = volume
	if !mo.active {
		mo.Freq.Reset(frequencyHz)
		mo.Vol.Reset(0)
		if err := mo.Send(midi.NoteOn(droneChannel, droneNote, 100)); err != nil {
			slog.Error("Drone NoteOn failed", slog.Any("Error", err))
			return
		}
		mo.active = true
	}
}

// Tick advances both smoothers by dt and sends whatever changed
func (mo *MIDIOutput) Tick(dt time.Duration) {
	mo.MU.Lock()
	defer mo.MU.Unlock()

	if !mo.active {
		return
	}

	hz := mo.Freq.Step(mo.targetHz, dt)
	vol := mo.Vol.Step(mo.targetVol, dt)

	if bend := PitchBendValue(hz); bend != mo.lastBend {
		if err := mo.Send(midi.Pitchbend(droneChannel, bend)); err != nil {
			slog.Error("Pitch bend failed", slog.Any("Error", err))
		}
		mo.lastBend = bend
	}
	if cc := VolumeCC(vol); cc != mo.lastCC7 {
		if err := mo.Send(midi.ControlChange(droneChannel, channelVolume, cc)); err != nil {
			slog.Error("Volume change failed", slog.Any("Error", err))
		}
		mo.lastCC7 = cc
	}
}

// StopAudio silences the drone before it returns
func (mo *MIDIOutput) StopAudio() {
	mo.MU.Lock()
	defer mo.MU.Unlock()

	if mo.active {
		if err := mo.Send(midi.NoteOff(droneChannel, droneNote)); err != nil {
			slog.Error("Drone NoteOff failed", slog.Any("Error", err))
		}
	}
	if err := mo.Send(midi.ControlChange(droneChannel, midi.AllNotesOff, midi.Off)); err != nil {
		slog.Error("AllNotesOff failed", slog.Any("Error", err))
	}
	mo.active = false
	mo.lastBend = math.MinInt16
	mo.lastCC7 = 0
}

func (mo *MIDIOutput) SendNoteOnMIDI(midic, midin, midiv uint8) error {
	return mo.Send(midi.NoteOn(midic, midin, midiv))
}

func (mo *MIDIOutput) SendNoteOffMIDI(midic, midin uint8) error {
	return mo.Send(midi.NoteOff(midic, midin))
}

// TriggerDiscreteTone plays one burst without blocking the analyzer
func (mo *MIDIOutput) TriggerDiscreteTone() {
	mo.WG.Add(1)
	go func() {
		defer mo.WG.Done()
		if err := mo.SendNoteOnMIDI(toneChannel, toneNote, 100); err != nil {
			slog.Error("NoteOn event failed", slog.Any("Error", err))
			return
		}
		time.Sleep(mo.ToneDuration)
		if err := mo.SendNoteOffMIDI(toneChannel, toneNote); err != nil {
			slog.Error("NoteOff event failed, attempting Flush")
			mo.Flush()
		}
	}()
}

func (mo *MIDIOutput) Flush() error {
	return mo.Send(midi.ControlChange(toneChannel, midi.AllNotesOff, midi.Off))
}

func (mo *MIDIOutput) Close() error {
	mo.once.Do(func() { close(mo.stop) })
	mo.StopAudio()
	mo.WG.Wait()
	mo.Flush()

	if mo.Port != nil {
		mo.Port.Close()
		midi.CloseDriver()
	}
	return nil
}

func (mo *MIDIOutput) Type() string { return "MIDI" }

// PitchBendValue bends the drone note to hz, clamped to the bend range
func PitchBendValue(hz float64) int16 {
	if hz <= 0 {
		return 0
	}
	semis := 12 * math.Log2(hz/droneHz)
	n := semis / bendRange
	switch {
	case n > 1:
		n = 1
	case n < -1:
		n = -1
	}
	return int16(math.Round(n * 8191))
}

// VolumeCC maps 0.0 - 1.0 onto controller 7
func VolumeCC(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return 127
	}
	return uint8(math.Round(v * 127))
}
