//go:build !nomidi

package pogo

import (
	"log/slog"

	Pm "github.com/maroda/pogo/motion"
	Mp "github.com/maroda/pogo/plugin"
)

// InitMIDIOutput opens the audio renderer on a MIDI port and starts its glide loop
func InitMIDIOutput(port int) (*Mp.MIDIOutput, error) {
	output, err := Mp.NewMIDIOutput(port, Pm.NewFrequencySmoother(), Pm.NewVolumeSmoother())
	if err != nil {
		slog.Error("Failed to create adapter",
			slog.Int("port", port),
			slog.Any("Error", err))
		return nil, err
	}
	output.Start()
	slog.Info("MIDI Adapter Enabled",
		slog.Int("port", port),
		slog.String("name", output.Port.String()))
	return output, nil
}

// outputDetail names an output, with the port for MIDI
func outputDetail(f Mp.Feedback) string {
	if midiOut, ok := f.(*Mp.MIDIOutput); ok && midiOut.Port != nil {
		return midiOut.Type() + ":" + midiOut.Port.String()
	}
	return f.Type()
}
