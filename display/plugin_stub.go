//go:build nomidi

package pogo

import (
	"errors"
	"log/slog"

	Mp "github.com/maroda/pogo/plugin"
)

func InitMIDIOutput(port int) (*Mp.MIDIOutput, error) {
	slog.Warn("MIDI support not compiled in this build", slog.Int("port", port))
	return nil, errors.New("MIDI support not available")
}

func outputDetail(f Mp.Feedback) string {
	return f.Type()
}
