package pogo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	Mp "github.com/maroda/pogo/plugin"
	Pt "github.com/maroda/pogo/types"
)

// Source delivers samples into out until ctx is done or it runs dry
type Source interface {
	Run(ctx context.Context, out chan<- Pt.Sample) error
	ID() string
}

// NewSource builds the Source a config stanza describes
func NewSource(sc SourceConfig) (Source, error) {
	dec, err := Mp.DecoderLookup(sc.Decoder, sc.Keys)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", sc.ID, err)
	}

	switch sc.Type {
	case "mqtt":
		return NewMQTTSource(sc.ID, sc.URL, sc.Topic, dec), nil
	case "http":
		interval := time.Duration(sc.IntervalMs) * time.Millisecond
		return NewHTTPSource(sc.ID, sc.URL, interval, dec), nil
	case "replay":
		return NewReplaySource(sc.ID, sc.URL, dec), nil
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", sc.ID, sc.Type)
	}
}

// deliver blocks on the consumer so nothing is lost between transport and analyzer
func deliver(ctx context.Context, out chan<- Pt.Sample, samples []Pt.Sample) error {
	for _, s := range samples {
		select {
		case out <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ReplaySource plays back a recorded session, one payload per line.
// With Realtime set it sleeps out the gaps between timestamps.
type ReplaySource struct {
	SourceID string
	Path     string
	Decoder  Mp.SampleDecoder
	Realtime bool
}

func NewReplaySource(id, path string, dec Mp.SampleDecoder) *ReplaySource {
	return &ReplaySource{SourceID: id, Path: path, Decoder: dec, Realtime: true}
}

func (rs *ReplaySource) ID() string { return rs.SourceID }

func (rs *ReplaySource) Run(ctx context.Context, out chan<- Pt.Sample) error {
	file, err := os.Open(rs.Path)
	if err != nil {
		slog.Error("Could not open replay file", slog.String("path", rs.Path), slog.Any("Error", err))
		return err
	}
	defer file.Close()

	n, err := rs.Replay(ctx, file, out)
	slog.Info("Replay finished", slog.String("source", rs.SourceID), slog.Int("samples", n))
	return err
}

// Replay reads payloads from r. Lines that do not decode are skipped.
func (rs *ReplaySource) Replay(ctx context.Context, r io.Reader, out chan<- Pt.Sample) (int, error) {
	scanner := bufio.NewScanner(r)
	count := 0
	var prev int64
	started := false

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		samples, err := rs.Decoder.Decode(line, time.Now())
		if err != nil {
			slog.Warn("Skipping replay line", slog.Any("Error", err))
			continue
		}

		for _, s := range samples {
			if rs.Realtime && started && s.TimestampMs > prev {
				select {
				case <-time.After(time.Duration(s.TimestampMs-prev) * time.Millisecond):
				case <-ctx.Done():
					return count, ctx.Err()
				}
			}
			prev = s.TimestampMs
			started = true

			if err := deliver(ctx, out, []Pt.Sample{s}); err != nil {
				return count, err
			}
			count++
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Error("Problem scanning replay", slog.Any("Error", err))
		return count, fmt.Errorf("scanning error: %w", err)
	}
	return count, nil
}
