package pogo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	Po "github.com/maroda/pogo/obvy"
	Mp "github.com/maroda/pogo/plugin"
	Pt "github.com/maroda/pogo/types"
)

const (
	webTimeout      = 2 * time.Second
	defaultInterval = 20 * time.Millisecond
)

type HTTPClient interface {
	Get(string) (*http.Response, error)
}

// Shared HTTP Client
var sharedHTTPClient = &http.Client{
	Timeout: webTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	},
}

// SingleFetchWithClient handles the messy business of the HTTP connection
// and is testable with dependency injection
func SingleFetchWithClient(url string, c HTTPClient) (int, []byte, error) {
	resp, err := c.Get(url)
	if err != nil {
		slog.Error("Fetch Error", slog.Any("Error", err))
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Close Error", slog.Any("Error", err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Could not read body", slog.Any("Error", err))
		return 0, nil, err
	}

	return resp.StatusCode, body, nil
}

// HTTPSource polls a sensor app that serves its latest reading over HTTP,
// phyphox remote access being the usual one
type HTTPSource struct {
	SourceID string
	URL      string
	Interval time.Duration
	Decoder  Mp.SampleDecoder
	Client   HTTPClient
	Stats    *Po.StatsInternal

	lastMs int64
}

func NewHTTPSource(id, url string, interval time.Duration, dec Mp.SampleDecoder) *HTTPSource {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &HTTPSource{
		SourceID: id,
		URL:      url,
		Interval: interval,
		Decoder:  dec,
		Client:   sharedHTTPClient,
		lastMs:   -1,
	}
}

func (hs *HTTPSource) ID() string { return hs.SourceID }

func (hs *HTTPSource) Run(ctx context.Context, out chan<- Pt.Sample) error {
	ticker := time.NewTicker(hs.Interval)
	defer ticker.Stop()

	slog.Info("Polling sample source",
		slog.String("source", hs.SourceID),
		slog.String("url", hs.URL),
		slog.Duration("interval", hs.Interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			samples, err := hs.Poll()
			if err != nil {
				continue
			}
			if err := deliver(ctx, out, samples); err != nil {
				return nil
			}
		}
	}
}

// Poll fetches once and returns only samples newer than the last poll.
// A sensor app that has not produced a new reading returns the old one again.
func (hs *HTTPSource) Poll() ([]Pt.Sample, error) {
	start := time.Now()
	code, body, err := SingleFetchWithClient(hs.URL, hs.Client)
	if hs.Stats != nil {
		hs.Stats.RecSourceTimer(hs.SourceID, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		slog.Error("Unexpected status from source",
			slog.String("source", hs.SourceID),
			slog.Int("code", code))
		return nil, fmt.Errorf("source %s returned %d", hs.SourceID, code)
	}

	samples, err := hs.Decoder.Decode(body, start)
	if err != nil {
		slog.Warn("Could not decode poll", slog.String("source", hs.SourceID), slog.Any("Error", err))
		return nil, err
	}

	fresh := samples[:0]
	for _, s := range samples {
		if s.TimestampMs > hs.lastMs {
			fresh = append(fresh, s)
			hs.lastMs = s.TimestampMs
		}
	}
	return fresh, nil
}
