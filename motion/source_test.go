package pogo_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	Pm "github.com/maroda/pogo/motion"
	Mp "github.com/maroda/pogo/plugin"
	Pt "github.com/maroda/pogo/types"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		name string
		sc   Pm.SourceConfig
		want string
	}{
		{"MQTT", Pm.SourceConfig{ID: "a", Type: "mqtt", URL: "tcp://localhost:1883", Topic: "t"}, "*pogo.MQTTSource"},
		{"HTTP", Pm.SourceConfig{ID: "b", Type: "http", URL: "http://localhost"}, "*pogo.HTTPSource"},
		{"Replay", Pm.SourceConfig{ID: "c", Type: "replay", URL: "session.jsonl"}, "*pogo.ReplaySource"},
	}
	for _, tt := range tests {
		t.Run(tt.name+" source is built", func(t *testing.T) {
			src, err := Pm.NewSource(tt.sc)
			assertError(t, err, nil)
			assertString(t, fmt.Sprintf("%T", src), tt.want)
			assertString(t, src.ID(), tt.sc.ID)
		})
	}

	t.Run("Unknown type is an error", func(t *testing.T) {
		_, err := Pm.NewSource(Pm.SourceConfig{ID: "x", Type: "pigeon", URL: "coop"})
		assertGotError(t, err)
	})

	t.Run("Unknown decoder is an error", func(t *testing.T) {
		_, err := Pm.NewSource(Pm.SourceConfig{ID: "x", Type: "http", URL: "u", Decoder: "xml"})
		assertGotError(t, err)
	})

	t.Run("HTTP interval defaults when unset", func(t *testing.T) {
		src, _ := Pm.NewSource(Pm.SourceConfig{ID: "b", Type: "http", URL: "http://localhost"})
		hs := src.(*Pm.HTTPSource)
		if hs.Interval != 20*time.Millisecond {
			t.Errorf("got interval %v", hs.Interval)
		}
	})
}

func TestReplaySource_Replay(t *testing.T) {
	session := `# recorded on the trampoline
{"t": 10, "acc": {"x": 0, "y": 0, "z": 9.81}}

{"t": 20, "acc": {"x": 0, "y": 0, "z": 15}}
not json at all
[{"t": 40, "acc": {"x": 0, "y": 0, "z": 9}}, {"t": 60, "acc": {"x": 0, "y": 0, "z": 9.81}}]
`

	t.Run("Delivers every decodable sample in order", func(t *testing.T) {
		rs := Pm.NewReplaySource("replay", "", Mp.NativeDecoder{})
		rs.Realtime = false

		out := make(chan Pt.Sample, 10)
		n, err := rs.Replay(context.Background(), strings.NewReader(session), out)
		assertError(t, err, nil)
		assertInt(t, n, 4)
		close(out)

		var stamps []int64
		for s := range out {
			stamps = append(stamps, s.TimestampMs)
		}
		assertString(t, fmt.Sprint(stamps), "[10 20 40 60]")
	})

	t.Run("Stops when the context is cancelled", func(t *testing.T) {
		rs := Pm.NewReplaySource("replay", "", Mp.NativeDecoder{})
		rs.Realtime = false

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		out := make(chan Pt.Sample) // nobody reads
		n, err := rs.Replay(ctx, strings.NewReader(session), out)
		assertError(t, err, context.Canceled)
		assertInt(t, n, 0)
	})

	t.Run("A session starting at zero debounces on its own clock", func(t *testing.T) {
		var b strings.Builder
		for ts := 0; ts < 1000; ts += 10 {
			fmt.Fprintf(&b, "{\"t\": %d, \"acc\": {\"x\": 0, \"y\": 0, \"z\": 14.81}}\n", ts)
		}

		rs := Pm.NewReplaySource("replay", "", Mp.NativeDecoder{})
		rs.Realtime = false
		out := make(chan Pt.Sample, 100)
		n, err := rs.Replay(context.Background(), strings.NewReader(b.String()), out)
		assertError(t, err, nil)
		assertInt(t, n, 100)
		close(out)

		cfg := Pm.DefaultConfig()
		cfg.GravityMode = Pt.GravityFilter
		a := Pm.NewAnalyzer(cfg, nil)
		assertError(t, a.StartDetection(), nil)

		first := true
		for s := range out {
			if first {
				assertInt64(t, s.TimestampMs, 0)
				first = false
			}
			a.ProcessSample(s)
		}
		assertInt(t, a.BounceCount(), 4)
		assertInt64(t, a.LastBounceMs(), 900)
	})

	t.Run("Run errors on a missing file", func(t *testing.T) {
		rs := Pm.NewReplaySource("replay", "/nonexistent/session.jsonl", Mp.NativeDecoder{})
		err := rs.Run(context.Background(), make(chan Pt.Sample, 1))
		assertGotError(t, err)
	})

	t.Run("Run reads a file", func(t *testing.T) {
		file, delFile := createTempFile(t, session)
		defer delFile()

		rs := Pm.NewReplaySource("replay", file.Name(), Mp.NativeDecoder{})
		rs.Realtime = false
		out := make(chan Pt.Sample, 10)
		err := rs.Run(context.Background(), out)
		assertError(t, err, nil)
		assertInt(t, len(out), 4)
	})
}

// fakePhone serves whatever reading it was last given
type fakePhone struct {
	mu   sync.Mutex
	code int
	body string
}

func (p *fakePhone) set(code int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code, p.body = code, body
}

func (p *fakePhone) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.WriteHeader(p.code)
	w.Write([]byte(p.body))
}

func TestHTTPSource_Poll(t *testing.T) {
	phone := &fakePhone{code: http.StatusOK, body: `{"t": 100, "acc": {"x": 0, "y": 0, "z": 9.81}}`}
	server := httptest.NewServer(phone)
	defer server.Close()

	hs := Pm.NewHTTPSource("phone", server.URL, 0, Mp.NativeDecoder{})
	hs.Client = server.Client()

	t.Run("First poll delivers the reading", func(t *testing.T) {
		got, err := hs.Poll()
		assertError(t, err, nil)
		assertInt(t, len(got), 1)
		assertInt64(t, got[0].TimestampMs, 100)
	})

	t.Run("Repeated reading is dropped", func(t *testing.T) {
		got, err := hs.Poll()
		assertError(t, err, nil)
		assertInt(t, len(got), 0)
	})

	t.Run("Newer reading is delivered", func(t *testing.T) {
		phone.set(http.StatusOK, `[{"t": 90, "acc": {"x": 0, "y": 0, "z": 1}}, {"t": 120, "acc": {"x": 0, "y": 0, "z": 9.81}}]`)
		got, err := hs.Poll()
		assertError(t, err, nil)
		assertInt(t, len(got), 1)
		assertInt64(t, got[0].TimestampMs, 120)
	})

	t.Run("Server error is an error", func(t *testing.T) {
		phone.set(http.StatusInternalServerError, "")
		_, err := hs.Poll()
		assertGotError(t, err)
		assertStringContains(t, err.Error(), "500")
	})

	t.Run("Undecodable body is an error", func(t *testing.T) {
		phone.set(http.StatusOK, "<html>")
		_, err := hs.Poll()
		assertGotError(t, err)
	})
}

type failingClient struct{}

func (failingClient) Get(string) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestSingleFetchWithClient(t *testing.T) {
	t.Run("Returns status and body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte("short and stout"))
		}))
		defer server.Close()

		code, body, err := Pm.SingleFetchWithClient(server.URL, server.Client())
		assertError(t, err, nil)
		assertInt(t, code, http.StatusTeapot)
		assertString(t, string(body), "short and stout")
	})

	t.Run("Returns the client error", func(t *testing.T) {
		_, _, err := Pm.SingleFetchWithClient("http://nowhere", failingClient{})
		assertGotError(t, err)
	})
}

// fakeMessage satisfies mqtt.Message
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestMQTTSource_Handler(t *testing.T) {
	ms := Pm.NewMQTTSource("phone", "tcp://localhost:1883", "pogo/accel", Mp.NativeDecoder{})
	assertString(t, ms.ClientID, "pogo-phone")

	t.Run("Decodes and forwards a payload", func(t *testing.T) {
		out := make(chan Pt.Sample, 2)
		h := ms.Handler(context.Background(), out)
		h(nil, &fakeMessage{topic: "pogo/accel", payload: []byte(`{"t": 5, "acc": {"x": 1, "y": 2, "z": 3}}`)})

		assertInt(t, len(out), 1)
		s := <-out
		assertInt64(t, s.TimestampMs, 5)
		assertFloat(t, *s.Accel.Z, 3)
	})

	t.Run("Drops a bad payload", func(t *testing.T) {
		out := make(chan Pt.Sample, 2)
		h := ms.Handler(context.Background(), out)
		h(nil, &fakeMessage{topic: "pogo/accel", payload: []byte(`garbage`)})
		assertInt(t, len(out), 0)
	})

	t.Run("Gives up when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h := ms.Handler(ctx, make(chan Pt.Sample))
		h(nil, &fakeMessage{payload: []byte(`{"t": 5, "acc": {"x": 1, "y": 2, "z": 3}}`)})
	})
}

/// Helpers

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q want %q", got, want)
	}
}

func assertGotError(t testing.TB, got error) {
	t.Helper()
	if got == nil {
		t.Errorf("Expected an error but got %q", got)
	}
}

func assertInt(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertInt64(t *testing.T, got, want int64) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertFloat(t *testing.T, got, want float64) {
	t.Helper()
	assertFloatNear(t, got, want, 1e-9)
}

func assertFloatNear(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("did not get correct value, got %v, want %v", got, want)
	}
}

func assertString(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %q, want %q", got, want)
	}
}

func assertStringContains(t *testing.T, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q, expected string contains %q", want, full)
	}
}
