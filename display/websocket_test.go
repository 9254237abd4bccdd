package pogo_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	Pd "github.com/maroda/pogo/display"
	Pt "github.com/maroda/pogo/types"
)

func TestHub(t *testing.T) {
	hub := Pd.NewHub()
	hub.Now = func() time.Time { return time.UnixMilli(1700000000123) }
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dialWS(t, server.URL)

	t.Run("Listener is registered", func(t *testing.T) {
		eventually(t, func() bool { return hub.Clients() == 1 })
	})

	t.Run("Bounce reaches the listener", func(t *testing.T) {
		hub.OnBounceDetected(3)

		var e Pd.Event
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		assertString(t, e.Type, "bounce")
		assertInt(t, e.Count, 3)
		if e.T != 1700000000123 {
			t.Errorf("event time = %d", e.T)
		}
	})

	t.Run("Vibration and status carry their values", func(t *testing.T) {
		hub.TriggerVibration(80)
		hub.OnStatusChanged(Pt.StatusWarning, "careful")

		var vib, status Pd.Event
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&vib); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if err := conn.ReadJSON(&status); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		assertString(t, vib.Type, "vibrate")
		assertInt(t, vib.Count, 80)
		assertString(t, status.Status, "warning")
		assertString(t, status.Message, "careful")
	})

	t.Run("Listener is dropped on close", func(t *testing.T) {
		conn.Close()
		eventually(t, func() bool { return hub.Clients() == 0 })
	})

	t.Run("Broadcast with nobody listening", func(t *testing.T) {
		hub.StopAudio()
		assertString(t, hub.Type(), "websocket")
	})
}

func TestHub_SlowClient(t *testing.T) {
	hub := Pd.NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dialWS(t, server.URL)
	defer conn.Close()
	eventually(t, func() bool { return hub.Clients() == 1 })

	// Nobody reads, so the queue and socket buffers fill up
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			hub.OnMagnitudeUpdate(float64(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Broadcast blocked on a slow client")
	}
}

func TestView_IngestHandler(t *testing.T) {
	v := makeTestView(t)
	server := httptest.NewServer(v.SetupMux())
	defer server.Close()

	assertError(t, v.Supervisor.Do(Pd.CmdStartDetection), nil)

	conn := dialWS(t, server.URL+"/ingest")
	defer conn.Close()

	t.Run("Bad payloads are skipped", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	})

	t.Run("Samples reach the analyzer", func(t *testing.T) {
		payload := `[{"t":1000,"acc":{"x":0,"y":0,"z":9.81}},{"t":1100,"acc":{"x":0,"y":0,"z":15}}]`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
		eventually(t, func() bool { return v.Supervisor.Snapshot().BounceCount == 1 })
	})
}

// Helpers //

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("could not dial %s: %v", wsURL, err)
	}
	return conn
}
