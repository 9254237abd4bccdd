package pogo

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	Mp "github.com/maroda/pogo/plugin"
	Pt "github.com/maroda/pogo/types"
)

const (
	clientQueue = 64
	writeWait   = 2 * time.Second
)

// Event is one feedback call as it goes out over /ws
type Event struct {
	Type    string  `json:"type"` // magnitude, bounce, calibrated, status, audio, tone, vibrate, stop
	T       int64   `json:"t"`    // wall clock ms
	Count   int     `json:"count,omitempty"`
	Value   float64 `json:"value,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
	Status  string  `json:"status,omitempty"`
	Message string  `json:"message,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type hubClient struct {
	send chan Event
}

// Hub is a Feedback that broadcasts every call to connected websockets.
// A phone page can listen here for vibrate and tone events.
// Slow clients lose events rather than stall the analyzer.
type Hub struct {
	MU      sync.RWMutex
	clients map[*hubClient]struct{}
	Now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		Now:     time.Now,
	}
}

func (h *Hub) register() *hubClient {
	c := &hubClient{send: make(chan Event, clientQueue)}
	h.MU.Lock()
	h.clients[c] = struct{}{}
	h.MU.Unlock()
	return c
}

func (h *Hub) unregister(c *hubClient) {
	h.MU.Lock()
	defer h.MU.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients is the number of connected listeners
func (h *Hub) Clients() int {
	h.MU.RLock()
	defer h.MU.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks
func (h *Hub) Broadcast(e Event) {
	e.T = h.Now().UnixMilli()
	h.MU.RLock()
	defer h.MU.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
		}
	}
}

func (h *Hub) OnMagnitudeUpdate(m float64) {
	h.Broadcast(Event{Type: "magnitude", Value: m})
}

func (h *Hub) OnBounceDetected(count int) {
	h.Broadcast(Event{Type: "bounce", Count: count})
}

func (h *Hub) OnCalibrationComplete(baseline float64) {
	h.Broadcast(Event{Type: "calibrated", Value: baseline})
}

func (h *Hub) OnStatusChanged(status Pt.Status, message string) {
	h.Broadcast(Event{Type: "status", Status: string(status), Message: message})
}

func (h *Hub) SetAudioTarget(frequencyHz, volume float64) {
	h.Broadcast(Event{Type: "audio", Value: frequencyHz, Volume: volume})
}

func (h *Hub) TriggerDiscreteTone() {
	h.Broadcast(Event{Type: "tone"})
}

func (h *Hub) TriggerVibration(durationMs int) {
	h.Broadcast(Event{Type: "vibrate", Count: durationMs})
}

func (h *Hub) StopAudio() {
	h.Broadcast(Event{Type: "stop"})
}

func (h *Hub) Type() string { return "websocket" }

// ServeWS streams events to one client until it goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Websocket upgrade failed", slog.Any("Error", err))
		return
	}
	defer conn.Close()

	c := h.register()
	slog.Info("Websocket listener connected", slog.String("remote", r.RemoteAddr))

	// Reads only detect the close
	go func() {
		defer h.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for e := range c.send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			h.unregister(c)
			break
		}
	}
	slog.Info("Websocket listener gone", slog.String("remote", r.RemoteAddr))
}

// IngestHandler takes samples pushed from a phone browser,
// one native payload per message
func (v *View) IngestHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Ingest upgrade failed", slog.Any("Error", err))
		return
	}
	defer conn.Close()

	dec := Mp.NativeDecoder{}
	slog.Info("Ingest connected", slog.String("remote", r.RemoteAddr))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Info("Ingest closed", slog.String("remote", r.RemoteAddr))
			return
		}

		samples, err := dec.Decode(payload, time.Now())
		if err != nil {
			slog.Warn("Could not decode ingest payload", slog.Any("Error", err))
			continue
		}
		for _, s := range samples {
			if !v.Supervisor.Submit(s) {
				return
			}
		}
	}
}
