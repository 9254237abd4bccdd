package pogo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	Pm "github.com/maroda/pogo/motion"
	Pt "github.com/maroda/pogo/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var Version = "dev"

// SetupMux handles all data serving:
// - Prometheus metric endpoint
// - Websocket feedback stream and sample ingest
// - JSON API for state, config, commands and bounce history
func (v *View) SetupMux() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", v.Stats.Handler())
	r.HandleFunc("/ws", v.Hub.ServeWS)
	r.HandleFunc("/ingest", v.IngestHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(v.StatsMiddleware)
	api.HandleFunc("/version", v.VersionHandler).Methods(http.MethodGet)
	api.HandleFunc("/state", v.StateHandler).Methods(http.MethodGet)
	api.HandleFunc("/config", v.ConfigHandler).Methods(http.MethodGet)
	api.HandleFunc("/config", v.ConfigUpdateHandler).Methods(http.MethodPut)
	api.HandleFunc("/detection/start", v.commandHandler(CmdStartDetection)).Methods(http.MethodPost)
	api.HandleFunc("/detection/stop", v.commandHandler(CmdStopDetection)).Methods(http.MethodPost)
	api.HandleFunc("/calibration/start", v.commandHandler(CmdStartCalibration)).Methods(http.MethodPost)
	api.HandleFunc("/calibration/cancel", v.commandHandler(CmdCancelCalibration)).Methods(http.MethodPost)
	api.HandleFunc("/bounces", v.BouncesHandler).Methods(http.MethodGet)

	return r
}

// Handler is the mux with tracing on every route
func (v *View) Handler() http.Handler {
	return otelhttp.NewHandler(v.SetupMux(), "pogo")
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Could not encode response", slog.Any("Error", err))
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (v *View) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": Version,
		"outputs": v.OutputInfo(),
	})
}

// OutputInfo lists the feedback outputs in use
func (v *View) OutputInfo() string {
	names := make([]string, 0, len(v.Outputs))
	for _, f := range v.Outputs {
		names = append(names, outputDetail(f))
	}
	return strings.Join(names, ",")
}

func (v *View) StateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v.Supervisor.Snapshot())
}

func (v *View) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v.Supervisor.Analyzer.Config())
}

// ConfigUpdateHandler takes a whole or partial config.
// Missing fields keep their current value, the result replaces the config whole.
func (v *View) ConfigUpdateHandler(w http.ResponseWriter, r *http.Request) {
	cfg := v.Supervisor.Analyzer.Config()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		slog.Warn("Could not decode config update", slog.Any("Error", err))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := v.Supervisor.Analyzer.UpdateConfig(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slog.Info("Config updated",
		slog.Float64("sensitivity", cfg.Sensitivity),
		slog.String("audioMode", string(cfg.AudioMode)),
		slog.String("gravityMode", string(cfg.GravityMode)))
	writeJSON(w, http.StatusOK, cfg)
}

func (v *View) commandHandler(cmd Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := v.Supervisor.Do(cmd)
		switch {
		case errors.Is(err, Pm.ErrDetecting), errors.Is(err, Pm.ErrCalibrating):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, ErrNotRunning):
			writeError(w, http.StatusServiceUnavailable, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, v.Supervisor.Snapshot())
		}
	}
}

// BounceData is the wire form of a stored bounce
type BounceData struct {
	SessionID   string  `json:"sessionId"`
	Count       int     `json:"count"`
	TimestampMs int64   `json:"t"`
	Time        string  `json:"time"`
	Magnitude   float64 `json:"magnitude"`
	Deviation   float64 `json:"deviation"`
}

func NewBounceData(b *Pt.BounceRecord) BounceData {
	return BounceData{
		SessionID:   b.SessionID,
		Count:       b.Count,
		TimestampMs: b.TimestampMs,
		Time:        Pm.TimestampString(b),
		Magnitude:   b.Magnitude,
		Deviation:   b.Deviation,
	}
}

// BouncesHandler answers /api/bounces?since=&until= in sample milliseconds.
// since defaults to zero, until to now.
func (v *View) BouncesHandler(w http.ResponseWriter, r *http.Request) {
	if v.Log == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no bounce history configured"))
		return
	}

	since, err := queryInt64(r, "since", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	until, err := queryInt64(r, "until", time.Now().UnixMilli())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	records, err := v.Log.QueryRange(since, until)
	if err != nil {
		slog.Error("Could not query bounces", slog.Any("Error", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	bounces := make([]BounceData, 0, len(records))
	for _, b := range records {
		bounces = append(bounces, NewBounceData(b))
	}
	writeJSON(w, http.StatusOK, bounces)
}

func queryInt64(r *http.Request, key string, d int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return d, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(key + " must be integer milliseconds")
	}
	return n, nil
}
