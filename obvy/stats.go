package pogo

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsInternal holds a private prometheus registry
// so tests can create as many as they like without collisions
type StatsInternal struct {
	Registry *prometheus.Registry

	Samples      prometheus.Counter
	Dropped      prometheus.Counter
	Bounces      prometheus.Counter
	Calibrations prometheus.Counter
	WWW          *prometheus.CounterVec
	SourceTimer  *prometheus.HistogramVec

	Magnitude prometheus.Gauge
	Baseline  prometheus.Gauge
	Cadence   prometheus.Gauge
}

func NewStatsInternal() *StatsInternal {
	reg := prometheus.NewRegistry()
	s := &StatsInternal{
		Registry: reg,
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pogo_samples_total",
			Help: "Accelerometer samples consumed by the analyzer",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pogo_samples_dropped_total",
			Help: "Samples dropped for a missing or non-finite axis, or a full queue",
		}),
		Bounces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pogo_bounces_total",
			Help: "Bounces detected across all sessions",
		}),
		Calibrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pogo_calibrations_total",
			Help: "Completed calibrations",
		}),
		WWW: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pogo_http_requests_total",
			Help: "HTTP requests by status code and method",
		}, []string{"code", "method"}),
		SourceTimer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pogo_source_fetch_seconds",
			Help:    "Time spent fetching from a polled sample source",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		Magnitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pogo_magnitude",
			Help: "Most recent vertical magnitude in m/s²",
		}),
		Baseline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pogo_baseline_magnitude",
			Help: "Calibrated resting magnitude in m/s²",
		}),
		Cadence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pogo_cadence_bpm",
			Help: "Bounces per minute from the last two bounces",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.Samples, s.Dropped, s.Bounces, s.Calibrations, s.WWW, s.SourceTimer,
		s.Magnitude, s.Baseline, s.Cadence,
	)
	return s
}

// Handler serves this registry only
func (s *StatsInternal) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

// RecWWW counts one HTTP response
func (s *StatsInternal) RecWWW(code, method string) {
	s.WWW.WithLabelValues(code, method).Inc()
}

// RecSourceTimer records how long one poll of a source took
func (s *StatsInternal) RecSourceTimer(source string, d time.Duration) {
	s.SourceTimer.WithLabelValues(source).Observe(d.Seconds())
}

func (s *StatsInternal) RecSample()  { s.Samples.Inc() }
func (s *StatsInternal) RecDropped() { s.Dropped.Inc() }
func (s *StatsInternal) RecBounce()  { s.Bounces.Inc() }

func (s *StatsInternal) RecCalibration(baseline float64) {
	s.Calibrations.Inc()
	s.Baseline.Set(baseline)
}

func (s *StatsInternal) SetMagnitude(m float64) { s.Magnitude.Set(m) }
func (s *StatsInternal) SetBaseline(b float64)  { s.Baseline.Set(b) }
func (s *StatsInternal) SetCadence(bpm float64) { s.Cadence.Set(bpm) }
