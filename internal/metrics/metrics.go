// Package metrics exposes pipeline counters to Prometheus. All methods are
// safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ponytojas/airlog/internal/models"
)

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	cycles        prometheus.Counter
	saved         prometheus.Counter
	readFailures  prometheus.Counter
	parseFailures prometheus.Counter
	saveFailures  prometheus.Counter
	co2           prometheus.Gauge
	tvoc          prometheus.Gauge
}

func newCounter(name string, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "airlog",
		Name:      name,
		Help:      help,
	})
}

func newGauge(name string, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "airlog",
		Name:      name,
		Help:      help,
	})
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry:      prometheus.NewRegistry(),
		cycles:        newCounter("cycles_total", "Read-parse-persist cycles started"),
		saved:         newCounter("readings_saved_total", "Readings persisted to the store"),
		readFailures:  newCounter("read_failures_total", "Cycles aborted by a serial I/O error"),
		parseFailures: newCounter("parse_failures_total", "Lines that could not be parsed into a reading"),
		saveFailures:  newCounter("save_failures_total", "Readings the store failed to persist"),
		co2:           newGauge("co2_ppm", "Last parsed carbon dioxide level (units: ppm)"),
		tvoc:          newGauge("tvoc_ppb", "Last parsed total volatile organic compounds level (units: ppb)"),
	}

	m.registry.MustRegister(
		m.cycles,
		m.saved,
		m.readFailures,
		m.parseFailures,
		m.saveFailures,
		m.co2,
		m.tvoc,
		collectors.NewBuildInfoCollector(),
	)

	return m
}

// CycleStarted counts a cycle
func (m *Metrics) CycleStarted() {
	if m != nil {
		m.cycles.Inc()
	}
}

// ReadFailed counts a serial read failure
func (m *Metrics) ReadFailed() {
	if m != nil {
		m.readFailures.Inc()
	}
}

// ParseFailed counts a line that could not be parsed
func (m *Metrics) ParseFailed() {
	if m != nil {
		m.parseFailures.Inc()
	}
}

// Parsed records the latest CO2 and TVOC values
func (m *Metrics) Parsed(reading models.Reading) {
	if m != nil {
		m.co2.Set(float64(reading.CO2))
		m.tvoc.Set(float64(reading.TVOC))
	}
}

// SaveFailed counts a reading the store rejected
func (m *Metrics) SaveFailed() {
	if m != nil {
		m.saveFailures.Inc()
	}
}

// Saved counts a persisted reading
func (m *Metrics) Saved() {
	if m != nil {
		m.saved.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger log.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
