// Package metrics exposes keeper and pool gauges to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry with the keeper's collectors.
type Metrics struct {
	registry *prometheus.Registry

	Sigma            *prometheus.GaugeVec
	Collateral       *prometheus.GaugeVec
	FeeReserve       *prometheus.GaugeVec
	CurrentRound     *prometheus.GaugeVec
	Settlements      *prometheus.CounterVec
	UpdateDuration   *prometheus.HistogramVec
	UpdateErrors     *prometheus.CounterVec
	PriceUnavailable *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}
	m.Sigma = m.newGaugeVec("optionpool_sigma", "Current pool sigma.", []string{"pool"})
	m.Collateral = m.newGaugeVec("optionpool_collateral", "Pool collateral in base units.", []string{"pool"})
	m.FeeReserve = m.newGaugeVec("optionpool_fee_reserve", "Undrawn platform fees in base units.", []string{"pool"})
	m.CurrentRound = m.newGaugeVec("optionpool_current_round", "Live round per option duration.", []string{"pool", "duration"})

	m.Settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optionpool_settlements_total",
		Help: "Option rounds settled by the keeper.",
	}, []string{"pool", "duration"})
	m.UpdateErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optionpool_update_errors_total",
		Help: "Keeper runs that failed.",
	}, []string{"pool"})
	m.PriceUnavailable = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optionpool_price_unavailable_total",
		Help: "Keeper runs skipped for lack of an oracle price.",
	}, []string{"pool"})
	m.UpdateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optionpool_update_duration_seconds",
		Help:    "Keeper run latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pool"})
	reg.MustRegister(m.Settlements, m.UpdateErrors, m.PriceUnavailable, m.UpdateDuration)
	return m
}

func (m *Metrics) newGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	m.registry.MustRegister(gv)
	return gv
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRound records the live round of one option.
func (m *Metrics) ObserveRound(pool string, duration, round uint64) {
	m.CurrentRound.WithLabelValues(pool, strconv.FormatUint(duration, 10)).Set(float64(round))
}

// Serve exposes the registry on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
