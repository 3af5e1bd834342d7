package monitor

import (
	"math"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports sensor activity to prometheus. It is fed as a
// devices.Listener.
type Metrics struct {
	registry *prometheus.Registry

	SensorsAttached prometheus.Gauge
	Samples         *prometheus.CounterVec
	SampleErrors    *prometheus.CounterVec
	LastSample      *prometheus.GaugeVec
	Values          *prometheus.GaugeVec
}

var _ devices.Listener = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SensorsAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oms_sensors_attached",
			Help: "Number of attached sensors",
		}),
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_samples_total",
			Help: "Committed samples",
		}, []string{"sensor", "mode"}),
		SampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_sample_errors_total",
			Help: "Failed sample attempts",
		}, []string{"sensor"}),
		LastSample: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oms_last_sample_timestamp_seconds",
			Help: "Unix time of the last committed sample",
		}, []string{"sensor"}),
		Values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oms_sensor_value",
			Help: "Last decoded value, scaled by the mode's decimals",
		}, []string{"sensor", "mode", "index", "units"}),
	}

	m.registry.MustRegister(
		m.SensorsAttached,
		m.Samples,
		m.SampleErrors,
		m.LastSample,
		m.Values,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SensorAttached(*devices.Sensor) {
	m.SensorsAttached.Inc()
}

func (m *Metrics) SensorDetached(s *devices.Sensor) {
	m.SensorsAttached.Dec()

	labels := prometheus.Labels{"sensor": s.Name}
	m.Samples.DeletePartialMatch(labels)
	m.SampleErrors.DeletePartialMatch(labels)
	m.LastSample.DeletePartialMatch(labels)
	m.Values.DeletePartialMatch(labels)
}

func (m *Metrics) SampleTaken(s *devices.Sensor, r devices.Reading) {
	m.Samples.WithLabelValues(s.Name, r.Mode).Inc()
	m.LastSample.WithLabelValues(s.Name).Set(float64(r.TakenAt.UnixNano()) / 1e9)

	// a mode switch changes the value labels
	m.Values.DeletePartialMatch(prometheus.Labels{"sensor": s.Name})
	scale := math.Pow10(int(r.Decimals))
	for i, v := range r.Values {
		m.Values.WithLabelValues(s.Name, r.Mode, strconv.Itoa(i), r.Units).Set(float64(v) / scale)
	}
}

func (m *Metrics) SampleFailed(s *devices.Sensor, _ error) {
	m.SampleErrors.WithLabelValues(s.Name).Inc()
}
