package sink

import (
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes event counts and the latest reading of every field as
// Prometheus metrics.
type Metrics struct {
	events  *prometheus.CounterVec
	reading *prometheus.GaugeVec
	reg     prometheus.Registerer
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensortag",
			Name:      "events_total",
			Help:      "Normalized events by sensor and kind.",
		}, []string{"sensor", "kind"}),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sensortag",
			Name:      "reading",
			Help:      "Latest normalized reading by sensor, kind and field.",
		}, []string{"sensor", "kind", "field"}),
		reg: reg,
	}
	for _, c := range []prometheus.Collector{m.events, m.reading} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Handle(e sensortag.Event) {
	kind := Name(e.Kind)
	m.events.WithLabelValues(e.SensorID, kind).Inc()
	for field, v := range numericValues(e) {
		m.reading.WithLabelValues(e.SensorID, kind, field).Set(v)
	}
}

func (m *Metrics) Close() error {
	m.reg.Unregister(m.events)
	m.reg.Unregister(m.reading)
	return nil
}
