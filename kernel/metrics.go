package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observes kernel activity. Observability is one-way: nothing here
// feeds back into admission decisions.
type Metrics struct {
	cycles    prometheus.Counter
	decisions *prometheus.CounterVec
	warrants  prometheus.Counter
	density   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "authority_kernel_cycles_total",
			Help: "Number of committed kernel cycles.",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authority_kernel_decisions_total",
			Help: "Admission decisions by gate and reason code.",
		}, []string{"gate", "reason", "admitted"}),
		warrants: factory.NewCounter(prometheus.CounterOpts{
			Name: "authority_kernel_warrants_issued_total",
			Help: "Execution warrants issued.",
		}),
		density: factory.NewGauge(prometheus.GaugeOpts{
			Name: "authority_kernel_density",
			Help: "Current delegation density M/(A*B).",
		}),
	}
}

func (m *Metrics) observeCycle(decisions []Decision, warrants int, density float64) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	for _, d := range decisions {
		admitted := "false"
		if d.Admitted {
			admitted = "true"
		}
		m.decisions.WithLabelValues(string(d.Gate), d.Reason, admitted).Inc()
	}
	m.warrants.Add(float64(warrants))
	m.density.Set(density)
}
