package cloudpred

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cloudpred"

// Metrics exposes training progress as prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Epochs        *prometheus.CounterVec
	BestValidLoss *prometheus.GaugeVec
	EvalLoss      prometheus.Gauge
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Epochs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "schedule_epochs_total",
				Help:      "Epochs run per learning-rate stage.",
			}, []string{"stage", "learning_rate"}),
		BestValidLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "best_valid_loss",
				Help:      "Best validation loss reached by a learning-rate stage.",
			}, []string{"learning_rate"}),
		EvalLoss: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "eval_loss",
				Help:      "Loss of the last evaluation.",
			}),
	}
}

// Register registers every collector on reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Epochs, m.BestValidLoss, m.EvalLoss} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func rateLabel(lr float64) string {
	return strconv.FormatFloat(lr, 'g', -1, 64)
}

func (m *Metrics) observeStage(stage int, lr float64, epochs int, best float64) {
	if m == nil {
		return
	}
	m.Epochs.WithLabelValues(strconv.Itoa(stage), rateLabel(lr)).Add(float64(epochs))
	m.BestValidLoss.WithLabelValues(rateLabel(lr)).Set(best)
}

func (m *Metrics) observeEval(loss float64) {
	if m == nil {
		return
	}
	m.EvalLoss.Set(loss)
}
