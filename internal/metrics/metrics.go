package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	flowsAnalyzedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowguard_flows_analyzed_total",
		Help: "Flows run through the analysis pipeline, by verdict",
	}, []string{"verdict"})
	alertsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowguard_alerts_created_total",
		Help: "Alerts persisted by the pipeline, by severity",
	}, []string{"severity"})
	inferenceErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowguard_inference_errors_total",
		Help: "Inference engine failures, by kind",
	}, []string{"kind"})
	inferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowguard_inference_duration_seconds",
		Help:    "Wall time of a single inference engine call",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	escalationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowguard_escalations_total",
		Help: "Owner escalations for high severity alerts, by outcome",
	}, []string{"outcome"})
	anomalyRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowguard_anomaly_rate",
		Help: "Share of anomalous traffic in the last pattern window",
	}, []string{"tenant"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		flowsAnalyzedTotal,
		alertsCreatedTotal,
		inferenceErrorsTotal,
		inferenceDuration,
		escalationsTotal,
		anomalyRate,
	}
}

// Register registers Prometheus collectors. Registering twice on the same registry is not an error.
func Register(registry prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// IncFlowAnalyzed counts a flow by verdict: normal, anomaly or error.
func IncFlowAnalyzed(verdict string) { flowsAnalyzedTotal.WithLabelValues(verdict).Inc() }

// IncAlert counts a persisted alert.
func IncAlert(severity string) { alertsCreatedTotal.WithLabelValues(severity).Inc() }

// ObserveInference records engine latency and, when kind is non-empty, a failure.
func ObserveInference(d time.Duration, kind string) {
	inferenceDuration.Observe(d.Seconds())
	if kind != "" {
		inferenceErrorsTotal.WithLabelValues(kind).Inc()
	}
}

// IncEscalation counts an escalation attempt: sent or failed.
func IncEscalation(outcome string) { escalationsTotal.WithLabelValues(outcome).Inc() }

// SetAnomalyRate publishes the latest pattern snapshot for a tenant.
func SetAnomalyRate(tenantID uint, rate float64) {
	anomalyRate.WithLabelValues(strconv.FormatUint(uint64(tenantID), 10)).Set(rate)
}

// AnomalyRate returns the gauge behind SetAnomalyRate for a tenant.
func AnomalyRate(tenantID uint) prometheus.Gauge {
	return anomalyRate.WithLabelValues(strconv.FormatUint(uint64(tenantID), 10))
}
