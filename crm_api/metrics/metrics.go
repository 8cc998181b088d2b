package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	policyDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "crm_policy_denials_total", Help: "Requests denied by the authorization policy"},
		[]string{"resource", "action", "rule"},
	)

	lifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "crm_lifecycle_transitions_total", Help: "Automatic state changes on clients, contracts and events"},
		[]string{"entity", "to"},
	)

	mutationDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{Name: "crm_mutation_duration_seconds", Help: "Duration of create, update and delete transactions"},
		[]string{"resource", "action"},
	)
)

func RecordDenial(resource, action, rule string) {
	policyDenials.WithLabelValues(resource, action, rule).Inc()
}

func RecordTransition(entity, to string) {
	lifecycleTransitions.WithLabelValues(entity, to).Inc()
}

// MutationTimer should be stopped with ObserveDuration once the transaction finishes.
func MutationTimer(resource, action string) *prometheus.Timer {
	return prometheus.NewTimer(mutationDuration.WithLabelValues(resource, action))
}

func DenialCount(resource, action, rule string) float64 {
	return counterValue(policyDenials.WithLabelValues(resource, action, rule))
}

func TransitionCount(entity, to string) float64 {
	return counterValue(lifecycleTransitions.WithLabelValues(entity, to))
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
