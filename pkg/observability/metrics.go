package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Authentication tree metrics
	TreeEvaluationsTotal   *prometheus.CounterVec
	TreeEvaluationDuration *prometheus.HistogramVec
	NodeProcessTotal       *prometheus.CounterVec
	NodeErrorsTotal        *prometheus.CounterVec

	// SAML2 metrics
	SAMLParseErrorsTotal  *prometheus.CounterVec
	SAMLMessagesTotal     *prometheus.CounterVec
	ProxyCorrelationsLive prometheus.Gauge

	// Push auth metrics
	PushPollsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TreeEvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cedar_tree_evaluations_total",
				Help: "Total number of authentication tree evaluations by terminal status",
			},
			[]string{"tree", "status"},
		),
		TreeEvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cedar_tree_evaluation_duration_seconds",
				Help:    "Tree evaluation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tree"},
		),
		NodeProcessTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cedar_node_process_total",
				Help: "Total number of node process calls by node type and outcome",
			},
			[]string{"node_type", "outcome"},
		),
		NodeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cedar_node_errors_total",
				Help: "Total number of node process failures by node type",
			},
			[]string{"node_type"},
		),
		SAMLParseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cedar_saml_parse_errors_total",
				Help: "Total number of SAML2 parse failures by element and error kind",
			},
			[]string{"element", "kind"},
		),
		SAMLMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cedar_saml_messages_total",
				Help: "Total number of SAML2 protocol messages by type and direction",
			},
			[]string{"type", "direction"},
		),
		ProxyCorrelationsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cedar_proxy_correlations_live",
				Help: "Number of live IDP-proxy correlation entries",
			},
		),
		PushPollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cedar_push_polls_total",
				Help: "Total number of push authentication poll requests by wait state",
			},
			[]string{"state"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.TreeEvaluationsTotal,
			m.TreeEvaluationDuration,
			m.NodeProcessTotal,
			m.NodeErrorsTotal,
			m.SAMLParseErrorsTotal,
			m.SAMLMessagesTotal,
			m.ProxyCorrelationsLive,
			m.PushPollsTotal,
		)
	}

	return m
}
