// Package observability provides structured logging and Prometheus metrics
// for the Cedar authentication server.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler and chainable field helpers:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tree", "login").Info("evaluation started")
//
// # Metrics
//
// NewMetrics registers counters and histograms for tree evaluations, node
// processing, SAML2 codec failures, and push authentication polling:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.TreeEvaluationsTotal.WithLabelValues("login", "success").Inc()
package observability
